// Package platform binds the boot ports to the host OS and holds the
// compile-time defaults of a mesh node.
//
// Platform split:
//   - linux: interface table and MAC via netlink, serial from procfs/sysfs
//   - other: interface table and MAC via the net package (development only)
//
// Legacy delegation replaces the process image and is available on unix
// platforms only.
package platform
