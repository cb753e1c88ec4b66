// Package buildinfo carries version metadata stamped at link time:
//
//	go build -ldflags "-X meshnode/internal/buildinfo.Version=v1.2.3"
package buildinfo

import "runtime/debug"

// Version is the release version. Overridden by -ldflags.
var Version = "dev"

func init() {
	if Version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}
