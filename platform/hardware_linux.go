//go:build linux

package platform

import (
	"net"

	"github.com/vishvananda/netlink"
)

func interfaceMAC(name string) (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, err
	}
	return link.Attrs().HardwareAddr, nil
}
