//go:build linux

package platform

import (
	"context"
	"fmt"
	"net/netip"

	"meshnode/node/bridge"

	"github.com/vishvananda/netlink"
)

var _ bridge.InterfaceTable = InterfaceTable{}

// InterfaceTable lists interface addresses over netlink.
type InterfaceTable struct{}

func (InterfaceTable) Addresses(ctx context.Context) ([]bridge.InterfaceAddr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	var out []bridge.InterfaceAddr
	for _, link := range links {
		name := link.Attrs().Name
		addrs, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			return nil, fmt.Errorf("list addresses of %s: %w", name, err)
		}
		for _, a := range addrs {
			if a.IPNet == nil {
				continue
			}
			ip, ok := netip.AddrFromSlice(a.IP)
			if !ok {
				continue
			}
			out = append(out, bridge.InterfaceAddr{Name: name, Addr: ip.Unmap()})
		}
	}
	return out, nil
}
