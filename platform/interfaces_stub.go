//go:build !linux

package platform

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"meshnode/node/bridge"
)

var _ bridge.InterfaceTable = InterfaceTable{}

// InterfaceTable lists interface addresses through the net package.
type InterfaceTable struct{}

func (InterfaceTable) Addresses(ctx context.Context) ([]bridge.InterfaceAddr, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	var out []bridge.InterfaceAddr
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, fmt.Errorf("list addresses of %s: %w", iface.Name, err)
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipNet.IP)
			if !ok {
				continue
			}
			out = append(out, bridge.InterfaceAddr{Name: iface.Name, Addr: ip.Unmap()})
		}
	}
	return out, nil
}
