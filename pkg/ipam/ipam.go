// Package ipam holds IPv4 address arithmetic for bridge addressing.
package ipam

import (
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"net/netip"
)

// HostFromMAC places the node on prefix using the last MAC octet as the host
// number, so br-lan 10.10.20.0/24 and MAC ..:0c yields 10.10.20.12. The
// network and broadcast addresses are rejected, as is a prefix too small to
// hold the octet.
func HostFromMAC(prefix netip.Prefix, mac net.HardwareAddr) (netip.Addr, error) {
	if !prefix.IsValid() {
		return netip.Addr{}, fmt.Errorf("bridge prefix is required")
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return netip.Addr{}, fmt.Errorf("only ipv4 bridge prefixes are supported")
	}
	if len(mac) == 0 {
		return netip.Addr{}, fmt.Errorf("mac address is required")
	}

	host := uint32(mac[len(mac)-1])
	return HostAt(prefix, host)
}

// HostAt returns the host-th address in prefix.
func HostAt(prefix netip.Prefix, host uint32) (netip.Addr, error) {
	start, end, err := PrefixRange4(prefix)
	if err != nil {
		return netip.Addr{}, err
	}
	if host == 0 {
		return netip.Addr{}, fmt.Errorf("host 0 is the network address of %s", prefix.Masked())
	}
	if host > end-start {
		return netip.Addr{}, fmt.Errorf("host %d does not fit in %s", host, prefix.Masked())
	}
	if prefix.Bits() < 31 && start+host == end {
		return netip.Addr{}, fmt.Errorf("host %d is the broadcast address of %s", host, prefix.Masked())
	}
	return Uint32ToAddr(start + host), nil
}

func PrefixRange4(p netip.Prefix) (uint32, uint32, error) {
	p = p.Masked()
	if !p.Addr().Is4() {
		return 0, 0, fmt.Errorf("prefix %s is not ipv4", p)
	}
	b := p.Addr().As4()
	start := binary.BigEndian.Uint32(b[:])
	hostBits := 32 - p.Bits()
	if hostBits <= 0 {
		return start, start, nil
	}
	if hostBits >= 32 {
		return 0, math.MaxUint32, nil
	}
	size := uint32(1) << hostBits
	return start, start + size - 1, nil
}

func Uint32ToAddr(v uint32) netip.Addr {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return netip.AddrFrom4(b)
}
