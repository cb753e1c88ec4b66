package bridge

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"meshnode"
	"meshnode/pkg/ipam"
)

// Spec is a parsed bridgeAddressSpec. It names the expected bridge address
// either directly or as a prefix whose host part comes from the node MAC.
//
//	10.10.20.2              any interface holding the address
//	br-lan=10.10.20.2       br-lan holding the address
//	br-lan=10.10.20.0/24    br-lan holding <prefix>.<last MAC octet>
type Spec struct {
	Interface string
	Addr      netip.Addr
	Prefix    netip.Prefix
}

// ParseSpec parses a bridgeAddressSpec. Errors are *meshnode.ConfigurationError.
func ParseSpec(spec string) (Spec, error) {
	raw := strings.TrimSpace(spec)
	if raw == "" {
		return Spec{}, &meshnode.ConfigurationError{Field: "bridge", Message: "bridge address is required in mesh mode"}
	}

	var out Spec
	value := raw
	if name, addr, ok := strings.Cut(raw, "="); ok {
		out.Interface = strings.TrimSpace(name)
		value = strings.TrimSpace(addr)
		if out.Interface == "" {
			return Spec{}, &meshnode.ConfigurationError{Field: "bridge", Message: fmt.Sprintf("empty interface name in %q", raw)}
		}
	}

	if strings.Contains(value, "/") {
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return Spec{}, &meshnode.ConfigurationError{Field: "bridge", Message: fmt.Sprintf("parse %q", raw), Err: err}
		}
		if !prefix.Addr().Is4() {
			return Spec{}, &meshnode.ConfigurationError{Field: "bridge", Message: fmt.Sprintf("prefix %s is not ipv4", prefix)}
		}
		out.Prefix = prefix.Masked()
		return out, nil
	}

	addr, err := netip.ParseAddr(value)
	if err != nil {
		return Spec{}, &meshnode.ConfigurationError{Field: "bridge", Message: fmt.Sprintf("parse %q", raw), Err: err}
	}
	out.Addr = addr.Unmap()
	return out, nil
}

// NeedsMAC reports whether resolving the spec requires the node MAC.
func (s Spec) NeedsMAC() bool {
	return s.Prefix.IsValid()
}

// Resolve computes the expected bridge target. mac is only consulted when
// the spec is a prefix.
func (s Spec) Resolve(mac net.HardwareAddr) (Target, error) {
	if !s.NeedsMAC() {
		return Target{Interface: s.Interface, Addr: s.Addr}, nil
	}
	addr, err := ipam.HostFromMAC(s.Prefix, mac)
	if err != nil {
		return Target{}, &meshnode.ConfigurationError{Field: "bridge", Message: "derive bridge address", Err: err}
	}
	return Target{Interface: s.Interface, Addr: addr}, nil
}

func (s Spec) String() string {
	value := s.Addr.String()
	if s.Prefix.IsValid() {
		value = s.Prefix.String()
	}
	if s.Interface == "" {
		return value
	}
	return s.Interface + "=" + value
}

// Target is the bridge address to wait for.
type Target struct {
	Interface string
	Addr      netip.Addr
}

// Matches reports whether a live interface address satisfies the target.
func (t Target) Matches(a InterfaceAddr) bool {
	if t.Interface != "" && a.Name != t.Interface {
		return false
	}
	return a.Addr.Unmap() == t.Addr
}

func (t Target) String() string {
	if t.Interface == "" {
		return t.Addr.String()
	}
	return t.Interface + "=" + t.Addr.String()
}
