package fake

import (
	"context"
	"net"

	"meshnode/node/identity"
)

var _ identity.HardwareSource = (*Hardware)(nil)

// Hardware returns fixed hardware identifiers.
type Hardware struct {
	*CallRecorder

	MAC    net.HardwareAddr
	Serial string
	Err    error
}

// NewHardware creates a Hardware source with the given MAC and serial.
func NewHardware(rec *CallRecorder, mac, serial string) *Hardware {
	if rec == nil {
		rec = &CallRecorder{}
	}
	hw, err := net.ParseMAC(mac)
	if err != nil {
		panic(err)
	}
	return &Hardware{CallRecorder: rec, MAC: hw, Serial: serial}
}

func (h *Hardware) Identifiers(context.Context) (identity.Hardware, error) {
	h.record("Identifiers")
	if h.Err != nil {
		return identity.Hardware{}, h.Err
	}
	return identity.Hardware{MAC: h.MAC, Serial: h.Serial}, nil
}
