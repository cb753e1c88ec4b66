package platform

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"meshnode/node/identity"
)

var _ identity.HardwareSource = (*Hardware)(nil)

// Hardware reads the identifiers a node identity is derived from: the MAC of
// the mesh radio and the processor or board serial.
type Hardware struct {
	Interface string
	// ProcRoot and SysRoot locate procfs and sysfs.
	ProcRoot string
	SysRoot  string

	macByName func(name string) (net.HardwareAddr, error)
}

// NewHardware reads the MAC of iface.
func NewHardware(iface string) *Hardware {
	return &Hardware{
		Interface: iface,
		ProcRoot:  "/proc",
		SysRoot:   "/sys",
		macByName: interfaceMAC,
	}
}

func (h *Hardware) Identifiers(ctx context.Context) (identity.Hardware, error) {
	if err := ctx.Err(); err != nil {
		return identity.Hardware{}, err
	}
	mac, err := h.macByName(h.Interface)
	if err != nil {
		return identity.Hardware{}, fmt.Errorf("read mac of %s: %w", h.Interface, err)
	}
	if len(mac) == 0 {
		return identity.Hardware{}, fmt.Errorf("interface %s has no mac address", h.Interface)
	}
	serial, err := h.Serial()
	if err != nil {
		return identity.Hardware{}, err
	}
	return identity.Hardware{MAC: mac, Serial: serial}, nil
}

// Serial returns the first usable serial from the cpuinfo Serial line, the
// DMI product serial, or the DMI board serial.
func (h *Hardware) Serial() (string, error) {
	if s, err := cpuSerial(filepath.Join(h.ProcRoot, "cpuinfo")); err == nil && usableSerial(s) {
		return s, nil
	}
	for _, name := range []string{"product_serial", "board_serial"} {
		data, err := os.ReadFile(filepath.Join(h.SysRoot, "class", "dmi", "id", name))
		if err != nil {
			continue
		}
		if s := strings.TrimSpace(string(data)); usableSerial(s) {
			return s, nil
		}
	}
	return "", errors.New("no processor or board serial number found")
}

func cpuSerial(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), ":")
		if ok && strings.TrimSpace(key) == "Serial" {
			return strings.TrimSpace(value), nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", os.ErrNotExist
}

// usableSerial rejects empty and all-zero serials, which firmware reports
// when no serial is programmed.
func usableSerial(s string) bool {
	return strings.Trim(s, "0") != ""
}
