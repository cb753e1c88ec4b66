package meshnode

import "strings"

// Mode is the operating mode a node boots into.
type Mode uint8

const (
	// ModeLegacy hands the boot off to the single-node entrypoint.
	ModeLegacy Mode = iota
	// ModeMesh provisions identity, waits for the bridge and starts the mesh services.
	ModeMesh
)

func (m Mode) String() string {
	switch m {
	case ModeLegacy:
		return "legacy"
	case ModeMesh:
		return "mesh"
	default:
		return "unknown"
	}
}

// ParseMode maps a configured mode value to a Mode. Only "mesh" selects
// mesh mode; unset or unrecognised values select legacy. The bool reports
// whether the value was recognised, so callers can warn about typos.
func ParseMode(value string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "mesh":
		return ModeMesh, true
	case "legacy", "":
		return ModeLegacy, true
	default:
		return ModeLegacy, false
	}
}

// Identity is the node's stable join key on the mesh. It is derived once from
// hardware identifiers and never regenerated.
type Identity string

func (id Identity) String() string { return string(id) }

// IsZero reports whether the identity is empty.
func (id Identity) IsZero() bool { return strings.TrimSpace(string(id)) == "" }
