// Package identity provisions the node's stable mesh identity. The identity
// is derived from hardware identifiers on first boot and written once; its
// presence on disk is the only check for whether a node is provisioned.
package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"

	"meshnode"

	"github.com/moby/sys/atomicwriter"
	"github.com/zeebo/blake3"
)

var errEmptyIdentity = errors.New("identity file is empty")

// Hardware holds the identifiers an identity is derived from.
type Hardware struct {
	MAC    net.HardwareAddr
	Serial string
}

// HardwareSource reads the node's hardware identifiers.
type HardwareSource interface {
	Identifiers(ctx context.Context) (Hardware, error)
}

// PersistFunc writes data to path so that readers observe either the old
// state or the complete new content.
type PersistFunc func(path string, data []byte, perm os.FileMode) error

// Derive computes the identity for hw. The same hardware always yields the
// same identity.
func Derive(hw Hardware) (meshnode.Identity, error) {
	if len(hw.MAC) == 0 || isZeroMAC(hw.MAC) {
		return "", errors.New("mac address is missing")
	}
	serial := strings.TrimSpace(hw.Serial)
	if serial == "" {
		return "", errors.New("serial number is missing")
	}

	sum := blake3.Sum256([]byte(strings.ToLower(hw.MAC.String()) + "|" + serial))
	return meshnode.Identity(hex.EncodeToString(sum[:])), nil
}

// Load reads a persisted identity. The bool is false when none exists.
func Load(path string) (meshnode.Identity, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return meshnode.Identity(strings.TrimSpace(string(data))), true, nil
}

// Provisioner ensures an identity exists at a fixed path.
type Provisioner struct {
	path     string
	hardware HardwareSource
	persist  PersistFunc
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithPersist replaces the atomic file writer.
func WithPersist(fn PersistFunc) Option {
	return func(p *Provisioner) { p.persist = fn }
}

// NewProvisioner creates a provisioner for the identity at path.
func NewProvisioner(path string, hw HardwareSource, opts ...Option) *Provisioner {
	p := &Provisioner{
		path:     path,
		hardware: hw,
		persist:  atomicwriter.WriteFile,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Path returns the identity file location.
func (p *Provisioner) Path() string {
	return p.path
}

// Ensure returns the node identity, creating it on first boot. An existing
// identity is never rewritten. Failures are *meshnode.IdentityError and are
// not retried.
func (p *Provisioner) Ensure(ctx context.Context) (meshnode.Identity, error) {
	id, ok, err := Load(p.path)
	if err != nil {
		return "", &meshnode.IdentityError{Op: "read " + p.path, Err: err}
	}
	if ok {
		if id.IsZero() {
			return "", &meshnode.IdentityError{Op: "read " + p.path, Err: errEmptyIdentity}
		}
		slog.Debug("Identity already provisioned.", "path", p.path)
		return id, nil
	}

	hw, err := p.hardware.Identifiers(ctx)
	if err != nil {
		return "", &meshnode.IdentityError{Op: "read hardware identifiers", Err: err}
	}
	id, err = Derive(hw)
	if err != nil {
		return "", &meshnode.IdentityError{Op: "derive", Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return "", &meshnode.IdentityError{Op: "persist", Err: fmt.Errorf("create identity dir: %w", err)}
	}
	if err := p.persist(p.path, []byte(id.String()+"\n"), 0o644); err != nil {
		return "", &meshnode.IdentityError{Op: "persist", Err: fmt.Errorf("write %s: %w", p.path, err)}
	}

	slog.Info("Node identity provisioned.", "path", p.path, "identity", id.String())
	return id, nil
}

func isZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}
