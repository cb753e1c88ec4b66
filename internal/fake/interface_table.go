package fake

import (
	"context"
	"fmt"
	"net/netip"
	"sync"

	"meshnode/node/bridge"
)

var _ bridge.InterfaceTable = (*InterfaceTable)(nil)

// InterfaceTable is an in-memory interface table.
type InterfaceTable struct {
	*CallRecorder

	mu      sync.Mutex
	addrs   []bridge.InterfaceAddr
	err     error
	queries int
	// OnQuery runs before the n-th query (1-based) is answered.
	OnQuery func(n int)
}

// NewInterfaceTable creates an empty table recording into rec.
func NewInterfaceTable(rec *CallRecorder) *InterfaceTable {
	if rec == nil {
		rec = &CallRecorder{}
	}
	return &InterfaceTable{CallRecorder: rec}
}

// Add assigns addr to the named interface. addr must parse.
func (t *InterfaceTable) Add(name, addr string) {
	a := netip.MustParseAddr(addr)
	t.mu.Lock()
	t.addrs = append(t.addrs, bridge.InterfaceAddr{Name: name, Addr: a})
	t.mu.Unlock()
}

// SetError makes every following query fail with err.
func (t *InterfaceTable) SetError(err error) {
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
}

// Queries returns how many times the table was read.
func (t *InterfaceTable) Queries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queries
}

func (t *InterfaceTable) Addresses(ctx context.Context) ([]bridge.InterfaceAddr, error) {
	t.mu.Lock()
	t.queries++
	n := t.queries
	t.mu.Unlock()

	if t.OnQuery != nil {
		t.OnQuery(n)
	}
	t.record("Addresses", n)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, fmt.Errorf("list addresses: %w", t.err)
	}
	return append([]bridge.InterfaceAddr(nil), t.addrs...), nil
}
