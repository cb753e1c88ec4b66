// Package bridge blocks mesh startup until the internal bridge network holds
// its expected address. The gate only observes the interface table; it never
// configures interfaces.
package bridge

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"meshnode"
	"meshnode/internal/wait"

	"github.com/cenkalti/backoff/v4"
)

// InterfaceAddr is one address assigned to a local interface.
type InterfaceAddr struct {
	Name string
	Addr netip.Addr
}

// InterfaceTable is a read-only view of the local interface addresses.
type InterfaceTable interface {
	Addresses(ctx context.Context) ([]InterfaceAddr, error)
}

// Gate waits for a bridge target to appear in the interface table.
type Gate struct {
	table InterfaceTable
	poll  wait.Options
}

// Option configures a Gate.
type Option func(*Gate)

// WithPoll sets the poll interval, the optional bound, and the timer.
func WithPoll(interval, timeout time.Duration, timer backoff.Timer) Option {
	return func(g *Gate) {
		g.poll.Interval = interval
		g.poll.Timeout = timeout
		g.poll.Timer = timer
	}
}

// NewGate creates a gate reading from table.
func NewGate(table InterfaceTable, opts ...Option) *Gate {
	g := &Gate{table: table}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wait blocks until target is observed. Without a configured timeout it
// waits until ctx is done. A failure to read the interface table ends the
// wait with *meshnode.InterfaceQueryError.
func (g *Gate) Wait(ctx context.Context, target Target) error {
	opts := g.poll
	opts.Name = "bridge " + target.String()

	slog.Info("Waiting for bridge.", "target", target.String())
	err := wait.Until(ctx, opts, func(ctx context.Context) (bool, error) {
		addrs, err := g.table.Addresses(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, &meshnode.InterfaceQueryError{Err: err}
		}
		for _, a := range addrs {
			if target.Matches(a) {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	slog.Info("Bridge is up.", "target", target.String())
	return nil
}
