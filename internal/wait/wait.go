// Package wait provides the cancellable polling primitive used by every
// readiness gate. A wait is unbounded unless a timeout is set; cancelling the
// context always ends it.
package wait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"meshnode"

	"github.com/cenkalti/backoff/v4"
)

// DefaultInterval is the poll interval used when Options.Interval is unset.
const DefaultInterval = time.Second

var (
	errNotReady = errors.New("not ready")
	errTimedOut = errors.New("readiness wait timed out")
)

// Condition reports whether the awaited state has been reached. A non-nil
// error ends the wait immediately and is returned as-is.
type Condition func(ctx context.Context) (bool, error)

// Options configures a wait.
type Options struct {
	// Name identifies the gate in logs and timeout errors.
	Name string
	// Interval between condition checks. Defaults to DefaultInterval.
	Interval time.Duration
	// Timeout bounds the wait. Zero waits until ctx is done.
	Timeout time.Duration
	// Timer overrides the retry timer, letting tests drive polls without
	// sleeping. Nil uses wall-clock time.
	Timer backoff.Timer
}

// Until polls cond until it returns true, returns an error, or the wait ends.
// The condition is checked once immediately before the first sleep.
//
// When the configured Timeout expires the result is a
// *meshnode.ReadinessTimeoutError. Cancellation or deadline of the parent ctx
// is returned as the context error.
func Until(ctx context.Context, opts Options, cond Condition) error {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	waitCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeoutCause(ctx, opts.Timeout, errTimedOut)
		defer cancel()
	}

	attempts := 0
	op := func() error {
		attempts++
		ok, err := cond(waitCtx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errNotReady
		}
		return nil
	}
	notify := func(_ error, next time.Duration) {
		slog.Debug("Waiting for readiness.", "gate", opts.Name, "attempt", attempts, "retry_in", next)
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), waitCtx)
	err := backoff.RetryNotifyWithTimer(op, b, notify, opts.Timer)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && errors.Is(context.Cause(waitCtx), errTimedOut) {
		return &meshnode.ReadinessTimeoutError{Gate: opts.Name, Timeout: opts.Timeout}
	}
	return err
}

// PathExists is a Condition that is satisfied once path exists. Only
// existence is checked; the content is never read. Errors other than
// not-exist (permission, I/O) end the wait.
func PathExists(path string) Condition {
	return func(context.Context) (bool, error) {
		_, err := os.Stat(path)
		if err == nil {
			return true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}
