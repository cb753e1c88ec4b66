package stage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meshnode"
	"meshnode/internal/wait"

	"github.com/cenkalti/backoff/v4"
)

// Hook wraps the execution of one stage. It must call next exactly once and
// return its error.
type Hook func(ctx context.Context, index int, s Stage, next func(context.Context) error) error

// MarkerCheck returns the readiness condition for a marker path.
type MarkerCheck func(path string) wait.Condition

// Sequencer starts the stages of a plan strictly in order. Stage i+1 is never
// launched before stage i's launch has returned and stage i+1's After marker
// has been observed.
type Sequencer struct {
	launcher Launcher
	markers  MarkerCheck
	poll     wait.Options
	hook     Hook
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithPoll sets the marker poll interval, the optional bound, and the timer.
func WithPoll(interval, timeout time.Duration, timer backoff.Timer) Option {
	return func(q *Sequencer) {
		q.poll.Interval = interval
		q.poll.Timeout = timeout
		q.poll.Timer = timer
	}
}

// WithMarkerCheck replaces the filesystem marker check.
func WithMarkerCheck(fn MarkerCheck) Option {
	return func(q *Sequencer) { q.markers = fn }
}

// WithHook installs a hook around each stage.
func WithHook(h Hook) Option {
	return func(q *Sequencer) { q.hook = h }
}

// NewSequencer creates a sequencer launching through l.
func NewSequencer(l Launcher, opts ...Option) *Sequencer {
	q := &Sequencer{
		launcher: l,
		markers:  wait.PathExists,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Run executes the plan. The first failure aborts the sequence; services
// already started are left running.
func (q *Sequencer) Run(ctx context.Context, plan Plan) error {
	for i, s := range plan {
		run := func(ctx context.Context) error { return q.step(ctx, s) }
		var err error
		if q.hook != nil {
			err = q.hook(ctx, i, s, run)
		} else {
			err = run(ctx)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (q *Sequencer) step(ctx context.Context, s Stage) error {
	if s.After != "" {
		slog.Info("Waiting for readiness marker.", "stage", s.Name, "marker", s.After)
		opts := q.poll
		opts.Name = "marker " + s.After
		if err := wait.Until(ctx, opts, q.markers(s.After)); err != nil {
			var timeout *meshnode.ReadinessTimeoutError
			if errors.As(err, &timeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return fmt.Errorf("wait before stage %q: %w", s.Name, err)
			}
			return &meshnode.StageLaunchError{Stage: s.Name, Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("launch stage %q: %w", s.Name, err)
	}
	res, err := q.launcher.Launch(ctx, s)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return fmt.Errorf("launch stage %q: %w", s.Name, err)
		}
		return &meshnode.StageLaunchError{Stage: s.Name, Err: err}
	}
	slog.Info("Stage launched.", "stage", s.Name, "pid", res.PID)
	return nil
}
