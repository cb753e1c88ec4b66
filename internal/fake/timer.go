package fake

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

var _ backoff.Timer = (*Timer)(nil)

// Timer is a backoff.Timer that fires immediately. It records every
// requested duration so tests can assert on the poll interval without
// sleeping.
type Timer struct {
	mu        sync.Mutex
	c         chan time.Time
	durations []time.Duration
}

// NewTimer creates a Timer.
func NewTimer() *Timer {
	return &Timer{c: make(chan time.Time, 1)}
}

// Start records d and fires the timer.
func (t *Timer) Start(d time.Duration) {
	t.mu.Lock()
	t.durations = append(t.durations, d)
	t.mu.Unlock()
	select {
	case t.c <- time.Time{}:
	default:
	}
}

// Stop is a no-op.
func (t *Timer) Stop() {}

// C returns the firing channel.
func (t *Timer) C() <-chan time.Time {
	return t.c
}

// Durations returns every duration the timer was started with.
func (t *Timer) Durations() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Duration(nil), t.durations...)
}
