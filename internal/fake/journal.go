package fake

import (
	"context"
	"sync"

	"meshnode/node"
)

var _ node.Journal = (*Journal)(nil)

// Journal keeps boot events in memory.
type Journal struct {
	mu     sync.Mutex
	events []node.Event
	Err    error
}

func (j *Journal) Record(_ context.Context, ev node.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Err != nil {
		return j.Err
	}
	j.events = append(j.events, ev)
	return nil
}

// Events returns the recorded events.
func (j *Journal) Events() []node.Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]node.Event(nil), j.events...)
}

// Kinds returns the kinds of recorded events in order.
func (j *Journal) Kinds() []node.EventKind {
	events := j.Events()
	out := make([]node.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}
