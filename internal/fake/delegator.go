package fake

import (
	"context"

	"meshnode/node"
)

var _ node.Delegator = (*Delegator)(nil)

// Delegator records legacy hand-offs. Unlike the real one it returns.
type Delegator struct {
	*CallRecorder

	Err error
}

// NewDelegator creates a Delegator recording into rec.
func NewDelegator(rec *CallRecorder) *Delegator {
	if rec == nil {
		rec = &CallRecorder{}
	}
	return &Delegator{CallRecorder: rec}
}

func (d *Delegator) Delegate(context.Context) error {
	d.record("Delegate")
	return d.Err
}
