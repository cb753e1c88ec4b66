package node

import (
	"context"
	"time"

	"meshnode"
	"meshnode/node/bridge"
)

// Delegator hands the boot over to the legacy entrypoint. Production
// implementations replace the process and only return on failure.
type Delegator interface {
	Delegate(ctx context.Context) error
}

// IdentityProvisioner ensures the node identity exists.
type IdentityProvisioner interface {
	Ensure(ctx context.Context) (meshnode.Identity, error)
}

// BridgeGate blocks until the bridge target is up.
type BridgeGate interface {
	Wait(ctx context.Context, target bridge.Target) error
}

// EventKind classifies a journal event.
type EventKind string

const (
	EventRunStarted  EventKind = "run_started"
	EventPhase       EventKind = "phase"
	EventStageLaunch EventKind = "stage_launched"
	EventFailed      EventKind = "failed"
)

// Event is one entry of the boot journal.
type Event struct {
	Time   time.Time
	Kind   EventKind
	Phase  Phase
	Stage  string
	Detail string
}

// Journal records boot events. Failures to record are logged and never
// abort a boot.
type Journal interface {
	Record(ctx context.Context, ev Event) error
}
