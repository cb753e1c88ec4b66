package node

import "meshnode/internal/check"

// Phase describes where a boot run is.
type Phase uint8

const (
	PhaseSelectingMode Phase = iota
	PhaseDelegated
	PhaseProvisioningIdentity
	PhaseWaitingBridge
	PhaseRunningStages
	PhaseIdle
)

func (p Phase) String() string {
	switch p {
	case PhaseSelectingMode:
		return "selecting_mode"
	case PhaseDelegated:
		return "delegated"
	case PhaseProvisioningIdentity:
		return "provisioning_identity"
	case PhaseWaitingBridge:
		return "waiting_bridge"
	case PhaseRunningStages:
		return "running_stages"
	case PhaseIdle:
		return "idle"
	default:
		check.Assertf(false, "unknown boot phase: %d", p)
		return "unknown"
	}
}

// next reports whether moving from p to to is a legal transition. Every
// run is linear; there are no recovery edges.
func (p Phase) next(to Phase) bool {
	switch p {
	case PhaseSelectingMode:
		return to == PhaseDelegated || to == PhaseProvisioningIdentity
	case PhaseProvisioningIdentity:
		return to == PhaseWaitingBridge
	case PhaseWaitingBridge:
		return to == PhaseRunningStages
	case PhaseRunningStages:
		return to == PhaseIdle
	default:
		return false
	}
}
