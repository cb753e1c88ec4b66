package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"meshnode"
	"meshnode/internal/check"
	"meshnode/node/bridge"
	"meshnode/node/stage"
	"meshnode/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

// Stage environment variables.
const (
	EnvRole     = "MESHNODE_ROLE"
	EnvIdentity = "MESHNODE_IDENTITY"
)

// Run boots the node. In legacy mode it delegates once and returns the
// delegation result. In mesh mode it provisions identity, waits for the
// bridge, launches every stage, then idles until ctx is done and returns
// nil. Any failure before idle aborts the run and is returned unchanged.
func (n *Node) Run(ctx context.Context) (err error) {
	n.mu.Lock()
	if n.ran {
		n.mu.Unlock()
		return errors.New("node already booted")
	}
	n.ran = true
	n.mu.Unlock()

	n.record(ctx, Event{Kind: EventRunStarted, Phase: PhaseSelectingMode, Detail: n.mode.String()})
	slog.Info("Booting node.", "mode", n.mode.String())
	defer func() {
		if err != nil {
			n.record(context.WithoutCancel(ctx), Event{Kind: EventFailed, Phase: n.Phase(), Detail: err.Error()})
		}
	}()

	if n.mode != meshnode.ModeMesh {
		return n.runLegacy(ctx)
	}
	return n.runMesh(ctx)
}

func (n *Node) runLegacy(ctx context.Context) (err error) {
	if n.delegator == nil {
		return &meshnode.ConfigurationError{Field: "legacy.command", Message: "no legacy entrypoint configured"}
	}
	op := n.emitPlan(ctx, telemetry.LegacyBootPlan())
	defer func() { op.End(err) }()

	n.transition(ctx, PhaseDelegated)
	return op.RunStep(stepContext(ctx, op), telemetry.StepDelegate, func(ctx context.Context) error {
		if err := n.delegator.Delegate(ctx); err != nil {
			return fmt.Errorf("delegate to legacy entrypoint: %w", err)
		}
		return nil
	})
}

func (n *Node) runMesh(ctx context.Context) (err error) {
	if err := n.validateMesh(); err != nil {
		return err
	}
	op := n.emitPlan(ctx, telemetry.MeshBootPlan(n.plan.Names()))
	defer func() {
		if err != nil {
			op.End(err)
		}
	}()

	n.transition(ctx, PhaseProvisioningIdentity)
	var id meshnode.Identity
	err = op.RunStep(stepContext(ctx, op), telemetry.StepIdentity, func(ctx context.Context) error {
		var err error
		id, err = n.identity.Ensure(ctx)
		return err
	})
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.id = id
	n.mu.Unlock()

	n.transition(ctx, PhaseWaitingBridge)
	err = op.RunStep(stepContext(ctx, op), telemetry.StepBridge, func(ctx context.Context) error {
		target, err := n.bridgeTarget(ctx)
		if err != nil {
			return err
		}
		return n.gate.Wait(ctx, target)
	})
	if err != nil {
		return err
	}

	n.transition(ctx, PhaseRunningStages)
	plan := n.plan.WithEnv(EnvRole+"="+n.role, EnvIdentity+"="+id.String())
	hook := func(ctx context.Context, _ int, s stage.Stage, next func(context.Context) error) error {
		return op.RunStep(ctx, telemetry.StageStep(s.Name), next)
	}
	opts := append(append([]stage.Option(nil), n.stageOpts...), stage.WithHook(hook))
	seq := stage.NewSequencer(journalingLauncher{Launcher: n.launcher, node: n}, opts...)
	err = op.RunStep(stepContext(ctx, op), telemetry.StepStages, func(ctx context.Context) error {
		return seq.Run(ctx, plan)
	})
	if err != nil {
		return err
	}

	n.transition(ctx, PhaseIdle)
	op.End(nil)
	close(n.idle)
	slog.Info("All stages launched, idling.", "stages", len(plan))

	<-ctx.Done()
	slog.Info("Shutting down.", "cause", context.Cause(ctx))
	return nil
}

func (n *Node) validateMesh() error {
	switch {
	case n.identity == nil:
		return &meshnode.ConfigurationError{Field: "identity", Message: "no identity provisioner configured"}
	case n.gate == nil:
		return &meshnode.ConfigurationError{Field: "bridge", Message: "no bridge gate configured"}
	case !n.bridge.Addr.IsValid() && !n.bridge.Prefix.IsValid():
		return &meshnode.ConfigurationError{Field: "bridge", Message: "bridge address is required in mesh mode"}
	case n.launcher == nil:
		return &meshnode.ConfigurationError{Field: "stages", Message: "no launcher configured"}
	case n.bridge.NeedsMAC() && n.hardware == nil:
		return &meshnode.ConfigurationError{Field: "bridge", Message: "prefix spec needs a hardware source"}
	}
	return n.plan.Validate()
}

func (n *Node) bridgeTarget(ctx context.Context) (bridge.Target, error) {
	if !n.bridge.NeedsMAC() {
		return n.bridge.Resolve(nil)
	}
	hw, err := n.hardware.Identifiers(ctx)
	if err != nil {
		return bridge.Target{}, &meshnode.IdentityError{Op: "read hardware identifiers", Err: err}
	}
	return n.bridge.Resolve(hw.MAC)
}

func (n *Node) emitPlan(ctx context.Context, plan telemetry.Plan) *telemetry.Operation {
	op, err := telemetry.EmitPlan(ctx, telemetry.Tracer(n.tracer), telemetry.BootOperation, plan,
		attribute.String(telemetry.ModeKey, n.mode.String()))
	if err != nil {
		slog.Warn("Boot tracing disabled.", "err", err)
		return nil
	}
	return op
}

// stepContext returns the context steps run under: the boot span's context
// when tracing, otherwise ctx.
func stepContext(ctx context.Context, op *telemetry.Operation) context.Context {
	if op == nil {
		return ctx
	}
	return op.Context()
}

func (n *Node) transition(ctx context.Context, to Phase) {
	n.mu.Lock()
	from := n.phase
	check.Assertf(from.next(to), "illegal boot transition %s -> %s", from, to)
	n.phase = to
	n.mu.Unlock()

	slog.Debug("Boot phase changed.", "from", from.String(), "to", to.String())
	n.record(ctx, Event{Kind: EventPhase, Phase: to})
}

func (n *Node) record(ctx context.Context, ev Event) {
	if n.journal == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	if err := n.journal.Record(ctx, ev); err != nil {
		slog.Warn("Failed to record boot event.", "kind", string(ev.Kind), "err", err)
	}
}

// journalingLauncher records every successful launch in the journal.
type journalingLauncher struct {
	stage.Launcher
	node *Node
}

func (l journalingLauncher) Launch(ctx context.Context, s stage.Stage) (stage.LaunchResult, error) {
	res, err := l.Launcher.Launch(ctx, s)
	if err != nil {
		return res, err
	}
	l.node.record(ctx, Event{
		Kind:   EventStageLaunch,
		Phase:  PhaseRunningStages,
		Stage:  s.Name,
		Detail: fmt.Sprintf("pid %d", res.PID),
	})
	return res, nil
}
