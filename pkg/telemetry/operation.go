// Package telemetry records a boot run as OpenTelemetry spans. The planned
// steps are attached to the root span up front so a trace viewer can show
// which steps never ran when a boot aborts.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	PlanEventName      = "meshnode.plan"
	PlanVersion        = "1"
	PlanVersionKey     = "meshnode.plan.version"
	PlanJSONKey        = "meshnode.plan.json"
	BootOperation      = "meshnode.boot"
	ModeKey            = "meshnode.mode"
	defaultOperationID = "operation"
)

// Step IDs used by a mesh boot. Stage steps are StagePrefix + stage name and
// are children of StepStages.
const (
	StepIdentity = "identity"
	StepBridge   = "bridge"
	StepStages   = "stages"
	StepDelegate = "delegate"
	StagePrefix  = "stage/"
)

type PlannedStep struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Title    string `json:"title"`
}

type Plan struct {
	Steps []PlannedStep `json:"steps"`
}

// MeshBootPlan returns the planned steps for a mesh boot starting the named
// stages in order.
func MeshBootPlan(stages []string) Plan {
	plan := Plan{Steps: []PlannedStep{
		{ID: StepIdentity, Title: "provisioning identity"},
		{ID: StepBridge, Title: "waiting for bridge"},
		{ID: StepStages, Title: "starting services"},
	}}
	for _, name := range stages {
		plan.Steps = append(plan.Steps, PlannedStep{
			ID:       StageStep(name),
			ParentID: StepStages,
			Title:    "starting " + name,
		})
	}
	return plan
}

// LegacyBootPlan returns the planned steps for a legacy boot.
func LegacyBootPlan() Plan {
	return Plan{Steps: []PlannedStep{{ID: StepDelegate, Title: "delegating to legacy entrypoint"}}}
}

// StageStep returns the step ID for a stage.
func StageStep(name string) string {
	return StagePrefix + name
}

// Tracer returns t, or a no-op tracer when t is nil.
func Tracer(t trace.Tracer) trace.Tracer {
	if t == nil {
		return noop.NewTracerProvider().Tracer("meshnode")
	}
	return t
}

type Operation struct {
	ctx    context.Context
	tracer trace.Tracer
	span   trace.Span
}

func EmitPlan(ctx context.Context, tracer trace.Tracer, operation string, plan Plan, attrs ...attribute.KeyValue) (*Operation, error) {
	if tracer == nil {
		return nil, fmt.Errorf("emit telemetry plan: tracer is required")
	}
	if err := validatePlan(plan); err != nil {
		return nil, fmt.Errorf("emit telemetry plan: %w", err)
	}

	operation = strings.TrimSpace(operation)
	if operation == "" {
		operation = defaultOperationID
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("emit telemetry plan: marshal plan: %w", err)
	}

	spanAttrs := append([]attribute.KeyValue{
		attribute.String(PlanVersionKey, PlanVersion),
		attribute.String(PlanJSONKey, string(planJSON)),
	}, attrs...)
	spanCtx, span := tracer.Start(ctx, operation, trace.WithAttributes(spanAttrs...))
	span.AddEvent(PlanEventName, trace.WithAttributes(
		attribute.String(PlanVersionKey, PlanVersion),
		attribute.String(PlanJSONKey, string(planJSON)),
	))

	return &Operation{ctx: spanCtx, tracer: tracer, span: span}, nil
}

func (o *Operation) Context() context.Context {
	if o == nil {
		return context.Background()
	}
	return o.ctx
}

func (o *Operation) RunStep(ctx context.Context, id string, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}

	stepID := strings.TrimSpace(id)
	if stepID == "" {
		return fmt.Errorf("run telemetry step: step id is required")
	}
	if o == nil || o.tracer == nil {
		return fn(ctx)
	}

	if ctx == nil {
		ctx = o.ctx
	}

	stepCtx, span := o.tracer.Start(ctx, stepID)
	defer span.End()

	err := fn(stepCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		return err
	}
	return nil
}

func (o *Operation) End(err error) {
	if o == nil || o.span == nil {
		return
	}
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
	}
	o.span.End()
}

func validatePlan(plan Plan) error {
	indexByID := make(map[string]struct{}, len(plan.Steps))
	for i, step := range plan.Steps {
		stepID := strings.TrimSpace(step.ID)
		if stepID == "" {
			return fmt.Errorf("step %d has empty id", i)
		}
		if _, exists := indexByID[stepID]; exists {
			return fmt.Errorf("duplicate step id %q", stepID)
		}
		indexByID[stepID] = struct{}{}
	}
	for i, step := range plan.Steps {
		parentID := strings.TrimSpace(step.ParentID)
		if parentID == "" {
			continue
		}
		if _, exists := indexByID[parentID]; !exists {
			return fmt.Errorf("step %d parent %q not found in plan", i, parentID)
		}
	}
	return nil
}
