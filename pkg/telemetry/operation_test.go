package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestEmitPlanAndRunStepSuccess(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := EmitPlan(context.Background(), tracer, BootOperation, MeshBootPlan([]string{"mesh", "discovery"}),
		attribute.String(ModeKey, "mesh"))
	if err != nil {
		t.Fatalf("EmitPlan() error = %v", err)
	}

	if err := op.RunStep(op.Context(), StepIdentity, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("RunStep() error = %v", err)
	}
	op.End(nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended span count = %d, want 2", len(spans))
	}

	root := findSpanByName(spans, BootOperation)
	if root == nil {
		t.Fatal("missing root span")
	}
	if getAttr(root.Attributes(), ModeKey) != "mesh" {
		t.Fatalf("root mode attr = %q, want mesh", getAttr(root.Attributes(), ModeKey))
	}
	if len(root.Events()) == 0 {
		t.Fatal("expected root plan event")
	}
	planEvent := root.Events()[0]
	if planEvent.Name != PlanEventName {
		t.Fatalf("plan event name = %q, want %q", planEvent.Name, PlanEventName)
	}
	if getAttr(planEvent.Attributes, PlanVersionKey) != PlanVersion {
		t.Fatalf("plan event version = %q, want %q", getAttr(planEvent.Attributes, PlanVersionKey), PlanVersion)
	}

	var decoded Plan
	if err := json.Unmarshal([]byte(getAttr(planEvent.Attributes, PlanJSONKey)), &decoded); err != nil {
		t.Fatalf("decode plan json: %v", err)
	}
	if len(decoded.Steps) != 5 {
		t.Fatalf("plan steps = %d, want 5", len(decoded.Steps))
	}
	if decoded.Steps[4].ID != "stage/discovery" || decoded.Steps[4].ParentID != StepStages {
		t.Fatalf("last step = %+v, want stage/discovery under stages", decoded.Steps[4])
	}

	child := findSpanByName(spans, StepIdentity)
	if child == nil {
		t.Fatal("missing child step span")
	}
	if child.Parent().SpanID() != root.SpanContext().SpanID() {
		t.Fatalf("step parent span id = %s, want %s", child.Parent().SpanID(), root.SpanContext().SpanID())
	}
}

func TestRunStepFailureSetsErrorStatus(t *testing.T) {
	t.Parallel()

	tracer, recorder := newTestTracer()
	op, err := EmitPlan(context.Background(), tracer, BootOperation, LegacyBootPlan())
	if err != nil {
		t.Fatalf("EmitPlan() error = %v", err)
	}

	boom := errors.New("boom")
	err = op.RunStep(op.Context(), StepDelegate, func(context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunStep() error = %v, want boom", err)
	}
	op.End(err)

	spans := recorder.Ended()
	child := findSpanByName(spans, StepDelegate)
	if child == nil {
		t.Fatal("missing failed step span")
	}
	if child.Status().Code != codes.Error {
		t.Fatalf("step status code = %v, want %v", child.Status().Code, codes.Error)
	}
	if child.Status().Description != "boom" {
		t.Fatalf("step status description = %q, want boom", child.Status().Description)
	}
	root := findSpanByName(spans, BootOperation)
	if root == nil || root.Status().Code != codes.Error {
		t.Fatal("root span should carry the error status")
	}
}

func TestEmitPlanValidationFailure(t *testing.T) {
	t.Parallel()

	tracer, _ := newTestTracer()
	_, err := EmitPlan(context.Background(), tracer, BootOperation, MeshBootPlan([]string{"mesh", "mesh"}))
	if err == nil {
		t.Fatal("EmitPlan() error = nil, want duplicate id error")
	}

	_, err = EmitPlan(context.Background(), tracer, BootOperation, Plan{Steps: []PlannedStep{
		{ID: "stage/mesh", ParentID: "missing"},
	}})
	if err == nil {
		t.Fatal("EmitPlan() error = nil, want missing parent error")
	}
}

func TestNilOperationRunsStepWithoutTracing(t *testing.T) {
	t.Parallel()

	var op *Operation
	ran := false
	if err := op.RunStep(context.Background(), StepBridge, func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("RunStep() error = %v", err)
	}
	if !ran {
		t.Fatal("step did not run")
	}
	op.End(errors.New("ignored"))
}

func newTestTracer() (trace.Tracer, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return provider.Tracer("telemetry-test"), recorder
}

func findSpanByName(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, span := range spans {
		if span.Name() == name {
			return span
		}
	}
	return nil
}

func getAttr(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}
