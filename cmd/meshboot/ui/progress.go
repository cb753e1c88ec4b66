package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"meshnode/pkg/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

type stepStatus string

const (
	stepPending stepStatus = "pending"
	stepRunning stepStatus = "running"
	stepDone    stepStatus = "done"
	stepFailed  stepStatus = "failed"
)

type stepState struct {
	ID       string
	ParentID string
	Title    string
	Status   stepStatus
	Message  string
}

type stepSnapshot struct {
	Steps []stepState
}

// Progress prints boot steps as they start and finish. It consumes the boot
// spans, so the node itself never writes progress output.
type Progress struct {
	provider *sdktrace.TracerProvider
}

// NewProgress creates a Progress writing lines to w.
func NewProgress(w io.Writer) *Progress {
	line := newLineOutput(w)
	observer := newStepObserver(line.OnSnapshot)
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&stepSpanProcessor{observer: observer}))
	return &Progress{provider: provider}
}

func (p *Progress) Tracer(name string) trace.Tracer {
	return p.provider.Tracer(name)
}

func (p *Progress) Close() {
	if p == nil || p.provider == nil {
		return
	}
	_ = p.provider.Shutdown(context.Background())
}

type lineOutput struct {
	mu       sync.Mutex
	w        io.Writer
	status   map[string]stepStatus
	messages map[string]string
}

func newLineOutput(w io.Writer) *lineOutput {
	return &lineOutput{
		w:        w,
		status:   make(map[string]stepStatus),
		messages: make(map[string]string),
	}
}

func (l *lineOutput) OnSnapshot(snapshot stepSnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, step := range snapshot.Steps {
		if step.Status == stepPending {
			continue
		}
		msg := strings.TrimSpace(step.Message)
		prevStatus, hasStatus := l.status[step.ID]
		if hasStatus && prevStatus == step.Status && l.messages[step.ID] == msg {
			continue
		}

		l.status[step.ID] = step.Status
		l.messages[step.ID] = msg
		fmt.Fprintln(l.w, formatStepLine(step, msg))
	}
}

func formatStepLine(step stepState, msg string) string {
	prefix := Muted("[..]")
	switch step.Status {
	case stepRunning:
		prefix = Accent("[->]")
	case stepDone:
		prefix = Success("[ok]")
	case stepFailed:
		prefix = ErrorStyle.Render("[x]")
	}

	indent := "  "
	if step.ParentID != "" {
		indent = "    "
	}
	if msg != "" {
		return fmt.Sprintf("%s%s %s (%s)", indent, prefix, step.Title, msg)
	}
	return fmt.Sprintf("%s%s %s", indent, prefix, step.Title)
}

type stepObserver struct {
	mu       sync.Mutex
	steps    map[string]stepState
	order    []string
	reporter func(stepSnapshot)
}

func newStepObserver(reporter func(stepSnapshot)) *stepObserver {
	return &stepObserver{
		steps:    make(map[string]stepState),
		reporter: reporter,
	}
}

func (o *stepObserver) onPlan(plan telemetry.Plan) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, planned := range plan.Steps {
		stepID := strings.TrimSpace(planned.ID)
		if stepID == "" {
			continue
		}
		step, exists := o.steps[stepID]
		if !exists {
			o.order = append(o.order, stepID)
			step = stepState{ID: stepID, Status: stepPending}
		}
		step.ParentID = strings.TrimSpace(planned.ParentID)
		step.Title = strings.TrimSpace(planned.Title)
		if step.Title == "" {
			step.Title = stepID
		}
		o.steps[stepID] = step
	}
	o.emitLocked()
}

func (o *stepObserver) onStepStart(stepID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	step := o.ensureStepLocked(stepID)
	step.Status = stepRunning
	step.Message = ""
	o.steps[step.ID] = step
	o.emitLocked()
}

func (o *stepObserver) onStepEnd(stepID string, failed bool, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	step := o.ensureStepLocked(stepID)
	if failed {
		step.Status = stepFailed
		step.Message = strings.TrimSpace(message)
	} else {
		step.Status = stepDone
		step.Message = ""
	}
	o.steps[step.ID] = step
	o.emitLocked()
}

func (o *stepObserver) ensureStepLocked(stepID string) stepState {
	stepID = strings.TrimSpace(stepID)
	if step, exists := o.steps[stepID]; exists {
		return step
	}
	o.order = append(o.order, stepID)
	return stepState{ID: stepID, Title: stepID, Status: stepPending}
}

func (o *stepObserver) emitLocked() {
	if o.reporter == nil {
		return
	}

	children := make(map[string][]stepState, len(o.steps))
	for _, step := range o.steps {
		if step.ParentID != "" {
			children[step.ParentID] = append(children[step.ParentID], step)
		}
	}

	steps := make([]stepState, 0, len(o.order))
	for _, stepID := range o.order {
		step, exists := o.steps[stepID]
		if !exists {
			continue
		}
		if kids := children[step.ID]; len(kids) > 0 && step.Message == "" {
			step.Message = summarizeChildren(kids)
		}
		steps = append(steps, step)
	}
	o.reporter(stepSnapshot{Steps: steps})
}

func summarizeChildren(children []stepState) string {
	done, failed := 0, 0
	for _, child := range children {
		switch child.Status {
		case stepDone:
			done++
		case stepFailed:
			failed++
		}
	}
	if failed > 0 {
		return fmt.Sprintf("%d/%d started, %d failed", done, len(children), failed)
	}
	return fmt.Sprintf("%d/%d started", done, len(children))
}

type stepSpanProcessor struct {
	observer *stepObserver
}

func (p *stepSpanProcessor) OnStart(_ context.Context, span sdktrace.ReadWriteSpan) {
	if span.Parent().IsValid() {
		p.observer.onStepStart(span.Name())
		return
	}

	planJSON := attributeValue(span.Attributes(), telemetry.PlanJSONKey)
	if strings.TrimSpace(planJSON) == "" {
		return
	}
	var plan telemetry.Plan
	if err := json.Unmarshal([]byte(planJSON), &plan); err != nil {
		return
	}
	p.observer.onPlan(plan)
}

func (p *stepSpanProcessor) OnEnd(span sdktrace.ReadOnlySpan) {
	if !span.Parent().IsValid() {
		return
	}
	status := span.Status()
	p.observer.onStepEnd(span.Name(), status.Code == codes.Error, status.Description)
}

func (p *stepSpanProcessor) Shutdown(context.Context) error {
	return nil
}

func (p *stepSpanProcessor) ForceFlush(context.Context) error {
	return nil
}

func attributeValue(attrs []attribute.KeyValue, key string) string {
	for _, attr := range attrs {
		if string(attr.Key) == key {
			return attr.Value.AsString()
		}
	}
	return ""
}
