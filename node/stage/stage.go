// Package stage models the mesh services as an ordered plan and starts them
// one after another. Readiness between stages is signalled only by marker
// files; a started service is never watched beyond its launch.
package stage

import (
	"context"
	"fmt"
	"strings"

	"meshnode"
)

// Stage is one service to start.
type Stage struct {
	Name   string   `yaml:"name"`
	Binary string   `yaml:"binary"`
	Args   []string `yaml:"args,omitempty"`
	// Env is appended to the orchestrator's environment for this process.
	Env []string `yaml:"env,omitempty"`
	// After is a marker path that must exist before this stage is launched.
	After string `yaml:"after,omitempty"`
	// Produces is a marker path this stage's service is expected to create.
	// It only informs plan validation; nothing waits on it directly.
	Produces string `yaml:"produces,omitempty"`
}

// Command returns the binary followed by its arguments.
func (s Stage) Command() []string {
	return append([]string{s.Binary}, s.Args...)
}

// LaunchResult describes a started process.
type LaunchResult struct {
	PID int
}

// Launcher starts a long-running service process and returns as soon as the
// launch itself has succeeded.
type Launcher interface {
	Launch(ctx context.Context, s Stage) (LaunchResult, error)
}

// Options are per-stage start options supplied by configuration.
type Options struct {
	// Binary replaces the stage's executable when set.
	Binary string `yaml:"binary,omitempty"`
	// Args are appended to the stage's arguments.
	Args []string `yaml:"args,omitempty"`
}

const (
	// NATSConfigMarker is written by discovery once the message-bus
	// configuration has been generated.
	NATSConfigMarker = "/var/run/nats.conf"
)

// Plan is the dependency graph of the mesh services flattened to start order.
type Plan []Stage

// DefaultPlan is the service order of a mesh node: the radio pair first,
// then discovery, which generates the message-bus configuration, then the
// bus server, then the consumers of the bus.
func DefaultPlan() Plan {
	return Plan{
		{Name: "mesh", Binary: "/opt/S9011sMesh", Args: []string{"start"}},
		{Name: "access-point", Binary: "/opt/S90hostapd", Args: []string{"start"}},
		{Name: "discovery", Binary: "/opt/S90nats_discovery", Args: []string{"start"}, Produces: NATSConfigMarker},
		{Name: "message-bus", Binary: "/opt/S90nats_server", Args: []string{"start"}, After: NATSConfigMarker},
		{Name: "controller", Binary: "/opt/S90comms_controller", Args: []string{"start"}},
		{Name: "provisioning", Binary: "/opt/S90provisioning_agent", Args: []string{"start"}},
	}
}

// Names returns the stage names in order.
func (p Plan) Names() []string {
	out := make([]string, len(p))
	for i, s := range p {
		out[i] = s.Name
	}
	return out
}

// Validate checks that names are unique, every stage has a binary, and a
// stage waiting on a marker declared by another stage comes after it.
func (p Plan) Validate() error {
	index := make(map[string]int, len(p))
	producer := make(map[string]int)
	for i, s := range p {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return &meshnode.ConfigurationError{Field: "stages", Message: fmt.Sprintf("stage %d has no name", i+1)}
		}
		if _, dup := index[name]; dup {
			return &meshnode.ConfigurationError{Field: "stages", Message: fmt.Sprintf("duplicate stage %q", name)}
		}
		index[name] = i
		if strings.TrimSpace(s.Binary) == "" {
			return &meshnode.ConfigurationError{Field: "stages", Message: fmt.Sprintf("stage %q has no binary", name)}
		}
		if s.Produces != "" {
			if other, dup := producer[s.Produces]; dup {
				return &meshnode.ConfigurationError{Field: "stages", Message: fmt.Sprintf("marker %s produced by both %q and %q", s.Produces, p[other].Name, name)}
			}
			producer[s.Produces] = i
		}
	}
	for i, s := range p {
		if s.After == "" {
			continue
		}
		j, ok := producer[s.After]
		if !ok {
			// Produced outside the plan.
			continue
		}
		if j >= i {
			return &meshnode.ConfigurationError{
				Field:   "stages",
				Message: fmt.Sprintf("stage %q waits for %s but its producer %q starts at or after it", s.Name, s.After, p[j].Name),
			}
		}
	}
	return nil
}

// WithOptions returns a copy of the plan with per-stage options applied.
// Options naming a stage that is not in the plan are an error.
func (p Plan) WithOptions(opts map[string]Options) (Plan, error) {
	out := p.clone()
	index := make(map[string]int, len(out))
	for i, s := range out {
		index[s.Name] = i
	}
	for name, o := range opts {
		i, ok := index[name]
		if !ok {
			return nil, &meshnode.ConfigurationError{Field: "services." + name, Message: "no such stage"}
		}
		if o.Binary != "" {
			out[i].Binary = o.Binary
		}
		out[i].Args = append(out[i].Args, o.Args...)
	}
	return out, nil
}

// WithEnv returns a copy of the plan with env appended to every stage.
func (p Plan) WithEnv(env ...string) Plan {
	out := p.clone()
	for i := range out {
		out[i].Env = append(out[i].Env, env...)
	}
	return out
}

func (p Plan) clone() Plan {
	out := make(Plan, len(p))
	for i, s := range p {
		s.Args = append([]string(nil), s.Args...)
		s.Env = append([]string(nil), s.Env...)
		out[i] = s
	}
	return out
}
