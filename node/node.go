// Package node owns the boot of a mesh node: mode selection, identity,
// the bridge gate and the service sequence. A Node runs exactly once per
// process and never recovers from a failed step.
package node

import (
	"sync"

	"meshnode"
	"meshnode/node/bridge"
	"meshnode/node/identity"
	"meshnode/node/stage"

	"go.opentelemetry.io/otel/trace"
)

// Node is the boot orchestrator.
//
// Mesh order: identity → bridge → stages → idle.
// Legacy order: delegate.
//
// Node is a concrete struct. Tests construct a real Node with fakes
// injected via With* options.
type Node struct {
	mode      meshnode.Mode
	role      string
	identity  IdentityProvisioner
	hardware  identity.HardwareSource
	gate      BridgeGate
	bridge    bridge.Spec
	launcher  stage.Launcher
	stageOpts []stage.Option
	plan      stage.Plan
	delegator Delegator
	journal   Journal
	tracer    trace.Tracer

	mu    sync.Mutex
	phase Phase
	ran   bool
	id    meshnode.Identity
	idle  chan struct{}
}

// Option configures a Node.
type Option func(*Node)

// WithMode sets the operating mode. The default is legacy.
func WithMode(m meshnode.Mode) Option {
	return func(n *Node) { n.mode = m }
}

// WithRole sets the node role exported to every stage.
func WithRole(role string) Option {
	return func(n *Node) { n.role = role }
}

// WithIdentity injects the identity provisioner.
func WithIdentity(p IdentityProvisioner) Option {
	return func(n *Node) { n.identity = p }
}

// WithHardware injects the hardware source used to derive the bridge host
// from the node MAC.
func WithHardware(h identity.HardwareSource) Option {
	return func(n *Node) { n.hardware = h }
}

// WithBridge sets the bridge gate and the parsed bridge address spec.
func WithBridge(g BridgeGate, spec bridge.Spec) Option {
	return func(n *Node) {
		n.gate = g
		n.bridge = spec
	}
}

// WithStages sets the plan and the launcher that starts its stages.
func WithStages(plan stage.Plan, l stage.Launcher, opts ...stage.Option) Option {
	return func(n *Node) {
		n.plan = plan
		n.launcher = l
		n.stageOpts = opts
	}
}

// WithDelegator injects the legacy hand-off.
func WithDelegator(d Delegator) Option {
	return func(n *Node) { n.delegator = d }
}

// WithJournal injects the boot journal.
func WithJournal(j Journal) Option {
	return func(n *Node) { n.journal = j }
}

// WithTracer injects the tracer for boot spans.
func WithTracer(t trace.Tracer) Option {
	return func(n *Node) { n.tracer = t }
}

// New creates a Node with the given options.
func New(opts ...Option) *Node {
	n := &Node{idle: make(chan struct{})}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Phase returns the current boot phase.
func (n *Node) Phase() Phase {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.phase
}

// Identity returns the provisioned identity, or "" before it is known.
func (n *Node) Identity() meshnode.Identity {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.id
}

// Idle is closed once every stage has been launched.
func (n *Node) Idle() <-chan struct{} {
	return n.idle
}
