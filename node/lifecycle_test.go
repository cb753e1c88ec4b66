package node_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meshnode"
	"meshnode/internal/fake"
	"meshnode/node"
	"meshnode/node/bridge"
	"meshnode/node/identity"
	"meshnode/node/stage"
	"meshnode/pkg/telemetry"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const testMAC = "02:11:22:33:44:0c"

// harness wires a Node to fakes that share one call recorder.
type harness struct {
	rec      *fake.CallRecorder
	hw       *fake.Hardware
	table    *fake.InterfaceTable
	launcher *fake.Launcher
	deleg    *fake.Delegator
	journal  *fake.Journal
	spans    *tracetest.SpanRecorder
	idPath   string
	markers  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &fake.CallRecorder{}
	dir := t.TempDir()
	return &harness{
		rec:      rec,
		hw:       fake.NewHardware(rec, testMAC, "SN-0001"),
		table:    fake.NewInterfaceTable(rec),
		launcher: fake.NewLauncher(rec),
		deleg:    fake.NewDelegator(rec),
		journal:  &fake.Journal{},
		spans:    tracetest.NewSpanRecorder(),
		idPath:   filepath.Join(dir, "opt", "identity"),
		markers:  filepath.Join(dir, "run"),
	}
}

// plan is the default service order with markers moved under a temp dir.
func (h *harness) plan(t *testing.T) stage.Plan {
	t.Helper()
	if err := os.MkdirAll(h.markers, 0o755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(h.markers, "nats.conf")
	plan := stage.DefaultPlan()
	for i := range plan {
		if plan[i].After != "" {
			plan[i].After = marker
		}
		if plan[i].Produces != "" {
			plan[i].Produces = marker
		}
	}
	return plan
}

func (h *harness) node(t *testing.T, mode meshnode.Mode, spec string, extra ...node.Option) *node.Node {
	t.Helper()
	timer := fake.NewTimer()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))

	opts := []node.Option{
		node.WithMode(mode),
		node.WithRole("drone"),
		node.WithIdentity(identity.NewProvisioner(h.idPath, h.hw)),
		node.WithHardware(h.hw),
		node.WithDelegator(h.deleg),
		node.WithJournal(h.journal),
		node.WithTracer(provider.Tracer("node-test")),
	}
	if spec != "" {
		parsed, err := bridge.ParseSpec(spec)
		if err != nil {
			t.Fatalf("ParseSpec: %v", err)
		}
		opts = append(opts, node.WithBridge(bridge.NewGate(h.table, bridge.WithPoll(time.Second, 0, timer)), parsed))
	}
	opts = append(opts, node.WithStages(h.plan(t), h.launcher, stage.WithPoll(time.Second, 0, timer)))
	return node.New(append(opts, extra...)...)
}

// runUntilIdle runs n in the background and returns once it idles. The
// returned func cancels the run and waits for Run to return.
func runUntilIdle(t *testing.T, n *node.Node) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	select {
	case <-n.Idle():
	case err := <-done:
		cancel()
		t.Fatalf("Run returned before idle: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("node did not reach idle")
	}
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func TestRun_MeshBootTrace(t *testing.T) {
	h := newHarness(t)
	marker := filepath.Join(h.markers, "nats.conf")

	// The bridge comes up on the third look at the interface table.
	bridgeUp := false
	h.table.OnQuery = func(n int) {
		if _, err := os.Stat(h.idPath); err != nil {
			t.Errorf("bridge gate entered before identity was provisioned")
		}
		if n == 3 {
			h.table.Add("br-lan", "10.0.0.1")
			bridgeUp = true
		}
	}
	// Discovery writes the bus configuration some time after it starts.
	h.launcher.OnLaunch = func(s stage.Stage) {
		if !bridgeUp {
			t.Errorf("stage %s launched before the bridge was up", s.Name)
		}
		if s.Name == "discovery" {
			go func() {
				time.Sleep(10 * time.Millisecond)
				_ = os.WriteFile(marker, []byte("listen: 10.0.0.1:4222\n"), 0o644)
			}()
		}
		if s.Name == "message-bus" {
			if _, err := os.Stat(marker); err != nil {
				t.Errorf("message-bus launched before %s existed", marker)
			}
		}
	}

	n := h.node(t, meshnode.ModeMesh, "br-lan=10.0.0.1")
	stop := runUntilIdle(t, n)

	if n.Phase() != node.PhaseIdle {
		t.Fatalf("phase = %s, want idle", n.Phase())
	}
	data, err := os.ReadFile(h.idPath)
	if err != nil || strings.TrimSpace(string(data)) == "" {
		t.Fatalf("identity file not created: %q, %v", data, err)
	}

	want := "mesh,access-point,discovery,message-bus,controller,provisioning"
	if got := strings.Join(h.launcher.Launched(), ","); got != want {
		t.Fatalf("launch order = %s, want %s", got, want)
	}
	first := h.launcher.Stage(0)
	if strings.Join(first.Command(), " ") != "/opt/S9011sMesh start" {
		t.Fatalf("stage 1 command = %v", first.Command())
	}
	wantEnv := []string{node.EnvRole + "=drone", node.EnvIdentity + "=" + strings.TrimSpace(string(data))}
	if strings.Join(first.Env, ",") != strings.Join(wantEnv, ",") {
		t.Fatalf("stage env = %v, want %v", first.Env, wantEnv)
	}
	if len(h.deleg.Calls("Delegate")) != 0 {
		t.Fatal("mesh boot must not delegate")
	}

	// Cross-port order: identity read, then bridge polls, then launches.
	methods := h.rec.Methods()
	if methods[0] != "Identifiers" {
		t.Fatalf("first call = %s, want Identifiers", methods[0])
	}
	lastQuery, firstLaunch := -1, -1
	for i, m := range methods {
		if m == "Addresses" {
			lastQuery = i
		}
		if m == "Launch" && firstLaunch < 0 {
			firstLaunch = i
		}
	}
	if lastQuery > firstLaunch {
		t.Fatalf("bridge polled after the first launch: %v", methods)
	}

	time.Sleep(20 * time.Millisecond)
	if n.Phase() != node.PhaseIdle {
		t.Fatal("idle node must not exit on its own")
	}

	if err := stop(); err != nil {
		t.Fatalf("Run after cancel in idle = %v, want nil", err)
	}
}

func TestRun_LegacyDelegatesOnly(t *testing.T) {
	h := newHarness(t)
	n := h.node(t, meshnode.ModeLegacy, "")

	if err := n.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := h.rec.Methods(); len(got) != 1 || got[0] != "Delegate" {
		t.Fatalf("calls = %v, want exactly one Delegate", got)
	}
	if _, err := os.Stat(h.idPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("legacy boot created an identity file: %v", err)
	}
	if h.table.Queries() != 0 {
		t.Fatal("legacy boot entered the bridge gate")
	}
	if n.Phase() != node.PhaseDelegated {
		t.Fatalf("phase = %s, want delegated", n.Phase())
	}
}

func TestRun_LegacyDelegationFailure(t *testing.T) {
	h := newHarness(t)
	h.deleg.Err = errors.New("exec format error")
	n := h.node(t, meshnode.ModeLegacy, "")

	err := n.Run(context.Background())
	if !errors.Is(err, h.deleg.Err) {
		t.Fatalf("expected delegation error, got %v", err)
	}
	kinds := h.journal.Kinds()
	if kinds[len(kinds)-1] != node.EventFailed {
		t.Fatalf("journal kinds = %v, want trailing failure", kinds)
	}
}

func TestRun_LegacyWithoutDelegatorIsConfigError(t *testing.T) {
	h := newHarness(t)
	n := h.node(t, meshnode.ModeLegacy, "", node.WithDelegator(nil))

	var cfgErr *meshnode.ConfigurationError
	if err := n.Run(context.Background()); !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestRun_IdentityFailureStopsBeforeBridge(t *testing.T) {
	h := newHarness(t)
	h.hw.Err = errors.New("no such device wlp1s0")
	n := h.node(t, meshnode.ModeMesh, "br-lan=10.0.0.1")

	err := n.Run(context.Background())
	var idErr *meshnode.IdentityError
	if !errors.As(err, &idErr) {
		t.Fatalf("expected IdentityError, got %v", err)
	}
	if h.table.Queries() != 0 || len(h.launcher.Launched()) != 0 {
		t.Fatal("nothing may run after an identity failure")
	}
	if n.Phase() != node.PhaseProvisioningIdentity {
		t.Fatalf("phase = %s, want provisioning_identity", n.Phase())
	}
}

func TestRun_InterfaceQueryFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	h.table.SetError(errors.New("netlink: permission denied"))
	n := h.node(t, meshnode.ModeMesh, "br-lan=10.0.0.1")

	err := n.Run(context.Background())
	var queryErr *meshnode.InterfaceQueryError
	if !errors.As(err, &queryErr) {
		t.Fatalf("expected InterfaceQueryError, got %v", err)
	}
	if len(h.launcher.Launched()) != 0 {
		t.Fatal("no stage may launch without the bridge")
	}
}

func TestRun_StageLaunchFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.table.Add("br-lan", "10.0.0.1")
	h.launcher.FailOn("access-point", errors.New("exec: not found"))
	n := h.node(t, meshnode.ModeMesh, "br-lan=10.0.0.1")

	err := n.Run(context.Background())
	var launchErr *meshnode.StageLaunchError
	if !errors.As(err, &launchErr) || launchErr.Stage != "access-point" {
		t.Fatalf("expected StageLaunchError for access-point, got %v", err)
	}
	if got := h.launcher.Launched(); len(got) != 2 {
		t.Fatalf("launches = %v, want mesh and access-point only", got)
	}
	select {
	case <-n.Idle():
		t.Fatal("a failed boot must never report idle")
	default:
	}
}

func TestRun_BridgeHostFromMAC(t *testing.T) {
	h := newHarness(t)
	h.table.Add("br-lan", "10.10.20.12")
	if err := os.MkdirAll(h.markers, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(h.markers, "nats.conf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	n := h.node(t, meshnode.ModeMesh, "br-lan=10.10.20.0/24")
	stop := runUntilIdle(t, n)
	defer stop()

	if len(h.launcher.Launched()) != 6 {
		t.Fatalf("launches = %v", h.launcher.Launched())
	}
}

func TestRun_CancelWhileWaitingForBridge(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.table.OnQuery = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	n := h.node(t, meshnode.ModeMesh, "br-lan=10.0.0.1")

	err := n.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n.Phase() != node.PhaseWaitingBridge {
		t.Fatalf("phase = %s, want waiting_bridge", n.Phase())
	}
}

func TestRun_JournalFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.journal.Err = errors.New("disk full")
	n := h.node(t, meshnode.ModeLegacy, "")

	if err := n.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRun_JournalAndSpans(t *testing.T) {
	h := newHarness(t)
	h.table.Add("br-lan", "10.0.0.1")
	if err := os.MkdirAll(h.markers, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(h.markers, "nats.conf"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	n := h.node(t, meshnode.ModeMesh, "br-lan=10.0.0.1")
	stop := runUntilIdle(t, n)
	if err := stop(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var phases []string
	launches := 0
	for _, ev := range h.journal.Events() {
		switch ev.Kind {
		case node.EventPhase:
			phases = append(phases, ev.Phase.String())
		case node.EventStageLaunch:
			launches++
		}
	}
	if got := strings.Join(phases, ","); got != "provisioning_identity,waiting_bridge,running_stages,idle" {
		t.Fatalf("journal phases = %s", got)
	}
	if launches != 6 {
		t.Fatalf("journal launches = %d, want 6", launches)
	}

	var names []string
	for _, s := range h.spans.Ended() {
		names = append(names, s.Name())
	}
	wantPrefix := []string{
		telemetry.StepIdentity,
		telemetry.StepBridge,
		telemetry.StageStep("mesh"),
		telemetry.StageStep("access-point"),
	}
	for i, want := range wantPrefix {
		if i >= len(names) || names[i] != want {
			t.Fatalf("span order = %v, want prefix %v", names, wantPrefix)
		}
	}
	if names[len(names)-1] != telemetry.BootOperation {
		t.Fatalf("last ended span = %s, want %s", names[len(names)-1], telemetry.BootOperation)
	}
}

func TestRun_Twice(t *testing.T) {
	h := newHarness(t)
	n := h.node(t, meshnode.ModeLegacy, "")
	if err := n.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := n.Run(context.Background()); err == nil {
		t.Fatal("second Run must fail")
	}
}
