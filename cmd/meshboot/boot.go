package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"meshnode"
	"meshnode/cmd/meshboot/ui"
	"meshnode/config"
	"meshnode/infra/journal"
	"meshnode/infra/launch"
	"meshnode/node"
	"meshnode/node/bridge"
	"meshnode/node/identity"
	"meshnode/node/stage"
	"meshnode/platform"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
)

// bootFlags override the config file and the environment. Only flags set on
// the command line are applied.
type bootFlags struct {
	mode          string
	bridge        string
	role          string
	pollInterval  time.Duration
	bridgeTimeout time.Duration
	markerTimeout time.Duration
	progress      bool
}

func (f *bootFlags) Bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "", "Operating mode (legacy or mesh)")
	cmd.Flags().StringVar(&f.bridge, "bridge", "", "Bridge target as iface=addr or iface=prefix/len")
	cmd.Flags().StringVar(&f.role, "role", "", "Node role passed to the services")
	cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", time.Second, "Readiness poll interval")
	cmd.Flags().DurationVar(&f.bridgeTimeout, "bridge-timeout", 0, "Give up waiting for the bridge after this long (0 waits forever)")
	cmd.Flags().DurationVar(&f.markerTimeout, "marker-timeout", 0, "Give up waiting for a readiness marker after this long (0 waits forever)")
	cmd.Flags().BoolVar(&f.progress, "progress", true, "Print boot progress to stderr")
}

func (f *bootFlags) Apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Mode = f.mode
	}
	if flags.Changed("bridge") {
		cfg.Bridge = f.bridge
	}
	if flags.Changed("role") {
		cfg.Role = f.role
	}
	if flags.Changed("poll-interval") {
		cfg.Poll.Interval = config.Duration(f.pollInterval)
	}
	if flags.Changed("bridge-timeout") {
		cfg.Poll.BridgeTimeout = config.Duration(f.bridgeTimeout)
	}
	if flags.Changed("marker-timeout") {
		cfg.Poll.MarkerTimeout = config.Duration(f.markerTimeout)
	}
}

func runBoot(cmd *cobra.Command, global globalFlags, flags bootFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(global.configPath)
	if err != nil {
		return err
	}
	flags.Apply(cmd, &cfg)
	boot, err := cfg.Resolve()
	if err != nil {
		return err
	}

	var tracer trace.Tracer
	if flags.progress {
		progress := ui.NewProgress(os.Stderr)
		defer progress.Close()
		tracer = progress.Tracer("meshboot")
	}

	n, closeNode := newNode(cfg, boot, tracer)
	defer closeNode()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-n.Idle():
			platform.NotifyReady()
		case <-runCtx.Done():
		}
	}()

	return n.Run(runCtx)
}

// newNode assembles a node from a resolved configuration. The returned func
// releases the boot journal.
func newNode(cfg config.Config, boot config.Boot, tracer trace.Tracer) (*node.Node, func()) {
	opts := []node.Option{
		node.WithMode(boot.Mode),
		node.WithTracer(tracer),
	}

	if boot.Mode == meshnode.ModeLegacy {
		opts = append(opts, node.WithDelegator(platform.ExecDelegator{Command: cfg.Legacy.Command}))
		return node.New(opts...), func() {}
	}

	hw := platform.NewHardware(cfg.Identity.Interface)
	opts = append(opts,
		node.WithRole(cfg.Role),
		node.WithHardware(hw),
		node.WithIdentity(identity.NewProvisioner(cfg.Identity.Path, hw)),
		node.WithBridge(
			bridge.NewGate(platform.InterfaceTable{}, bridge.WithPoll(cfg.Poll.Interval.Std(), cfg.Poll.BridgeTimeout.Std(), nil)),
			boot.Bridge,
		),
		node.WithStages(boot.Plan, launch.NewExec(),
			stage.WithPoll(cfg.Poll.Interval.Std(), cfg.Poll.MarkerTimeout.Std(), nil),
		),
	)

	closeJournal := func() {}
	if path := strings.TrimSpace(cfg.Journal.Path); path != "" {
		store, err := journal.Open(path)
		if err != nil {
			slog.Warn("Failed to open boot journal, continuing without it.", "path", path, "err", err)
		} else {
			opts = append(opts, node.WithJournal(store))
			closeJournal = func() {
				if err := store.Close(); err != nil {
					slog.Warn("Failed to close boot journal.", "err", err)
				}
			}
		}
	}
	return node.New(opts...), closeJournal
}

// loadBoot loads and resolves the config for a subcommand, forcing mesh
// mode so mesh settings are validated.
func loadBoot(global *globalFlags) (config.Config, config.Boot, error) {
	cfg, err := config.Load(global.configPath)
	if err != nil {
		return config.Config{}, config.Boot{}, err
	}
	cfg.Mode = meshnode.ModeMesh.String()
	boot, err := cfg.Resolve()
	if err != nil {
		return config.Config{}, config.Boot{}, fmt.Errorf("resolve mesh config: %w", err)
	}
	return cfg, boot, nil
}
