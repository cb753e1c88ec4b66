package main

import (
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"meshnode"
	"meshnode/cmd/meshboot/ui"
	"meshnode/node/bridge"
	"meshnode/platform"

	"github.com/spf13/cobra"
)

func waitBridgeCmd(global *globalFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait-bridge",
		Short: "Block until the bridge interface holds its expected address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, boot, err := loadBoot(global)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("timeout") {
				timeout = cfg.Poll.BridgeTimeout.Std()
			}

			var mac net.HardwareAddr
			if boot.Bridge.NeedsMAC() {
				hw, err := platform.NewHardware(cfg.Identity.Interface).Identifiers(ctx)
				if err != nil {
					return &meshnode.IdentityError{Op: "read hardware identifiers", Err: err}
				}
				mac = hw.MAC
			}
			target, err := boot.Bridge.Resolve(mac)
			if err != nil {
				return err
			}

			gate := bridge.NewGate(platform.InterfaceTable{}, bridge.WithPoll(cfg.Poll.Interval.Std(), timeout, nil))
			if err := gate.Wait(ctx, target); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("bridge %s is up", ui.Accent(target.String())))
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Give up after this long (0 uses the config, which waits forever by default)")
	return cmd
}
