package main

import (
	"errors"
	"fmt"
	"strings"

	"meshnode/cmd/meshboot/ui"
	"meshnode/config"
	"meshnode/node/identity"
	"meshnode/platform"

	"github.com/spf13/cobra"
)

func identityCmd(global *globalFlags) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "identity",
		Short: "Provision the node identity, or show it with --show",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.configPath)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Identity.Path) == "" {
				return errors.New("identity path is not configured")
			}

			if show {
				id, ok, err := identity.Load(cfg.Identity.Path)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no identity at %s", cfg.Identity.Path)
				}
				fmt.Println(id)
				return nil
			}

			hw := platform.NewHardware(cfg.Identity.Interface)
			id, err := identity.NewProvisioner(cfg.Identity.Path, hw).Ensure(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("node identity ready"))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("id", id.String()),
				ui.KV("path", cfg.Identity.Path),
				ui.KV("interface", cfg.Identity.Interface),
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "Print the persisted identity without provisioning")
	return cmd
}
