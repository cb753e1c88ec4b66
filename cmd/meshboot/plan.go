package main

import (
	"fmt"
	"strings"

	"meshnode/cmd/meshboot/ui"
	"meshnode/node/stage"

	"github.com/spf13/cobra"
)

func planCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the mesh service start order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, boot, err := loadBoot(global)
			if err != nil {
				return err
			}
			fmt.Print(ui.KeyValues("",
				ui.KV("bridge", boot.Bridge.String()),
				ui.KV("role", valueOr(cfg.Role, "-")),
			))
			fmt.Println(planTable(boot.Plan))
			return nil
		},
	}
}

func planTable(plan stage.Plan) string {
	rows := make([][]string, 0, len(plan))
	for i, s := range plan {
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			s.Name,
			strings.Join(s.Command(), " "),
			valueOr(s.After, "-"),
			valueOr(s.Produces, "-"),
		})
	}
	return ui.Table([]string{"#", "STAGE", "COMMAND", "AFTER", "PRODUCES"}, rows)
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
