package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"meshnode/cmd/meshboot/ui"
	"meshnode/config"
	"meshnode/infra/journal"

	"github.com/spf13/cobra"
)

func historyCmd(global *globalFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent boot events from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(global.configPath)
			if err != nil {
				return err
			}
			path := strings.TrimSpace(cfg.Journal.Path)
			if path == "" {
				return errors.New("boot journal is disabled")
			}

			store, err := journal.Open(path)
			if err != nil {
				return fmt.Errorf("open boot journal: %w", err)
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read boot journal: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println(ui.Muted("No boot events recorded."))
				return nil
			}
			fmt.Println(historyTable(entries))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of events to show")
	return cmd
}

func historyTable(entries []journal.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.RunID),
			e.Time.Local().Format(time.DateTime),
			string(e.Kind),
			e.Phase.String(),
			valueOr(e.Stage, "-"),
			valueOr(e.Detail, "-"),
		})
	}
	return ui.Table([]string{"RUN", "TIME", "EVENT", "PHASE", "STAGE", "DETAIL"}, rows)
}
