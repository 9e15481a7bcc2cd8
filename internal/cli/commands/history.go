package commands

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/civitas-labs/munaudit/internal/config"
	"github.com/civitas-labs/munaudit/internal/state"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent audit runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())

			store := state.NewStore()
			if err := store.Open(cfg.StatePath); err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No recorded runs.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Run", "Started", "Status", "Rules", "Entities", "Findings", "C/H/M/L"})
			for _, r := range runs {
				t.AppendRow(table.Row{
					r.ID[:8],
					r.StartedAt.Format("2006-01-02 15:04:05"),
					r.Status,
					r.RuleCount,
					r.EntityCount,
					r.FindingCount,
					fmt.Sprintf("%d/%d/%d/%d", r.Critical, r.High, r.Medium, r.Low),
				})
			}
			t.Render()
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}
