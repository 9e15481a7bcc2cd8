package commands

import (
	"encoding/json"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/civitas-labs/munaudit/internal/catalog"
	"github.com/civitas-labs/munaudit/internal/config"
	"github.com/civitas-labs/munaudit/pkg/core"
)

// RulesOptions holds options for the rules command.
type RulesOptions struct {
	Part   string // Filter by questionnaire part
	Format string // Output format: text or json
}

// NewRulesCommand creates the rules command.
func NewRulesCommand() *cobra.Command {
	opts := &RulesOptions{}
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the rule catalog",
		Long: `List every rule in the catalog with its validation type, severity,
and enabled state, plus any load-time validation issues.`,
		Example: `  # List all rules
  munaudit rules

  # Rules for one questionnaire part
  munaudit rules --part "Part 3"

  # Machine-readable listing
  munaudit rules --format json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listRules(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Part, "part", "p", "", "Filter by questionnaire part")
	cmd.Flags().StringVarP(&opts.Format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func listRules(cmd *cobra.Command, opts *RulesOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.LoggerFromContext(ctx)

	cat, err := catalog.Load(cfg.RulesPath, logger)
	if err != nil {
		return err
	}

	rules := cat.Rules
	if opts.Part != "" {
		var filtered []core.Rule
		for _, r := range rules {
			if r.Part == opts.Part {
				filtered = append(filtered, r)
			}
		}
		rules = filtered
	}

	if opts.Format == "json" {
		return listRulesJSON(cmd, cat, rules)
	}
	return listRulesText(cmd, cat, rules)
}

func listRulesText(cmd *cobra.Command, cat *catalog.Catalog, rules []core.Rule) error {
	w := cmd.OutOrStdout()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Part", "Type", "Severity", "Enabled", "Description"})
	for _, r := range rules {
		t.AppendRow(table.Row{
			r.ID, r.Part, r.Validation.String(), r.Severity.String(), r.Enabled, r.Description,
		})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rules, %d enabled)\n", len(rules), len(cat.Enabled()))

	if len(cat.Issues) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "Catalog issues:")
		for _, issue := range cat.Issues {
			_, _ = fmt.Fprintf(w, "  %s\n", issue)
		}
	}
	return nil
}

// rulesJSONOutput is the JSON output structure for the rules listing.
type rulesJSONOutput struct {
	Rules  []ruleJSON      `json:"rules"`
	Issues []catalog.Issue `json:"issues,omitempty"`
	Count  struct {
		Total   int `json:"total"`
		Enabled int `json:"enabled"`
	} `json:"count"`
}

type ruleJSON struct {
	ID          string `json:"id"`
	Part        string `json:"part,omitempty"`
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description,omitempty"`
}

func listRulesJSON(cmd *cobra.Command, cat *catalog.Catalog, rules []core.Rule) error {
	out := rulesJSONOutput{Issues: cat.Issues}
	for _, r := range rules {
		out.Rules = append(out.Rules, ruleJSON{
			ID:          r.ID,
			Part:        r.Part,
			Type:        r.Validation.String(),
			Severity:    r.Severity.String(),
			Enabled:     r.Enabled,
			Description: r.Description,
		})
		if r.Enabled {
			out.Count.Enabled++
		}
	}
	out.Count.Total = len(rules)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
