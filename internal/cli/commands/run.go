package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/civitas-labs/munaudit/internal/catalog"
	"github.com/civitas-labs/munaudit/internal/config"
	"github.com/civitas-labs/munaudit/internal/dataset"
	"github.com/civitas-labs/munaudit/internal/engine"
	"github.com/civitas-labs/munaudit/internal/report"
	"github.com/civitas-labs/munaudit/internal/state"
	"github.com/civitas-labs/munaudit/pkg/core"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Municipality string // Filter reports to one entity id
	NoHistory    bool   // Skip recording the run
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the audit rule catalog against the loaded data",
		Long: `Load the rule catalog and the questionnaire CSV export, evaluate
every enabled rule against every municipality, and write the findings
reports.`,
		Example: `  # Run with defaults (./rules.csv against ./data)
  munaudit run

  # Explicit inputs, JSON report
  munaudit run --rules audit_rules.csv --data export/ -o json

  # Report for a single municipality
  munaudit run --municipality 270126`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAudit(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Municipality, "municipality", "m", "", "Limit the report to one municipality id")
	cmd.Flags().BoolVar(&opts.NoHistory, "no-history", false, "Do not record the run in the history database")

	return cmd
}

func runAudit(cmd *cobra.Command, opts *RunOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := config.LoggerFromContext(ctx)

	cat, err := catalog.Load(cfg.RulesPath, logger)
	if err != nil {
		return err
	}

	storeCfg := dataset.StoreConfig{
		DemographicsTable: cfg.Demographics.Table,
		EntityIDColumn:    cfg.Demographics.EntityIDColumn,
		EntityNameColumn:  cfg.Demographics.EntityNameColumn,
		DistrictColumn:    cfg.Demographics.DistrictColumn,
		Logger:            logger,
	}
	store := dataset.NewStore(storeCfg)
	if err := store.LoadDir(cfg.DataDir); err != nil {
		return err
	}

	var history *state.Store
	var run *state.Run
	if !opts.NoHistory {
		history, run, err = beginHistory(cfg, cat, store)
		if err != nil {
			logger.Warn("run history unavailable", "error", err)
			history = nil
		} else {
			defer func() { _ = history.Close() }()
		}
	}

	ex := engine.NewExecutor(store, engine.Config{
		Stats: engine.StatsConfig{
			DemographicsTable: cfg.Demographics.Table,
			PopulationColumn:  cfg.Demographics.PopulationColumn,
			DistrictColumn:    cfg.Demographics.DistrictColumn,
			GradeColumn:       cfg.Demographics.GradeColumn,
		},
		Logger: logger,
	})
	findings := ex.Execute(cat.Enabled())
	report.Sort(findings)

	if history != nil {
		if err := history.CompleteRun(run, findings); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}

	reported := findings
	if opts.Municipality != "" {
		reported = report.FilterByEntity(findings, opts.Municipality)
	}

	if err := writeReports(cfg, reported); err != nil {
		return err
	}

	report.WriteSummary(cmd.OutOrStdout(), reported)
	if opts.Municipality != "" {
		report.WriteFindingsTable(cmd.OutOrStdout(), reported)
	}
	return nil
}

func beginHistory(cfg *config.Config, cat *catalog.Catalog, store *dataset.Store) (*state.Store, *state.Run, error) {
	dir := filepath.Dir(cfg.StatePath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	history := state.NewStore()
	if err := history.Open(cfg.StatePath); err != nil {
		return nil, nil, err
	}
	run, err := history.BeginRun(len(cat.Enabled()), len(store.EntityIDs()))
	if err != nil {
		_ = history.Close()
		return nil, nil, err
	}
	return history, run, nil
}

func writeReports(cfg *config.Config, findings []core.Finding) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	writeCSV := cfg.Output == "csv" || cfg.Output == "both" || cfg.Output == ""
	writeJSON := cfg.Output == "json" || cfg.Output == "both"

	if writeCSV {
		path := filepath.Join(cfg.OutputDir, "findings.csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := report.WriteCSV(f, findings); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if writeJSON {
		path := filepath.Join(cfg.OutputDir, "findings.json")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		if err := report.WriteJSON(f, findings); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
