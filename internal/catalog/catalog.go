// Package catalog loads the audit rule catalog from its CSV master
// file. Rules are validated once here; the engine receives only
// fully-parsed values and never re-interprets catalog text.
package catalog

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/civitas-labs/munaudit/pkg/core"
)

// Issue is one load-time validation problem. The offending rule is kept
// in the catalog but disabled, so a bad row is visible without being
// able to manufacture findings.
type Issue struct {
	Line    int
	RuleID  string
	Problem string
}

func (i Issue) String() string {
	id := i.RuleID
	if id == "" {
		id = "?"
	}
	return fmt.Sprintf("line %d (%s): %s", i.Line, id, i.Problem)
}

// Catalog is the loaded rule set plus everything that went wrong
// loading it.
type Catalog struct {
	Rules  []core.Rule
	Issues []Issue
}

// Enabled returns the rules eligible for execution.
func (c *Catalog) Enabled() []core.Rule {
	out := make([]core.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Load reads and validates the catalog CSV at path. Rows that fail
// validation are disabled and reported as Issues; only an unreadable
// file or a missing required header is a hard error.
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule catalog: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule catalog: %w", err)
	}
	if len(records) < 1 {
		return nil, fmt.Errorf("rule catalog %s is empty", path)
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"checkpoint_id", "primary_table", "validation_type"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("rule catalog is missing the %q column", required)
		}
	}

	cat := &Catalog{}
	for i, record := range records[1:] {
		line := i + 2
		field := func(name string) string {
			idx, ok := cols[name]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}

		rule, issues := parseRule(field)
		if rule.ID == "" {
			if rowEmpty(record) {
				continue
			}
			issues = append(issues, "checkpoint_id is blank")
		}
		for _, problem := range issues {
			rule.Enabled = false
			cat.Issues = append(cat.Issues, Issue{Line: line, RuleID: rule.ID, Problem: problem})
			logger.Warn("disabling invalid catalog rule", "line", line, "rule", rule.ID, "problem", problem)
		}
		cat.Rules = append(cat.Rules, rule)
	}

	logger.Info("rule catalog loaded",
		"path", path, "rules", len(cat.Rules), "enabled", len(cat.Enabled()), "issues", len(cat.Issues))
	return cat, nil
}

// parseRule builds one rule from the row's fields and reports every
// validation problem it finds.
func parseRule(field func(string) string) (core.Rule, []string) {
	var issues []string

	validation, ok := core.ParseValidationType(field("validation_type"))
	if !ok {
		issues = append(issues, fmt.Sprintf("unknown validation_type %q", field("validation_type")))
	}
	calc, ok := core.ParseCalcType(field("calculation_type"))
	if !ok {
		issues = append(issues, fmt.Sprintf("unknown calculation_type %q", field("calculation_type")))
	}
	severity, _ := core.ParseSeverity(field("severity"))

	rule := core.Rule{
		ID:             field("checkpoint_id"),
		Part:           field("part"),
		PrimaryTable:   field("primary_table"),
		ReferenceTable: field("reference_table"),
		MultiPart:      truthy(field("multi_part")),
		Columns: [4]core.ColumnRef{
			core.ParseColumnRef(field("column_1")),
			core.ParseColumnRef(field("column_2")),
			core.ParseColumnRef(field("column_3")),
			core.ParseColumnRef(field("column_4")),
		},
		Validation:  validation,
		Calc:        calc,
		Operator:    field("operator"),
		Threshold:   field("threshold"),
		TimePeriod:  field("time_period"),
		Severity:    severity,
		Enabled:     truthy(field("enabled")),
		Description: field("description"),
	}

	if rule.PrimaryTable == "" {
		issues = append(issues, "primary_table is blank")
	}
	if validation != core.ValidationCompleteness && !rule.Column(1).IsSet() && calc != core.CalcSum {
		issues = append(issues, "column_1 is blank")
	}

	grouping, ok := core.ParsePeerGrouping(field("peer_group_by"))
	if !ok {
		issues = append(issues, fmt.Sprintf("unknown peer_group_by %q", field("peer_group_by")))
	}
	rule.Stats = core.StatParams{
		GroupBy:       grouping,
		IQRMultiplier: floatOr(field("iqr_multiplier"), 1.5, &issues, "iqr_multiplier"),
		StddevLimit:   floatOr(field("stddev_limit"), 2.0, &issues, "stddev_limit"),
		Context:       field("statistical_context"),
	}
	rule.Stats.PopulationMin = optionalFloat(field("peer_population_min"), &issues, "peer_population_min")
	rule.Stats.PopulationMax = optionalFloat(field("peer_population_max"), &issues, "peer_population_max")

	return rule, issues
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y":
		return true
	default:
		return false
	}
}

func rowEmpty(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func floatOr(s string, fallback float64, issues *[]string, name string) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*issues = append(*issues, fmt.Sprintf("%s %q is not a number", name, s))
		return fallback
	}
	return v
}

func optionalFloat(s string, issues *[]string, name string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*issues = append(*issues, fmt.Sprintf("%s %q is not a number", name, s))
		return nil
	}
	return &v
}
