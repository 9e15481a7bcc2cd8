// Package report renders audit findings as CSV, JSON, and console
// summaries. It consumes the engine's finding list and owns no logic
// beyond formatting.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/civitas-labs/munaudit/pkg/core"
)

// csvHeader is the column order of the flat findings report.
var csvHeader = []string{
	"municipality_id", "municipality_name", "district",
	"checkpoint_id", "part", "severity", "check_type",
	"description", "detail",
	"column_1", "column_2", "primary_table", "reference_table",
	"operator", "threshold",
}

// Sort orders findings for reporting: severity first (Critical on top),
// then rule id, then entity id. Sorting is stable so repeated runs
// produce identical reports.
func Sort(findings []core.Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if a.Severity != b.Severity {
			return a.Severity < b.Severity
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.EntityID < b.EntityID
	})
}

// FilterByEntity returns the findings belonging to one entity.
func FilterByEntity(findings []core.Finding, entityID string) []core.Finding {
	var out []core.Finding
	for _, f := range findings {
		if f.EntityID == entityID {
			out = append(out, f)
		}
	}
	return out
}

// WriteCSV writes the flat tabular findings report.
func WriteCSV(w io.Writer, findings []core.Finding) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write report header: %w", err)
	}
	for _, f := range findings {
		record := []string{
			f.EntityID, f.EntityName, f.District,
			f.RuleID, f.Part, f.Severity.String(), f.CheckType,
			f.Description, f.Detail,
			f.Column1, f.Column2, f.PrimaryTable, f.ReferenceTable,
			f.Operator, f.Threshold,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write report row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// jsonReport is the envelope of the JSON findings report.
type jsonReport struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Count       int            `json:"count"`
	BySeverity  map[string]int `json:"by_severity"`
	Findings    []core.Finding `json:"findings"`
}

// WriteJSON writes the findings report as indented JSON.
func WriteJSON(w io.Writer, findings []core.Finding) error {
	rep := jsonReport{
		GeneratedAt: time.Now().UTC(),
		Count:       len(findings),
		BySeverity:  make(map[string]int),
		Findings:    findings,
	}
	for _, f := range findings {
		rep.BySeverity[f.Severity.String()]++
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
