package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/civitas-labs/munaudit/pkg/core"
)

var severityStyles = map[core.Severity]lipgloss.Style{
	core.SeverityCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	core.SeverityHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	core.SeverityMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	core.SeverityLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
}

func styleSeverity(s core.Severity) string {
	if style, ok := severityStyles[s]; ok {
		return style.Render(s.String())
	}
	return s.String()
}

// WriteSummary renders the console severity summary.
func WriteSummary(w io.Writer, findings []core.Finding) {
	if len(findings) == 0 {
		_, _ = fmt.Fprintln(w, "No findings.")
		return
	}

	counts := make(map[core.Severity]int)
	violations, failures := 0, 0
	for _, f := range findings {
		counts[f.Severity]++
		if f.Evaluation() {
			failures++
		} else {
			violations++
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Severity", "Findings"})
	for _, sev := range []core.Severity{core.SeverityCritical, core.SeverityHigh, core.SeverityMedium, core.SeverityLow} {
		if counts[sev] == 0 {
			continue
		}
		t.AppendRow(table.Row{styleSeverity(sev), counts[sev]})
	}
	t.AppendFooter(table.Row{"Total", len(findings)})
	t.Render()

	_, _ = fmt.Fprintf(w, "%d violations, %d could not be evaluated\n", violations, failures)
}

// WriteFindingsTable renders the findings themselves as a console
// table. Meant for small, filtered sets; large runs belong in the CSV.
func WriteFindingsTable(w io.Writer, findings []core.Finding) {
	if len(findings) == 0 {
		_, _ = fmt.Fprintln(w, "No findings.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Rule", "Municipality", "Severity", "Detail"})
	for _, f := range findings {
		t.AppendRow(table.Row{f.RuleID, f.EntityName, styleSeverity(f.Severity), f.Detail})
	}
	t.Render()
	_, _ = fmt.Fprintf(w, "(%d findings)\n", len(findings))
}
