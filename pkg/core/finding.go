package core

// EntityInfo is the roster entry for one audited municipality.
type EntityInfo struct {
	ID       string
	Name     string
	District string
}

// Finding is the engine's sole output unit: one rule violation or
// evaluation failure for one entity. Findings are produced fresh per
// execution and never persisted by the engine itself.
type Finding struct {
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	District   string `json:"district"`

	RuleID      string   `json:"rule_id"`
	Part        string   `json:"part"`
	Severity    Severity `json:"severity"`
	CheckType   string   `json:"check_type"`
	Description string   `json:"description"`

	// Detail describes the exact computed values and why the check failed,
	// or why it could not be evaluated. Evaluation failures are prefixed
	// "Unable to evaluate:" so consumers can separate them from violations.
	Detail string `json:"detail"`

	// Rule context carried through for the tabular report.
	Column1        string `json:"column_1,omitempty"`
	Column2        string `json:"column_2,omitempty"`
	PrimaryTable   string `json:"primary_table,omitempty"`
	ReferenceTable string `json:"reference_table,omitempty"`
	Operator       string `json:"operator,omitempty"`
	Threshold      string `json:"threshold,omitempty"`
}

// Evaluation reports whether the finding records an evaluation failure
// rather than a data violation.
func (f *Finding) Evaluation() bool {
	return len(f.Detail) >= len(unableToEvaluate) && f.Detail[:len(unableToEvaluate)] == unableToEvaluate
}

const unableToEvaluate = "Unable to evaluate:"
