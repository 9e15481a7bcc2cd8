package core

import (
	"strconv"
	"strings"
)

// =============================================================================
// Validation and calculation types
// =============================================================================

// ValidationType selects the evaluation strategy for a rule.
type ValidationType int

// Validation strategies.
const (
	// ValidationThreshold compares a computed or raw value against a threshold.
	ValidationThreshold ValidationType = iota
	// ValidationPercentage is a threshold check over a percentage metric.
	ValidationPercentage
	// ValidationConsistency compares two values within one dataset.
	ValidationConsistency
	// ValidationCompleteness flags columns that are absent or entirely null/zero.
	ValidationCompleteness
	// ValidationCrossTable compares a value against one from a reference table.
	ValidationCrossTable
	// ValidationOutlierIQR flags peer-group outliers by interquartile range.
	ValidationOutlierIQR
	// ValidationOutlierZScore flags peer-group outliers by z-score bounds.
	ValidationOutlierZScore
)

// String returns the catalog spelling of the validation type.
func (v ValidationType) String() string {
	switch v {
	case ValidationThreshold:
		return "threshold"
	case ValidationPercentage:
		return "percentage"
	case ValidationConsistency:
		return "consistency"
	case ValidationCompleteness:
		return "completeness"
	case ValidationCrossTable:
		return "cross_table"
	case ValidationOutlierIQR:
		return "outlier_iqr"
	case ValidationOutlierZScore:
		return "outlier_zscore"
	default:
		return "unknown"
	}
}

// Statistical reports whether the rule must be evaluated across the whole
// entity population rather than entity by entity.
func (v ValidationType) Statistical() bool {
	return v == ValidationOutlierIQR || v == ValidationOutlierZScore
}

// ParseValidationType converts a catalog string to a ValidationType.
func ParseValidationType(s string) (ValidationType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "threshold":
		return ValidationThreshold, true
	case "percentage":
		return ValidationPercentage, true
	case "consistency":
		return ValidationConsistency, true
	case "completeness":
		return ValidationCompleteness, true
	case "cross_table":
		return ValidationCrossTable, true
	case "outlier_iqr":
		return ValidationOutlierIQR, true
	case "outlier_zscore":
		return ValidationOutlierZScore, true
	default:
		return ValidationThreshold, false
	}
}

// CalcType selects the derived metric a rule computes before checking.
type CalcType int

// Calculation types.
const (
	// CalcNone means the raw column value is used directly.
	CalcNone CalcType = iota
	// CalcRatio is column_1 / column_2.
	CalcRatio
	// CalcPercentage is (column_1 / column_2) * 100.
	CalcPercentage
	// CalcSum accumulates column_1..column_4, skipping absent references.
	CalcSum
	// CalcDifference is column_1 - column_2.
	CalcDifference
	// CalcCAGR is the compound annual growth rate from column_2 to column_1.
	CalcCAGR
	// CalcGrowthRate is (column_1 - column_2) / column_2 * 100.
	CalcGrowthRate
)

// String returns the catalog spelling of the calculation type.
func (c CalcType) String() string {
	switch c {
	case CalcNone:
		return "none"
	case CalcRatio:
		return "ratio"
	case CalcPercentage:
		return "percentage"
	case CalcSum:
		return "sum"
	case CalcDifference:
		return "difference"
	case CalcCAGR:
		return "cagr"
	case CalcGrowthRate:
		return "growth_rate"
	default:
		return "unknown"
	}
}

// ParseCalcType converts a catalog string to a CalcType. Blank means none.
func ParseCalcType(s string) (CalcType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CalcNone, true
	case "ratio":
		return CalcRatio, true
	case "percentage", "percentage_of":
		return CalcPercentage, true
	case "sum":
		return CalcSum, true
	case "difference":
		return CalcDifference, true
	case "cagr":
		return CalcCAGR, true
	case "growth_rate":
		return CalcGrowthRate, true
	default:
		return CalcNone, false
	}
}

// PeerGrouping selects how entities are grouped for outlier detection.
type PeerGrouping int

// Peer grouping strategies.
const (
	// PeerStatewide compares every entity against the whole population.
	PeerStatewide PeerGrouping = iota
	// PeerPopulationSize groups entities whose population falls in the rule's bounds.
	PeerPopulationSize
	// PeerDistrict groups entities by administrative district.
	PeerDistrict
	// PeerGrade groups entities by municipality grade code.
	PeerGrade
)

// String returns the catalog spelling of the grouping strategy.
func (p PeerGrouping) String() string {
	switch p {
	case PeerPopulationSize:
		return "population_size"
	case PeerDistrict:
		return "district"
	case PeerGrade:
		return "municipality_grade"
	default:
		return "none"
	}
}

// ParsePeerGrouping converts a catalog string to a PeerGrouping.
// Blank and "none" mean statewide.
func ParsePeerGrouping(s string) (PeerGrouping, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "statewide":
		return PeerStatewide, true
	case "population_size":
		return PeerPopulationSize, true
	case "district":
		return PeerDistrict, true
	case "municipality_grade":
		return PeerGrade, true
	default:
		return PeerStatewide, false
	}
}

// =============================================================================
// Column references
// =============================================================================

// ColumnRefKind discriminates the ColumnRef variant.
type ColumnRefKind int

// Column reference variants.
const (
	// RefNone means the column slot is not configured.
	RefNone ColumnRefKind = iota
	// RefLiteral is a constant numeric operand.
	RefLiteral
	// RefColumn names a single dataset column.
	RefColumn
	// RefColumnSum names several columns whose values are summed.
	RefColumnSum
)

// ColumnRef is one parsed column reference from the rule catalog. The
// catalog stores references as free text (a number, a column name, or a
// comma-joined list); they are resolved into this closed variant once at
// load time instead of being re-parsed on every evaluation.
type ColumnRef struct {
	Kind    ColumnRefKind
	Literal float64  // set when Kind == RefLiteral
	Column  string   // set when Kind == RefColumn
	Columns []string // set when Kind == RefColumnSum
}

// IsSet reports whether the reference is configured.
func (r ColumnRef) IsSet() bool { return r.Kind != RefNone }

// String reconstructs the catalog spelling of the reference.
func (r ColumnRef) String() string {
	switch r.Kind {
	case RefLiteral:
		return strconv.FormatFloat(r.Literal, 'g', -1, 64)
	case RefColumn:
		return r.Column
	case RefColumnSum:
		return strings.Join(r.Columns, ",")
	default:
		return ""
	}
}

// ParseColumnRef parses a catalog column specification. Blank input yields
// an unset reference, never an error: an absent column slot means the rule
// does not use that operand.
func ParseColumnRef(spec string) ColumnRef {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ColumnRef{}
	}
	if v, err := strconv.ParseFloat(spec, 64); err == nil {
		return ColumnRef{Kind: RefLiteral, Literal: v}
	}
	if strings.Contains(spec, ",") {
		parts := strings.Split(spec, ",")
		cols := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cols = append(cols, p)
			}
		}
		return ColumnRef{Kind: RefColumnSum, Columns: cols}
	}
	return ColumnRef{Kind: RefColumn, Column: spec}
}

// =============================================================================
// Rule
// =============================================================================

// StatParams holds the statistical parameters of outlier rules.
type StatParams struct {
	GroupBy       PeerGrouping
	IQRMultiplier float64  // default 1.5
	StddevLimit   float64  // default 2.0
	PopulationMin *float64 // population_size grouping lower bound
	PopulationMax *float64 // population_size grouping upper bound
	Context       string   // free-form note appended to outlier findings
}

// Rule is one immutable validation rule from the catalog. Fields left at
// their zero value are "not specified": downstream components treat that as
// rule-not-applicable for the feature, not as an error.
type Rule struct {
	ID             string // unique checkpoint identifier, e.g. "P3_002"
	Part           string // questionnaire part/section tag
	PrimaryTable   string
	ReferenceTable string // set for cross-table and multi-part rules
	MultiPart      bool   // calculation may join primary and reference tables

	Columns    [4]ColumnRef // column_1..column_4
	Validation ValidationType
	Calc       CalcType
	Operator   string // comparison operator, catalog spelling
	Threshold  string // number or "lower|upper" range specification
	TimePeriod string // overrides the CAGR year span when it contains digits

	Severity    Severity
	Enabled     bool
	Description string

	Stats StatParams
}

// Column returns the n-th (1-based) column reference.
func (r *Rule) Column(n int) ColumnRef {
	if n < 1 || n > len(r.Columns) {
		return ColumnRef{}
	}
	return r.Columns[n-1]
}
