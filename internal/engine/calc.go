// Package engine evaluates the validation rule catalog against loaded
// entity datasets and emits findings. It contains the calculation
// engine, the threshold checker, the statistical outlier engine, and
// the rule executor that orchestrates them.
package engine

import (
	"math"
	"strings"

	"github.com/civitas-labs/munaudit/internal/dataset"
	"github.com/civitas-labs/munaudit/pkg/core"
)

// defaultCAGRYears is the census-to-survey span assumed when a rule
// carries no usable time_period.
const defaultCAGRYears = 14

// resolveColumnValue extracts one numeric operand from a dataset.
// Literals resolve to themselves. Named columns are summed across rows
// when the dataset has more than one row, otherwise read from the single
// row. Column-sum references add up each listed column the same way and
// fail as a whole when any listed column is missing or non-numeric.
func resolveColumnValue(ref core.ColumnRef, t *dataset.Table) (float64, *EvalError) {
	switch ref.Kind {
	case core.RefLiteral:
		return ref.Literal, nil

	case core.RefColumnSum:
		var (
			total      float64
			foundAny   bool
			missing    []string
			nonNumeric []string
		)
		for _, col := range ref.Columns {
			if !t.HasColumn(col) {
				missing = append(missing, col)
				continue
			}
			if !t.ColumnNumeric(col) {
				nonNumeric = append(nonNumeric, col)
				continue
			}
			if v, ok := t.SumColumn(col); ok {
				total += v
				foundAny = true
			}
		}
		if len(nonNumeric) > 0 {
			return 0, evalErrf(ErrNonNumeric, "non-numeric columns: %s (contains text/categorical data)", strings.Join(nonNumeric, ", "))
		}
		if len(missing) > 0 {
			return 0, evalErrf(ErrMissingColumn, "missing columns: %s", strings.Join(missing, ", "))
		}
		if !foundAny {
			return 0, evalErrf(ErrAllNull, "all columns have null values")
		}
		return total, nil

	case core.RefColumn:
		col := ref.Column
		if !t.HasColumn(col) {
			return 0, evalErrf(ErrMissingColumn, "column %q not found", col)
		}
		if !t.ColumnNumeric(col) {
			return 0, evalErrf(ErrNonNumeric, "column %q contains non-numeric data (text/categorical)", col)
		}
		if t.NumRows() > 1 {
			if v, ok := t.SumColumn(col); ok {
				return v, nil
			}
			return 0, evalErrf(ErrAllNull, "column %q has only null values", col)
		}
		if v, ok := t.FirstValue(col); ok {
			return v, nil
		}
		return 0, evalErrf(ErrAllNull, "column %q has null value", col)

	default:
		return 0, evalErrf(ErrMissingColumn, "column specification is missing")
	}
}

// calculate derives the rule's metric from the dataset. When the rule's
// calculation type is none it returns present=false with no error: the
// caller falls back to the raw column value. Failures are returned as
// EvalError values, never raised.
func calculate(rule *core.Rule, t *dataset.Table) (value float64, present bool, err *EvalError) {
	switch rule.Calc {
	case core.CalcNone:
		return 0, false, nil
	case core.CalcRatio:
		v, e := calcRatio(rule, t, 1)
		return v, e == nil, e
	case core.CalcPercentage:
		v, e := calcRatio(rule, t, 100)
		return v, e == nil, e
	case core.CalcSum:
		v, e := calcSum(rule, t)
		return v, e == nil, e
	case core.CalcDifference:
		v, e := calcDifference(rule, t)
		return v, e == nil, e
	case core.CalcCAGR:
		v, e := calcCAGR(rule, t)
		return v, e == nil, e
	case core.CalcGrowthRate:
		v, e := calcGrowthRate(rule, t)
		return v, e == nil, e
	default:
		return 0, false, evalErrf(ErrUnsupported, "unknown calculation type")
	}
}

func calcRatio(rule *core.Rule, t *dataset.Table, scale float64) (float64, *EvalError) {
	num, err := resolveColumnValue(rule.Column(1), t)
	if err != nil {
		return 0, err.withOperand("Numerator")
	}
	den, err := resolveColumnValue(rule.Column(2), t)
	if err != nil {
		return 0, err.withOperand("Denominator")
	}
	if den == 0 {
		return 0, evalErrf(ErrDivisionByZero, "division by zero")
	}
	return num / den * scale, nil
}

func calcSum(rule *core.Rule, t *dataset.Table) (float64, *EvalError) {
	var total float64
	used := 0
	for n := 1; n <= 4; n++ {
		ref := rule.Column(n)
		if !ref.IsSet() {
			continue
		}
		v, err := resolveColumnValue(ref, t)
		if err != nil {
			return 0, err.withOperand(columnSlot(n))
		}
		total += v
		used++
	}
	if used == 0 {
		return 0, evalErrf(ErrNoColumns, "no columns specified for sum")
	}
	return total, nil
}

func calcDifference(rule *core.Rule, t *dataset.Table) (float64, *EvalError) {
	a, err := resolveColumnValue(rule.Column(1), t)
	if err != nil {
		return 0, err.withOperand("First value")
	}
	b, err := resolveColumnValue(rule.Column(2), t)
	if err != nil {
		return 0, err.withOperand("Second value")
	}
	return a - b, nil
}

func calcCAGR(rule *core.Rule, t *dataset.Table) (float64, *EvalError) {
	final, err := resolveColumnValue(rule.Column(1), t)
	if err != nil {
		return 0, err.withOperand("Final value")
	}
	initial, err := resolveColumnValue(rule.Column(2), t)
	if err != nil {
		return 0, err.withOperand("Initial value")
	}
	if final <= 0 || initial <= 0 {
		return 0, evalErrf(ErrDomain, "values must be positive for CAGR")
	}
	years := cagrYears(rule.TimePeriod)
	return (math.Pow(final/initial, 1/float64(years)) - 1) * 100, nil
}

func calcGrowthRate(rule *core.Rule, t *dataset.Table) (float64, *EvalError) {
	final, err := resolveColumnValue(rule.Column(1), t)
	if err != nil {
		return 0, err.withOperand("Final value")
	}
	initial, err := resolveColumnValue(rule.Column(2), t)
	if err != nil {
		return 0, err.withOperand("Initial value")
	}
	if initial == 0 {
		return 0, evalErrf(ErrDivisionByZero, "initial value cannot be zero")
	}
	return (final - initial) / initial * 100, nil
}

// cagrYears extracts the year span from a time_period value by keeping
// its digits ("14 years" works out to 14). Values with no digits fall
// back to the default span.
func cagrYears(timePeriod string) int {
	digits := 0
	for _, r := range timePeriod {
		if r >= '0' && r <= '9' {
			digits = digits*10 + int(r-'0')
		}
	}
	if digits <= 0 {
		return defaultCAGRYears
	}
	return digits
}

func columnSlot(n int) string {
	switch n {
	case 1:
		return "column_1"
	case 2:
		return "column_2"
	case 3:
		return "column_3"
	default:
		return "column_4"
	}
}
