package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// equalityTolerance is the slack used for (in)equality comparisons:
// 1% of the reference magnitude, floored at 0.01, so float rounding in
// source spreadsheets never manufactures a mismatch.
func equalityTolerance(reference float64) float64 {
	return math.Max(math.Abs(reference)*0.01, 0.01)
}

// CheckThreshold evaluates a value against the rule's threshold
// specification. Malformed specifications and unrecognized operators
// auto-pass: bad catalog configuration must never manufacture a finding.
// The returned detail is empty on a well-formed pass; it carries the
// failure description, or the configuration problem on an auto-pass.
func CheckThreshold(value float64, spec, operator string) (passed bool, detail string) {
	spec = strings.TrimSpace(spec)
	operator = strings.ToLower(strings.TrimSpace(operator))

	if operator == "between" {
		return checkBetween(value, spec)
	}

	threshold, err := strconv.ParseFloat(spec, 64)
	if err != nil {
		return true, fmt.Sprintf("Invalid threshold: %s", spec)
	}

	switch operator {
	case ">", "gt":
		passed, detail = value > threshold, fmt.Sprintf("%.2f not > %g", value, threshold)
	case "<", "lt":
		passed, detail = value < threshold, fmt.Sprintf("%.2f not < %g", value, threshold)
	case ">=", "gte":
		passed, detail = value >= threshold, fmt.Sprintf("%.2f not >= %g", value, threshold)
	case "<=", "lte":
		passed, detail = value <= threshold, fmt.Sprintf("%.2f not <= %g", value, threshold)
	case "==", "=", "eq":
		passed, detail = math.Abs(value-threshold) <= equalityTolerance(threshold), fmt.Sprintf("%.2f != %g", value, threshold)
	case "!=", "neq":
		passed, detail = math.Abs(value-threshold) > equalityTolerance(threshold), fmt.Sprintf("%.2f == %g", value, threshold)
	default:
		return true, fmt.Sprintf("Unrecognized operator: %s", operator)
	}
	if passed {
		return true, ""
	}
	return false, detail
}

// checkBetween tests inclusive containment in a "lower|upper" range.
func checkBetween(value float64, spec string) (bool, string) {
	parts := strings.Split(spec, "|")
	if len(parts) != 2 {
		return true, fmt.Sprintf("Invalid 'between' format: %s", spec)
	}
	lower, errL := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	upper, errU := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errL != nil || errU != nil {
		return true, fmt.Sprintf("Invalid 'between' values: %s", spec)
	}
	if lower <= value && value <= upper {
		return true, ""
	}
	return false, fmt.Sprintf("%.2f not in range [%g, %g]", value, lower, upper)
}

// compareValues applies a consistency/cross-table operator to two resolved
// values, using the tolerant equality rule with val2 as the reference
// magnitude. Unrecognized operators pass. The detail describes the failure.
func compareValues(val1, val2 float64, operator string) (passed bool, detail string) {
	switch strings.TrimSpace(operator) {
	case "=", "==":
		return math.Abs(val1-val2) <= equalityTolerance(val2), fmt.Sprintf("%.2f != %.2f", val1, val2)
	case ">=":
		return val1 >= val2, fmt.Sprintf("%.2f not >= %.2f", val1, val2)
	case "<=":
		return val1 <= val2, fmt.Sprintf("%.2f not <= %.2f", val1, val2)
	case ">":
		return val1 > val2, fmt.Sprintf("%.2f not > %.2f", val1, val2)
	case "<":
		return val1 < val2, fmt.Sprintf("%.2f not < %.2f", val1, val2)
	default:
		return true, ""
	}
}
