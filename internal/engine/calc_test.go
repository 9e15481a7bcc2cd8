package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-labs/munaudit/internal/dataset"
	"github.com/civitas-labs/munaudit/pkg/core"
)

func singleRow(columns []string, row []string) *dataset.Table {
	return dataset.NewTable("t", columns, [][]string{row})
}

func TestResolveColumnValue_Literal(t *testing.T) {
	tbl := singleRow([]string{"a"}, []string{"1"})
	v, err := resolveColumnValue(core.ParseColumnRef("42.5"), tbl)
	require.Nil(t, err)
	assert.Equal(t, 42.5, v)
}

func TestResolveColumnValue_SingleColumn(t *testing.T) {
	tbl := singleRow([]string{"pop"}, []string{"1500"})
	v, err := resolveColumnValue(core.ParseColumnRef("pop"), tbl)
	require.Nil(t, err)
	assert.Equal(t, 1500.0, v)
}

func TestResolveColumnValue_MultiRowSums(t *testing.T) {
	tbl := dataset.NewTable("t", []string{"amount"}, [][]string{
		{"10"}, {"20"}, {"5"},
	})
	v, err := resolveColumnValue(core.ParseColumnRef("amount"), tbl)
	require.Nil(t, err)
	assert.Equal(t, 35.0, v)
}

func TestResolveColumnValue_CommaSum(t *testing.T) {
	tbl := singleRow([]string{"x", "y", "z"}, []string{"1", "2", "3"})
	v, err := resolveColumnValue(core.ParseColumnRef("x,y,z"), tbl)
	require.Nil(t, err)
	assert.Equal(t, 6.0, v)
}

func TestResolveColumnValue_CommaSumMissingColumn(t *testing.T) {
	tbl := singleRow([]string{"x", "z"}, []string{"1", "3"})
	_, err := resolveColumnValue(core.ParseColumnRef("x,y,z"), tbl)
	require.NotNil(t, err)
	assert.Equal(t, ErrMissingColumn, err.Kind)
	assert.Equal(t, "missing columns: y", err.Msg)
}

func TestResolveColumnValue_NonNumericReportedBeforeMissing(t *testing.T) {
	tbl := singleRow([]string{"x", "z"}, []string{"1", "yes"})
	_, err := resolveColumnValue(core.ParseColumnRef("x,y,z"), tbl)
	require.NotNil(t, err)
	assert.Equal(t, ErrNonNumeric, err.Kind)
	assert.Contains(t, err.Msg, "non-numeric columns: z")
}

func TestResolveColumnValue_NullColumn(t *testing.T) {
	tbl := singleRow([]string{"pop"}, []string{""})
	_, err := resolveColumnValue(core.ParseColumnRef("pop"), tbl)
	require.NotNil(t, err)
	assert.Equal(t, ErrNonNumeric, err.Kind)
}

func TestResolveColumnValue_Unset(t *testing.T) {
	tbl := singleRow([]string{"a"}, []string{"1"})
	_, err := resolveColumnValue(core.ColumnRef{}, tbl)
	require.NotNil(t, err)
	assert.Equal(t, ErrMissingColumn, err.Kind)
}

func calcRule(calc core.CalcType, cols ...string) *core.Rule {
	r := &core.Rule{Calc: calc, Enabled: true}
	for i, c := range cols {
		r.Columns[i] = core.ParseColumnRef(c)
	}
	return r
}

func TestCalculate_Ratio(t *testing.T) {
	tbl := singleRow([]string{"num", "den"}, []string{"30", "4"})
	v, present, err := calculate(calcRule(core.CalcRatio, "num", "den"), tbl)
	require.Nil(t, err)
	assert.True(t, present)
	assert.Equal(t, 7.5, v)
}

func TestCalculate_RatioZeroDenominator(t *testing.T) {
	tbl := singleRow([]string{"num", "den"}, []string{"30", "0"})
	_, _, err := calculate(calcRule(core.CalcRatio, "num", "den"), tbl)
	require.NotNil(t, err)
	assert.Equal(t, ErrDivisionByZero, err.Kind)
	assert.Equal(t, "division by zero", err.Msg)
}

func TestCalculate_Percentage(t *testing.T) {
	tbl := singleRow([]string{"part", "total"}, []string{"25", "200"})
	v, _, err := calculate(calcRule(core.CalcPercentage, "part", "total"), tbl)
	require.Nil(t, err)
	assert.Equal(t, 12.5, v)
}

func TestCalculate_SumSkipsUnsetSlots(t *testing.T) {
	tbl := singleRow([]string{"a", "b"}, []string{"3", "4"})
	v, _, err := calculate(calcRule(core.CalcSum, "a", "", "b"), tbl)
	require.Nil(t, err)
	assert.Equal(t, 7.0, v)
}

func TestCalculate_SumNoColumns(t *testing.T) {
	tbl := singleRow([]string{"a"}, []string{"3"})
	_, _, err := calculate(calcRule(core.CalcSum), tbl)
	require.NotNil(t, err)
	assert.Equal(t, ErrNoColumns, err.Kind)
}

func TestCalculate_Difference(t *testing.T) {
	tbl := singleRow([]string{"a", "b"}, []string{"10", "3"})
	v, _, err := calculate(calcRule(core.CalcDifference, "a", "b"), tbl)
	require.Nil(t, err)
	assert.Equal(t, 7.0, v)
}

func TestCalculate_CAGR(t *testing.T) {
	tbl := singleRow([]string{"final", "initial"}, []string{"200", "100"})
	rule := calcRule(core.CalcCAGR, "final", "initial")
	rule.TimePeriod = "14"
	v, _, err := calculate(rule, tbl)
	require.Nil(t, err)
	// (2^(1/14) - 1) * 100
	assert.InDelta(t, 5.0756, v, 0.001)
}

func TestCalculate_CAGRDomainError(t *testing.T) {
	tbl := singleRow([]string{"final", "initial"}, []string{"200", "0"})
	_, _, err := calculate(calcRule(core.CalcCAGR, "final", "initial"), tbl)
	require.NotNil(t, err)
	assert.Equal(t, ErrDomain, err.Kind)
	assert.Equal(t, "values must be positive for CAGR", err.Msg)
}

func TestCalculate_GrowthRate(t *testing.T) {
	tbl := singleRow([]string{"final", "initial"}, []string{"150", "100"})
	v, _, err := calculate(calcRule(core.CalcGrowthRate, "final", "initial"), tbl)
	require.Nil(t, err)
	assert.Equal(t, 50.0, v)
}

func TestCalculate_GrowthRateZeroInitial(t *testing.T) {
	tbl := singleRow([]string{"final", "initial"}, []string{"150", "0"})
	_, _, err := calculate(calcRule(core.CalcGrowthRate, "final", "initial"), tbl)
	require.NotNil(t, err)
	assert.Equal(t, ErrDivisionByZero, err.Kind)
}

func TestCalculate_NoneReturnsNotPresent(t *testing.T) {
	tbl := singleRow([]string{"a"}, []string{"1"})
	_, present, err := calculate(calcRule(core.CalcNone, "a"), tbl)
	require.Nil(t, err)
	assert.False(t, present)
}

func TestCalculate_OperandRolePrefixed(t *testing.T) {
	tbl := singleRow([]string{"num"}, []string{"30"})
	_, _, err := calculate(calcRule(core.CalcRatio, "num", "den"), tbl)
	require.NotNil(t, err)
	assert.Equal(t, `Denominator: column "den" not found`, err.Msg)
}

func TestCagrYears(t *testing.T) {
	assert.Equal(t, 14, cagrYears(""))
	assert.Equal(t, 14, cagrYears("no digits here"))
	assert.Equal(t, 14, cagrYears("14 years"))
	assert.Equal(t, 10, cagrYears("10"))
}
