package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_ColumnNumeric(t *testing.T) {
	tbl := NewTable("t", []string{"num", "text", "empty", "mixed"}, [][]string{
		{"", "yes", "", ""},
		{"12.5", "no", "", "3"},
	})
	assert.True(t, tbl.ColumnNumeric("num"))
	assert.False(t, tbl.ColumnNumeric("text"))
	// judged by the first non-empty cell; fully null columns are not numeric
	assert.False(t, tbl.ColumnNumeric("empty"))
	assert.True(t, tbl.ColumnNumeric("mixed"))
	assert.False(t, tbl.ColumnNumeric("absent"))
}

func TestTable_SumColumn(t *testing.T) {
	tbl := NewTable("t", []string{"a", "b"}, [][]string{
		{"10", ""},
		{"", ""},
		{"2.5", ""},
		{"junk", ""},
	})
	total, ok := tbl.SumColumn("a")
	require.True(t, ok)
	assert.Equal(t, 12.5, total)

	_, ok = tbl.SumColumn("b")
	assert.False(t, ok)
	_, ok = tbl.SumColumn("absent")
	assert.False(t, ok)
}

func TestTable_FirstValue(t *testing.T) {
	tbl := NewTable("t", []string{"a", "b"}, [][]string{{"7", ""}})
	v, ok := tbl.FirstValue("a")
	require.True(t, ok)
	assert.Equal(t, 7.0, v)
	_, ok = tbl.FirstValue("b")
	assert.False(t, ok)
}

func TestTable_AllNullAllZero(t *testing.T) {
	tbl := NewTable("t", []string{"null", "zero", "mixed"}, [][]string{
		{"", "0", "0"},
		{"", "0.0", "5"},
	})
	assert.True(t, tbl.AllNull("null"))
	assert.False(t, tbl.AllNull("zero"))
	assert.True(t, tbl.AllZero("zero"))
	assert.False(t, tbl.AllZero("mixed"))
	assert.False(t, tbl.AllZero("null"))
	assert.False(t, tbl.AllNull("absent"))
}

func TestTable_ValueHandlesRaggedRows(t *testing.T) {
	tbl := NewTable("t", []string{"a", "b"}, [][]string{{"1"}})
	v, ok := tbl.Value(0, "b")
	require.True(t, ok)
	assert.Equal(t, "", v)
	_, ok = tbl.Value(1, "a")
	assert.False(t, ok)
}

func TestTable_FilterEq(t *testing.T) {
	tbl := NewTable("t", []string{"id", "v"}, [][]string{
		{"1", "a"}, {"2", "b"}, {"1", "c"},
	})
	filtered := tbl.FilterEq("id", "1")
	require.Equal(t, 2, filtered.NumRows())
	v, _ := filtered.Value(1, "v")
	assert.Equal(t, "c", v)
	assert.Zero(t, tbl.FilterEq("id", "9").NumRows())
}

func TestTable_DistinctValues(t *testing.T) {
	tbl := NewTable("t", []string{"d"}, [][]string{
		{"North"}, {"South"}, {"North"}, {""},
	})
	order, rows := tbl.DistinctValues("d")
	assert.Equal(t, []string{"North", "South"}, order)
	assert.Equal(t, []int{0, 2}, rows["North"])
}

func TestTable_LeftJoin(t *testing.T) {
	primary := NewTable("p", []string{"id", "cost"}, [][]string{
		{"1", "100"},
		{"2", "200"},
		{"3", "300"},
	})
	ref := NewTable("r", []string{"id", "pop", "cost"}, [][]string{
		{"1", "10", "999"},
		{"2", "20", "888"},
	})

	joined := primary.LeftJoin(ref, "id")
	require.Equal(t, []string{"id", "cost", "pop", "cost_ref"}, joined.Columns)
	require.Equal(t, 3, joined.NumRows())

	pop, _ := joined.Value(0, "pop")
	assert.Equal(t, "10", pop)
	costRef, _ := joined.Value(1, "cost_ref")
	assert.Equal(t, "888", costRef)

	// unmatched rows keep empty reference cells
	pop, _ = joined.Value(2, "pop")
	assert.Equal(t, "", pop)
}

func TestTable_ConcatColumns(t *testing.T) {
	a := NewTable("a", []string{"x"}, [][]string{{"1"}})
	b := NewTable("b", []string{"x", "y"}, [][]string{{"9", "8"}, {"7", "6"}})

	c := a.ConcatColumns(b)
	require.Equal(t, []string{"x", "x_ref", "y"}, c.Columns)
	require.Equal(t, 2, c.NumRows())
	v, _ := c.Value(0, "x_ref")
	assert.Equal(t, "9", v)
	// the shorter side is padded with empty cells
	v, _ = c.Value(1, "x")
	assert.Equal(t, "", v)
}
