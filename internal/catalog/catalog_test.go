package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-labs/munaudit/internal/testutil"
	"github.com/civitas-labs/munaudit/pkg/core"
)

const catalogHeader = "checkpoint_id,part,primary_table,reference_table,multi_part,column_1,column_2,column_3,column_4,validation_type,calculation_type,operator,threshold,severity,enabled,description,time_period,peer_group_by,peer_population_min,peer_population_max,iqr_multiplier,stddev_limit,statistical_context"

func writeCatalog(t *testing.T, rows ...string) string {
	t.Helper()
	content := catalogHeader + "\n"
	for _, row := range rows {
		content += row + "\n"
	}
	path := filepath.Join(t.TempDir(), "rules.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ParsesRule(t *testing.T) {
	path := writeCatalog(t,
		`P3_001,Part 3,p3_data,,FALSE,staff,pop,,,percentage,percentage,<=,10,High,TRUE,Staff share of population,,,,,,,`)

	cat, err := Load(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, cat.Rules, 1)
	assert.Empty(t, cat.Issues)

	r := cat.Rules[0]
	assert.Equal(t, "P3_001", r.ID)
	assert.Equal(t, "Part 3", r.Part)
	assert.Equal(t, "p3_data", r.PrimaryTable)
	assert.False(t, r.MultiPart)
	assert.Equal(t, core.RefColumn, r.Column(1).Kind)
	assert.Equal(t, "staff", r.Column(1).Column)
	assert.Equal(t, core.ValidationPercentage, r.Validation)
	assert.Equal(t, core.CalcPercentage, r.Calc)
	assert.Equal(t, "<=", r.Operator)
	assert.Equal(t, "10", r.Threshold)
	assert.Equal(t, core.SeverityHigh, r.Severity)
	assert.True(t, r.Enabled)
	// defaults for statistical parameters apply even on non-statistical rules
	assert.Equal(t, 1.5, r.Stats.IQRMultiplier)
	assert.Equal(t, 2.0, r.Stats.StddevLimit)
}

func TestLoad_BOMHeader(t *testing.T) {
	content := "\uFEFF" + catalogHeader + "\n" +
		"P3_001,Part 3,p3_data,,FALSE,staff,pop,,,percentage,percentage,<=,10,High,TRUE,Staff share of population,,,,,,,\n"
	path := filepath.Join(t.TempDir(), "rules.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cat, err := Load(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, cat.Rules, 1)
	assert.Equal(t, "P3_001", cat.Rules[0].ID)
}

func TestLoad_ParsesStatisticalRule(t *testing.T) {
	path := writeCatalog(t,
		`P3_100,Part 3,p3_metric,,FALSE,metric,,,,outlier_iqr,,,,Medium,TRUE,Cost per capita outliers,,population_size,10000,50000,3.0,,Waste cost context`)

	cat, err := Load(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, cat.Rules, 1)
	assert.Empty(t, cat.Issues)

	r := cat.Rules[0]
	assert.Equal(t, core.ValidationOutlierIQR, r.Validation)
	assert.Equal(t, core.PeerPopulationSize, r.Stats.GroupBy)
	require.NotNil(t, r.Stats.PopulationMin)
	require.NotNil(t, r.Stats.PopulationMax)
	assert.Equal(t, 10000.0, *r.Stats.PopulationMin)
	assert.Equal(t, 50000.0, *r.Stats.PopulationMax)
	assert.Equal(t, 3.0, r.Stats.IQRMultiplier)
	assert.Equal(t, "Waste cost context", r.Stats.Context)
}

func TestLoad_InvalidRowDisabledWithIssue(t *testing.T) {
	path := writeCatalog(t,
		`P3_001,Part 3,p3_data,,FALSE,staff,,,,bogus_type,,>,1,High,TRUE,desc,,,,,,,`)

	cat, err := Load(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, cat.Rules, 1)
	require.Len(t, cat.Issues, 1)
	assert.False(t, cat.Rules[0].Enabled)
	assert.Contains(t, cat.Issues[0].Problem, "unknown validation_type")
	assert.Empty(t, cat.Enabled())
}

func TestLoad_BlankColumnOneDisabled(t *testing.T) {
	path := writeCatalog(t,
		`P3_002,Part 3,p3_data,,FALSE,,,,,threshold,,>,1,High,TRUE,desc,,,,,,,`)

	cat, err := Load(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, cat.Issues, 1)
	assert.Contains(t, cat.Issues[0].Problem, "column_1 is blank")
	assert.False(t, cat.Rules[0].Enabled)
}

func TestLoad_BadPopulationBoundsReported(t *testing.T) {
	path := writeCatalog(t,
		`P3_101,Part 3,p3_metric,,FALSE,metric,,,,outlier_zscore,,,,Medium,TRUE,desc,,population_size,low,high,,2.5,`)

	cat, err := Load(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	require.Len(t, cat.Rules, 1)
	assert.Len(t, cat.Issues, 2)
	r := cat.Rules[0]
	assert.Nil(t, r.Stats.PopulationMin)
	assert.Nil(t, r.Stats.PopulationMax)
	assert.Equal(t, 2.5, r.Stats.StddevLimit)
	assert.False(t, r.Enabled)
}

func TestLoad_SkipsBlankRows(t *testing.T) {
	path := writeCatalog(t,
		`P3_001,Part 3,p3_data,,FALSE,staff,,,,threshold,,>,1,High,TRUE,desc,,,,,,,`,
		`,,,,,,,,,,,,,,,,,,,,,,`)

	cat, err := Load(path, testutil.NewTestLogger(t))
	require.NoError(t, err)
	assert.Len(t, cat.Rules, 1)
	assert.Empty(t, cat.Issues)
}

func TestLoad_MissingRequiredHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.csv")
	require.NoError(t, os.WriteFile(path, []byte("id,name\n1,x\n"), 0o644))
	_, err := Load(path, testutil.NewTestLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkpoint_id")
}

func TestLoad_FileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), testutil.NewTestLogger(t))
	require.Error(t, err)
}
