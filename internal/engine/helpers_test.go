package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/civitas-labs/munaudit/internal/dataset"
	"github.com/civitas-labs/munaudit/internal/testutil"
)

// demoColumns is the roster/demographics header used by the fixtures:
// id, name, district, grade, population.
var demoColumns = []string{"mp_id", "municipality_name", "district_name", "p1_1_1_2_grade", "p1_1_3_4_tot_25_no"}

// newTestStore assembles a store from a demographics roster and any
// number of additional tables.
func newTestStore(t *testing.T, demoRows [][]string, tables ...*dataset.Table) *dataset.Store {
	t.Helper()
	cfg := dataset.DefaultStoreConfig()
	cfg.Logger = testutil.NewTestLogger(t)
	s := dataset.NewStore(cfg)
	s.AddTable(dataset.NewTable("p1_1_1_2", demoColumns, demoRows))
	for _, tbl := range tables {
		s.AddTable(tbl)
	}
	require.NoError(t, s.RebuildRoster())
	return s
}

func newTestExecutor(t *testing.T, store *dataset.Store) *Executor {
	t.Helper()
	return NewExecutor(store, Config{Logger: testutil.NewTestLogger(t)})
}
