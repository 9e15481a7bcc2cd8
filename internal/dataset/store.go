package dataset

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/civitas-labs/munaudit/pkg/core"
)

// StoreConfig configures the CSV store.
type StoreConfig struct {
	// DemographicsTable names the table the entity roster is read from.
	DemographicsTable string
	// EntityIDColumn is the entity identifier column present in most tables.
	EntityIDColumn string
	// EntityNameColumn and DistrictColumn locate roster fields in the
	// demographics table.
	EntityNameColumn string
	DistrictColumn   string

	Logger *slog.Logger
}

// DefaultStoreConfig returns the column conventions of the questionnaire
// export format.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		DemographicsTable: "p1_1_1_2",
		EntityIDColumn:    "mp_id",
		EntityNameColumn:  "municipality_name",
		DistrictColumn:    "district_name",
	}
}

// Store holds every loaded table and the entity roster. It is read-only
// after LoadDir and safe to share across rule evaluations.
type Store struct {
	cfg      StoreConfig
	logger   *slog.Logger
	tables   map[string]*Table
	entities []core.EntityInfo
	byID     map[string]core.EntityInfo
}

// NewStore creates an empty store.
func NewStore(cfg StoreConfig) *Store {
	if cfg.DemographicsTable == "" {
		cfg = DefaultStoreConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		cfg:    cfg,
		logger: logger,
		tables: make(map[string]*Table),
		byID:   make(map[string]core.EntityInfo),
	}
}

// exportPrefix matches the "mp_<serial>_" prefix the questionnaire export
// prepends to table file names.
var exportPrefix = regexp.MustCompile(`^mp_\d+_`)

// NormalizeTableName strips the export serial prefix from a table
// reference, e.g. "mp_270126_p1_1_1_2" -> "p1_1_1_2".
func NormalizeTableName(name string) string {
	return exportPrefix.ReplaceAllString(strings.TrimSpace(name), "")
}

// LoadDir loads every *.csv file in dir as one table. Files that fail to
// parse are skipped with a warning; a directory with no usable tables is
// an error.
func (s *Store) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read data directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		name := NormalizeTableName(strings.TrimSuffix(entry.Name(), ".csv"))
		path := filepath.Join(dir, entry.Name())

		t, err := loadCSV(name, path)
		if err != nil {
			s.logger.Warn("skipping unreadable table", "file", entry.Name(), "error", err)
			continue
		}
		normalizeCommissionYears(t)
		s.tables[name] = t
		s.logger.Debug("loaded table", "table", name, "rows", t.NumRows(), "columns", len(t.Columns))
	}

	if len(s.tables) == 0 {
		return fmt.Errorf("no CSV tables found in %s", dir)
	}

	if err := s.buildRoster(); err != nil {
		return err
	}
	s.logger.Info("data loaded", "tables", len(s.tables), "entities", len(s.entities))
	return nil
}

// AddTable registers a table directly. Used by tests and by callers that
// assemble tables from sources other than CSV files.
func (s *Store) AddTable(t *Table) {
	s.tables[t.Name] = t
}

// RebuildRoster re-derives the entity roster after tables were added
// through AddTable.
func (s *Store) RebuildRoster() error { return s.buildRoster() }

func (s *Store) buildRoster() error {
	demo, ok := s.tables[s.cfg.DemographicsTable]
	if !ok {
		return fmt.Errorf("demographics table %q not found; cannot build entity roster", s.cfg.DemographicsTable)
	}
	s.entities = s.entities[:0]
	for i := range demo.Rows {
		id := demo.cell(i, demo.colIndex[s.cfg.EntityIDColumn])
		if id == "" {
			continue
		}
		info := core.EntityInfo{ID: id}
		if c, ok := demo.colIndex[s.cfg.EntityNameColumn]; ok {
			info.Name = demo.cell(i, c)
		}
		if c, ok := demo.colIndex[s.cfg.DistrictColumn]; ok {
			info.District = demo.cell(i, c)
		}
		if _, seen := s.byID[id]; !seen {
			s.entities = append(s.entities, info)
		}
		s.byID[id] = info
	}
	if len(s.entities) == 0 {
		return fmt.Errorf("demographics table %q has no %s values", s.cfg.DemographicsTable, s.cfg.EntityIDColumn)
	}
	return nil
}

// Table returns the whole named table, or nil when absent.
func (s *Store) Table(name string) *Table {
	return s.tables[NormalizeTableName(name)]
}

// EntityDataset returns the named table filtered to one entity's rows.
// Tables without the entity id column are returned whole (singleton
// tables). Returns nil when the table is absent or the entity has no rows.
func (s *Store) EntityDataset(entityID, tableName string) *Table {
	t := s.tables[NormalizeTableName(tableName)]
	if t == nil {
		return nil
	}
	if !t.HasColumn(s.cfg.EntityIDColumn) {
		return t
	}
	filtered := t.FilterEq(s.cfg.EntityIDColumn, entityID)
	if filtered.NumRows() == 0 {
		return nil
	}
	return filtered
}

// EntityIDs returns every known entity id in roster order.
func (s *Store) EntityIDs() []string {
	ids := make([]string, len(s.entities))
	for i, e := range s.entities {
		ids[i] = e.ID
	}
	return ids
}

// EntityInfo returns the roster entry for one entity.
func (s *Store) EntityInfo(entityID string) (core.EntityInfo, bool) {
	info, ok := s.byID[entityID]
	return info, ok
}

// EntityIDColumn returns the configured entity identifier column name.
func (s *Store) EntityIDColumn() string { return s.cfg.EntityIDColumn }

// loadCSV parses one CSV file, tolerating a UTF-8 BOM and ragged rows.
func loadCSV(name, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s is empty", filepath.Base(path))
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return NewTable(name, header, records[1:]), nil
}

// beforeYear matches the legacy "Before 1990" spelling in asset
// commissioning years.
var beforeYear = regexp.MustCompile(`(?i)^before\s*1990$`)

// normalizeCommissionYears rewrites the asset commissioning year column in
// place: the legacy "Before 1990" spelling becomes 1989 and anything
// non-numeric becomes null. Source systems exported this column as free
// text.
func normalizeCommissionYears(t *Table) {
	const commYearColumn = "p7_comm_year"
	col, ok := t.colIndex[commYearColumn]
	if !ok {
		return
	}
	for i, row := range t.Rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		switch {
		case v == "":
			// already null
		case beforeYear.MatchString(v):
			t.Rows[i][col] = "1989"
		default:
			if _, ok := cellFloat(v); !ok {
				t.Rows[i][col] = ""
			}
		}
	}
}
