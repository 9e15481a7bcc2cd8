// Package state persists the audit run history in SQLite.
package state

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/civitas-labs/munaudit/pkg/core"
)

//go:embed schema.sql
var schemaSQL string

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one audit execution record.
type Run struct {
	ID          string
	Status      string
	StartedAt   time.Time
	CompletedAt *time.Time

	RuleCount    int
	EntityCount  int
	FindingCount int
	Critical     int
	High         int
	Medium       int
	Low          int

	Error string
}

// Store records audit runs in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates an unopened store.
func NewStore() *Store {
	return &Store{}
}

// Open opens the database at path. Use ":memory:" for an in-memory
// database. The schema is created if absent.
func (s *Store) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open run history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping run history database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize run history schema: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginRun records the start of an audit execution.
func (s *Store) BeginRun(ruleCount, entityCount int) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	run := &Run{
		ID:          uuid.New().String(),
		Status:      RunStatusRunning,
		StartedAt:   time.Now().UTC(),
		RuleCount:   ruleCount,
		EntityCount: entityCount,
	}
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, status, rule_count, entity_count) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.Status, run.RuleCount, run.EntityCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

// CompleteRun marks the run finished and records its finding counts.
func (s *Store) CompleteRun(run *Run, findings []core.Finding) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = RunStatusCompleted
	run.FindingCount = len(findings)
	run.Critical, run.High, run.Medium, run.Low = 0, 0, 0, 0
	for _, f := range findings {
		switch f.Severity {
		case core.SeverityCritical:
			run.Critical++
		case core.SeverityHigh:
			run.High++
		case core.SeverityMedium:
			run.Medium++
		case core.SeverityLow:
			run.Low++
		}
	}

	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ?, status = ?, finding_count = ?,
		 critical_count = ?, high_count = ?, medium_count = ?, low_count = ?
		 WHERE id = ?`,
		run.CompletedAt, run.Status, run.FindingCount,
		run.Critical, run.High, run.Medium, run.Low, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	return nil
}

// FailRun marks the run failed with an error message.
func (s *Store) FailRun(run *Run, runErr error) error {
	if s.db == nil {
		return fmt.Errorf("database not opened")
	}

	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Status = RunStatusFailed
	run.Error = runErr.Error()

	_, err := s.db.Exec(
		`UPDATE runs SET completed_at = ?, status = ?, error = ? WHERE id = ?`,
		run.CompletedAt, run.Status, run.Error, run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to record run failure: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, started_at, completed_at, status, rule_count, entity_count,
		 finding_count, critical_count, high_count, medium_count, low_count, error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var completedAt sql.NullTime
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.StartedAt, &completedAt, &r.Status,
			&r.RuleCount, &r.EntityCount, &r.FindingCount,
			&r.Critical, &r.High, &r.Medium, &r.Low, &errMsg); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if completedAt.Valid {
			t := completedAt.Time
			r.CompletedAt = &t
		}
		r.Error = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
