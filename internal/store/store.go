// Package store persists bulk-analysis results in SQLite so that
// shape-frequency queries survive across runs. It uses the pure-Go
// modernc driver; a single writer connection with WAL journaling is
// plenty for the write rates involved.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the results database.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// ShapeCount is one row of the shape-frequency report.
type ShapeCount struct {
	ShapeJSON     string
	TemplateCount int
	ModelIDCount  int
}

// RunSummary aggregates one bulk run.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Templates int
	Succeeded int
	Failed    int
}

// Open initializes the database at path, creating directories and
// tables as needed.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	template_count INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS template_results (
	run_id TEXT NOT NULL,
	template_hash TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	shape_json TEXT NOT NULL DEFAULT '',
	model_id_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, template_hash)
);
CREATE INDEX IF NOT EXISTS idx_results_shape ON template_results(shape_json);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// SaveRun records the start of a bulk run.
func (s *Store) SaveRun(runID string, startedAt time.Time, templateCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO runs (run_id, started_at, template_count) VALUES (?, ?, ?)`,
		runID, startedAt.Unix(), templateCount)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// SaveResult records one template's outcome. templateHash identifies
// the template (callers hash the source); shapeJSON is the canonical
// skeleton encoding, empty for failures.
func (s *Store) SaveResult(runID, templateHash, status, errMsg, shapeJSON string, modelIDCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO template_results
		 (run_id, template_hash, status, error, shape_json, model_id_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, templateHash, status, errMsg, shapeJSON, modelIDCount)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// TopShapes returns the most common skeleton shapes across all runs,
// ordered by model-ID count descending.
func (s *Store) TopShapes(limit int) ([]ShapeCount, error) {
	rows, err := s.db.Query(
		`SELECT shape_json, COUNT(*) AS templates, SUM(model_id_count) AS models
		 FROM template_results
		 WHERE status = 'success' AND shape_json != ''
		 GROUP BY shape_json
		 ORDER BY models DESC, templates DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query shapes: %w", err)
	}
	defer rows.Close()

	var out []ShapeCount
	for rows.Next() {
		var sc ShapeCount
		if err := rows.Scan(&sc.ShapeJSON, &sc.TemplateCount, &sc.ModelIDCount); err != nil {
			return nil, fmt.Errorf("failed to scan shape row: %w", err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Summary returns aggregate counts for a run.
func (s *Store) Summary(runID string) (*RunSummary, error) {
	var sum RunSummary
	var startedAt int64
	err := s.db.QueryRow(
		`SELECT run_id, started_at, template_count FROM runs WHERE run_id = ?`, runID).
		Scan(&sum.RunID, &startedAt, &sum.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}
	sum.StartedAt = time.Unix(startedAt, 0)

	rows, err := s.db.Query(
		`SELECT status, COUNT(*) FROM template_results WHERE run_id = ? GROUP BY status`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		if status == "success" {
			sum.Succeeded = n
		} else {
			sum.Failed += n
		}
	}
	return &sum, rows.Err()
}
