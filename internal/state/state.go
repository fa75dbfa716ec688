package state

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DefaultFileName is the database file created inside an output directory
// when no explicit path is configured.
const DefaultFileName = "state.db"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Run is one row of the runs table.
type Run struct {
	ID         string
	InputDir   string
	OutputDir  string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Success    int
	Failed     int
	Skipped    int
	Cancelled  int
}

// Counts are the aggregate results stored when a run finishes.
type Counts struct {
	Total     int
	Success   int
	Failed    int
	Skipped   int
	Cancelled int
}

// TaskRecord is the latest known outcome for one document.
type TaskRecord struct {
	Path       string
	RunID      string
	Name       string
	Status     string
	Error      string
	OutputPath string
	UpdatedAt  time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to the database at path, creating it and its directory if
// needed, and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	// Pragmas are per connection; a single connection keeps them in force.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to state database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, input_dir, output_dir, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.InputDir, run.OutputDir, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final counts of a run.
func (s *Store) FinishRun(ctx context.Context, id string, c Counts) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs
		    SET finished_at = ?, total = ?, success = ?, failed = ?, skipped = ?, cancelled = ?
		  WHERE id = ?`,
		formatTime(s.now()), c.Total, c.Success, c.Failed, c.Skipped, c.Cancelled, id,
	)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing run %s: %w", id, ErrNotFound)
	}
	return nil
}

// RecordTask stores the outcome of a task, replacing any earlier outcome for
// the same path.
func (s *Store) RecordTask(ctx context.Context, rec TaskRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_states (path, run_id, name, status, error, output_path, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
		     run_id = excluded.run_id,
		     name = excluded.name,
		     status = excluded.status,
		     error = excluded.error,
		     output_path = excluded.output_path,
		     updated_at = excluded.updated_at`,
		rec.Path, rec.RunID, rec.Name, rec.Status, rec.Error, rec.OutputPath, formatTime(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("recording task %s: %w", rec.Path, err)
	}
	return nil
}

// Statuses returns the latest status of every recorded path.
func (s *Store) Statuses(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, status FROM task_states`)
	if err != nil {
		return nil, fmt.Errorf("loading task statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, status string
		if err := rows.Scan(&path, &status); err != nil {
			return nil, fmt.Errorf("loading task statuses: %w", err)
		}
		out[path] = status
	}
	return out, rows.Err()
}

// Tasks returns every task record, ordered by path. A non-empty status
// filters the result.
func (s *Store) Tasks(ctx context.Context, status string) ([]TaskRecord, error) {
	query := `SELECT path, run_id, name, status, error, output_path, updated_at FROM task_states`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY path`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("loading tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var (
			rec     TaskRecord
			updated string
		)
		if err := rows.Scan(&rec.Path, &rec.RunID, &rec.Name, &rec.Status, &rec.Error, &rec.OutputPath, &updated); err != nil {
			return nil, fmt.Errorf("loading tasks: %w", err)
		}
		rec.UpdatedAt = parseTime(updated)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var (
		run      Run
		started  string
		finished sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, input_dir, output_dir, started_at, finished_at, total, success, failed, skipped, cancelled
		   FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.InputDir, &run.OutputDir, &started, &finished,
		&run.Total, &run.Success, &run.Failed, &run.Skipped, &run.Cancelled)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("loading latest run: %w", err)
	}
	run.StartedAt = parseTime(started)
	if finished.Valid {
		run.FinishedAt = parseTime(finished.String)
	}
	return run, nil
}

// Finished reports whether the run has recorded its final counts.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
