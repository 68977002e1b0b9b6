package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/tribunal/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

//go:embed migrations/002_add_rubric_column.sql
var migrationV2 string

// DefaultListLimit bounds List when the caller passes a non-positive limit.
const DefaultListLimit = 50

// SQLiteVerdictStore implements core.VerdictStore with SQLite storage.
// The full run record is kept as a JSON payload next to a few indexed columns.
type SQLiteVerdictStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
}

// NewSQLiteVerdictStore opens (or creates) the history database at dbPath.
func NewSQLiteVerdictStore(dbPath string) (*SQLiteVerdictStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	// WAL lets `tribunal history` read while a server is writing.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &SQLiteVerdictStore{dbPath: dbPath, db: db}

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteVerdictStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteVerdictStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteVerdictStore) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// Table doesn't exist yet
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}
	if version < 2 {
		if _, err := s.db.Exec(migrationV2); err != nil {
			return fmt.Errorf("applying migration v2: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteVerdictStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Save stores or replaces a run record.
func (s *SQLiteVerdictStore) Save(ctx context.Context, rec *core.RunRecord) error {
	if rec == nil || rec.ID == "" {
		return core.ErrValidation(core.CodeInvalidTarget, "run record requires an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling run record: %w", err)
	}

	var rubric string
	if rec.Verdict != nil {
		rubric = rec.Verdict.Rubric
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, repo_url, report_path, outcome, overall_score,
			payload, checksum, created_at, rubric
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repo_url = excluded.repo_url,
			report_path = excluded.report_path,
			outcome = excluded.outcome,
			overall_score = excluded.overall_score,
			payload = excluded.payload,
			checksum = excluded.checksum,
			created_at = excluded.created_at,
			rubric = excluded.rubric
	`,
		rec.ID, rec.Target.RepoURL, nullableString(rec.Target.ReportPath),
		string(rec.Outcome), rec.OverallScore,
		string(payload), checksum(payload), rec.CreatedAt.UTC(),
		nullableString(rubric),
	)
	if err != nil {
		return fmt.Errorf("upserting run %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns a run by ID.
func (s *SQLiteVerdictStore) Get(ctx context.Context, id string) (*core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT payload, checksum FROM runs WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns the most recent runs, newest first.
func (s *SQLiteVerdictStore) List(ctx context.Context, limit int) ([]*core.RunRecord, error) {
	return s.query(ctx, "SELECT payload, checksum FROM runs ORDER BY created_at DESC, id LIMIT ?", listLimit(limit))
}

// ListByTarget returns the most recent runs against one repository.
func (s *SQLiteVerdictStore) ListByTarget(ctx context.Context, repoURL string, limit int) ([]*core.RunRecord, error) {
	return s.query(ctx,
		"SELECT payload, checksum FROM runs WHERE repo_url = ? ORDER BY created_at DESC, id LIMIT ?",
		repoURL, listLimit(limit))
}

// Delete removes a run. Deleting an unknown run is not an error.
func (s *SQLiteVerdictStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id); err != nil {
		return fmt.Errorf("deleting run %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteVerdictStore) query(ctx context.Context, q string, args ...interface{}) ([]*core.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []*core.RunRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*core.RunRecord, error) {
	var payload, sum string
	if err := row.Scan(&payload, &sum); err != nil {
		return nil, err
	}
	if checksum([]byte(payload)) != sum {
		return nil, core.ErrValidation(core.CodeCorruptRecord, "run payload checksum mismatch")
	}
	var rec core.RunRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling run record: %w", err)
	}
	return &rec, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Verify that SQLiteVerdictStore implements core.VerdictStore.
var _ core.VerdictStore = (*SQLiteVerdictStore)(nil)
