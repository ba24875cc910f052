package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"courier/internal/config"
	"courier/internal/jobs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Entry is one persisted run.
type Entry struct {
	ID           int64
	JobID        string
	Instance     string
	EndpointID   string
	Outcome      jobs.Outcome
	Output       json.RawMessage
	ErrorMessage string
	SubmittedAt  time.Time
	FinishedAt   time.Time
}

// Duration reports how long the run was in flight.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() || e.SubmittedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.SubmittedAt)
}

// Stats summarizes journal contents by outcome.
type Stats struct {
	Total     int64
	Completed int64
	Failed    int64
	Cancelled int64
	TimedOut  int64
}

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ jobs.Recorder = (*Store)(nil)

// Open initializes or connects to the journal database and applies
// migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := cfg.JournalPath()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Record inserts one finished run.
func (s *Store) Record(ctx context.Context, rec jobs.RunRecord) error {
	var output any
	if len(rec.Output) > 0 {
		output = string(rec.Output)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO job_runs (
            job_id, instance, endpoint_id, outcome,
            output_json, error_message, submitted_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.JobID,
		rec.Instance,
		rec.EndpointID,
		string(rec.Outcome),
		output,
		nullableString(rec.Reason),
		rec.SubmittedAt.UTC().Format(time.RFC3339Nano),
		rec.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first. A limit of zero or less
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM job_runs ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		entry, scanErr := scanEntry(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scan run: %w", scanErr)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return entries, nil
}

// FindByJobID returns the most recent run recorded for a job id, or nil when
// the id is unknown.
func (s *Store) FindByJobID(ctx context.Context, jobID string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM job_runs WHERE job_id = ? ORDER BY id DESC LIMIT 1`,
		jobID,
	)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find run: %w", err)
	}
	return &entry, nil
}

// Stats aggregates the journal by outcome.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM job_runs GROUP BY outcome`)
	if err != nil {
		return Stats{}, fmt.Errorf("stats query: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var stats Stats
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Total += count
		switch jobs.Outcome(outcome) {
		case jobs.OutcomeCompleted:
			stats.Completed = count
		case jobs.OutcomeFailed:
			stats.Failed = count
		case jobs.OutcomeCancelled:
			stats.Cancelled = count
		case jobs.OutcomeTimedOut:
			stats.TimedOut = count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// Clear removes runs older than the cutoff. A zero cutoff removes
// everything. Returns the number of deleted rows.
func (s *Store) Clear(ctx context.Context, before time.Time) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if before.IsZero() {
		res, err = s.db.ExecContext(ctx, `DELETE FROM job_runs`)
	} else {
		res, err = s.db.ExecContext(
			ctx,
			`DELETE FROM job_runs WHERE finished_at < ?`,
			before.UTC().Format(time.RFC3339Nano),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return deleted, nil
}

const entryColumns = "id, job_id, instance, endpoint_id, outcome, output_json, error_message, submitted_at, finished_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		id           int64
		jobID        string
		instance     string
		endpointID   string
		outcome      string
		output       sql.NullString
		errorMessage sql.NullString
		submittedRaw string
		finishedRaw  string
	)
	if err := scanner.Scan(
		&id,
		&jobID,
		&instance,
		&endpointID,
		&outcome,
		&output,
		&errorMessage,
		&submittedRaw,
		&finishedRaw,
	); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:           id,
		JobID:        jobID,
		Instance:     instance,
		EndpointID:   endpointID,
		Outcome:      jobs.Outcome(outcome),
		ErrorMessage: errorMessage.String,
		SubmittedAt:  parseTimestamp(submittedRaw),
		FinishedAt:   parseTimestamp(finishedRaw),
	}
	if output.Valid && output.String != "" {
		entry.Output = json.RawMessage(output.String)
	}
	return entry, nil
}

func parseTimestamp(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

type migration struct {
	version string
	sql     string
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	versions := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		versions = append(versions, entry.Name())
	}
	sort.Strings(versions)

	migrations := make([]migration, 0, len(versions))
	for _, name := range versions {
		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		version := strings.TrimSuffix(name, ".sql")
		migrations = append(migrations, migration{version: version, sql: string(data)})
	}
	return migrations, nil
}

func (s *Store) applyMigrations(ctx context.Context) error {
	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY)"); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	for _, migration := range migrations {
		var count int
		row := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_migrations WHERE version = ?", migration.version)
		if err := row.Scan(&count); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		if count > 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx, migration.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", migration.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", migration.version); err != nil {
			return fmt.Errorf("record migration %s: %w", migration.version, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}
