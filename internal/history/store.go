package history

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/HugeFrog24/gpt-video-translator/internal/pipeline"
	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Output is one translation file recorded for a run.
type Output struct {
	Language string
	Path     string
}

// Record is the persisted summary of a run.
type Record struct {
	ID               string
	MediaName        string
	MediaSize        int64
	State            pipeline.State
	Progress         int
	DetectedLanguage string
	Languages        []string
	ErrorKind        string
	ErrorMessage     string
	Outputs          []Output
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Store persists run summaries in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
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

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record upserts the run described by snap together with its outputs.
func (s *Store) Record(ctx context.Context, snap pipeline.Snapshot) error {
	if snap.ID == "" {
		return errors.New("history: snapshot has no run id")
	}
	return retryOnBusy(ctx, func() error {
		return s.record(ctx, snap)
	})
}

func (s *Store) record(ctx context.Context, snap pipeline.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	detected := ""
	if snap.DetectedLanguage.Known() {
		detected = snap.DetectedLanguage.Code()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (
            id, media_name, media_size, state, progress, detected_language,
            languages, error_kind, error_message, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            state = excluded.state,
            progress = excluded.progress,
            detected_language = excluded.detected_language,
            languages = excluded.languages,
            error_kind = excluded.error_kind,
            error_message = excluded.error_message,
            updated_at = excluded.updated_at`,
		snap.ID,
		snap.MediaName,
		snap.MediaSize,
		string(snap.State),
		snap.Progress,
		nullableString(detected),
		nullableString(strings.Join(snap.Languages, ",")),
		nullableString(services.Kind(snap.Err)),
		nullableString(services.Message(snap.Err)),
		formatTime(snap.CreatedAt),
		formatTime(snap.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	for i, out := range snap.Translations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO outputs (run_id, language, path, position) VALUES (?, ?, ?, ?)
            ON CONFLICT(run_id, language) DO UPDATE SET path = excluded.path, position = excluded.position`,
			snap.ID, out.Language, out.Path, i,
		); err != nil {
			return fmt.Errorf("upsert output %s: %w", out.Language, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

// Get returns the record for id, or nil when no such run exists.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if err := s.loadOutputs(ctx, []*Record{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns the most recent runs first. A limit <= 0 returns all runs.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	if err := s.loadOutputs(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) loadOutputs(ctx context.Context, records []*Record) error {
	for _, rec := range records {
		rows, err := s.db.QueryContext(ctx,
			`SELECT language, path FROM outputs WHERE run_id = ? ORDER BY position`, rec.ID)
		if err != nil {
			return fmt.Errorf("list outputs: %w", err)
		}
		for rows.Next() {
			var out Output
			if err := rows.Scan(&out.Language, &out.Path); err != nil {
				rows.Close()
				return fmt.Errorf("scan output: %w", err)
			}
			rec.Outputs = append(rec.Outputs, out)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return fmt.Errorf("iterate outputs: %w", err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset run history)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

const runColumns = "id, media_name, media_size, state, progress, detected_language, languages, error_kind, error_message, created_at, updated_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		rec          Record
		state        string
		detected     sql.NullString
		languages    sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.MediaName,
		&rec.MediaSize,
		&state,
		&rec.Progress,
		&detected,
		&languages,
		&errorKind,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	rec.State = pipeline.State(state)
	rec.DetectedLanguage = detected.String
	if languages.String != "" {
		rec.Languages = strings.Split(languages.String, ",")
	}
	rec.ErrorKind = errorKind.String
	rec.ErrorMessage = errorMessage.String
	if t, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
