// Package history records batch runs and their per-item outcomes in SQLite so
// past results can be reviewed with `quickview history`.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"quickview/internal/config"
	"quickview/internal/services"
)

// Item statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusEmpty     = "empty"
)

// Run is one recorded batch invocation.
type Run struct {
	ID         string
	Source     string
	Total      int
	Succeeded  int
	Failed     int
	StartedAt  time.Time
	FinishedAt time.Time
}

// Finished reports whether FinishRun was called for the run.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// ItemRecord is the outcome of one item within a run.
type ItemRecord struct {
	RunID           string
	Position        int
	Key             string
	Status          string
	FailedStage     string
	ErrorKind       string
	ErrorMessage    string
	ReportPath      string
	TranscriptChars int
	Duration        time.Duration
	RecordedAt      time.Time
}

// Store persists run history.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open creates or connects to the history database under the state directory.
func Open(cfg *config.Config) (*Store, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "history", "open", "config required", nil)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.HistoryPath())
}

// OpenPath opens the database at an explicit path. Every pooled connection
// gets WAL journaling, foreign keys, and a busy timeout.
func OpenPath(dbPath string) (*Store, error) {
	dsn := "file:" + dbPath + "?" + url.Values{"_pragma": {
		"journal_mode(WAL)",
		"foreign_keys(1)",
		"busy_timeout(5000)",
	}}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "history", "open", "open sqlite db", err)
	}

	store := &Store{db: db, path: dbPath, now: time.Now}
	if err := store.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, services.Wrap(services.ErrPersistence, "history", "open", "prepare schema", err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StartRun records the beginning of a batch.
func (s *Store) StartRun(ctx context.Context, id, source string, total int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, source, total, started_at) VALUES (?, ?, ?, ?)`,
		id, source, total, formatTime(s.now()))
	if err != nil {
		return services.Wrap(services.ErrPersistence, "history", "start run", id, err)
	}
	return nil
}

// RecordItem stores one item outcome.
func (s *Store) RecordItem(ctx context.Context, rec ItemRecord) error {
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_items (
            run_id, position, item_key, status, failed_stage, error_kind,
            error_message, report_path, transcript_chars, duration_ms, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID,
		rec.Position,
		rec.Key,
		rec.Status,
		nullableString(rec.FailedStage),
		nullableString(rec.ErrorKind),
		nullableString(rec.ErrorMessage),
		nullableString(rec.ReportPath),
		rec.TranscriptChars,
		rec.Duration.Milliseconds(),
		formatTime(recordedAt),
	)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "history", "record item", rec.Key, err)
	}
	return nil
}

// FinishRun stamps the final counters on a run.
func (s *Store) FinishRun(ctx context.Context, id string, succeeded, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET succeeded = ?, failed = ?, finished_at = ? WHERE id = ?`,
		succeeded, failed, formatTime(s.now()), id)
	if err != nil {
		return services.Wrap(services.ErrPersistence, "history", "finish run", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return services.Wrap(services.ErrPersistence, "history", "finish run", "unknown run "+id, nil)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, total, succeeded, failed, started_at, finished_at
         FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "history", "list runs", "query", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run         Run
			startedRaw  string
			finishedRaw sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Source, &run.Total, &run.Succeeded, &run.Failed, &startedRaw, &finishedRaw); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "history", "list runs", "scan", err)
		}
		run.StartedAt = parseTime(startedRaw)
		if finishedRaw.Valid {
			run.FinishedAt = parseTime(finishedRaw.String)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ItemsForRun returns the recorded items of a run in batch order.
func (s *Store) ItemsForRun(ctx context.Context, runID string) ([]ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, position, item_key, status, failed_stage, error_kind,
                error_message, report_path, transcript_chars, duration_ms, recorded_at
         FROM run_items WHERE run_id = ? ORDER BY position, id`, runID)
	if err != nil {
		return nil, services.Wrap(services.ErrPersistence, "history", "list items", "query", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var (
			rec                              ItemRecord
			stage, kind, message, reportPath sql.NullString
			durationMS                       int64
			recordedRaw                      string
		)
		if err := rows.Scan(&rec.RunID, &rec.Position, &rec.Key, &rec.Status, &stage, &kind,
			&message, &reportPath, &rec.TranscriptChars, &durationMS, &recordedRaw); err != nil {
			return nil, services.Wrap(services.ErrPersistence, "history", "list items", "scan", err)
		}
		rec.FailedStage = stage.String
		rec.ErrorKind = kind.String
		rec.ErrorMessage = message.String
		rec.ReportPath = reportPath.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.RecordedAt = parseTime(recordedRaw)
		items = append(items, rec)
	}
	return items, rows.Err()
}

// Clear deletes every run and item, returning the number of runs removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, services.Wrap(services.ErrPersistence, "history", "clear", "delete runs", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM run_items`); err != nil {
		return 0, services.Wrap(services.ErrPersistence, "history", "clear", "delete items", err)
	}
	return res.RowsAffected()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout keeps a fixed fraction width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
