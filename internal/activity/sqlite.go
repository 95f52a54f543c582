package activity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"hwbot/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.ActivityStore using SQLite.
// Timestamps are stored as Unix nanoseconds so window queries compare integers.
type SQLiteStore struct {
	db         *sql.DB
	snippetLen int
	logger     *slog.Logger
}

func NewSQLiteStore(dbPath string, snippetLen int, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// A single connection serializes writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &SQLiteStore{db: db, snippetLen: snippetLen, logger: logger}, nil
}

func (s *SQLiteStore) RecordSenderActivity(ctx context.Context, rec domain.SenderActivityRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sender_activity (source_id, sender_id, display_name, snippet, recorded_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source_id) DO UPDATE SET
			sender_id = excluded.sender_id,
			display_name = excluded.display_name,
			snippet = excluded.snippet,
			recorded_at = excluded.recorded_at`,
		rec.SourceID, rec.SenderID, rec.DisplayName, Truncate(rec.Snippet, s.snippetLen), rec.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record sender activity: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendForwardedLog(ctx context.Context, entry domain.ForwardedLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO forwarded_log (source_id, snippet, forwarded_at) VALUES (?, ?, ?)`,
		entry.SourceID, Truncate(entry.Snippet, s.snippetLen), entry.ForwardedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append forwarded log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Summarize(ctx context.Context, window time.Duration, now time.Time) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, COUNT(*) FROM forwarded_log
		 WHERE forwarded_at > ? AND forwarded_at <= ?
		 GROUP BY source_id`,
		now.Add(-window).UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("summarize forwarded log: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var src int64
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		counts[src] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) ListSenderActivity(ctx context.Context) (map[int64]domain.SenderActivityRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_id, sender_id, display_name, snippet, recorded_at FROM sender_activity`,
	)
	if err != nil {
		return nil, fmt.Errorf("list sender activity: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]domain.SenderActivityRecord)
	for rows.Next() {
		var rec domain.SenderActivityRecord
		var recordedAt int64
		if err := rows.Scan(&rec.SourceID, &rec.SenderID, &rec.DisplayName, &rec.Snippet, &recordedAt); err != nil {
			return nil, err
		}
		rec.RecordedAt = time.Unix(0, recordedAt)
		out[rec.SourceID] = rec
	}
	return out, rows.Err()
}

// ForwardedLog returns log entries in insertion order, most recent last.
// limit <= 0 returns everything.
func (s *SQLiteStore) ForwardedLog(ctx context.Context, limit int) ([]domain.ForwardedLogEntry, error) {
	query := `SELECT source_id, snippet, forwarded_at FROM forwarded_log ORDER BY id`
	args := []any{}
	if limit > 0 {
		query = `SELECT source_id, snippet, forwarded_at FROM
			(SELECT id, source_id, snippet, forwarded_at FROM forwarded_log ORDER BY id DESC LIMIT ?)
			ORDER BY id`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read forwarded log: %w", err)
	}
	defer rows.Close()

	var entries []domain.ForwardedLogEntry
	for rows.Next() {
		var e domain.ForwardedLogEntry
		var at int64
		if err := rows.Scan(&e.SourceID, &e.Snippet, &at); err != nil {
			return nil, err
		}
		e.ForwardedAt = time.Unix(0, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) ClearForwardedLog(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM forwarded_log`)
	if err != nil {
		return fmt.Errorf("clear forwarded log: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("forwarded log cleared", "entries", n)
	return nil
}

func (s *SQLiteStore) ClearSenderActivity(ctx context.Context) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sender_activity`)
	if err != nil {
		return fmt.Errorf("clear sender activity: %w", err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("sender activity cleared", "records", n)
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
