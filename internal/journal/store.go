package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"
)

//go:embed sql/insert-entry.sql
var insertEntrySQL string

//go:embed sql/get-latest-entries.sql
var getLatestEntriesSQL string

//go:embed sql/prune-entries.sql
var pruneEntriesSQL string

// Entry is one message handed to the sink.
type Entry struct {
	ID        int64     `json:"id"`
	Topic     string    `json:"topic"`
	Payload   string    `json:"payload"`
	Delivered bool      `json:"delivered"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

func (s *Store) Insert(ctx context.Context, e Entry) error {
	ts := e.CreatedAt.UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(ctx, insertEntrySQL, e.Topic, e.Payload, e.Delivered, ts); err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// Latest returns up to limit entries for topic, newest first.
func (s *Store) Latest(ctx context.Context, topic string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, getLatestEntriesSQL, topic, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("journal: close rows", "error", err)
		}
	}()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.Topic, &e.Payload, &e.Delivered, &ts); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		e.CreatedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep entries and deletes the rest.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx, pruneEntriesSQL, keep)
	if err != nil {
		return 0, fmt.Errorf("prune entries: %w", err)
	}
	return res.RowsAffected()
}
