package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/infoboard/infoboard/internal/board"
)

// SnapshotStore keeps the last good table of each board feed.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore returns a SnapshotStore backed by db.
func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveSnapshot replaces the stored table for t.Feed. Error banners are not
// persisted; a snapshot only ever holds good rows.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, t board.Table) error {
	t.Error = ""
	t.Retrying = false
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("error: encoding %s snapshot: %w", t.Feed, err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO feed_snapshots (feed, payload, fetched_at) VALUES (?, ?, ?)
ON CONFLICT(feed) DO UPDATE SET payload = excluded.payload, fetched_at = excluded.fetched_at`,
		t.Feed, string(payload), t.FetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("error: saving %s snapshot: %w", t.Feed, err)
	}
	return nil
}

// LoadSnapshot returns the stored table for feed. ok is false when the feed
// has never been saved.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, feed string) (board.Table, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM feed_snapshots WHERE feed = ?`, feed).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return board.Table{}, false, nil
	}
	if err != nil {
		return board.Table{}, false, fmt.Errorf("error: loading %s snapshot: %w", feed, err)
	}
	var t board.Table
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return board.Table{}, false, fmt.Errorf("error: decoding %s snapshot: %w", feed, err)
	}
	return t, true, nil
}
