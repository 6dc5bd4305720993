package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"

	"commerce-sync-engine/internal/domain"
)

// SQLiteJournal stores queued events in a single-writer SQLite database.
// Bodies are snappy-compressed JSON.
type SQLiteJournal struct {
	db *sql.DB
	mu sync.Mutex
}

func OpenSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("queue: failed to open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &SQLiteJournal{db: db}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: failed to initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	_, err := j.db.Exec(`
		CREATE TABLE IF NOT EXISTS queued_events (
			seq      INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL UNIQUE,
			priority INTEGER NOT NULL,
			body     BLOB NOT NULL
		)`)
	return err
}

func (j *SQLiteJournal) Append(ctx context.Context, event *domain.SyncEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("queue: failed to encode event: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	_, err = j.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO queued_events (event_id, priority, body) VALUES (?, ?, ?)`,
		event.ID, int(event.Metadata.Priority), snappy.Encode(nil, raw))
	if err != nil {
		return fmt.Errorf("queue: failed to append event: %w", err)
	}
	return nil
}

func (j *SQLiteJournal) Remove(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.db.ExecContext(ctx, `DELETE FROM queued_events WHERE event_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("queue: failed to remove events: %w", err)
	}
	return nil
}

// Load returns journaled events in their original enqueue order.
func (j *SQLiteJournal) Load(ctx context.Context) ([]*domain.SyncEvent, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT event_id, body FROM queued_events ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("queue: failed to load journal: %w", err)
	}
	defer rows.Close()

	var events []*domain.SyncEvent
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("queue: failed to scan journal row: %w", err)
		}
		raw, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("queue: corrupt journal entry %s: %w", id, err)
		}
		var ev domain.SyncEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("queue: corrupt journal entry %s: %w", id, err)
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
