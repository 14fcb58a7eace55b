package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/mcwatch/internal/events"
)

// Journal records delivered event batches. Snapshot history is never
// persisted; only the events observers produced.
type Journal struct {
	db       *Database
	messages events.Messages
}

// JournalEntry is one recorded event.
type JournalEntry struct {
	ID        int64           `json:"id"`
	BatchID   string          `json:"batch_id"`
	Label     string          `json:"label"`
	Endpoint  string          `json:"endpoint"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewJournal opens the journal database at dbPath and applies the schema.
func NewJournal(dbPath string, messages events.Messages) (*Journal, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	j := &Journal{db: database, messages: messages}
	if err := j.migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS event_journal (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL,
			label TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			seq INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_event_journal_label ON event_journal(label, id);
		CREATE INDEX IF NOT EXISTS idx_event_journal_created ON event_journal(created_at);
	`
	_, err := j.db.Exec(context.Background(), schema)
	return err
}

// Record stores every event of batch in one transaction.
func (j *Journal) Record(ctx context.Context, batch events.Batch) error {
	if len(batch.Events) == 0 {
		return nil
	}

	return j.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO event_journal (batch_id, label, endpoint, seq, event_type, payload, message, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare journal insert: %w", err)
		}
		defer stmt.Close()

		for i, ev := range batch.Events {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("failed to encode %s payload: %w", ev.Type, err)
			}
			if _, err := stmt.ExecContext(ctx,
				batch.ID, batch.Label, batch.Endpoint.String(), i,
				string(ev.Type), string(payload), j.messages.Render(ev), batch.At.UTC(),
			); err != nil {
				return fmt.Errorf("failed to record event: %w", err)
			}
		}
		return nil
	})
}

// Handler returns a bus handler that records each batch.
func (j *Journal) Handler() events.BatchHandler {
	return func(ctx context.Context, batch events.Batch) error {
		if err := j.Record(ctx, batch); err != nil {
			return err
		}
		log.Debug().Str("label", batch.Label).Int("events", len(batch.Events)).Msg("batch journaled")
		return nil
	}
}

// Recent returns up to limit entries, newest first. A non-empty label
// restricts the result to that observer.
func (j *Journal) Recent(ctx context.Context, label string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, batch_id, label, endpoint, event_type, payload, message, created_at
		FROM event_journal`
	args := []interface{}{}
	if label != "" {
		query += ` WHERE label = ?`
		args = append(args, label)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var e JournalEntry
		var payload string
		if err := rows.Scan(&e.ID, &e.BatchID, &e.Label, &e.Endpoint, &e.Type, &payload, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries older than maxAge and returns how many were removed.
func (j *Journal) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := j.db.Exec(ctx, `DELETE FROM event_journal WHERE created_at < ?`, time.Now().UTC().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		log.Info().Int64("removed", n).Msg("pruned event journal")
	}
	return n, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
