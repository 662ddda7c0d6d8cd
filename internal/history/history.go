package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// CreatedEvent is one ledger row for an event the generator created.
type CreatedEvent struct {
	RowID      int64
	CycleID    string
	TemplateID int64
	Organizer  string
	EventID    string
	Start      time.Time
	CreatedAt  time.Time
}

// DB is the local ledger of created events. It exists for auditing and
// cleanup only; quota decisions always come from the remote service.
type DB struct {
	*sql.DB
}

// NewDB opens the ledger at path and runs migrations.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &DB{db}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS created_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT NOT NULL,
			template_id INTEGER NOT NULL,
			organizer TEXT NOT NULL,
			event_id TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_created_events_organizer ON created_events(organizer)`,
		`CREATE INDEX IF NOT EXISTS idx_created_events_cycle ON created_events(cycle_id)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// RecordCreated appends one created event to the ledger.
func (d *DB) RecordCreated(ctx context.Context, cycleID string, templateID int64, organizer, eventID string, start time.Time) error {
	_, err := d.ExecContext(ctx,
		`INSERT INTO created_events (cycle_id, template_id, organizer, event_id, start_time) VALUES (?, ?, ?, ?, ?)`,
		cycleID, templateID, organizer, eventID, start,
	)
	if err != nil {
		return fmt.Errorf("record created event: %w", err)
	}
	return nil
}

// ListCreated returns every ledger row, oldest first.
func (d *DB) ListCreated(ctx context.Context) ([]CreatedEvent, error) {
	rows, err := d.QueryContext(ctx,
		`SELECT id, cycle_id, template_id, organizer, event_id, start_time, created_at FROM created_events ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list created events: %w", err)
	}
	defer rows.Close()

	var out []CreatedEvent
	for rows.Next() {
		var ev CreatedEvent
		if err := rows.Scan(&ev.RowID, &ev.CycleID, &ev.TemplateID, &ev.Organizer, &ev.EventID, &ev.Start, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan created event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Remove deletes one ledger row after the remote event was removed.
func (d *DB) Remove(ctx context.Context, rowID int64) error {
	_, err := d.ExecContext(ctx, `DELETE FROM created_events WHERE id = ?`, rowID)
	return err
}
