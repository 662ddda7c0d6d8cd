package history

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"calseed/internal/models"
)

// Deleter removes one event from a user's calendar.
type Deleter interface {
	Delete(ctx context.Context, user *models.User, eventID string) error
}

// Cleaner deletes every generated event recorded in the ledger from the
// calendars and prunes the ledger as it goes.
type Cleaner struct {
	db       *DB
	calendar Deleter
	logger   zerolog.Logger
}

// NewCleaner wires the ledger to the calendar service.
func NewCleaner(db *DB, calendar Deleter, logger zerolog.Logger) *Cleaner {
	return &Cleaner{db: db, calendar: calendar, logger: logger}
}

// Run deletes all recorded events and returns how many were removed. Rows
// whose remote deletion fails are kept for a later run.
func (c *Cleaner) Run(ctx context.Context) (int, error) {
	created, err := c.db.ListCreated(ctx)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, ev := range created {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		user := models.User{Email: ev.Organizer}
		if err := c.calendar.Delete(ctx, &user, ev.EventID); err != nil {
			c.logger.Error().Err(err).Str("event_id", ev.EventID).Str("organizer", ev.Organizer).Msg("failed to delete event")
			continue
		}
		if err := c.db.Remove(ctx, ev.RowID); err != nil {
			return deleted, fmt.Errorf("prune ledger row %d: %w", ev.RowID, err)
		}
		deleted++
	}

	c.logger.Info().Int("deleted", deleted).Int("recorded", len(created)).Msg("cleanup finished")
	return deleted, nil
}
