package generator

import (
	"context"
	"time"

	"calseed/internal/models"
	"calseed/internal/recurrence"
)

// DirectoryService lists the organization's members.
type DirectoryService interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// CalendarService provides the remote calendar operations the generator
// depends on.
type CalendarService interface {
	// ListUpcoming returns the user's events within [from, to).
	ListUpcoming(ctx context.Context, user *models.User, from, to time.Time) ([]models.RemoteEvent, error)

	// CountUpcoming returns the total number of events across all users
	// within [from, to). May be served by batched or concurrent lookups, but
	// the result is always a single folded count.
	CountUpcoming(ctx context.Context, users []models.User, from, to time.Time) (int, error)

	// Create persists the occurrence in the organizer's calendar and returns
	// the created event's id.
	Create(ctx context.Context, occ *models.Occurrence, desc *recurrence.Descriptor) (string, error)

	// AddAttachment attaches a file to an already created event.
	AddAttachment(ctx context.Context, user *models.User, eventID, filename string, data []byte) error
}

// AttachmentStore reads attachment payloads by name.
type AttachmentStore interface {
	ReadBytes(name string) ([]byte, error)
}

// Slotter computes a candidate start/end pair for one occurrence.
type Slotter interface {
	Schedule(ctx context.Context, t *models.EventTemplate, organizer *models.User) (time.Time, time.Time, error)
}
