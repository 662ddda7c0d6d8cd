package models

import "time"

// User identifies an organization member from the directory.
type User struct {
	ID          string
	DisplayName string
	Email       string
}

// RemoteEvent is an event already present in a user's calendar, as returned
// by the calendar service for the lookahead window.
type RemoteEvent struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Occurrence is one concrete calendar instance being materialized from a
// template for one organizer. It lives for a single assignment attempt:
// created, populated, submitted, then reset.
type Occurrence struct {
	Template  *EventTemplate
	Organizer *User
	Start     *time.Time
	End       *time.Time
}

// NewOccurrence pairs a template with the organizer it is being generated for.
func NewOccurrence(t *EventTemplate, organizer *User) *Occurrence {
	return &Occurrence{Template: t, Organizer: organizer}
}

// SetSlot fixes the concrete start and end instants.
func (o *Occurrence) SetSlot(start, end time.Time) {
	o.Start = &start
	o.End = &end
}

// Ready reports whether organizer, start and end are all assigned.
func (o *Occurrence) Ready() bool {
	return o.Organizer != nil && o.Start != nil && o.End != nil
}

// Date returns the calendar date of the occurrence start.
func (o *Occurrence) Date() time.Time {
	if o.Start == nil {
		return time.Time{}
	}
	y, m, d := o.Start.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, o.Start.Location())
}

// Reset clears organizer, start and end so the underlying template can be
// reused for a different user. Mandatory between assignment attempts.
func (o *Occurrence) Reset() {
	o.Organizer = nil
	o.Start = nil
	o.End = nil
}
