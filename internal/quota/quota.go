package quota

import (
	"errors"
	"fmt"
	"time"

	"calseed/internal/models"
)

// ErrQuotaExhausted signals a normal early stop: an organization or user cap
// has been reached. It is not a failure.
var ErrQuotaExhausted = errors.New("quota exhausted")

// Caps holds the three configured ceilings.
type Caps struct {
	Organization int
	PerUser      int
	PerDay       int
}

// Tracker maintains the organization-wide remaining quota for one generation
// cycle. It is rebuilt from the remote service's counts at the start of every
// cycle; nothing survives a cycle boundary.
type Tracker struct {
	caps         Caps
	orgRemaining int
}

// NewTracker derives the remaining organization quota from the cap and the
// current organization-wide upcoming-event count. The remainder is clamped at
// zero so it is never observed negative.
func NewTracker(caps Caps, orgUpcoming int) *Tracker {
	remaining := caps.Organization - orgUpcoming
	if remaining < 0 {
		remaining = 0
	}
	return &Tracker{caps: caps, orgRemaining: remaining}
}

// Caps returns the configured ceilings.
func (t *Tracker) Caps() Caps {
	return t.caps
}

// AllowedForOrg returns how many more quota units the organization may
// consume this cycle. Zero means no further assignment anywhere.
func (t *Tracker) AllowedForOrg() int {
	return t.orgRemaining
}

// AllowedForUser returns how many more quota units the given user may
// consume, bounded by the organization remainder.
func (t *Tracker) AllowedForUser(userUpcoming int) int {
	userRemaining := t.caps.PerUser - userUpcoming
	if userRemaining < 0 {
		userRemaining = 0
	}
	if userRemaining > t.orgRemaining {
		return t.orgRemaining
	}
	return userRemaining
}

// Debit subtracts consumed quota units from the organization remainder,
// clamping at zero at the point of exhaustion.
func (t *Tracker) Debit(units int) {
	t.orgRemaining -= units
	if t.orgRemaining < 0 {
		t.orgRemaining = 0
	}
}

// ValidateCandidate rejects an occurrence whose organizer, start or end is
// unset, or whose calendar date already holds maxPerDay known occurrences for
// the same organizer.
func ValidateCandidate(occ *models.Occurrence, userUpcoming []models.RemoteEvent, maxPerDay int) error {
	if !occ.Ready() {
		return errors.New("occurrence is missing organizer, start or end")
	}

	date := occ.Date()
	sameDay := 0
	for _, ev := range userUpcoming {
		if sameDate(ev.Start, date) {
			sameDay++
		}
	}
	if sameDay >= maxPerDay {
		return fmt.Errorf("%w: %d events already on %s", ErrQuotaExhausted, sameDay, date.Format("2006-01-02"))
	}
	return nil
}

// EstimateConsumption approximates how many calendar-view instances a
// just-created template will produce within the lookahead window, without
// enumerating occurrences. Used to debit quotas immediately instead of
// re-querying the remote service.
func EstimateConsumption(t *models.EventTemplate, lookaheadDays int) int {
	switch t.Recurrence {
	case models.RecurrenceDaily:
		return lookaheadDays
	case models.RecurrenceWeekly:
		return lookaheadDays/7 + 1
	case models.RecurrenceMonthly:
		return lookaheadDays/30 + 1
	case models.RecurrenceYearly:
		return 1
	default:
		return 1
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
