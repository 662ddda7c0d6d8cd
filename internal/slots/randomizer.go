package slots

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"calseed/internal/models"
	"calseed/internal/recurrence"
)

// Business hours within which timed occurrences must fit.
const (
	BusinessStartHour = 7
	BusinessEndHour   = 18
)

// minuteOffsets are the quarter-hour marks a start time may fall on.
var minuteOffsets = [4]int{0, 15, 30, 45}

var (
	// ErrNoValidDay means day selection exhausted its retry budget without
	// landing on a weekday.
	ErrNoValidDay = errors.New("no valid day found")

	// ErrNoValidSlot means the whole slot computation failed; the occurrence
	// is not creatable this cycle.
	ErrNoValidSlot = errors.New("no valid slot found")

	// ErrInvalidDuration marks an unparsable template duration. Fatal for the
	// template.
	ErrInvalidDuration = errors.New("invalid duration")
)

// RetryPolicy bounds the weekend-avoiding resampling during day selection.
type RetryPolicy struct {
	MaxAttempts int
}

// DefaultRetryPolicy mirrors the historical ten-draw budget.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 10}
}

// Config holds the scheduling window parameters.
type Config struct {
	LookaheadDays int
	DayRetry      RetryPolicy
}

// ConflictChecker decides whether a candidate slot collides with the
// organizer's existing calendar. The default implementation accepts
// everything; conflict-aware scheduling is deliberately not implemented.
type ConflictChecker interface {
	HasConflict(ctx context.Context, organizer *models.User, start, end time.Time) (bool, error)
}

// NoConflicts is the accepting ConflictChecker stub.
type NoConflicts struct{}

func (NoConflicts) HasConflict(context.Context, *models.User, time.Time, time.Time) (bool, error) {
	return false, nil
}

// Randomizer computes randomized start/end instants for template occurrences
// under business-hour and weekday constraints.
type Randomizer struct {
	cfg     Config
	rng     *rand.Rand
	checker ConflictChecker

	// Now is the clock used for "today"; overridable in tests.
	Now func() time.Time
}

// New creates a Randomizer. A nil checker accepts every slot.
func New(cfg Config, rng *rand.Rand, checker ConflictChecker) *Randomizer {
	if cfg.DayRetry.MaxAttempts <= 0 {
		cfg.DayRetry = DefaultRetryPolicy()
	}
	if checker == nil {
		checker = NoConflicts{}
	}
	return &Randomizer{cfg: cfg, rng: rng, checker: checker, Now: time.Now}
}

// Schedule produces one valid (start, end) pair for the template on behalf of
// the organizer, or fails. A failed computation must not be retried within
// the same cycle.
func (r *Randomizer) Schedule(ctx context.Context, t *models.EventTemplate, organizer *models.User) (time.Time, time.Time, error) {
	day, err := r.pickDay(t)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %w", ErrNoValidSlot, err)
	}

	start, end, err := r.pickTime(t, day)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	conflict, err := r.checker.HasConflict(ctx, organizer, start, end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("check conflict: %w", err)
	}
	if conflict {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: slot conflicts with existing event", ErrNoValidSlot)
	}

	return start, end, nil
}

// pickDay selects the calendar date for the occurrence. Templates with a
// declared weekday list anchor on the earliest weekday in the set; daily
// templates anchor on today; everything else draws uniformly from the
// lookahead window, resampling around weekends within the retry budget.
func (r *Randomizer) pickDay(t *models.EventTemplate) (time.Time, error) {
	today := dateOf(r.Now())

	if t.Recurrence == models.RecurrenceDaily {
		return today, nil
	}

	if tokens := t.WeekdayTokens(); len(tokens) > 0 {
		anchor, err := recurrence.EarliestWeekday(tokens)
		if err != nil {
			return time.Time{}, err
		}
		return nextWeekday(today, anchor), nil
	}

	for attempt := 0; attempt < r.cfg.DayRetry.MaxAttempts; attempt++ {
		day := today.AddDate(0, 0, r.rng.Intn(r.cfg.LookaheadDays+1))
		if !isWeekend(day) {
			return day, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %d draws landed on a weekend", ErrNoValidDay, r.cfg.DayRetry.MaxAttempts)
}

// pickTime selects the start/end instants on the chosen day. All-day events
// are fixed at midnight-to-midnight; timed events start on a quarter-hour
// mark and end no later than 18:00.
func (r *Randomizer) pickTime(t *models.EventTemplate, day time.Time) (time.Time, time.Time, error) {
	if t.IsAllDay {
		start := day
		return start, start.AddDate(0, 0, 1), nil
	}

	dur, err := t.DurationValue()
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("template %d: %w: %v", t.ID, ErrInvalidDuration, err)
	}

	durHours := int(math.Ceil(dur.Hours()))
	if durHours < 1 {
		durHours = 1
	}
	maxStartHour := BusinessEndHour - durHours
	if maxStartHour <= BusinessStartHour {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: template %d duration %s does not fit business hours", ErrNoValidSlot, t.ID, t.Duration)
	}

	hour := BusinessStartHour + r.rng.Intn(maxStartHour-BusinessStartHour)
	minute := minuteOffsets[r.rng.Intn(len(minuteOffsets))]

	start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
	return start, start.Add(dur), nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// nextWeekday returns the first date on or after from that falls on the
// given weekday.
func nextWeekday(from time.Time, day time.Weekday) time.Time {
	offset := (int(day) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, offset)
}
