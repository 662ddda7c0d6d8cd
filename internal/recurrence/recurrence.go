package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"calseed/internal/models"
)

var (
	// ErrUnsupportedRecurrence marks a recurrence keyword outside the
	// supported set. Fatal for the template.
	ErrUnsupportedRecurrence = errors.New("unsupported recurrence kind")

	// ErrInvalidRecurrenceDay marks a weekend day or an unrecognized weekday
	// token in a template's weekday list. Fatal for the template.
	ErrInvalidRecurrenceDay = errors.New("invalid recurrence day")
)

// Kind is the normalized repeat pattern of a descriptor.
type Kind string

const (
	KindDaily   Kind = "daily"
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
	KindYearly  Kind = "yearly"
)

// Descriptor is the service-agnostic form of a template's repeat pattern,
// anchored to a concrete start. The interval is always 1; the range is always
// a fixed number of occurrences beginning at the start date.
type Descriptor struct {
	Kind       Kind
	Interval   int
	DaysOfWeek []time.Weekday
	DayOfMonth int
	Month      time.Month
	Count      int
	Start      time.Time
}

// weekdayIndex orders weekdays Monday=0 .. Sunday=6.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// ParseWeekday maps a weekday token to time.Weekday. Saturday and Sunday are
// rejected along with anything unrecognized.
func ParseWeekday(token string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "monday":
		return time.Monday, nil
	case "tuesday":
		return time.Tuesday, nil
	case "wednesday":
		return time.Wednesday, nil
	case "thursday":
		return time.Thursday, nil
	case "friday":
		return time.Friday, nil
	case "saturday", "sunday":
		return 0, fmt.Errorf("%w: %q is a weekend day", ErrInvalidRecurrenceDay, token)
	default:
		return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidRecurrenceDay, token)
	}
}

// ParseWeekdays parses a token list into a deduplicated weekday set ordered
// Monday-first.
func ParseWeekdays(tokens []string) ([]time.Weekday, error) {
	seen := make(map[time.Weekday]bool, len(tokens))
	days := make([]time.Weekday, 0, len(tokens))
	for _, tok := range tokens {
		day, err := ParseWeekday(tok)
		if err != nil {
			return nil, err
		}
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	sort.Slice(days, func(i, j int) bool {
		return weekdayIndex(days[i]) < weekdayIndex(days[j])
	})
	return days, nil
}

// EarliestWeekday returns the weekday with the smallest Monday-first index
// from a token list.
func EarliestWeekday(tokens []string) (time.Weekday, error) {
	days, err := ParseWeekdays(tokens)
	if err != nil {
		return 0, err
	}
	if len(days) == 0 {
		return 0, fmt.Errorf("%w: empty weekday list", ErrInvalidRecurrenceDay)
	}
	return days[0], nil
}

// Expand turns a template's recurrence fields plus a computed start into a
// Descriptor. A template without recurrence yields (nil, nil) regardless of
// its other fields.
func Expand(t *models.EventTemplate, start time.Time) (*Descriptor, error) {
	raw := strings.ToLower(strings.TrimSpace(string(t.Recurrence)))
	if raw == "" {
		return nil, nil
	}

	d := &Descriptor{
		Interval: 1,
		Count:    t.OccurrenceCount,
		Start:    start,
	}

	switch raw {
	case "daily":
		d.Kind = KindDaily
	case "weekly":
		d.Kind = KindWeekly
		days, err := ParseWeekdays(t.WeekdayTokens())
		if err != nil {
			return nil, err
		}
		if len(days) == 0 {
			return nil, fmt.Errorf("%w: weekly recurrence without weekdays", ErrInvalidRecurrenceDay)
		}
		d.DaysOfWeek = days
	case "monthly":
		d.Kind = KindMonthly
		d.DayOfMonth = start.Day()
	case "yearly":
		d.Kind = KindYearly
		d.DayOfMonth = start.Day()
		d.Month = start.Month()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedRecurrence, t.Recurrence)
	}

	return d, nil
}

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// RRule serializes the descriptor as an iCalendar RRULE property for the
// calendar service.
func (d *Descriptor) RRule() (string, error) {
	opt := rrule.ROption{
		Interval: d.Interval,
		Count:    d.Count,
		Dtstart:  d.Start,
	}

	switch d.Kind {
	case KindDaily:
		opt.Freq = rrule.DAILY
	case KindWeekly:
		opt.Freq = rrule.WEEKLY
		for _, day := range d.DaysOfWeek {
			opt.Byweekday = append(opt.Byweekday, rruleWeekdays[day])
		}
	case KindMonthly:
		opt.Freq = rrule.MONTHLY
		opt.Bymonthday = []int{d.DayOfMonth}
	case KindYearly:
		opt.Freq = rrule.YEARLY
		opt.Bymonth = []int{int(d.Month)}
		opt.Bymonthday = []int{d.DayOfMonth}
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedRecurrence, d.Kind)
	}

	if _, err := rrule.NewRRule(opt); err != nil {
		return "", fmt.Errorf("build rrule: %w", err)
	}
	return "RRULE:" + opt.RRuleString(), nil
}
