package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Recurrence names a template's repeat pattern.
type Recurrence string

const (
	RecurrenceNone    Recurrence = ""
	RecurrenceDaily   Recurrence = "daily"
	RecurrenceWeekly  Recurrence = "weekly"
	RecurrenceMonthly Recurrence = "monthly"
	RecurrenceYearly  Recurrence = "yearly"
)

// IsRecurring reports whether the template repeats at all.
func (r Recurrence) IsRecurring() bool {
	return strings.TrimSpace(string(r)) != ""
}

// Importance mirrors the calendar service's importance levels.
type Importance string

const (
	ImportanceUnset  Importance = ""
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
)

// ParseImportance maps free text to an importance level.
// Unrecognized values map to unset rather than erroring.
func ParseImportance(s string) Importance {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ImportanceLow
	case "normal":
		return ImportanceNormal
	case "high":
		return ImportanceHigh
	default:
		return ImportanceUnset
	}
}

// ShowAs mirrors the free/busy status attached to an event.
type ShowAs string

const (
	ShowAsUnset     ShowAs = ""
	ShowAsFree      ShowAs = "free"
	ShowAsTentative ShowAs = "tentative"
	ShowAsBusy      ShowAs = "busy"
	ShowAsOof       ShowAs = "oof"
)

// ParseShowAs maps free text to a free/busy status.
// Unrecognized values map to unset rather than erroring.
func ParseShowAs(s string) ShowAs {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return ShowAsFree
	case "tentative":
		return ShowAsTentative
	case "busy":
		return ShowAsBusy
	case "oof":
		return ShowAsOof
	default:
		return ShowAsUnset
	}
}

// EventTemplate is a reusable event definition, loaded once at startup and
// read-only for the lifetime of the process.
type EventTemplate struct {
	ID              int64      `yaml:"id"`
	Subject         string     `yaml:"subject"`
	Content         string     `yaml:"content"`
	IsAllDay        bool       `yaml:"all_day"`
	Duration        string     `yaml:"duration"` // "H:MM", required unless all-day
	ReminderMinutes int        `yaml:"reminder_minutes"`
	Recurrence      Recurrence `yaml:"recurrence"`
	DaysOfWeek      string     `yaml:"days_of_week"` // comma-delimited weekday names
	OccurrenceCount int        `yaml:"occurrence_count"`
	Importance      string     `yaml:"importance"`
	ShowAs          string     `yaml:"show_as"`
	Attachments     string     `yaml:"attachments"` // comma-delimited filenames
}

// DurationValue parses the template duration ("H:MM") into a time.Duration.
func (t *EventTemplate) DurationValue() (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(t.Duration), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid duration format: %q", t.Duration)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil || hours < 0 {
		return 0, fmt.Errorf("invalid duration hours: %q", t.Duration)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid duration minutes: %q", t.Duration)
	}
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive: %q", t.Duration)
	}
	return d, nil
}

// AttachmentNames returns the attachment list parsed from its stored
// comma-delimited form, preserving order.
func (t *EventTemplate) AttachmentNames() []string {
	if strings.TrimSpace(t.Attachments) == "" {
		return nil
	}
	raw := strings.Split(t.Attachments, ",")
	names := make([]string, 0, len(raw))
	for _, name := range raw {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// WeekdayTokens returns the declared weekday list parsed from its stored
// comma-delimited form. Tokens are lowercased but not validated here.
func (t *EventTemplate) WeekdayTokens() []string {
	if strings.TrimSpace(t.DaysOfWeek) == "" {
		return nil
	}
	raw := strings.Split(t.DaysOfWeek, ",")
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if tok = strings.ToLower(strings.TrimSpace(tok)); tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Validate checks the structural requirements that do not depend on a
// computed start time.
func (t *EventTemplate) Validate() error {
	if t.Subject == "" {
		return fmt.Errorf("template %d: subject is required", t.ID)
	}
	if !t.IsAllDay {
		if _, err := t.DurationValue(); err != nil {
			return fmt.Errorf("template %d: %w", t.ID, err)
		}
	}
	if t.ReminderMinutes < 0 {
		return fmt.Errorf("template %d: reminder_minutes must not be negative", t.ID)
	}
	if t.Recurrence.IsRecurring() {
		if t.OccurrenceCount <= 0 {
			return fmt.Errorf("template %d: occurrence_count is required for recurring templates", t.ID)
		}
		if t.Recurrence != RecurrenceDaily && len(t.WeekdayTokens()) == 0 {
			return fmt.Errorf("template %d: days_of_week is required for %s recurrence", t.ID, t.Recurrence)
		}
	}
	return nil
}
