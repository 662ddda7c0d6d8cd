package gcal

import (
	"fmt"
	"strconv"
	"time"

	"google.golang.org/api/calendar/v3"

	"calseed/internal/models"
	"calseed/internal/recurrence"
)

// generatorMarker tags created events so cleanup can tell them apart from
// organic calendar content.
const generatorMarker = "calseed"

// buildEvent maps an occurrence plus its recurrence descriptor into the wire
// shape the calendar service expects.
func buildEvent(occ *models.Occurrence, desc *recurrence.Descriptor) (*calendar.Event, error) {
	t := occ.Template

	ev := &calendar.Event{
		Summary:     t.Subject,
		Description: t.Content,
	}

	if t.IsAllDay {
		ev.Start = &calendar.EventDateTime{Date: occ.Start.Format("2006-01-02")}
		ev.End = &calendar.EventDateTime{Date: occ.End.Format("2006-01-02")}
	} else {
		ev.Start = &calendar.EventDateTime{
			DateTime: occ.Start.Format(time.RFC3339),
			TimeZone: occ.Start.Location().String(),
		}
		ev.End = &calendar.EventDateTime{
			DateTime: occ.End.Format(time.RFC3339),
			TimeZone: occ.End.Location().String(),
		}
	}

	if desc != nil {
		rr, err := desc.RRule()
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", t.ID, err)
		}
		ev.Recurrence = []string{rr}
	}

	if t.ReminderMinutes > 0 {
		ev.Reminders = &calendar.EventReminders{
			UseDefault: false,
			Overrides: []*calendar.EventReminder{
				{Method: "popup", Minutes: int64(t.ReminderMinutes)},
			},
			ForceSendFields: []string{"UseDefault"},
		}
	}

	switch models.ParseShowAs(t.ShowAs) {
	case models.ShowAsFree:
		ev.Transparency = "transparent"
	case models.ShowAsBusy, models.ShowAsOof, models.ShowAsTentative:
		ev.Transparency = "opaque"
	}

	private := map[string]string{
		"generator":   generatorMarker,
		"template_id": strconv.FormatInt(t.ID, 10),
	}
	if imp := models.ParseImportance(t.Importance); imp != models.ImportanceUnset {
		private["importance"] = string(imp)
	}
	if sa := models.ParseShowAs(t.ShowAs); sa != models.ShowAsUnset {
		private["show_as"] = string(sa)
	}
	ev.ExtendedProperties = &calendar.EventExtendedProperties{Private: private}

	return ev, nil
}
