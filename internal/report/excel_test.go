package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"calseed/internal/events"
)

func TestFlushWritesWorkbook(t *testing.T) {
	w := NewWriter(t.TempDir())

	at := time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC)
	w.Handle(events.Outcome{
		CycleID: "c1", TemplateID: 1, Organizer: "alice@example.com",
		Kind: events.OutcomeCreated, Start: at.Add(-2 * time.Hour), EventID: "ev-1", At: at,
	})
	w.Handle(events.Outcome{
		CycleID: "c1", TemplateID: 2, Organizer: "bob@example.com",
		Kind: events.OutcomeSkipped, Reason: "quota exhausted", At: at,
	})
	// Another cycle's outcome must not leak into this flush.
	w.Handle(events.Outcome{CycleID: "c2", TemplateID: 3, Kind: events.OutcomeFailed, At: at})

	path, err := w.Flush("c1")
	require.NoError(t, err)
	require.NotEmpty(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Outcomes")
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, []string{"Time", "Template ID", "Organizer", "Outcome", "Reason", "Start", "Event ID"}, rows[0])
	assert.Equal(t, "alice@example.com", rows[1][2])
	assert.Equal(t, "created", rows[1][3])
	assert.Equal(t, "skipped", rows[2][3])
	assert.Equal(t, "quota exhausted", rows[2][4])
}

func TestFlushEmptyCycle(t *testing.T) {
	w := NewWriter(t.TempDir())

	path, err := w.Flush("missing")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestFlushForgetsOutcomes(t *testing.T) {
	w := NewWriter(t.TempDir())
	w.Handle(events.Outcome{CycleID: "c1", TemplateID: 1, Kind: events.OutcomeCreated, At: time.Now()})

	path, err := w.Flush("c1")
	require.NoError(t, err)
	assert.NotEmpty(t, path)

	// A second flush of the same cycle has nothing left to write.
	path, err = w.Flush("c1")
	require.NoError(t, err)
	assert.Empty(t, path)
}
