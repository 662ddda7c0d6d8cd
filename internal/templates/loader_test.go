package templates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calseed/internal/models"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeCatalog(t, `
templates:
  - id: 1
    subject: Weekly sync
    duration: "0:30"
    recurrence: weekly
    days_of_week: monday
    occurrence_count: 4
  - id: 2
    subject: Offsite
    all_day: true
    show_as: oof
`)

	tmpls, err := Load(path)
	require.NoError(t, err)
	require.Len(t, tmpls, 2)

	assert.Equal(t, int64(1), tmpls[0].ID)
	assert.Equal(t, "Weekly sync", tmpls[0].Subject)
	assert.Equal(t, models.RecurrenceWeekly, tmpls[0].Recurrence)
	assert.Equal(t, []string{"monday"}, tmpls[0].WeekdayTokens())

	assert.True(t, tmpls[1].IsAllDay)
	assert.Equal(t, "oof", tmpls[1].ShowAs)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("SYNC_SUBJECT", "Team sync")
	path := writeCatalog(t, `
templates:
  - id: 1
    subject: ${SYNC_SUBJECT}
    duration: "0:30"
`)

	tmpls, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Team sync", tmpls[0].Subject)
}

func TestLoadEmptyCatalog(t *testing.T) {
	path := writeCatalog(t, "templates: []\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no templates")
}

func TestLoadDuplicateID(t *testing.T) {
	path := writeCatalog(t, `
templates:
  - id: 7
    subject: First
    duration: "0:30"
  - id: 7
    subject: Second
    duration: "1:00"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate template id 7")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
