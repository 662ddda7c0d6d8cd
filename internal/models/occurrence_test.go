package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOccurrenceLifecycle(t *testing.T) {
	tmpl := &EventTemplate{ID: 1, Subject: "Sync", Duration: "0:30"}
	user := &User{ID: "u1", Email: "alice@example.com"}

	occ := NewOccurrence(tmpl, user)
	assert.False(t, occ.Ready())
	assert.True(t, occ.Date().IsZero())

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	occ.SetSlot(start, start.Add(30*time.Minute))
	assert.True(t, occ.Ready())
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), occ.Date())

	occ.Reset()
	assert.False(t, occ.Ready())
	assert.Nil(t, occ.Organizer)
	assert.Nil(t, occ.Start)
	assert.Nil(t, occ.End)

	// Resetting an already-reset occurrence is a no-op.
	occ.Reset()
	assert.False(t, occ.Ready())
}
