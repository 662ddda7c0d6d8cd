package generator

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calseed/internal/events"
	"calseed/internal/models"
	"calseed/internal/quota"
	"calseed/internal/recurrence"
)

type fakeDirectory struct {
	users []models.User
	err   error
}

func (f *fakeDirectory) ListUsers(context.Context) ([]models.User, error) {
	return f.users, f.err
}

type createdCall struct {
	organizer string
	subject   string
	start     time.Time
}

type fakeCalendar struct {
	upcoming map[string][]models.RemoteEvent

	listCalls   int
	created     []createdCall
	attachments []string

	createErr error
	countErr  error
	listErr   error
}

func (f *fakeCalendar) ListUpcoming(_ context.Context, user *models.User, _, _ time.Time) ([]models.RemoteEvent, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.upcoming[user.Email], nil
}

func (f *fakeCalendar) CountUpcoming(_ context.Context, users []models.User, _, _ time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	total := 0
	for _, u := range users {
		total += len(f.upcoming[u.Email])
	}
	return total, nil
}

func (f *fakeCalendar) Create(_ context.Context, occ *models.Occurrence, _ *recurrence.Descriptor) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, createdCall{
		organizer: occ.Organizer.Email,
		subject:   occ.Template.Subject,
		start:     *occ.Start,
	})
	return "ev-1", nil
}

func (f *fakeCalendar) AddAttachment(_ context.Context, _ *models.User, _, filename string, _ []byte) error {
	f.attachments = append(f.attachments, filename)
	return nil
}

type fakeStore struct {
	files map[string][]byte
}

func (f *fakeStore) ReadBytes(name string) ([]byte, error) {
	data, ok := f.files[name]
	if !ok {
		return nil, errors.New("no such attachment")
	}
	return data, nil
}

type fixedSlotter struct {
	start time.Time
	end   time.Time
	err   error
}

func (f *fixedSlotter) Schedule(context.Context, *models.EventTemplate, *models.User) (time.Time, time.Time, error) {
	return f.start, f.end, f.err
}

var testDay = time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC) // a Tuesday

func newTestOrchestrator(
	templates []models.EventTemplate,
	dir *fakeDirectory,
	cal *fakeCalendar,
	store *fakeStore,
) (*Orchestrator, *[]events.Outcome) {
	if store == nil {
		store = &fakeStore{}
	}
	slotter := &fixedSlotter{
		start: testDay.Add(10 * time.Hour),
		end:   testDay.Add(10*time.Hour + 30*time.Minute),
	}
	bus := events.NewBus()
	outcomes := &[]events.Outcome{}
	bus.Subscribe(func(o events.Outcome) { *outcomes = append(*outcomes, o) })

	orch := New(
		Config{LookaheadDays: 10, Caps: quota.Caps{Organization: 5, PerUser: 3, PerDay: 2}},
		templates,
		dir,
		cal,
		store,
		slotter,
		rand.New(rand.NewSource(1)),
		bus,
		zerolog.Nop(),
	)
	orch.Now = func() time.Time { return testDay.Add(8 * time.Hour) }
	return orch, outcomes
}

func TestRunCycleCreatesEvent(t *testing.T) {
	templates := []models.EventTemplate{{ID: 1, Subject: "Sync", Duration: "0:30"}}
	dir := &fakeDirectory{users: []models.User{{ID: "u1", Email: "alice@example.com"}}}
	cal := &fakeCalendar{upcoming: map[string][]models.RemoteEvent{}}

	orch, outcomes := newTestOrchestrator(templates, dir, cal, nil)
	res, err := orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.UsersSampled)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 4, res.OrgRemaining)

	require.Len(t, cal.created, 1)
	assert.Equal(t, "alice@example.com", cal.created[0].organizer)
	assert.Equal(t, "Sync", cal.created[0].subject)

	require.Len(t, *outcomes, 1)
	assert.Equal(t, events.OutcomeCreated, (*outcomes)[0].Kind)
	assert.Equal(t, "ev-1", (*outcomes)[0].EventID)
	assert.NotEmpty(t, (*outcomes)[0].CycleID)
}

func TestRunCycleSkipsWhenEstimateExceedsQuota(t *testing.T) {
	// A daily template is estimated to consume the whole lookahead window,
	// far over the remaining quota, so the cycle creates nothing.
	templates := []models.EventTemplate{{
		ID: 1, Subject: "Standup", Duration: "0:15",
		Recurrence: models.RecurrenceDaily, OccurrenceCount: 20,
	}}
	dir := &fakeDirectory{users: []models.User{{ID: "u1", Email: "alice@example.com"}}}
	cal := &fakeCalendar{upcoming: map[string][]models.RemoteEvent{
		"alice@example.com": {
			{ID: "a", Start: testDay.AddDate(0, 0, 1).Add(9 * time.Hour)},
			{ID: "b", Start: testDay.AddDate(0, 0, 2).Add(9 * time.Hour)},
		},
	}}

	orch, outcomes := newTestOrchestrator(templates, dir, cal, nil)
	res, err := orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Skipped)
	assert.Empty(t, cal.created)

	require.Len(t, *outcomes, 1)
	assert.Equal(t, events.OutcomeSkipped, (*outcomes)[0].Kind)
	assert.Contains(t, (*outcomes)[0].Reason, "quota exhausted")
}

func TestRunCycleStopsWhenOrgQuotaExhausted(t *testing.T) {
	templates := []models.EventTemplate{{ID: 1, Subject: "Sync", Duration: "0:30"}}
	dir := &fakeDirectory{users: []models.User{{ID: "u1", Email: "alice@example.com"}}}
	cal := &fakeCalendar{upcoming: map[string][]models.RemoteEvent{
		"alice@example.com": {
			{ID: "a", Start: testDay.Add(9 * time.Hour)},
			{ID: "b", Start: testDay.AddDate(0, 0, 1).Add(9 * time.Hour)},
			{ID: "c", Start: testDay.AddDate(0, 0, 2).Add(9 * time.Hour)},
			{ID: "d", Start: testDay.AddDate(0, 0, 3).Add(9 * time.Hour)},
			{ID: "e", Start: testDay.AddDate(0, 0, 4).Add(9 * time.Hour)},
		},
	}}

	orch, _ := newTestOrchestrator(templates, dir, cal, nil)
	res, err := orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.UsersSampled)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 0, cal.listCalls)
}

func TestRunCycleSkipsUserAtPerUserQuota(t *testing.T) {
	templates := []models.EventTemplate{{ID: 1, Subject: "Sync", Duration: "0:30"}}
	dir := &fakeDirectory{users: []models.User{{ID: "u1", Email: "alice@example.com"}}}
	// Three upcoming events for a per-user cap of three, on distinct days so
	// the count stays under the organization cap.
	cal := &fakeCalendar{upcoming: map[string][]models.RemoteEvent{
		"alice@example.com": {
			{ID: "a", Start: testDay.AddDate(0, 0, 1).Add(9 * time.Hour)},
			{ID: "b", Start: testDay.AddDate(0, 0, 2).Add(9 * time.Hour)},
			{ID: "c", Start: testDay.AddDate(0, 0, 3).Add(9 * time.Hour)},
		},
	}}

	orch, outcomes := newTestOrchestrator(templates, dir, cal, nil)
	res, err := orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Created)
	assert.Empty(t, *outcomes)
}

func TestRunCycleEnforcesPerDayCap(t *testing.T) {
	// The fixed slotter always lands on testDay, which already holds two
	// events, the per-day cap.
	templates := []models.EventTemplate{{ID: 1, Subject: "Sync", Duration: "0:30"}}
	dir := &fakeDirectory{users: []models.User{{ID: "u1", Email: "alice@example.com"}}}
	cal := &fakeCalendar{upcoming: map[string][]models.RemoteEvent{
		"alice@example.com": {
			{ID: "a", Start: testDay.Add(8 * time.Hour)},
			{ID: "b", Start: testDay.Add(13 * time.Hour)},
		},
	}}

	orch, outcomes := newTestOrchestrator(templates, dir, cal, nil)
	res, err := orch.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, *outcomes, 1)
	assert.Equal(t, events.OutcomeSkipped, (*outcomes)[0].Kind)
	assert.Contains(t, (*outcomes)[0].Reason, "quota exhausted")
}

func TestRunCyclePoisonsBrokenTemplate(t *testing.T) {
	// Missing subject fails validation; the template stays disabled for every
	// later cycle of the same process.
	templates := []models.EventTemplate{{ID: 1, Duration: "0:30"}}
	dir := &fakeDirectory{users: []models.User{{ID: "u1", Email: "alice@example.com"}}}
	cal := &fakeCalendar{upcoming: map[string][]models.RemoteEvent{}}

	orch, outcomes := newTestOrchestrator(templates, dir, cal, nil)

	res, err := orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, *outcomes, 1)
	assert.Equal(t, events.OutcomeFailed, (*outcomes)[0].Kind)

	res, err = orch.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, *outcomes, 2)
	assert.Equal(t, events.OutcomeSkipped, (*outcomes)[1].Kind)
	assert.Contains(t, (*outcomes)[1].Reason, "subject is required")

	assert.Empty(t, cal.created)
}

func TestRunCycleAbortsOnCreateError(t *testing.T) {
	templates := []models.EventTemplate{{ID: 1, Subject: "Sync", Duration: "0:30"}}
	dir := &fakeDirectory{users: []models.User{{ID: "u1", Email: "alice@example.com"}}}
	cal := &fakeCalendar{
		upcoming:  map[string][]models.RemoteEvent{},
		createErr: errors.New("backend unavailable"),
	}

	orch, outcomes := newTestOrchestrator(templates, dir, cal, nil)
	res, err := orch.RunCycle(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, res.Failed)
	require.Len(t, *outcomes, 1)
	assert.Equal(t, events.OutcomeFailed, (*outcomes)[0].Kind)
}

func TestRunCycleFailsOnEmptyDirectory(t *testing.T) {
	orch, _ := newTestOrchestrator(
		[]models.EventTemplate{{ID: 1, Subject: "Sync", Duration: "0:30"}},
		&fakeDirectory{},
		&fakeCalendar{upcoming: map[string][]models.RemoteEvent{}},
		nil,
	)
	_, err := orch.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no users")
}

func TestRunCycleFailsOnDirectoryError(t *testing.T) {
	orch, _ := newTestOrchestrator(
		[]models.EventTemplate{{ID: 1, Subject: "Sync", Duration: "0:30"}},
		&fakeDirectory{err: errors.New("directory unreachable")},
		&fakeCalendar{upcoming: map[string][]models.RemoteEvent{}},
		nil,
	)
	_, err := orch.RunCycle(context.Background())
	require.Error(t, err)
}

func TestRunCycleUploadsAttachments(t *testing.T) {
	templates := []models.EventTemplate{{
		ID: 1, Subject: "Workshop", Duration: "1:00", Attachments: "roadmap.pdf,missing.txt",
	}}
	dir := &fakeDirectory{users: []models.User{{ID: "u1", Email: "alice@example.com"}}}
	cal := &fakeCalendar{upcoming: map[string][]models.RemoteEvent{}}
	store := &fakeStore{files: map[string][]byte{"roadmap.pdf": []byte("pdf-bytes")}}

	orch, _ := newTestOrchestrator(templates, dir, cal, store)
	res, err := orch.RunCycle(context.Background())
	require.NoError(t, err)

	// The missing attachment is logged and skipped; the event still stands.
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, []string{"roadmap.pdf"}, cal.attachments)
}
