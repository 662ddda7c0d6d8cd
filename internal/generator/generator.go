package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"calseed/internal/events"
	"calseed/internal/models"
	"calseed/internal/quota"
	"calseed/internal/recurrence"
	"calseed/internal/slots"
)

// Config holds the per-cycle generation parameters.
type Config struct {
	LookaheadDays int
	Caps          quota.Caps
}

// CycleResult summarizes one generation cycle.
type CycleResult struct {
	CycleID      string
	UsersSampled int
	Created      int
	Failed       int
	Skipped      int
	OrgRemaining int
}

// Orchestrator runs the per-cycle generation algorithm: it samples users and
// templates, drives slot and recurrence computation, enforces the three
// quotas, and records an outcome per assignment attempt.
type Orchestrator struct {
	cfg         Config
	templates   []models.EventTemplate
	directory   DirectoryService
	calendar    CalendarService
	attachments AttachmentStore
	slotter     Slotter
	rng         *rand.Rand
	bus         *events.Bus
	logger      zerolog.Logger

	// poisoned holds templates that failed validation; they would fail
	// identically on every later attempt, so they are skipped for the
	// remainder of the process.
	poisoned map[int64]string

	// Now is the clock used for the lookahead window; overridable in tests.
	Now func() time.Time
}

// New creates an Orchestrator over a fixed template set.
func New(
	cfg Config,
	templates []models.EventTemplate,
	directory DirectoryService,
	calendar CalendarService,
	attachments AttachmentStore,
	slotter Slotter,
	rng *rand.Rand,
	bus *events.Bus,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		templates:   templates,
		directory:   directory,
		calendar:    calendar,
		attachments: attachments,
		slotter:     slotter,
		rng:         rng,
		bus:         bus,
		logger:      logger,
		poisoned:    make(map[int64]string),
		Now:         time.Now,
	}
}

// RunCycle executes one generation cycle. Quotas are recomputed from the
// remote service before any assignment; failed templates are never retried
// within the same cycle. A collaborator failure aborts the cycle early; the
// caller decides whether to run another one.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{CycleID: uuid.NewString()}

	users, err := o.directory.ListUsers(ctx)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}
	if len(users) == 0 {
		return res, errors.New("directory returned no users")
	}

	from, to := o.window()
	orgUpcoming, err := o.calendar.CountUpcoming(ctx, users, from, to)
	if err != nil {
		return res, fmt.Errorf("count upcoming events: %w", err)
	}

	tracker := quota.NewTracker(o.cfg.Caps, orgUpcoming)
	o.logger.Info().
		Str("cycle_id", res.CycleID).
		Int("users", len(users)).
		Int("org_upcoming", orgUpcoming).
		Int("org_remaining", tracker.AllowedForOrg()).
		Msg("cycle started")

	if tracker.AllowedForOrg() <= 0 {
		o.logger.Info().Str("cycle_id", res.CycleID).Msg("organization quota exhausted, nothing to do")
		return res, nil
	}

	sampled := o.sampleUsers(users)
	res.UsersSampled = len(sampled)

	for i := range sampled {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		user := &sampled[i]
		upcoming, err := o.calendar.ListUpcoming(ctx, user, from, to)
		if err != nil {
			return res, fmt.Errorf("list upcoming for %s: %w", user.Email, err)
		}

		possible := o.cfg.Caps.PerUser - len(upcoming)
		if possible <= 0 {
			o.logger.Debug().Str("user", user.Email).Int("upcoming", len(upcoming)).Msg("per-user quota full, skipping user")
			continue
		}

		limit := tracker.AllowedForUser(len(upcoming))
		if limit <= 0 {
			o.logger.Info().Str("cycle_id", res.CycleID).Msg("organization quota exhausted, stopping cycle")
			break
		}

		if err := o.generateForUser(ctx, res.CycleID, user, upcoming, tracker, limit, &res); err != nil {
			return res, err
		}

		if tracker.AllowedForOrg() <= 0 {
			o.logger.Info().Str("cycle_id", res.CycleID).Msg("organization quota exhausted, stopping cycle")
			break
		}
	}

	res.OrgRemaining = tracker.AllowedForOrg()
	o.logger.Info().
		Str("cycle_id", res.CycleID).
		Int("created", res.Created).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Int("org_remaining", res.OrgRemaining).
		Msg("cycle finished")
	return res, nil
}

// sampleUsers draws a uniformly random non-empty subset: first its size, then
// its members, with no weighting.
func (o *Orchestrator) sampleUsers(users []models.User) []models.User {
	k := 1 + o.rng.Intn(len(users))
	perm := o.rng.Perm(len(users))
	subset := make([]models.User, 0, k)
	for _, idx := range perm[:k] {
		subset = append(subset, users[idx])
	}
	return subset
}

// generateForUser attempts a randomized template selection for one user.
// remaining starts at min(per-user headroom, org headroom) and is debited by
// the estimated consumption of every successful creation.
func (o *Orchestrator) generateForUser(
	ctx context.Context,
	cycleID string,
	user *models.User,
	upcoming []models.RemoteEvent,
	tracker *quota.Tracker,
	limit int,
	res *CycleResult,
) error {
	toCreate := 1 + o.rng.Intn(limit)
	if toCreate > len(o.templates) {
		toCreate = len(o.templates)
	}

	remaining := limit
	order := o.rng.Perm(len(o.templates))

	for _, idx := range order[:toCreate] {
		if tracker.AllowedForOrg() <= 0 {
			break
		}

		tmpl := &o.templates[idx]
		if reason, bad := o.poisoned[tmpl.ID]; bad {
			o.publish(cycleID, tmpl.ID, user, events.OutcomeSkipped, reason, time.Time{}, "")
			res.Skipped++
			continue
		}

		est := quota.EstimateConsumption(tmpl, o.cfg.LookaheadDays)
		if est > remaining || est > tracker.AllowedForOrg() {
			o.publish(cycleID, tmpl.ID, user, events.OutcomeSkipped,
				fmt.Sprintf("%v: estimated consumption %d exceeds remaining quota %d", quota.ErrQuotaExhausted, est, remaining),
				time.Time{}, "")
			res.Skipped++
			continue
		}

		created, err := o.attempt(ctx, cycleID, tmpl, user, &upcoming, res)
		if err != nil {
			return err
		}
		if created {
			tracker.Debit(est)
			remaining -= est
		}
	}
	return nil
}

// attempt materializes one occurrence for (template, user) and submits it.
// Validation and scheduling failures are recorded and skipped; only
// collaborator failures propagate and abort the cycle.
func (o *Orchestrator) attempt(
	ctx context.Context,
	cycleID string,
	tmpl *models.EventTemplate,
	user *models.User,
	upcoming *[]models.RemoteEvent,
	res *CycleResult,
) (bool, error) {
	if err := tmpl.Validate(); err != nil {
		o.poison(tmpl.ID, err)
		o.publish(cycleID, tmpl.ID, user, events.OutcomeFailed, err.Error(), time.Time{}, "")
		res.Failed++
		return false, nil
	}

	occ := models.NewOccurrence(tmpl, user)
	defer occ.Reset()

	start, end, err := o.slotter.Schedule(ctx, tmpl, user)
	if err != nil {
		if isTemplateFatal(err) {
			o.poison(tmpl.ID, err)
		}
		o.publish(cycleID, tmpl.ID, user, events.OutcomeFailed, err.Error(), time.Time{}, "")
		res.Failed++
		return false, nil
	}
	occ.SetSlot(start, end)

	desc, err := recurrence.Expand(tmpl, start)
	if err != nil {
		o.poison(tmpl.ID, err)
		o.publish(cycleID, tmpl.ID, user, events.OutcomeFailed, err.Error(), time.Time{}, "")
		res.Failed++
		return false, nil
	}

	if err := quota.ValidateCandidate(occ, *upcoming, o.cfg.Caps.PerDay); err != nil {
		o.publish(cycleID, tmpl.ID, user, events.OutcomeSkipped, err.Error(), start, "")
		res.Skipped++
		return false, nil
	}

	eventID, err := o.calendar.Create(ctx, occ, desc)
	if err != nil {
		o.publish(cycleID, tmpl.ID, user, events.OutcomeFailed, err.Error(), start, "")
		res.Failed++
		return false, fmt.Errorf("create event for %s: %w", user.Email, err)
	}

	o.addAttachments(ctx, tmpl, user, eventID)

	*upcoming = append(*upcoming, models.RemoteEvent{ID: eventID, Start: start, End: end})
	o.publish(cycleID, tmpl.ID, user, events.OutcomeCreated, "", start, eventID)
	res.Created++
	return true, nil
}

// addAttachments uploads the template's attachments to the created event.
// Attachment failures are reported but do not undo the created event.
func (o *Orchestrator) addAttachments(ctx context.Context, tmpl *models.EventTemplate, user *models.User, eventID string) {
	for _, name := range tmpl.AttachmentNames() {
		data, err := o.attachments.ReadBytes(name)
		if err != nil {
			o.logger.Warn().Err(err).Int64("template_id", tmpl.ID).Str("attachment", name).Msg("attachment read failed")
			continue
		}
		if err := o.calendar.AddAttachment(ctx, user, eventID, name, data); err != nil {
			o.logger.Warn().Err(err).Int64("template_id", tmpl.ID).Str("attachment", name).Msg("attachment upload failed")
		}
	}
}

func (o *Orchestrator) poison(templateID int64, err error) {
	o.poisoned[templateID] = err.Error()
	o.logger.Warn().Int64("template_id", templateID).Err(err).Msg("template disabled for the remainder of the process")
}

func (o *Orchestrator) publish(cycleID string, templateID int64, user *models.User, kind events.OutcomeKind, reason string, start time.Time, eventID string) {
	o.bus.Publish(events.Outcome{
		CycleID:    cycleID,
		TemplateID: templateID,
		Organizer:  user.Email,
		Kind:       kind,
		Reason:     reason,
		Start:      start,
		EventID:    eventID,
	})
}

// window returns the lookahead date range [today, today+lookahead+1) used for
// upcoming counts and scheduling.
func (o *Orchestrator) window() (time.Time, time.Time) {
	now := o.Now()
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 0, o.cfg.LookaheadDays+1)
}

// isTemplateFatal reports whether a scheduling error is a data-integrity
// problem that will fail identically on every later attempt.
func isTemplateFatal(err error) bool {
	return errors.Is(err, slots.ErrInvalidDuration) ||
		errors.Is(err, recurrence.ErrInvalidRecurrenceDay) ||
		errors.Is(err, recurrence.ErrUnsupportedRecurrence)
}
