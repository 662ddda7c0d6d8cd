package gcal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"calseed/internal/models"
	"calseed/internal/recurrence"
)

const (
	listPageSize = 250

	// countConcurrency bounds the parallel per-user lookups behind
	// CountUpcoming.
	countConcurrency = 8
)

// Client talks to Google Calendar (and Drive, for attachments) on behalf of
// individual users through domain-wide delegation. Every call passes a shared
// rate limiter.
type Client struct {
	creds   []byte
	limiter *rate.Limiter

	mu        sync.Mutex
	calSvcs   map[string]*calendar.Service
	driveSvcs map[string]*drive.Service
}

// NewClient reads the service-account credentials and configures the shared
// request rate limit.
func NewClient(credentialsFile string, requestsPerSec float64, burst int) (*Client, error) {
	creds, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return &Client{
		creds:     creds,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSec), burst),
		calSvcs:   make(map[string]*calendar.Service),
		driveSvcs: make(map[string]*drive.Service),
	}, nil
}

// ListUpcoming returns the user's calendar-view instances within [from, to),
// paginating transparently. Recurring series are expanded server-side into
// single instances.
func (c *Client) ListUpcoming(ctx context.Context, user *models.User, from, to time.Time) ([]models.RemoteEvent, error) {
	svc, err := c.calendarFor(ctx, user.Email)
	if err != nil {
		return nil, err
	}

	var out []models.RemoteEvent
	pageToken := ""
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		call := svc.Events.List("primary").
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			MaxResults(listPageSize)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list events for %s: %w", user.Email, err)
		}

		for _, ev := range resp.Items {
			if ev.Status == "cancelled" {
				continue
			}
			start, err := parseEventTime(ev.Start)
			if err != nil {
				continue
			}
			end, err := parseEventTime(ev.End)
			if err != nil {
				end = start
			}
			out = append(out, models.RemoteEvent{ID: ev.Id, Start: start, End: end})
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return out, nil
}

// CountUpcoming sums the upcoming-event counts of all users. Lookups run
// concurrently but the counts are folded only after every lookup finished,
// so no quota decision sees a partial result.
func (c *Client) CountUpcoming(ctx context.Context, users []models.User, from, to time.Time) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)

	counts := make([]int, len(users))
	for i := range users {
		g.Go(func() error {
			evs, err := c.ListUpcoming(gctx, &users[i], from, to)
			if err != nil {
				return err
			}
			counts[i] = len(evs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// Create persists the occurrence in the organizer's primary calendar and
// returns the created event id.
func (c *Client) Create(ctx context.Context, occ *models.Occurrence, desc *recurrence.Descriptor) (string, error) {
	if !occ.Ready() {
		return "", fmt.Errorf("occurrence for template %d is not fully assigned", occ.Template.ID)
	}

	svc, err := c.calendarFor(ctx, occ.Organizer.Email)
	if err != nil {
		return "", err
	}

	ev, err := buildEvent(occ, desc)
	if err != nil {
		return "", err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	created, err := svc.Events.Insert("primary", ev).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("insert event for %s: %w", occ.Organizer.Email, err)
	}
	return created.Id, nil
}

// Delete removes an event from the user's primary calendar.
func (c *Client) Delete(ctx context.Context, user *models.User, eventID string) error {
	svc, err := c.calendarFor(ctx, user.Email)
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := svc.Events.Delete("primary", eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete event %s for %s: %w", eventID, user.Email, err)
	}
	return nil
}

// AddAttachment uploads the file to the user's Drive and attaches it to the
// event. Calendar attachments reference Drive files; there is no direct
// byte upload.
func (c *Client) AddAttachment(ctx context.Context, user *models.User, eventID, filename string, data []byte) error {
	dsvc, err := c.driveFor(ctx, user.Email)
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	file, err := dsvc.Files.Create(&drive.File{Name: filename}).
		Media(bytes.NewReader(data)).
		Fields("id, webViewLink, mimeType").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("upload attachment %s: %w", filename, err)
	}

	svc, err := c.calendarFor(ctx, user.Email)
	if err != nil {
		return err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	ev, err := svc.Events.Get("primary", eventID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get event %s: %w", eventID, err)
	}

	ev.Attachments = append(ev.Attachments, &calendar.EventAttachment{
		FileId:   file.Id,
		FileUrl:  file.WebViewLink,
		MimeType: file.MimeType,
		Title:    filename,
	})

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	patch := &calendar.Event{Attachments: ev.Attachments}
	if _, err := svc.Events.Patch("primary", eventID, patch).SupportsAttachments(true).Context(ctx).Do(); err != nil {
		return fmt.Errorf("attach %s to event %s: %w", filename, eventID, err)
	}
	return nil
}

func (c *Client) calendarFor(ctx context.Context, email string) (*calendar.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if svc, ok := c.calSvcs[email]; ok {
		return svc, nil
	}
	ts, err := c.tokenSource(ctx, email)
	if err != nil {
		return nil, err
	}
	svc, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service for %s: %w", email, err)
	}
	c.calSvcs[email] = svc
	return svc, nil
}

func (c *Client) driveFor(ctx context.Context, email string) (*drive.Service, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if svc, ok := c.driveSvcs[email]; ok {
		return svc, nil
	}
	ts, err := c.tokenSource(ctx, email)
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create drive service for %s: %w", email, err)
	}
	c.driveSvcs[email] = svc
	return svc, nil
}

func (c *Client) tokenSource(ctx context.Context, subject string) (oauth2.TokenSource, error) {
	jwt, err := google.JWTConfigFromJSON(c.creds, calendar.CalendarScope, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	jwt.Subject = subject
	return jwt.TokenSource(ctx), nil
}

func parseEventTime(edt *calendar.EventDateTime) (time.Time, error) {
	if edt == nil {
		return time.Time{}, fmt.Errorf("missing event time")
	}
	if edt.DateTime != "" {
		return time.Parse(time.RFC3339, edt.DateTime)
	}
	return time.ParseInLocation("2006-01-02", edt.Date, time.Local)
}
