// Package holiday fetches special-day names from public Google Calendars.
package holiday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/chaosshowdown/mitsuha/config"
	"github.com/chaosshowdown/mitsuha/daily"
)

// Day is a special day found on one of the calendars.
type Day struct {
	Name        string
	Description string
	CalendarID  string
}

// Names returns the day names in order.
func Names(days []Day) []string {
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.Name
	}
	return names
}

// Fetcher reads events from a fixed list of public calendars.
type Fetcher struct {
	svc         *calendar.Service
	calendarIDs []string
	timeout     time.Duration
	loc         *time.Location
}

// NewFetcher creates a Fetcher authenticated with the configured API key.
// Extra options are appended, which lets tests override the endpoint.
func NewFetcher(ctx context.Context, cfg *config.GoogleConfig, loc *time.Location, opts ...option.ClientOption) (*Fetcher, error) {
	opts = append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &Fetcher{
		svc:         svc,
		calendarIDs: cfg.CalendarIDs,
		timeout:     time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
		loc:         loc,
	}, nil
}

const rfc3339UTC = "2006-01-02T15:04:05Z"

// queryWindow widens the day by one day on each side so calendars keyed to
// other timezones are still returned; OccursOn filters afterwards.
func queryWindow(d civil.Date) (timeMin, timeMax string) {
	start := d.AddDays(-1).In(time.UTC)
	end := d.AddDays(2).In(time.UTC).Add(-time.Second)
	return start.Format(rfc3339UTC), end.Format(rfc3339UTC)
}

func (f *Fetcher) list(ctx context.Context, calendarID string, d civil.Date) (*calendar.Events, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	timeMin, timeMax := queryWindow(d)
	return f.svc.Events.List(calendarID).
		TimeMin(timeMin).
		TimeMax(timeMax).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).
		Do()
}

// SpecialDays returns the distinct special days on d across all calendars, in
// calendar order. A calendar that fails is logged and skipped.
func (f *Fetcher) SpecialDays(ctx context.Context, d civil.Date) []Day {
	var found []Day
	seen := make(map[string]bool)

	for _, id := range f.calendarIDs {
		events, err := f.list(ctx, id, d)
		if err != nil {
			slog.Error("fetch calendar failed", "calendar_id", id, "error", err)
			continue
		}
		for _, ev := range events.Items {
			if !OccursOn(ev, d, f.loc) {
				continue
			}
			name := strings.TrimSpace(ev.Summary)
			if name == "" {
				continue
			}
			key := strings.ToLower(name)
			if seen[key] {
				continue
			}
			seen[key] = true
			found = append(found, Day{
				Name:        name,
				Description: plainText(ev.Description),
				CalendarID:  id,
			})
		}
	}
	return found
}

// OccursOn reports whether ev starts on d. All-day events compare their date
// directly; timed events must start within d's bounds in loc.
func OccursOn(ev *calendar.Event, d civil.Date, loc *time.Location) bool {
	if ev == nil || ev.Start == nil {
		return false
	}
	if ev.Start.Date != "" {
		return ev.Start.Date == d.String()
	}
	if ev.Start.DateTime == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, ev.Start.DateTime)
	if err != nil {
		return false
	}
	start, end := daily.DayBoundsUTC(d, loc)
	return !t.Before(start) && !t.After(end)
}

// ProbeResult is the outcome of querying one calendar ID.
type ProbeResult struct {
	CalendarID string
	Status     int
	Events     int
	Err        error
}

// Probe queries each calendar for d and reports the HTTP status, so that
// guessed public calendar IDs can be checked before being configured.
func (f *Fetcher) Probe(ctx context.Context, calendarIDs []string, d civil.Date) []ProbeResult {
	if len(calendarIDs) == 0 {
		calendarIDs = f.calendarIDs
	}
	results := make([]ProbeResult, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		res := ProbeResult{CalendarID: id}
		events, err := f.list(ctx, id, d)
		if err != nil {
			res.Err = err
			var gErr *googleapi.Error
			if errors.As(err, &gErr) {
				res.Status = gErr.Code
			}
		} else {
			res.Status = http.StatusOK
			res.Events = len(events.Items)
		}
		results = append(results, res)
	}
	return results
}
