package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// Scope grants read/write access to events.
const Scope = gcal.CalendarEventsScope

// GoogleCalendar talks to Google Calendar v3.
type GoogleCalendar struct {
	svc *gcal.Service
	id  string
	loc *time.Location
}

func NewGoogleCalendar(ctx context.Context, client *http.Client, calendarID string, loc *time.Location, opts ...option.ClientOption) (*GoogleCalendar, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if calendarID == "" {
		calendarID = "primary"
	}
	if loc == nil {
		loc = time.Local
	}
	return &GoogleCalendar{svc: svc, id: calendarID, loc: loc}, nil
}

func (g *GoogleCalendar) List(ctx context.Context, from, to time.Time, limit int) ([]Event, error) {
	call := g.svc.Events.List(g.id).
		TimeMin(from.Format(time.RFC3339)).
		MaxResults(int64(limit)).
		SingleEvents(true).
		OrderBy("startTime")
	if !to.IsZero() {
		call = call.TimeMax(to.Format(time.RFC3339))
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(res.Items))
	for _, item := range res.Items {
		events = append(events, g.fromAPI(item))
	}
	return events, nil
}

func (g *GoogleCalendar) Insert(ctx context.Context, e Event) (*Event, error) {
	zone := g.loc.String()
	body := &gcal.Event{
		Summary:     e.Summary,
		Location:    e.Location,
		Description: e.Description,
		Start:       &gcal.EventDateTime{DateTime: e.Start.Format(time.RFC3339), TimeZone: zone},
		End:         &gcal.EventDateTime{DateTime: e.End.Format(time.RFC3339), TimeZone: zone},
		Reminders: &gcal.EventReminders{
			UseDefault: false,
			Overrides: []*gcal.EventReminder{
				{Method: "email", Minutes: 3 * 60},
				{Method: "popup", Minutes: 60},
			},
			ForceSendFields: []string{"UseDefault"},
		},
	}
	if zone == "Local" || zone == "" {
		body.Start.TimeZone, body.End.TimeZone = "", ""
	}
	created, err := g.svc.Events.Insert(g.id, body).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := g.fromAPI(created)
	return &out, nil
}

func (g *GoogleCalendar) Delete(ctx context.Context, id string) error {
	return g.svc.Events.Delete(g.id, id).Context(ctx).Do()
}

func (g *GoogleCalendar) fromAPI(item *gcal.Event) Event {
	e := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Location:    item.Location,
		Description: item.Description,
		Link:        item.HtmlLink,
	}
	e.Start, e.AllDay = parseEventTime(item.Start, g.loc)
	e.End, _ = parseEventTime(item.End, g.loc)
	return e
}

func parseEventTime(dt *gcal.EventDateTime, loc *time.Location) (time.Time, bool) {
	if dt == nil {
		return time.Time{}, false
	}
	if dt.DateTime != "" {
		t, _ := time.Parse(time.RFC3339, dt.DateTime)
		return t, false
	}
	t, _ := time.ParseInLocation("2006-01-02", dt.Date, loc)
	return t, true
}
