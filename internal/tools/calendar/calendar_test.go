package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/api/option"

	"github.com/felixgeelhaar/recall/internal/command"
	"github.com/felixgeelhaar/recall/internal/observe"
)

type fakeCalendar struct {
	events   []Event
	inserted []Event
	deleted  []string
	from, to time.Time
	limit    int
	err      error
}

func (f *fakeCalendar) List(_ context.Context, from, to time.Time, limit int) ([]Event, error) {
	f.from, f.to, f.limit = from, to, limit
	return f.events, f.err
}

func (f *fakeCalendar) Insert(_ context.Context, e Event) (*Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	e.ID = "evt1"
	f.inserted = append(f.inserted, e)
	return &e, nil
}

func (f *fakeCalendar) Delete(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func prepared(t *testing.T, h *Handler, text string) *command.Invocation {
	t.Helper()
	inv, err := command.Parse(text)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := h.Spec().Prepare(inv); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	return inv
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	return loc
}

func TestParseTime(t *testing.T) {
	loc := newYork(t)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-01-01T09:00:00", time.Date(2024, 1, 1, 9, 0, 0, 0, loc)},
		{"2024-01-01 09:30:00", time.Date(2024, 1, 1, 9, 30, 0, 0, loc)},
		{"2024-01-01", time.Date(2024, 1, 1, 0, 0, 0, 0, loc)},
		{"2024-01-01T09:00:00Z", time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.in, loc)
		if err != nil {
			t.Fatalf("ParseTime(%q): %v", tt.in, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("ParseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseTime("tomorrow", loc); err == nil {
		t.Error("expected error for free-form time")
	}
}

func TestSpecDefaults(t *testing.T) {
	h := NewHandler(&fakeCalendar{}, time.UTC, observe.Discard())
	inv := prepared(t, h, "/;CALENDAR;/action/;view;/start/;2024-01-01T00:00:00;/end/;2024-01-02T00:00:00;/")
	want := command.Args{
		{Key: "action", Value: "view"},
		{Key: "start", Value: "2024-01-01T00:00:00"},
		{Key: "end", Value: "2024-01-02T00:00:00"},
		{Key: "max", Value: "10"},
		{Key: "name", Value: DefaultName},
		{Key: "description", Value: DefaultDescription},
	}
	if diff := cmp.Diff(want, inv.Args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if inv.Value("loc", "location", "eventid", "event_id") != "" {
		t.Error("location and event id should stay unset")
	}
}

func TestView(t *testing.T) {
	loc := newYork(t)
	cal := &fakeCalendar{events: []Event{
		{ID: "a", Summary: "Standup", Start: time.Date(2024, 1, 1, 9, 0, 0, 0, loc)},
		{ID: "b", Summary: "Holiday", Start: time.Date(2024, 1, 1, 0, 0, 0, 0, loc), AllDay: true},
	}}
	h := NewHandler(cal, loc, observe.Discard())
	out, err := h.Handle(context.Background(), prepared(t, h,
		"/;calendar;/action/;VIEW;/start/;2024-01-01T00:00:00;/end/;2024-01-02T00:00:00;/max/;5;/"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if cal.limit != 5 {
		t.Errorf("limit = %d, want 5", cal.limit)
	}
	if !cal.from.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, loc)) || !cal.to.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, loc)) {
		t.Errorf("window = %v..%v", cal.from, cal.to)
	}
	for _, want := range []string{"2024-01-01T09:00:00-05:00 Standup (event_id a)", "2024-01-01 Holiday (event_id b)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestViewEmpty(t *testing.T) {
	h := NewHandler(&fakeCalendar{}, time.UTC, observe.Discard())
	out, err := h.Handle(context.Background(), prepared(t, h, "/;calendar;/action/;view;/"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !strings.Contains(out, "no matching events") {
		t.Errorf("output = %q", out)
	}
}

func TestCreate(t *testing.T) {
	cal := &fakeCalendar{}
	h := NewHandler(cal, time.UTC, observe.Discard())
	out, err := h.Handle(context.Background(), prepared(t, h,
		"/;calendar;/action/;create;/start/;2024-02-01T10:00:00;/end/;2024-02-01T11:00:00;/location/;Room 1;/"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	want := []Event{{
		ID:          "evt1",
		Summary:     DefaultName,
		Location:    "Room 1",
		Description: DefaultDescription,
		Start:       time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC),
		End:         time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC),
	}}
	if diff := cmp.Diff(want, cal.inserted); diff != "" {
		t.Errorf("inserted mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(out, "evt1") {
		t.Errorf("output = %q", out)
	}
}

func TestCreateErrors(t *testing.T) {
	h := NewHandler(&fakeCalendar{}, time.UTC, observe.Discard())
	cases := []string{
		"/;calendar;/action/;create;/start/;2024-02-01T10:00:00;/",
		"/;calendar;/action/;create;/start/;2024-02-01T10:00:00;/end/;2024-02-01T09:00:00;/",
		"/;calendar;/action/;create;/start/;soon;/end/;later;/",
	}
	for _, text := range cases {
		if _, err := h.Handle(context.Background(), prepared(t, h, text)); err == nil {
			t.Errorf("%s: expected error", text)
		}
	}
}

func TestDelete(t *testing.T) {
	cal := &fakeCalendar{}
	h := NewHandler(cal, time.UTC, observe.Discard())
	if _, err := h.Handle(context.Background(), prepared(t, h, "/;calendar;/action/;delete;/event_id/;xyz;/")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if diff := cmp.Diff([]string{"xyz"}, cal.deleted); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
	if _, err := h.Handle(context.Background(), prepared(t, h, "/;calendar;/action/;delete;/")); !errors.Is(err, command.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}
}

func TestUnknownAction(t *testing.T) {
	h := NewHandler(&fakeCalendar{}, time.UTC, observe.Discard())
	out, err := h.Handle(context.Background(), prepared(t, h, "/;calendar;/action/;share;/"))
	if err != nil {
		t.Fatalf("unknown action should not error: %v", err)
	}
	if !strings.Contains(out, "not supported") {
		t.Errorf("output = %q", out)
	}
}

func TestGoogleCalendar(t *testing.T) {
	var inserted map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/calendars/primary/events"):
			if r.URL.Query().Get("orderBy") != "startTime" || r.URL.Query().Get("singleEvents") != "true" {
				t.Errorf("unexpected query: %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"items":[{"id":"e1","summary":"Standup","start":{"dateTime":"2024-01-01T09:00:00Z"},"end":{"dateTime":"2024-01-01T09:15:00Z"}}]}`))
		case r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			json.Unmarshal(body, &inserted)
			w.Write([]byte(`{"id":"new1","summary":"Lunch","start":{"dateTime":"2024-01-01T12:00:00Z"}}`))
		case r.Method == http.MethodDelete && strings.HasSuffix(r.URL.Path, "/events/e1"):
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	g, err := NewGoogleCalendar(ctx, server.Client(), "", time.UTC, option.WithEndpoint(server.URL+"/"))
	if err != nil {
		t.Fatalf("NewGoogleCalendar: %v", err)
	}

	events, err := g.List(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Time{}, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 1 || events[0].ID != "e1" || !events[0].Start.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("events = %+v", events)
	}

	created, err := g.Insert(ctx, Event{
		Summary: "Lunch",
		Start:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if created.ID != "new1" {
		t.Errorf("created id = %q", created.ID)
	}
	reminders, _ := inserted["reminders"].(map[string]any)
	if reminders == nil || reminders["useDefault"] != false {
		t.Errorf("reminders not sent explicitly: %v", inserted["reminders"])
	}

	if err := g.Delete(ctx, "e1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
