// Package calendar implements the calendar tool: view, create and delete
// events on the operator's calendar.
package calendar

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/felixgeelhaar/recall/internal/command"
	"github.com/felixgeelhaar/recall/internal/observe"
)

const (
	Tag = "calendar"

	DefaultName        = "Autogenerated Event"
	DefaultDescription = "This event was autogenerated by AI."
	DefaultMax         = 10
)

// Event is the tool's view of a calendar entry.
type Event struct {
	ID          string
	Summary     string
	Location    string
	Description string
	Start       time.Time
	End         time.Time
	AllDay      bool
	Link        string
}

// Calendar is the backing service.
type Calendar interface {
	List(ctx context.Context, from, to time.Time, limit int) ([]Event, error)
	Insert(ctx context.Context, e Event) (*Event, error)
	Delete(ctx context.Context, id string) error
}

// naive layouts carry no offset and are read in the handler's zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 or a naive timestamp interpreted in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

type Handler struct {
	cal Calendar
	loc *time.Location
	now func() time.Time
	obs *observe.Observer
}

func NewHandler(cal Calendar, loc *time.Location, obs *observe.Observer) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{cal: cal, loc: loc, now: time.Now, obs: obs}
}

func (h *Handler) Spec() command.Spec {
	return command.Spec{
		Tag:         Tag,
		Description: "View, create or delete calendar events.",
		Required:    [][]string{{"action"}},
		Defaults: command.Args{
			{Key: "max", Value: strconv.Itoa(DefaultMax)},
			{Key: "name", Value: DefaultName},
			{Key: "description", Value: DefaultDescription},
		},
	}
}

func (h *Handler) Handle(ctx context.Context, inv *command.Invocation) (string, error) {
	action := strings.ToLower(inv.Value("action"))
	switch action {
	case "view":
		return h.view(ctx, inv)
	case "create":
		return h.create(ctx, inv)
	case "delete":
		return h.delete(ctx, inv)
	default:
		return fmt.Sprintf("The calendar action %q is not supported. Use view, create or delete.", action), nil
	}
}

func (h *Handler) view(ctx context.Context, inv *command.Invocation) (string, error) {
	from := h.now()
	if s := inv.Value("start"); s != "" {
		t, err := ParseTime(s, h.loc)
		if err != nil {
			return "", err
		}
		from = t
	}
	var to time.Time
	if s := inv.Value("end"); s != "" {
		t, err := ParseTime(s, h.loc)
		if err != nil {
			return "", err
		}
		to = t
	}
	limit, err := strconv.Atoi(inv.Value("max"))
	if err != nil || limit <= 0 {
		limit = DefaultMax
	}

	events, err := h.cal.List(ctx, from, to, limit)
	if err != nil {
		return "", fmt.Errorf("list events: %w", err)
	}
	h.obs.Log().Info().Int("events", len(events)).Msg("calendar viewed")
	if len(events) == 0 {
		return "You have successfully checked the calendar. There are no matching events.", nil
	}

	var b strings.Builder
	b.WriteString("You have successfully checked the calendar. Matching events:")
	for _, e := range events {
		start := e.Start.In(h.loc).Format(time.RFC3339)
		if e.AllDay {
			start = e.Start.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "\n- %s %s (event_id %s)", start, e.Summary, e.ID)
	}
	return b.String(), nil
}

func (h *Handler) create(ctx context.Context, inv *command.Invocation) (string, error) {
	startText, endText := inv.Value("start"), inv.Value("end")
	if startText == "" || endText == "" {
		return "", fmt.Errorf("%w: calendar create needs start and end", command.ErrMissingArgument)
	}
	start, err := ParseTime(startText, h.loc)
	if err != nil {
		return "", err
	}
	end, err := ParseTime(endText, h.loc)
	if err != nil {
		return "", err
	}
	if end.Before(start) {
		return "", fmt.Errorf("event ends (%s) before it starts (%s)", endText, startText)
	}

	created, err := h.cal.Insert(ctx, Event{
		Summary:     inv.Value("name"),
		Location:    inv.Value("loc", "location"),
		Description: inv.Value("description"),
		Start:       start,
		End:         end,
	})
	if err != nil {
		return "", fmt.Errorf("create event: %w", err)
	}
	h.obs.Log().Info().Str("event_id", created.ID).Msg("calendar event created")
	return fmt.Sprintf("You have successfully created the event %q (event_id %s).", created.Summary, created.ID), nil
}

func (h *Handler) delete(ctx context.Context, inv *command.Invocation) (string, error) {
	id := inv.Value("eventid", "event_id")
	if id == "" {
		return "", fmt.Errorf("%w: calendar delete needs eventid", command.ErrMissingArgument)
	}
	if err := h.cal.Delete(ctx, id); err != nil {
		return "", fmt.Errorf("delete event %s: %w", id, err)
	}
	h.obs.Log().Info().Str("event_id", id).Msg("calendar event deleted")
	return fmt.Sprintf("You have successfully deleted the event %s.", id), nil
}
