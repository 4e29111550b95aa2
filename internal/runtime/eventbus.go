package runtime

import (
	"sync"
	"time"
)

// EventType names a turn-loop transition.
type EventType string

const (
	EventTurnPersisted   EventType = "turn_persisted"
	EventRetrieved       EventType = "retrieved"
	EventCompleted       EventType = "completed"
	EventParsedNone      EventType = "parsed_none"
	EventParsedCommand   EventType = "parsed_command"
	EventParseError      EventType = "parse_error"
	EventDispatching     EventType = "dispatching"
	EventRecompleted     EventType = "recompleted"
	EventFinalized       EventType = "finalized"
	EventTurnUndone      EventType = "turn_undone"
	EventSessionFlushed  EventType = "session_flushed"
	EventExternalFailure EventType = "external_failure"
)

// Event represents a runtime event with associated data.
type Event struct {
	Type      EventType
	Timestamp time.Time
	TurnID    string
	Data      map[string]interface{}
}

// EventHandler is a function that handles events.
type EventHandler func(Event)

// EventBus fans turn-loop events out to subscribers such as metrics.
// Handlers run synchronously on the publishing goroutine.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, handler := range eb.handlers[event.Type] {
		handler(event)
	}
	for _, handler := range eb.allHandlers {
		handler(event)
	}
}

func (eb *EventBus) PublishSimple(eventType EventType, turnID string) {
	eb.Publish(Event{Type: eventType, TurnID: turnID})
}

func (eb *EventBus) PublishWithData(eventType EventType, turnID string, data map[string]interface{}) {
	eb.Publish(Event{Type: eventType, TurnID: turnID, Data: data})
}
