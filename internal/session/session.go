// Package session holds the in-process ordered list of turns for the current
// run and keeps it in step with the durable turn log.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/store"
)

// TimeLayout renders a turn's timestring.
const TimeLayout = "2006-01-02 15:04:05.000000"

var ErrEmptyBuffer = errors.New("empty buffer")

// Turn is one immutable conversation entry.
type Turn struct {
	ID        string
	Role      string // provider.RoleUser, RoleAssistant or RoleSystem
	Raw       string
	Display   string
	CreatedAt time.Time
}

// Message returns the turn as a transcript message.
func (t Turn) Message() provider.Message {
	return provider.Message{Role: t.Role, Content: t.Display}
}

// Speaker maps a role to the label stored in the turn log.
func Speaker(role string) string {
	switch role {
	case provider.RoleUser:
		return store.SpeakerUser
	case provider.RoleAssistant:
		return store.SpeakerAssistant
	default:
		return store.SpeakerSystem
	}
}

// DisplayText renders "<SPEAKER> at <timestring>: <raw>".
func DisplayText(role, raw string, at time.Time) string {
	return Speaker(role) + " at " + at.Format(TimeLayout) + ": " + raw
}

// Buffer is the Session Buffer. It is not safe for concurrent use; the turn
// loop is single-threaded.
type Buffer struct {
	log      store.TurnLog
	index    store.VectorIndex
	embedder provider.Embedder
	obs      *observe.Observer

	now   func() time.Time
	newID func() string

	turns    []Turn
	embedded map[string]bool
}

type Option func(*Buffer)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Buffer) { b.now = now }
}

// WithIDs overrides uuid generation.
func WithIDs(newID func() string) Option {
	return func(b *Buffer) { b.newID = newID }
}

func NewBuffer(log store.TurnLog, index store.VectorIndex, embedder provider.Embedder, obs *observe.Observer, opts ...Option) *Buffer {
	b := &Buffer{
		log:      log,
		index:    index,
		embedder: embedder,
		obs:      obs,
		now:      time.Now,
		newID:    uuid.NewString,
		embedded: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Append creates a turn, writes it to the turn log and then buffers it. A
// failed write leaves the buffer untouched.
func (b *Buffer) Append(ctx context.Context, role, raw string) (Turn, error) {
	at := b.now()
	t := Turn{
		ID:        b.newID(),
		Role:      role,
		Raw:       raw,
		Display:   DisplayText(role, raw, at),
		CreatedAt: at,
	}

	rec := store.ChatRecord{
		ID:         t.ID,
		Message:    t.Display,
		Speaker:    Speaker(role),
		Timestamp:  float64(at.UnixNano()) / 1e9,
		Timestring: at.Format(TimeLayout),
	}
	if err := b.log.InsertTurn(ctx, rec); err != nil {
		return Turn{}, fmt.Errorf("append %s turn: %w", strings.ToLower(rec.Speaker), err)
	}

	b.turns = append(b.turns, t)
	b.obs.Log().Info().Str("turn_id", t.ID).Str("speaker", rec.Speaker).Msg("turn persisted")
	return t, nil
}

// UndoLast drops the newest turn from the buffer. The stored row stays.
func (b *Buffer) UndoLast() (Turn, error) {
	if len(b.turns) == 0 {
		return Turn{}, ErrEmptyBuffer
	}
	last := b.turns[len(b.turns)-1]
	b.turns = b.turns[:len(b.turns)-1]
	b.obs.Log().Info().Str("turn_id", last.ID).Msg("turn removed from session")
	return last, nil
}

// Flush embeds every buffered turn that has no memory record yet and upserts
// it, one at a time. Failures are collected and the rest continue; the count
// of turns indexed is returned.
func (b *Buffer) Flush(ctx context.Context) (int, error) {
	var errs []error
	indexed := 0
	for _, t := range b.turns {
		if b.embedded[t.ID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		vec, err := b.embedder.Embed(ctx, t.Raw)
		if err != nil {
			b.obs.Log().Warn().Str("turn_id", t.ID).Err(err).Msg("failed to embed turn")
			errs = append(errs, fmt.Errorf("embed turn %s: %w", t.ID, err))
			continue
		}
		if err := b.index.Upsert(ctx, t.ID, vec); err != nil {
			b.obs.Log().Warn().Str("turn_id", t.ID).Err(err).Msg("failed to index turn")
			errs = append(errs, fmt.Errorf("index turn %s: %w", t.ID, err))
			continue
		}
		b.embedded[t.ID] = true
		indexed++
	}
	b.obs.Log().Info().Int("indexed", indexed).Int("failed", len(errs)).Msg("session flushed")
	return indexed, errors.Join(errs...)
}

// Turns returns a copy of the buffered turns, oldest first.
func (b *Buffer) Turns() []Turn {
	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Len returns the number of buffered turns.
func (b *Buffer) Len() int {
	return len(b.turns)
}

// LastRaw returns the raw text of the newest min(n, Len) turns, oldest first.
func (b *Buffer) LastRaw(n int) []string {
	if n > len(b.turns) {
		n = len(b.turns)
	}
	if n < 0 {
		n = 0
	}
	out := make([]string, 0, n)
	for _, t := range b.turns[len(b.turns)-n:] {
		out = append(out, t.Raw)
	}
	return out
}

// Transcript returns the buffered turns as messages.
func (b *Buffer) Transcript() []provider.Message {
	out := make([]provider.Message, len(b.turns))
	for i, t := range b.turns {
		out[i] = t.Message()
	}
	return out
}
