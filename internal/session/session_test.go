package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/recall/internal/observe"
	"github.com/felixgeelhaar/recall/internal/provider"
	"github.com/felixgeelhaar/recall/internal/store"
)

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewSQLiteStore(filepath.Join(dir, "chat.db"), filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("turn-%d", n)
	}
}

func fixedClock() func() time.Time {
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	return func() time.Time {
		at = at.Add(time.Second)
		return at
	}
}

type failingLog struct {
	store.TurnLog
}

func (failingLog) InsertTurn(ctx context.Context, rec store.ChatRecord) error {
	return errors.New("disk full")
}

func TestBuffer_AppendKeepsCountsEqual(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := NewBuffer(s, s, provider.NewStubProvider(), observe.Discard(), WithIDs(sequentialIDs()), WithClock(fixedClock()))

	roles := []string{provider.RoleUser, provider.RoleAssistant, provider.RoleUser, provider.RoleSystem, provider.RoleAssistant}
	for i, role := range roles {
		if _, err := b.Append(ctx, role, fmt.Sprintf("message %d", i)); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	n, err := s.CountTurns(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if b.Len() != len(roles) || n != len(roles) {
		t.Fatalf("buffered=%d stored=%d, want %d", b.Len(), n, len(roles))
	}
	for _, turn := range b.Turns() {
		rec, err := s.GetTurn(ctx, turn.ID)
		if err != nil {
			t.Fatalf("GetTurn %s: %v", turn.ID, err)
		}
		if rec.Message != turn.Display {
			t.Errorf("stored display %q != buffered %q", rec.Message, turn.Display)
		}
	}
}

func TestBuffer_DisplayText(t *testing.T) {
	s := newStore(t)
	b := NewBuffer(s, s, provider.NewStubProvider(), observe.Discard(), WithClock(func() time.Time {
		return time.Date(2024, 3, 5, 7, 8, 9, 123456000, time.Local)
	}))

	turn, err := b.Append(context.Background(), provider.RoleUser, "hello there")
	if err != nil {
		t.Fatal(err)
	}
	want := "USER at 2024-03-05 07:08:09.123456: hello there"
	if turn.Display != want {
		t.Errorf("Display = %q, want %q", turn.Display, want)
	}
	if turn.Raw != "hello there" {
		t.Errorf("Raw = %q", turn.Raw)
	}
	if got := turn.Message(); got.Role != provider.RoleUser || got.Content != want {
		t.Errorf("Message = %+v", got)
	}
}

func TestBuffer_AppendFailureLeavesBuffer(t *testing.T) {
	s := newStore(t)
	b := NewBuffer(failingLog{s}, s, provider.NewStubProvider(), observe.Discard())

	if _, err := b.Append(context.Background(), provider.RoleUser, "hi"); err == nil {
		t.Fatal("expected append to fail")
	}
	if b.Len() != 0 {
		t.Errorf("buffer changed on failed append: %d", b.Len())
	}
}

func TestBuffer_UndoLast(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := NewBuffer(s, s, provider.NewStubProvider(), observe.Discard(), WithIDs(sequentialIDs()))

	if _, err := b.UndoLast(); !errors.Is(err, ErrEmptyBuffer) {
		t.Fatalf("expected ErrEmptyBuffer, got %v", err)
	}
	if b.Len() != 0 {
		t.Fatal("empty undo changed state")
	}

	b.Append(ctx, provider.RoleUser, "one")
	b.Append(ctx, provider.RoleAssistant, "two")

	removed, err := b.UndoLast()
	if err != nil {
		t.Fatal(err)
	}
	if removed.Raw != "two" || b.Len() != 1 {
		t.Errorf("removed %q, len %d", removed.Raw, b.Len())
	}

	// The stored row is not retracted.
	if _, err := s.GetTurn(ctx, removed.ID); err != nil {
		t.Errorf("stored row should remain: %v", err)
	}
}

func TestBuffer_FlushIndexesOnce(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	stub := provider.NewStubProvider()
	b := NewBuffer(s, s, stub, observe.Discard(), WithIDs(sequentialIDs()))

	b.Append(ctx, provider.RoleUser, "weather in paris")
	b.Append(ctx, provider.RoleAssistant, "it is sunny")
	b.Append(ctx, provider.RoleUser, "dropped")
	b.UndoLast()

	matches, _ := s.Query(ctx, []float32{1}, 10)
	if len(matches) != 0 {
		t.Fatalf("no memory record may exist before flush, got %+v", matches)
	}

	n, err := b.Flush(ctx)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 2 {
		t.Errorf("indexed %d, want 2", n)
	}
	if got := strings.Join(stub.Embeds, "|"); got != "weather in paris|it is sunny" {
		t.Errorf("embedded raw texts = %q", got)
	}

	vec, _ := stub.Embed(ctx, "weather in paris")
	matches, err = s.Query(ctx, vec, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != "turn-1" {
		t.Errorf("unexpected matches %+v", matches)
	}

	// A second flush has nothing left to embed.
	before := stub.EmbedCount()
	if n, _ := b.Flush(ctx); n != 0 || stub.EmbedCount() != before {
		t.Errorf("second flush re-embedded turns")
	}
}

func TestBuffer_FlushContinuesPastErrors(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	stub := provider.NewStubProvider()
	b := NewBuffer(s, s, stub, observe.Discard())

	b.Append(ctx, provider.RoleUser, "a")
	b.Append(ctx, provider.RoleUser, "b")

	stub.EmbedErr = errors.New("rate limited")
	n, err := b.Flush(ctx)
	if err == nil || n != 0 {
		t.Fatalf("expected joined error, got n=%d err=%v", n, err)
	}
	if stub.EmbedCount() != 2 {
		t.Errorf("flush should try every turn, embedded %d", stub.EmbedCount())
	}

	stub.EmbedErr = nil
	if n, err := b.Flush(ctx); err != nil || n != 2 {
		t.Errorf("retry flush: n=%d err=%v", n, err)
	}
}

func TestBuffer_LastRaw(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	b := NewBuffer(s, s, provider.NewStubProvider(), observe.Discard())

	for _, txt := range []string{"1", "2", "3", "4", "5"} {
		b.Append(ctx, provider.RoleUser, txt)
	}
	if got := strings.Join(b.LastRaw(4), ","); got != "2,3,4,5" {
		t.Errorf("LastRaw(4) = %q", got)
	}
	if got := strings.Join(b.LastRaw(10), ","); got != "1,2,3,4,5" {
		t.Errorf("LastRaw(10) = %q", got)
	}
	if len(b.Transcript()) != 5 {
		t.Errorf("Transcript length %d", len(b.Transcript()))
	}
}
