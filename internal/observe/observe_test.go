package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	obs := New(&bytes.Buffer{}, true)
	if obs == nil || obs.log == nil {
		t.Fatal("expected non-nil Observer with logger")
	}
}

func TestNewJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	obs := NewJSON(buf, true)
	obs.Log().Info().Str("turn_id", "t-1").Msg("turn persisted")

	out := buf.String()
	if !strings.Contains(out, "turn persisted") || !strings.Contains(out, "t-1") {
		t.Errorf("expected JSON output with message and field, got %q", out)
	}
}

func TestObserver_QuietSuppressesInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	obs := New(buf, false)

	obs.Log().Info().Msg("hidden")
	obs.Log().Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info should be suppressed when not verbose, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn should be emitted, got %q", out)
	}
}

func TestObserver_LogWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	obs := New(buf, true)

	obs.Log().Info().
		Str("tag", "googsearch").
		Int("hits", 3).
		Msg("retrieval complete")

	if !strings.Contains(buf.String(), "retrieval complete") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
}

func TestObserver_Spans(t *testing.T) {
	obs := Discard()

	ctx, span := obs.StartSpan(context.Background(), "turn", "turn_id", "abc", "dangling")
	if ctx == nil || span == nil {
		t.Fatal("expected context and span")
	}
	EndSpan(span, errors.New("boom"))

	_, span = obs.StartSpan(context.Background(), "flush")
	EndSpan(span, nil)
}

func TestObserver_Close(t *testing.T) {
	if err := Discard().Close(); err != nil {
		t.Errorf("expected nil error from Close, got %v", err)
	}
}
