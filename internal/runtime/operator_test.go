package runtime

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/recall/internal/config"
)

func TestParseOperator(t *testing.T) {
	tests := []struct {
		line    string
		name    string
		value   string
		ok      bool
		setting string
	}{
		{"/q/", "q", "", true, ""},
		{"/temp/ 0.3", "temp", "0.3", true, config.NameTemperature},
		{"  /TEMP/0.5 ", "temp", "0.5", true, config.NameTemperature},
		{"/m/ gpt-4o", "m", "gpt-4o", true, config.NameModel},
		{"/sl/", "sl", "", true, config.NamePageTextCap},
		{"/top_k/ 5", "top_k", "5", true, config.NameTopK},
		{"/nope/ x", "", "", false, ""},
		{"/;GOOGSEARCH;/x", "", "", false, ""},
		{"hello /q/", "", "", false, ""},
		{"/q", "", "", false, ""},
	}
	for _, tt := range tests {
		op, value, ok := ParseOperator(tt.line)
		if ok != tt.ok || op.Name != tt.name || value != tt.value || op.Setting != tt.setting {
			t.Errorf("ParseOperator(%q) = %+v, %q, %v", tt.line, op, value, ok)
		}
	}
}

func TestOperate(t *testing.T) {
	h := newHarness(t)
	h.tools.Seal()
	ctx := context.Background()

	op, value, _ := ParseOperator("/max/ 256")
	if quit, err := h.ctrl.Operate(ctx, op, value); quit || err != nil {
		t.Fatalf("Operate(/max/): %v, %v", quit, err)
	}
	if h.settings.MaxTokens != 256 {
		t.Errorf("max tokens = %d", h.settings.MaxTokens)
	}

	op, value, _ = ParseOperator("/temp/ warm")
	if _, err := h.ctrl.Operate(ctx, op, value); err == nil {
		t.Error("expected error for bad temperature")
	}
	if h.settings.Temperature != 0 {
		t.Errorf("temperature changed to %v", h.settings.Temperature)
	}

	op, _, _ = ParseOperator("/e/")
	if _, err := h.ctrl.Operate(ctx, op, "print(1)"); !errors.Is(err, ErrRefused) {
		t.Errorf("expected ErrRefused, got %v", err)
	}

	h.ctrl.HandleInput(ctx, "hello")
	op, _, _ = ParseOperator("/d/")
	if _, err := h.ctrl.Operate(ctx, op, ""); err != nil || h.buffer.Len() != 1 {
		t.Errorf("/d/: err = %v, buffer = %d", err, h.buffer.Len())
	}

	op, _, _ = ParseOperator("/q/")
	quit, err := h.ctrl.Operate(ctx, op, "")
	if !quit || err != nil {
		t.Errorf("/q/: quit = %v, err = %v", quit, err)
	}
	if h.stub.EmbedCount() != 2 {
		t.Errorf("embeds = %d, want retrieval + one flushed turn", h.stub.EmbedCount())
	}
}
