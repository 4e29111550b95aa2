package command

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var calendarSpec = Spec{
	Tag: "calendar",
	Required: [][]string{
		{"action"},
	},
	Defaults: Args{
		{Key: "max", Value: "10"},
		{Key: "name", Value: "Autogenerated Event"},
		{Key: "description", Value: "Event created by the assistant."},
	},
}

func TestParse_Calendar(t *testing.T) {
	text := "/;CALENDAR;/action/;view;/start/;2024-01-01T00:00:00;/end/;2024-01-02T00:00:00;/"

	inv, err := Parse(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if err := calendarSpec.Prepare(inv); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	want := &Invocation{
		Tag: "calendar",
		Args: Args{
			{Key: "action", Value: "view"},
			{Key: "start", Value: "2024-01-01T00:00:00"},
			{Key: "end", Value: "2024-01-02T00:00:00"},
			{Key: "max", Value: "10"},
			{Key: "name", Value: "Autogenerated Event"},
			{Key: "description", Value: "Event created by the assistant."},
		},
	}
	if diff := cmp.Diff(want, inv); diff != "" {
		t.Errorf("invocation mismatch (-want +got):\n%s", diff)
	}
	if _, ok := inv.Args.Lookup("location"); ok {
		t.Error("location should stay unset")
	}
	if _, ok := inv.Args.Lookup("eventid"); ok {
		t.Error("eventid should stay unset")
	}
}

func TestParse_Idempotent(t *testing.T) {
	inputs := []string{
		"Sure! /;SENDMAIL;/to/;a@b.c;/subject/;Hi;/body/;Hello there;/",
		"/;GOOGSEARCH;/weather today",
		"/;wtext;/text/;line one\nline two;/file/;notes.txt;/",
		"no command here",
	}
	for _, in := range inputs {
		a, errA := Parse(in)
		b, errB := Parse(in)
		if (errA == nil) != (errB == nil) {
			t.Fatalf("error mismatch for %q: %v vs %v", in, errA, errB)
		}
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("parsing %q twice differs:\n%s", in, diff)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    *Invocation
		wantErr error
	}{
		{
			name: "no command",
			in:   "Just a normal answer; nothing to run/here.",
			want: nil,
		},
		{
			name: "search body",
			in:   "/;GOOGSEARCH;/weather today",
			want: &Invocation{Tag: "googsearch", Body: "weather today"},
		},
		{
			name: "prose prefix and folded keys",
			in:   "Let me check.\n/;SendMail;/TO/;Ann@Example.com;/Subject/; Lunch ;/",
			want: &Invocation{
				Tag:   "sendmail",
				Prose: "Let me check.",
				Args: Args{
					{Key: "to", Value: "Ann@Example.com"},
					{Key: "subject", Value: "Lunch"},
				},
			},
		},
		{
			name: "repeated key keeps first position",
			in:   "/;wtext;/file/;a;/text/;x;/file/;b;/",
			want: &Invocation{
				Tag: "wtext",
				Args: Args{
					{Key: "file", Value: "b"},
					{Key: "text", Value: "x"},
				},
			},
		},
		{
			name:    "unterminated tag",
			in:      "/;CALENDAR action view",
			wantErr: ErrMalformed,
		},
		{
			name:    "empty tag",
			in:      "/; ;/x",
			wantErr: ErrMalformed,
		},
		{
			name:    "unterminated value",
			in:      "/;calendar;/action/;view",
			wantErr: ErrMalformed,
		},
		{
			name:    "value without key",
			in:      "/;rtext;//;notes;/",
			wantErr: ErrMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSpec_PrepareMissing(t *testing.T) {
	spec := Spec{Tag: "googsearch", Required: [][]string{{"query", BodyArg}}}

	inv, _ := Parse("/;googsearch;/")
	if err := spec.Prepare(inv); !errors.Is(err, ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}

	inv, _ = Parse("/;googsearch;/query/;go generics;/")
	if err := spec.Prepare(inv); err != nil {
		t.Errorf("query key should satisfy requirement: %v", err)
	}
	if inv.Value("query", BodyArg) != "go generics" {
		t.Errorf("unexpected value %q", inv.Value("query", BodyArg))
	}
}

func TestApplyDefaults_DoesNotOverride(t *testing.T) {
	inv := &Invocation{Tag: "calendar", Args: Args{{Key: "max", Value: "3"}}}
	inv.ApplyDefaults(Args{{Key: "max", Value: "10"}, {Key: "name", Value: "x"}})

	if inv.Args.Get("max") != "3" {
		t.Errorf("explicit value overridden: %q", inv.Args.Get("max"))
	}
	if diff := cmp.Diff([]string{"max", "name"}, inv.Args.Keys()); diff != "" {
		t.Errorf("keys mismatch:\n%s", diff)
	}
}

func TestInvocation_StringRoundTrip(t *testing.T) {
	in := "/;calendar;/action/;delete;/eventid/;abc123;/"
	inv, err := Parse(in)
	if err != nil {
		t.Fatal(err)
	}
	again, err := Parse(inv.String())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(inv, again); diff != "" {
		t.Errorf("re-rendered invocation differs:\n%s", diff)
	}
}

func TestSpec_Usage(t *testing.T) {
	spec := Spec{Tag: "wtext", Required: [][]string{{"text"}, {"file", "fid"}}}
	if got := spec.Usage(); got != "/;WTEXT;/text/;...;/file/;...;/" {
		t.Errorf("Usage = %q", got)
	}
}
