package command

import (
	"context"
	"fmt"
	"strings"
)

// Spec declares what a handler expects from an invocation.
type Spec struct {
	Tag         string
	Description string
	// Required lists argument groups; each group is satisfied by any one
	// non-empty name in it (BodyArg included).
	Required [][]string
	Defaults Args
	// Ephemeral results feed only the follow-up prompt and are never
	// appended to the session.
	Ephemeral bool
}

// Prepare applies defaults and checks required arguments.
func (s Spec) Prepare(inv *Invocation) error {
	inv.ApplyDefaults(s.Defaults)
	for _, group := range s.Required {
		if inv.Value(group...) == "" {
			return fmt.Errorf("%w: %s needs %s", ErrMissingArgument, s.Tag, strings.Join(group, " or "))
		}
	}
	return nil
}

// Usage renders the Spec as a protocol example, e.g. for the alignment preamble.
func (s Spec) Usage() string {
	var b strings.Builder
	b.WriteString(Open)
	b.WriteString(strings.ToUpper(s.Tag))
	b.WriteString(Close)
	for _, group := range s.Required {
		if group[0] == BodyArg {
			b.WriteString("<text>")
			continue
		}
		b.WriteString(group[0])
		b.WriteString(Open)
		b.WriteString("...")
		b.WriteString(Close)
	}
	return b.String()
}

// Handler performs one external call for its tag and returns text for the
// follow-up completion.
type Handler interface {
	Spec() Spec
	Handle(ctx context.Context, inv *Invocation) (string, error)
}
