// Package command parses the delimiter protocol a completion uses to invoke
// a tool:
//
//	<prose>/;TAG;/key1/;value1;/key2/;value2;/ ... <body>
//
// Tags and keys are case-folded; values are kept verbatim apart from
// surrounding whitespace. Text after the last value that does not open a
// further key is kept as the invocation body.
package command

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Open starts the tag and every value.
	Open = "/;"
	// Close ends the tag and every value. It is Open reversed.
	Close = ";/"
)

var (
	ErrMalformed       = errors.New("malformed command")
	ErrUnknownTag      = errors.New("unknown command tag")
	ErrMissingArgument = errors.New("missing command argument")
)

// Arg is a single key/value pair.
type Arg struct {
	Key   string
	Value string
}

// Args is an ordered key/value list. Setting an existing key replaces its
// value in place.
type Args []Arg

// Lookup returns the value for key and whether it was set.
func (a Args) Lookup(key string) (string, bool) {
	for _, kv := range a {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Get returns the value for key or "".
func (a Args) Get(key string) string {
	v, _ := a.Lookup(key)
	return v
}

// Set records key=value, keeping the original position of an existing key.
func (a *Args) Set(key, value string) {
	for i := range *a {
		if (*a)[i].Key == key {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Arg{Key: key, Value: value})
}

// Keys returns the keys in order.
func (a Args) Keys() []string {
	keys := make([]string, len(a))
	for i, kv := range a {
		keys[i] = kv.Key
	}
	return keys
}

// Invocation is one parsed command.
type Invocation struct {
	Tag   string
	Args  Args
	Body  string // trailing text that opened no further key
	Prose string // text before the command
}

// BodyArg names the trailing body in Value lookups and Spec requirements.
const BodyArg = "*"

// Value returns the first non-empty value among names. BodyArg refers to the
// trailing body.
func (inv *Invocation) Value(names ...string) string {
	for _, n := range names {
		var v string
		if n == BodyArg {
			v = inv.Body
		} else {
			v = inv.Args.Get(n)
		}
		if v != "" {
			return v
		}
	}
	return ""
}

// ApplyDefaults sets every default whose key the invocation left unset.
func (inv *Invocation) ApplyDefaults(defaults Args) {
	for _, d := range defaults {
		if _, ok := inv.Args.Lookup(d.Key); !ok {
			inv.Args = append(inv.Args, d)
		}
	}
}

func (inv *Invocation) String() string {
	var b strings.Builder
	b.WriteString(Open)
	b.WriteString(inv.Tag)
	b.WriteString(Close)
	for _, kv := range inv.Args {
		b.WriteString(kv.Key)
		b.WriteString(Open)
		b.WriteString(kv.Value)
		b.WriteString(Close)
	}
	b.WriteString(inv.Body)
	return b.String()
}

// Parse extracts the first command from text. It returns (nil, nil) when text
// contains no Open delimiter at all.
func Parse(text string) (*Invocation, error) {
	start := strings.Index(text, Open)
	if start < 0 {
		return nil, nil
	}
	inv := &Invocation{Prose: strings.TrimSpace(text[:start])}
	rest := text[start+len(Open):]

	end := strings.Index(rest, Close)
	if end < 0 {
		return nil, fmt.Errorf("%w: tag is not closed with %q", ErrMalformed, Close)
	}
	inv.Tag = strings.ToLower(strings.TrimSpace(rest[:end]))
	if inv.Tag == "" {
		return nil, fmt.Errorf("%w: empty tag", ErrMalformed)
	}
	stream := rest[end+len(Close):]

	for {
		k := strings.Index(stream, Open)
		if k < 0 {
			inv.Body = strings.TrimSpace(stream)
			return inv, nil
		}
		key := strings.ToLower(strings.TrimSpace(stream[:k]))
		if key == "" {
			return nil, fmt.Errorf("%w: value without a key in %s", ErrMalformed, inv.Tag)
		}
		after := stream[k+len(Open):]
		v := strings.Index(after, Close)
		if v < 0 {
			return nil, fmt.Errorf("%w: value for %q is not closed with %q", ErrMalformed, key, Close)
		}
		inv.Args.Set(key, strings.TrimSpace(after[:v]))
		stream = after[v+len(Close):]
	}
}
