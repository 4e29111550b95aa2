package observe

import (
	"context"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("recall")

// Observer handles logging and tracing for the turn loop and its collaborators.
type Observer struct {
	log *bolt.Logger
}

// New creates a new Observer with console output.
// If verbose is false, only warnings and errors are shown.
func New(out io.Writer, verbose bool) *Observer {
	l := bolt.New(bolt.NewConsoleHandler(out))
	if !verbose {
		l.SetLevel(bolt.WARN)
	}
	return &Observer{log: l}
}

// NewJSON creates a new Observer with JSON output.
// If verbose is false, only warnings and errors are shown.
func NewJSON(out io.Writer, verbose bool) *Observer {
	l := bolt.New(bolt.NewJSONHandler(out))
	if !verbose {
		l.SetLevel(bolt.WARN)
	}
	return &Observer{log: l}
}

// Discard returns an Observer that drops everything. Handy in tests.
func Discard() *Observer {
	return New(io.Discard, false)
}

// Log returns the underlying logger
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan starts a new OTel span with optional string attributes given as key/value pairs.
func (o *Observer) StartSpan(ctx context.Context, name string, kv ...string) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on the span (if any) and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Close ensures any buffered logs or traces are flushed (placeholder)
func (o *Observer) Close() error {
	return nil
}
