// Package observe owns logging, tracing, and secret redaction.
package observe

import (
	"context"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("alter")

// Observer carries the process-wide logger and tracer handles. Components
// receive it at construction instead of reaching for globals.
type Observer struct {
	log *bolt.Logger
}

// New builds an Observer writing human-readable lines to out. Without
// verbose, only warnings and errors surface.
func New(out io.Writer, verbose bool) *Observer {
	handler := bolt.NewConsoleHandler(out)
	l := bolt.New(handler)

	if !verbose {
		l.SetLevel(bolt.WARN)
	}

	return &Observer{
		log: l,
	}
}

// NewJSON is New with machine-readable output, for log shippers.
func NewJSON(out io.Writer, verbose bool) *Observer {
	handler := bolt.NewJSONHandler(out)
	l := bolt.New(handler)

	if !verbose {
		l.SetLevel(bolt.WARN)
	}

	return &Observer{
		log: l,
	}
}

// Log exposes the logger.
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan opens a span under the alter tracer.
func (o *Observer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// Close flushes pending telemetry. Nothing buffers today, so it exists for
// the teardown path.
func (o *Observer) Close() error {
	return nil
}
