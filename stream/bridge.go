// Package stream implements the ordered live event channel for a request and
// the ambient bridge that lets tool functions reach it. The publisher
// guarantees strict production order, a start-first / terminal-last frame
// discipline and keepalive emission on idle. The bridge carries the active
// sink on the request's context.Context so concurrent requests can never
// observe each other's stream.
package stream

import (
	"context"

	"github.com/scribemesh/scribemesh/core"
)

// Sink receives stream events. Publisher implements Sink; tests may supply
// their own capture implementations.
type Sink interface {
	Publish(ev core.StreamEvent) error
}

type sinkKey struct{}

// WithSink returns a context carrying s as the active event sink. The
// workflow coordinator installs the sink immediately before execution and the
// derived context is discarded when the request finishes, so the scope is
// strictly per-request.
func WithSink(ctx context.Context, s Sink) context.Context {
	return context.WithValue(ctx, sinkKey{}, s)
}

// SinkFromContext returns the active event sink, if any.
func SinkFromContext(ctx context.Context) (Sink, bool) {
	s, ok := ctx.Value(sinkKey{}).(Sink)
	return s, ok
}

// Emit publishes ev through the context's sink. When no sink is installed
// (a non-streaming invocation path) the event is silently dropped; emission
// never fails the caller.
func Emit(ctx context.Context, ev core.StreamEvent) {
	s, ok := SinkFromContext(ctx)
	if !ok {
		return
	}
	_ = s.Publish(ev)
}
