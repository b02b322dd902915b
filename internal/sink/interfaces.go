// Package sink receives audit events and persists or exposes them: the JSON
// line log, in-memory history, the metrics buffer and the HTTP forwarder.
package sink

import (
	"context"

	"github.com/0xA1M/sentinel-audit/internal/event"
)

// Sink accepts one event at a time.
type Sink interface {
	Export(ctx context.Context, ev event.Event) error
}

// BatchSink is implemented by sinks that prefer several events per call.
type BatchSink interface {
	Sink
	ExportBatch(ctx context.Context, events []event.Event) error
}

// Publisher is the non-blocking entry point used by the samplers.
type Publisher interface {
	Publish(ev event.Event)
}

// PublishAll hands every event to p in order.
func PublishAll(p Publisher, events []event.Event) {
	for _, ev := range events {
		p.Publish(ev)
	}
}
