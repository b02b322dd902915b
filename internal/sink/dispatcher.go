package sink

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/0xA1M/sentinel-audit/internal/event"
)

// DispatcherConfig holds configuration for the dispatcher
type DispatcherConfig struct {
	BufferSize    int           `json:"buffer_size"`
	MaxBatchSize  int           `json:"max_batch_size"`
	ExportTimeout time.Duration `json:"export_timeout"`
}

// Dispatcher decouples publishers from sinks. Publish never blocks; events
// that do not fit in the buffer are dropped and counted. A single goroutine
// delivers to the sinks, so each sink sees events in publish order.
type Dispatcher struct {
	config  DispatcherConfig
	sinks   []Sink
	queue   chan event.Event
	dropped atomic.Uint64
	failing []bool
	log     *zap.Logger
}

// NewDispatcher creates a dispatcher fanning out to sinks
func NewDispatcher(config DispatcherConfig, log *zap.Logger, sinks ...Sink) *Dispatcher {
	if config.BufferSize == 0 {
		config.BufferSize = 1000
	}
	if config.MaxBatchSize == 0 {
		config.MaxBatchSize = 100
	}
	if config.ExportTimeout == 0 {
		config.ExportTimeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Dispatcher{
		config:  config,
		sinks:   sinks,
		queue:   make(chan event.Event, config.BufferSize),
		failing: make([]bool, len(sinks)),
		log:     log.Named("dispatcher"),
	}
}

// Publish queues ev without blocking
func (d *Dispatcher) Publish(ev event.Event) {
	select {
	case d.queue <- ev:
	default:
		// Buffer is full, drop the event rather than stall a sampler
		d.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded because the buffer was full
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run delivers queued events until ctx is cancelled, then flushes whatever
// is still buffered.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(d.collect(ev))
		case <-ctx.Done():
			d.Flush()
			return nil
		}
	}
}

// Flush delivers everything currently buffered.
func (d *Dispatcher) Flush() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(d.collect(ev))
		default:
			return
		}
	}
}

// collect gathers first plus whatever else is already queued, up to the
// batch size.
func (d *Dispatcher) collect(first event.Event) []event.Event {
	batch := make([]event.Event, 0, d.config.MaxBatchSize)
	batch = append(batch, first)
	for len(batch) < d.config.MaxBatchSize {
		select {
		case ev := <-d.queue:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (d *Dispatcher) deliver(batch []event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.config.ExportTimeout)
	defer cancel()

	for i, s := range d.sinks {
		err := exportTo(ctx, s, batch)

		// Report a failing sink once, and again when it recovers
		switch {
		case err != nil && !d.failing[i]:
			d.failing[i] = true
			d.log.Error("Sink export failed", zap.Int("sink", i), zap.Int("events", len(batch)), zap.Error(err))
		case err == nil && d.failing[i]:
			d.failing[i] = false
			d.log.Info("Sink export recovered", zap.Int("sink", i))
		}
	}
}

func exportTo(ctx context.Context, s Sink, batch []event.Event) error {
	if bs, ok := s.(BatchSink); ok {
		return bs.ExportBatch(ctx, batch)
	}

	var errs error
	for _, ev := range batch {
		errs = multierr.Append(errs, s.Export(ctx, ev))
	}
	return errs
}
