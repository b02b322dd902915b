// Package monitor ties the snapshot sources to the samplers and publishes
// the resulting events. Each concern runs as its own scheduler job.
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/0xA1M/sentinel-audit/internal/event"
	"github.com/0xA1M/sentinel-audit/internal/sampler"
	"github.com/0xA1M/sentinel-audit/internal/scheduler"
	"github.com/0xA1M/sentinel-audit/internal/sink"
	"github.com/0xA1M/sentinel-audit/internal/source"
)

// Job names registered with the scheduler
const (
	ProcessJob = "process_monitor"
	FileJob    = "file_monitor"
	NetworkJob = "network_monitor"
)

// Config holds configuration for the monitor
type Config struct {
	Schedule string `json:"schedule"`
}

// Sources are the system readers used by the three cycles
type Sources struct {
	Processes source.ProcessLister
	Counters  source.CounterReader
	Files     source.Walker
}

// SystemSources returns sources backed by the live system, watching root
func SystemSources(root string) Sources {
	return Sources{
		Processes: source.NewProcessTable(),
		Counters:  source.NewNetCounters(),
		Files:     source.NewDirWalker(root),
	}
}

// Monitor runs the process, file and network cycles. Each tracker is only
// touched by its own cycle, so the cycles may run concurrently.
type Monitor struct {
	config    Config
	sources   Sources
	publisher sink.Publisher
	log       *zap.Logger

	processes *sampler.ProcessTracker
	files     *sampler.FileTracker
	network   *sampler.NetworkSampler
	now       func() time.Time
}

// New creates a monitor publishing to pub
func New(config Config, sources Sources, pub sink.Publisher, log *zap.Logger) *Monitor {
	if config.Schedule == "" {
		config.Schedule = "@every 60s"
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Monitor{
		config:    config,
		sources:   sources,
		publisher: pub,
		log:       log.Named("monitor"),
		processes: sampler.NewProcessTracker(),
		files:     sampler.NewFileTracker(),
		network:   sampler.NewNetworkSampler(),
		now:       time.Now,
	}
}

// ProcessCycle lists processes once and publishes the started and ended
// events plus a heartbeat.
func (m *Monitor) ProcessCycle(ctx context.Context) error {
	snapshot, err := m.sources.Processes.Processes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list processes: %w", err)
	}

	events := m.processes.Observe(snapshot)
	sink.PublishAll(m.publisher, events)

	m.log.Debug("Process cycle complete", zap.Int("processes", len(snapshot)), zap.Int("events", len(events)))
	return nil
}

// FileCycle walks the monitored tree once. A missing root is reported as a
// single SourceUnavailable event and stops the file job for good.
func (m *Monitor) FileCycle(ctx context.Context) error {
	walker := m.sources.Files
	if err := walker.Check(); err != nil {
		m.publisher.Publish(event.NewSourceUnavailable(m.now(), walker.Root(), err))
		return scheduler.Permanent(err)
	}

	started := event.NewFileScanStarted(m.now(), walker.Root())
	events, changed := m.files.Scan(walker.Root(), walker.Entries(ctx))
	if err := ctx.Err(); err != nil {
		// The walk was cut short, so the summary would undercount
		return err
	}
	m.publisher.Publish(started)
	sink.PublishAll(m.publisher, events)

	m.log.Debug("File cycle complete", zap.String("root", walker.Root()), zap.Int("indexed", m.files.Len()), zap.Int("changed", changed))
	return nil
}

// NetworkCycle reads the interface counters once and publishes a sample.
func (m *Monitor) NetworkCycle(ctx context.Context) error {
	counters, err := m.sources.Counters.Counters(ctx)
	if err != nil {
		return fmt.Errorf("failed to read network counters: %w", err)
	}

	m.publisher.Publish(m.network.Sample(counters))
	return nil
}

// Register schedules the three cycles on s
func (m *Monitor) Register(s scheduler.Scheduler) error {
	jobs := []struct {
		name string
		fn   scheduler.JobFunc
	}{
		{ProcessJob, m.ProcessCycle},
		{FileJob, m.FileCycle},
		{NetworkJob, m.NetworkCycle},
	}

	for _, job := range jobs {
		if err := s.ScheduleFunc(job.name, m.config.Schedule, job.fn); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", job.name, err)
		}
	}

	m.log.Info("Monitor registered", zap.String("schedule", m.config.Schedule), zap.String("root", m.sources.Files.Root()))
	return nil
}

// Config returns the current monitor configuration
func (m *Monitor) Config() Config {
	return m.config
}
