package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/0xA1M/sentinel-audit/internal/api"
	"github.com/0xA1M/sentinel-audit/internal/config"
	"github.com/0xA1M/sentinel-audit/internal/logging"
	"github.com/0xA1M/sentinel-audit/internal/monitor"
	"github.com/0xA1M/sentinel-audit/internal/scheduler"
	"github.com/0xA1M/sentinel-audit/internal/signals"
	"github.com/0xA1M/sentinel-audit/internal/sink"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "auditd: %v\n", err)
		os.Exit(2)
	}

	log := logging.GetLogger(cfg.LogLevel)
	defer log.Sync()

	if cfg.Once {
		err = runOnce(cfg, log)
	} else {
		err = signals.Execute(log, func(ctx context.Context) error {
			return run(ctx, cfg, log)
		})
	}
	if err != nil {
		log.Error("Audit daemon failed", zap.Error(err))
		os.Exit(1)
	}
}

// pipeline is everything between the samplers and the outside world
type pipeline struct {
	dispatcher *sink.Dispatcher
	history    *sink.Memory
	metrics    *sink.Metrics
	logPath    string
	closers    []func() error
}

func (p *pipeline) close() error {
	var errs error
	for _, c := range p.closers {
		errs = multierr.Append(errs, c())
	}
	return errs
}

func newPipeline(ctx context.Context, cfg config.Config, log *zap.Logger) *pipeline {
	p := &pipeline{
		history: sink.NewMemory(0),
		metrics: sink.NewMetrics(0),
	}
	sinks := []sink.Sink{p.history, p.metrics}

	var console zapcore.WriteSyncer
	if cfg.Console {
		console = zapcore.AddSync(os.Stderr)
	}

	// Sampling continues without the log file so the API still has data
	logSink, err := sink.NewLogSink(cfg.LogPath, console)
	if err != nil {
		log.Error("Event log unavailable, continuing without it", zap.String("path", cfg.LogPath), zap.Error(err))
	} else {
		sinks = append(sinks, logSink)
		p.logPath = cfg.LogPath
		p.closers = append(p.closers, logSink.Close)
	}

	if cfg.ForwardURL != "" {
		exporter := sink.NewHTTPExporter(sink.HTTPConfig{
			ServerURL: cfg.ForwardURL,
			AgentID:   cfg.AgentID,
			Timeout:   30 * time.Second,
		}, log)

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := exporter.HealthCheck(checkCtx); err != nil {
			log.Warn("Collector health check failed, forwarding anyway", zap.String("url", cfg.ForwardURL), zap.Error(err))
		}
		cancel()

		sinks = append(sinks, exporter)
		p.closers = append(p.closers, exporter.Close)
	}

	p.dispatcher = sink.NewDispatcher(sink.DispatcherConfig{}, log, sinks...)
	return p
}

// run samples on the configured schedule until ctx is cancelled. Each call
// starts with fresh trackers, so a reload reseeds the process baseline and
// the file index.
func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	p := newPipeline(ctx, cfg, log)
	defer func() {
		if err := p.close(); err != nil {
			log.Warn("Failed to close sinks", zap.Error(err))
		}
	}()

	mon := monitor.New(monitor.Config{Schedule: cfg.Schedule}, monitor.SystemSources(cfg.Root), p.dispatcher, log)
	jobScheduler := scheduler.NewInMemoryScheduler(log)
	if err := mon.Register(jobScheduler); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// The dispatcher outlives the scheduler so the last cycle is flushed
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	g.Go(func() error {
		return p.dispatcher.Run(dispatchCtx)
	})

	if err := jobScheduler.Start(gctx); err != nil {
		stopDispatch()
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		jobScheduler.Stop()
		stopDispatch()
		return nil
	})

	if cfg.HTTPAddr != "" {
		router := api.Router(api.Deps{
			Service:        "auditd",
			History:        p.history,
			Metrics:        p.metrics,
			LogPath:        p.logPath,
			TrustedProxies: cfg.TrustedProxies,
		}, log)
		g.Go(func() error {
			return api.Serve(gctx, cfg.HTTPAddr, router, log)
		})
	}

	log.Info("Audit daemon started",
		zap.String("root", cfg.Root),
		zap.String("schedule", cfg.Schedule),
		zap.String("log_path", cfg.LogPath),
	)

	err := g.Wait()
	log.Info("Audit daemon stopped", zap.Uint64("dropped_events", p.dispatcher.Dropped()))
	return err
}

// runOnce performs a single cycle of every sampler and flushes the results.
func runOnce(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()
	p := newPipeline(ctx, cfg, log)

	mon := monitor.New(monitor.Config{Schedule: cfg.Schedule}, monitor.SystemSources(cfg.Root), p.dispatcher, log)

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	dispatched := make(chan error, 1)
	go func() { dispatched <- p.dispatcher.Run(dispatchCtx) }()

	var errs error
	errs = multierr.Append(errs, mon.ProcessCycle(ctx))
	errs = multierr.Append(errs, mon.FileCycle(ctx))
	errs = multierr.Append(errs, mon.NetworkCycle(ctx))

	stopDispatch()
	errs = multierr.Append(errs, <-dispatched)
	return multierr.Append(errs, p.close())
}
