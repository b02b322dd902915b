// Package signals runs a command under a context managed by OS signals.
package signals

import (
	"context"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"go.uber.org/zap"
)

var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// forceExitAfter is how many further shutdown signals are tolerated during
// a graceful shutdown before the process exits immediately.
const forceExitAfter = 3

type options struct {
	Exit          func(code int)
	SignalChannel func() chan os.Signal
	Log           *zap.Logger
}

func defaultOptions(log *zap.Logger) options {
	if log == nil {
		log = zap.NewNop()
	}
	return options{
		Log:           log,
		Exit:          os.Exit,
		SignalChannel: func() chan os.Signal { return make(chan os.Signal, 2) },
	}
}

// Execute runs cmdFn with a context that is cancelled on SIGINT or SIGTERM.
// Three more shutdown signals while cmdFn is still returning force an exit
// with code 1. SIGHUP cancels the context and runs cmdFn again with a fresh
// one. An error from cmdFn is returned as is.
func Execute(log *zap.Logger, cmdFn func(context.Context) error) error {
	return executeWithOptions(cmdFn, defaultOptions(log))
}

func executeWithOptions(cmdFn func(context.Context) error, opts options) error {
	log := opts.Log.Named("signals")
	sigs := opts.SignalChannel()
	signal.Notify(sigs, append(shutdownSignals, syscall.SIGHUP)...)
	defer signal.Stop(sigs)

	for {
		ctx, cancel := context.WithCancel(context.Background())
		r := &round{
			cancel:   cancel,
			finished: make(chan struct{}),
			released: make(chan struct{}),
		}
		go r.guard(sigs, log, opts.Exit)

		err := cmdFn(ctx)
		close(r.finished)
		<-r.released
		cancel()

		if err != nil || !r.reload {
			return err
		}
	}
}

// round is one invocation of the command
type round struct {
	cancel   context.CancelFunc
	finished chan struct{}
	released chan struct{}
	// reload is only read after released is closed
	reload bool
}

func isShutdown(sig os.Signal) bool {
	return slices.Contains(shutdownSignals, sig)
}

// guard cancels the round on the first signal. After a shutdown signal it
// keeps listening and exits the process once forceExitAfter more shutdown
// signals arrive before the command returns.
func (r *round) guard(sigs <-chan os.Signal, log *zap.Logger, exit func(int)) {
	defer close(r.released)

	var sig os.Signal
	select {
	case sig = <-sigs:
	case <-r.finished:
		return
	}
	r.cancel()

	if sig == syscall.SIGHUP {
		log.Info("Received SIGHUP, reloading")
		r.reload = true
		return
	}
	log.Info("Received signal, shutting down gracefully", zap.Stringer("signal", sig))

	for repeated := 0; repeated < forceExitAfter; {
		select {
		case <-r.finished:
			return
		case sig = <-sigs:
			if isShutdown(sig) {
				repeated++
				log.Info("Still shutting down", zap.Stringer("signal", sig), zap.Int("repeated", repeated))
			}
		}
	}

	log.Error("Forcing exit", zap.Stringer("signal", sig))
	exit(1)
}
