// Package source reads raw system state for the samplers: the process
// table, network counters and the monitored directory tree.
package source

import (
	"context"
	"errors"
	"iter"

	"github.com/0xA1M/sentinel-audit/internal/sampler"
)

// ErrSourceUnavailable is returned when a source cannot be read at all, as
// opposed to a single entity within it.
var ErrSourceUnavailable = errors.New("source unavailable")

// ProcessLister enumerates running processes.
type ProcessLister interface {
	Processes(ctx context.Context) (sampler.ProcessSnapshot, error)
}

// CounterReader reads cumulative network counters.
type CounterReader interface {
	Counters(ctx context.Context) (sampler.NetworkCounters, error)
}

// Walker produces a fresh traversal of a directory tree on every call.
type Walker interface {
	Root() string
	Check() error
	Entries(ctx context.Context) iter.Seq[sampler.FileEntry]
}
