package sink

import (
	"context"
	"sync"
	"time"

	"github.com/0xA1M/sentinel-audit/internal/event"
)

// Point is one value of a time series.
type Point struct {
	Time  time.Time `json:"time"`
	Value int       `json:"value"`
}

// NetworkPoint is the latest cumulative network sample.
type NetworkPoint struct {
	Time      time.Time `json:"time"`
	BytesSent uint64    `json:"bytes_sent"`
	BytesRecv uint64    `json:"bytes_recv"`
}

// MetricsSnapshot is a copy of the buffered series.
type MetricsSnapshot struct {
	ProcessCounts    []Point        `json:"process_counts"`
	FileChangeCounts []Point        `json:"file_change_counts"`
	Network          *NetworkPoint  `json:"network,omitempty"`
	Totals           map[string]int `json:"totals"`
}

// Metrics derives chartable series from the event stream: the process
// count of every heartbeat and the change count of every file cycle.
type Metrics struct {
	limit            int
	processCounts    []Point
	fileChangeCounts []Point
	network          *NetworkPoint
	totals           map[event.Kind]int
	mu               sync.RWMutex
}

// NewMetrics keeps up to limit points per series; zero means one day of
// one-minute cycles.
func NewMetrics(limit int) *Metrics {
	if limit <= 0 {
		limit = 1440
	}
	return &Metrics{
		limit:  limit,
		totals: make(map[event.Kind]int),
	}
}

func (m *Metrics) Export(ctx context.Context, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totals[ev.Kind]++

	switch ev.Kind {
	case event.Heartbeat:
		m.processCounts = appendPoint(m.processCounts, Point{Time: ev.Timestamp, Value: ev.Count}, m.limit)
	case event.FileScanSummary:
		m.fileChangeCounts = appendPoint(m.fileChangeCounts, Point{Time: ev.Timestamp, Value: ev.Count}, m.limit)
	case event.NetworkSample:
		m.network = &NetworkPoint{Time: ev.Timestamp, BytesSent: ev.BytesSent, BytesRecv: ev.BytesRecv}
	}
	return nil
}

func appendPoint(series []Point, p Point, limit int) []Point {
	series = append(series, p)
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series
}

// Snapshot returns a copy of the current series and totals
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		ProcessCounts:    append([]Point(nil), m.processCounts...),
		FileChangeCounts: append([]Point(nil), m.fileChangeCounts...),
		Totals:           make(map[string]int, len(m.totals)),
	}
	if m.network != nil {
		n := *m.network
		snap.Network = &n
	}
	for k, v := range m.totals {
		snap.Totals[string(k)] = v
	}
	return snap
}
