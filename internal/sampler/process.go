package sampler

import (
	"slices"
	"time"

	"github.com/0xA1M/sentinel-audit/internal/event"
)

// ProcessDelta is the set difference between two snapshots.
type ProcessDelta struct {
	Started []int32
	Ended   []int32
}

// Diff computes started = cur - prev and ended = prev - cur, both sorted.
// A pid present in both snapshots never appears, even if its name changed.
func Diff(prev, cur ProcessSnapshot) ProcessDelta {
	var d ProcessDelta
	for pid := range cur {
		if _, ok := prev[pid]; !ok {
			d.Started = append(d.Started, pid)
		}
	}
	for pid := range prev {
		if _, ok := cur[pid]; !ok {
			d.Ended = append(d.Ended, pid)
		}
	}
	slices.Sort(d.Started)
	slices.Sort(d.Ended)
	return d
}

// ProcessTracker remembers the previous snapshot and reports process
// starts and exits between observations.
type ProcessTracker struct {
	previous ProcessSnapshot
	seeded   bool
	now      func() time.Time
}

func NewProcessTracker() *ProcessTracker {
	return &ProcessTracker{now: time.Now}
}

// Observe diffs current against the previous snapshot and replaces it.
// The first call only seeds the tracker: it emits the heartbeat but no
// start or exit events.
func (pt *ProcessTracker) Observe(current ProcessSnapshot) []event.Event {
	ts := pt.now()

	if !pt.seeded {
		pt.previous = current
		pt.seeded = true
		return []event.Event{event.NewHeartbeat(ts, len(current))}
	}

	delta := Diff(pt.previous, current)
	events := make([]event.Event, 0, len(delta.Started)+len(delta.Ended)+1)
	for _, pid := range delta.Started {
		events = append(events, event.NewProcessStarted(ts, pid, current[pid]))
	}
	for _, pid := range delta.Ended {
		events = append(events, event.NewProcessEnded(ts, pid, pt.previous[pid]))
	}
	events = append(events, event.NewHeartbeat(ts, len(current)))

	pt.previous = current
	return events
}

// Seeded reports whether a first snapshot has been observed.
func (pt *ProcessTracker) Seeded() bool {
	return pt.seeded
}
