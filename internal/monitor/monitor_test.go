package monitor

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/0xA1M/sentinel-audit/internal/event"
	"github.com/0xA1M/sentinel-audit/internal/sampler"
	"github.com/0xA1M/sentinel-audit/internal/scheduler"
	"github.com/0xA1M/sentinel-audit/internal/source"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(ev event.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) take() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func (r *recorder) count(k event.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == k {
			n++
		}
	}
	return n
}

func kinds(events []event.Event) []event.Kind {
	out := make([]event.Kind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

type fakeProcesses struct {
	snapshots []sampler.ProcessSnapshot
	err       error
}

func (f *fakeProcesses) Processes(ctx context.Context) (sampler.ProcessSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	snap := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return snap, nil
}

type fakeCounters struct {
	counters sampler.NetworkCounters
	err      error
}

func (f *fakeCounters) Counters(ctx context.Context) (sampler.NetworkCounters, error) {
	return f.counters, f.err
}

type fakeWalker struct {
	root    string
	missing bool
	entries []sampler.FileEntry
}

func (f *fakeWalker) Root() string { return f.root }

func (f *fakeWalker) Check() error {
	if f.missing {
		return fmt.Errorf("%w: %s does not exist", source.ErrSourceUnavailable, f.root)
	}
	return nil
}

func (f *fakeWalker) Entries(ctx context.Context) iter.Seq[sampler.FileEntry] {
	entries := append([]sampler.FileEntry(nil), f.entries...)
	return func(yield func(sampler.FileEntry) bool) {
		for _, e := range entries {
			if ctx.Err() != nil || !yield(e) {
				return
			}
		}
	}
}

func newTestMonitor(t *testing.T, src Sources) (*Monitor, *recorder) {
	rec := &recorder{}
	return New(Config{Schedule: "@every 10ms"}, src, rec, zaptest.NewLogger(t)), rec
}

func TestProcessCycle(t *testing.T) {
	procs := &fakeProcesses{snapshots: []sampler.ProcessSnapshot{
		{1: "init", 2: "bash"},
		{1: "init", 3: "vim"},
	}}
	m, rec := newTestMonitor(t, Sources{Processes: procs})
	ctx := context.Background()

	require.NoError(t, m.ProcessCycle(ctx))
	first := rec.take()
	assert.Equal(t, []event.Kind{event.Heartbeat}, kinds(first))
	assert.Equal(t, 2, first[0].Count)

	require.NoError(t, m.ProcessCycle(ctx))
	second := rec.take()
	require.Equal(t, []event.Kind{event.ProcessStarted, event.ProcessEnded, event.Heartbeat}, kinds(second))
	assert.Equal(t, int32(3), second[0].PID)
	assert.Equal(t, "vim", second[0].Name)
	assert.Equal(t, int32(2), second[1].PID)
	assert.Equal(t, "bash", second[1].Name)
}

func TestProcessCycleErrorIsRetryable(t *testing.T) {
	m, rec := newTestMonitor(t, Sources{Processes: &fakeProcesses{err: errors.New("proc unreadable")}})

	err := m.ProcessCycle(context.Background())
	require.Error(t, err)
	assert.False(t, scheduler.IsPermanent(err))
	assert.Empty(t, rec.take())
}

func TestFileCycle(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	walker := &fakeWalker{root: "/home", entries: []sampler.FileEntry{
		{Path: "/home/a", ModTime: t0},
		{Path: "/home/b", ModTime: t0},
	}}
	m, rec := newTestMonitor(t, Sources{Files: walker})
	ctx := context.Background()

	require.NoError(t, m.FileCycle(ctx))
	first := rec.take()
	require.Equal(t, []event.Kind{event.FileScanStarted, event.FileScanSummary}, kinds(first))
	assert.Equal(t, "Monitoring directory: /home", first[0].Message())
	assert.Equal(t, 0, first[1].Count)

	walker.entries[0].ModTime = t0.Add(time.Minute)
	walker.entries = append(walker.entries, sampler.FileEntry{Path: "/home/gone", Err: errors.New("no such file")})

	require.NoError(t, m.FileCycle(ctx))
	second := rec.take()
	require.Equal(t, []event.Kind{event.FileScanStarted, event.FileChanged, event.FileMissing, event.FileScanSummary}, kinds(second))
	assert.Equal(t, "/home/a", second[1].Path)
	assert.Equal(t, 1, second[3].Count)
}

func TestFileCycleMissingRootIsPermanent(t *testing.T) {
	m, rec := newTestMonitor(t, Sources{Files: &fakeWalker{root: "/nope", missing: true}})

	err := m.FileCycle(context.Background())
	require.Error(t, err)
	assert.True(t, scheduler.IsPermanent(err))
	assert.ErrorIs(t, err, source.ErrSourceUnavailable)

	events := rec.take()
	require.Len(t, events, 1)
	assert.Equal(t, event.SourceUnavailable, events[0].Kind)
	assert.Equal(t, "/nope", events[0].Path)
}

func TestFileCycleCancelledPublishesNothing(t *testing.T) {
	walker := &fakeWalker{root: "/home", entries: []sampler.FileEntry{{Path: "/home/a", ModTime: time.Now()}}}
	m, rec := newTestMonitor(t, Sources{Files: walker})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, m.FileCycle(ctx), context.Canceled)
	assert.Empty(t, rec.take())
}

func TestNetworkCycle(t *testing.T) {
	counters := &fakeCounters{counters: sampler.NetworkCounters{BytesSent: 100, BytesRecv: 200}}
	m, rec := newTestMonitor(t, Sources{Counters: counters})
	ctx := context.Background()

	require.NoError(t, m.NetworkCycle(ctx))
	require.NoError(t, m.NetworkCycle(ctx))

	events := rec.take()
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, event.NetworkSample, ev.Kind)
		assert.Equal(t, uint64(100), ev.BytesSent)
		assert.Equal(t, uint64(200), ev.BytesRecv)
	}

	counters.err = errors.New("no interfaces")
	assert.Error(t, m.NetworkCycle(ctx))
}

func TestRegisterRunsJobsIndependently(t *testing.T) {
	src := Sources{
		Processes: &fakeProcesses{snapshots: []sampler.ProcessSnapshot{{1: "init"}}},
		Counters:  &fakeCounters{},
		Files:     &fakeWalker{root: "/missing", missing: true},
	}
	m, rec := newTestMonitor(t, src)

	s := scheduler.NewInMemoryScheduler(zaptest.NewLogger(t))
	require.NoError(t, m.Register(s))
	require.Len(t, s.Jobs(), 3)

	require.NoError(t, s.Start(context.Background()))
	require.Eventually(t, func() bool {
		return rec.count(event.Heartbeat) >= 3 && rec.count(event.NetworkSample) >= 3
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Equal(t, 1, rec.count(event.SourceUnavailable))
}

func TestRegisterRejectsBadSchedule(t *testing.T) {
	m := New(Config{Schedule: "*/5 * * * *"}, Sources{Files: &fakeWalker{root: "/home"}}, &recorder{}, nil)
	err := m.Register(scheduler.NewInMemoryScheduler(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, scheduler.ErrInvalidSchedule)
}

func TestNewDefaults(t *testing.T) {
	m := New(Config{}, SystemSources("/tmp"), &recorder{}, nil)
	assert.Equal(t, "@every 60s", m.Config().Schedule)
	assert.Equal(t, "/tmp", m.sources.Files.Root())
}
