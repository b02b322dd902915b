package sink

import (
	"context"
	"sync"

	"github.com/0xA1M/sentinel-audit/internal/event"
)

// Memory keeps the most recent events for inspection.
type Memory struct {
	limit  int
	events []event.Event
	mu     sync.RWMutex
}

// NewMemory keeps up to limit events; zero means 100.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = 100
	}
	return &Memory{
		limit:  limit,
		events: make([]event.Event, 0, limit),
	}
}

func (m *Memory) Export(ctx context.Context, ev event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, ev)
	// Keep only the last limit events to prevent memory issues
	if len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
	return nil
}

// LastEvents returns the most recent events, oldest first
func (m *Memory) LastEvents(count int) []event.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if count > len(m.events) || count < 0 {
		count = len(m.events)
	}

	events := make([]event.Event, count)
	copy(events, m.events[len(m.events)-count:])

	return events
}
