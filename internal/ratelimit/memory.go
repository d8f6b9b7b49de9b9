package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"vidkiosk/internal/store"
)

// MemoryLog is an in-process EventLog. It backs the limiter in tests and in
// the CLI's dry-run checks.
type MemoryLog struct {
	mu     sync.Mutex
	nextID int64
	events []store.PlayEvent
}

// NewMemoryLog returns an empty log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// EventsSince implements EventLog.
func (m *MemoryLog) EventsSince(_ context.Context, since time.Time) ([]store.PlayEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.PlayEvent
	for _, event := range m.events {
		if event.PlayedAt.After(since) {
			out = append(out, event)
		}
	}
	return out, nil
}

// AppendEvent implements EventLog.
func (m *MemoryLog) AppendEvent(_ context.Context, event store.PlayEvent) (store.PlayEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	event.ID = m.nextID
	m.events = append(m.events, event)
	sort.SliceStable(m.events, func(i, j int) bool {
		return m.events[i].PlayedAt.Before(m.events[j].PlayedAt)
	})
	return event, nil
}

// Len reports how many events have been recorded.
func (m *MemoryLog) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
