package ratelimit

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	count     int
	resetTime time.Time
}

// MemoryCounter keeps windows in process memory. State is per process and is
// lost on restart.
type MemoryCounter struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{entries: make(map[string]*entry)}
}

func (m *MemoryCounter) Increment(_ context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || !now.Before(e.resetTime) {
		e = &entry{resetTime: now.Add(window)}
		m.entries[key] = e
	}
	e.count++
	return e.count, e.resetTime, nil
}

// Sweep drops windows that closed before now and returns how many it removed.
func (m *MemoryCounter) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, e := range m.entries {
		if !now.Before(e.resetTime) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryCounter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
