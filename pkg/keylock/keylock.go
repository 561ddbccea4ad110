// Package keylock provides mutual exclusion scoped to string keys.
// Entries exist only while a key is held or awaited, so the map does not
// grow with the number of distinct keys ever used.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Map hands out one lock per key. The zero value is ready to use.
type Map struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty Map.
func New() *Map {
	return &Map{entries: make(map[string]*entry)}
}

// Lock blocks until the key is acquired or ctx is done. The returned
// function releases the key and must be called exactly once.
func (m *Map) Lock(ctx context.Context, key string) (func(), error) {
	e := m.acquire(key)

	select {
	case e.sem <- struct{}{}:
		return func() { m.release(key, e) }, nil
	case <-ctx.Done():
		m.drop(key, e)
		return nil, ctx.Err()
	}
}

// TryLock acquires the key without waiting. It reports false when the key
// is already held.
func (m *Map) TryLock(key string) (func(), bool) {
	e := m.acquire(key)

	select {
	case e.sem <- struct{}{}:
		return func() { m.release(key, e) }, true
	default:
		m.drop(key, e)
		return nil, false
	}
}

// Held reports whether the key is currently locked.
func (m *Map) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	return ok && len(e.sem) > 0
}

func (m *Map) acquire(key string) *entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.entries == nil {
		m.entries = make(map[string]*entry)
	}

	e, ok := m.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		m.entries[key] = e
	}
	e.refs++
	return e
}

func (m *Map) release(key string, e *entry) {
	<-e.sem
	m.drop(key, e)
}

func (m *Map) drop(key string, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
}
