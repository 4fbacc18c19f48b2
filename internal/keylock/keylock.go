// Package keylock provides mutual exclusion scoped to a single int64 key,
// typically a session ID. Different keys never contend beyond a brief map lookup.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map hands out one mutex per key and forgets keys nobody holds
type Map struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

func New() *Map {
	return &Map{locks: make(map[int64]*entry)}
}

// Lock blocks until key is held and returns the matching unlock function
func (m *Map) Lock(key int64) (unlock func()) {
	m.mu.Lock()
	e, ok := m.locks[key]
	if !ok {
		e = &entry{}
		m.locks[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}

// Len reports how many keys are currently held or awaited
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
