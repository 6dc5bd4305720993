// Package keylock serialises work on a single entity key across goroutines.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Table hands out one mutex per key and forgets it once nobody holds or waits on it.
type Table struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *Table {
	return &Table{locks: make(map[string]*entry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (t *Table) Lock(key string) func() {
	t.mu.Lock()
	e, ok := t.locks[key]
	if !ok {
		e = &entry{}
		t.locks[key] = e
	}
	e.refs++
	t.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		t.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}

// Len is the number of keys currently held or awaited.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
