// Package arena holds process-wide state keyed by plugin name.
//
// An Arena owns one entry per key. Entries are created on first use and are
// never removed, so a pointer handed out for a key stays valid for the life
// of the process. Every entry carries its own mutex: work on different keys
// never contends, work on the same key is serialized.
package arena

import (
	"sort"
	"sync"
)

// Arena maps keys to lazily created, individually locked values.
type Arena[T any] struct {
	init func(key string) T

	mu      sync.RWMutex
	entries map[string]*entry[T]
}

type entry[T any] struct {
	mu    sync.Mutex
	value T
}

// New returns an Arena whose entries are initialized by init on first
// access. A nil init leaves new entries at the zero value of T.
func New[T any](init func(key string) T) *Arena[T] {
	return &Arena[T]{
		init:    init,
		entries: make(map[string]*entry[T]),
	}
}

// With runs fn while holding the lock of key's entry. fn must not call back
// into the arena for the same key.
func (a *Arena[T]) With(key string, fn func(v *T)) {
	e := a.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.value)
}

// Snapshot returns a copy of key's value taken under its lock. The entry is
// created if it does not exist yet.
func (a *Arena[T]) Snapshot(key string) T {
	var out T
	a.With(key, func(v *T) { out = *v })
	return out
}

// Keys returns the keys that have an entry, sorted.
func (a *Arena[T]) Keys() []string {
	a.mu.RLock()
	keys := make([]string, 0, len(a.entries))
	for k := range a.entries {
		keys = append(keys, k)
	}
	a.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Len returns the number of entries.
func (a *Arena[T]) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

func (a *Arena[T]) entry(key string) *entry[T] {
	a.mu.RLock()
	e, ok := a.entries[key]
	a.mu.RUnlock()
	if ok {
		return e
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[key]; ok {
		return e
	}
	e = &entry[T]{}
	if a.init != nil {
		e.value = a.init(key)
	}
	a.entries[key] = e
	return e
}
