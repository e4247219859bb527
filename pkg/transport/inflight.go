package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks running streams by correlation ID so that a
// DELETE request can cancel them.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	next    uint64
	entries map[string]inFlightEntry
}

type inFlightEntry struct {
	token  uint64
	cancel context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]inFlightEntry),
	}
}

// Register adds a running stream and returns the token that identifies this
// registration to Remove. It returns false, leaving the registry unchanged,
// when the ID is already in flight.
func (r *InFlightRegistry) Register(id string, cancel context.CancelFunc) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.entries[id]; dup {
		return 0, false
	}
	r.next++
	r.entries[id] = inFlightEntry{token: r.next, cancel: cancel}
	return r.next, true
}

// Cancel cancels a running stream. It returns false if the ID is not
// registered (already completed or never existed).
func (r *InFlightRegistry) Cancel(id string) bool {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	e.cancel()
	return true
}

// Remove removes a stream from the registry without cancelling it. Called
// when a stream completes. The entry is only deleted if it still belongs to
// the registration identified by token, so a finished stream never drops a
// newer stream that reused its ID.
func (r *InFlightRegistry) Remove(id string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[id]; ok && e.token == token {
		delete(r.entries, id)
	}
}

// Len returns the number of running streams.
func (r *InFlightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// CancelAll cancels every running stream and empties the registry. It
// returns the number of streams cancelled.
func (r *InFlightRegistry) CancelAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]inFlightEntry)
	r.mu.Unlock()
	for _, e := range entries {
		e.cancel()
	}
	return len(entries)
}
