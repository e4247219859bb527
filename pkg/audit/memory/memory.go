// Package memory provides a bounded in-memory audit store. The oldest
// record is overwritten once the ring is full; everything is lost on
// restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rhuss/plugflow/pkg/audit"
)

// DefaultSize is used when New is called with a non-positive size.
const DefaultSize = 10000

// Store is a fixed-capacity ring of audit records.
type Store struct {
	mu     sync.RWMutex
	ring   []audit.Record
	next   int // slot for the next write
	count  int
	lastID int64
	closed bool
	now    func() time.Time
}

var _ audit.Store = (*Store)(nil)

// New creates a store holding at most size records.
func New(size int) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	return &Store{ring: make([]audit.Record, size), now: time.Now}
}

// Record stores rec, assigning its ID and, when unset, its timestamp.
func (s *Store) Record(_ context.Context, rec audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audit.ErrClosed
	}

	s.lastID++
	rec.ID = s.lastID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	rec.DurationMs = rec.Duration.Milliseconds()

	s.ring[s.next] = rec
	s.next = (s.next + 1) % len(s.ring)
	if s.count < len(s.ring) {
		s.count++
	}
	return nil
}

// List returns matching records, newest first.
func (s *Store) List(_ context.Context, f audit.Filter) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, audit.ErrClosed
	}

	limit := f.EffectiveLimit()
	out := make([]audit.Record, 0, min(limit, s.count))
	for i := 1; i <= s.count && len(out) < limit; i++ {
		rec := s.ring[(s.next-i+len(s.ring))%len(s.ring)]
		if f.Matches(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Len returns the number of records currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
