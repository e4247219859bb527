// Package audit records one entry per governed plugin invocation: who called
// which plugin, how it ended, and how long it took. Arguments and results are
// never stored.
package audit

import (
	"context"
	"errors"
	"time"

	"github.com/rhuss/plugflow/pkg/api"
)

// Outcome is how an invocation ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

// Record is one audit entry.
type Record struct {
	ID            int64         `json:"id"`
	CorrelationID string        `json:"correlationId"`
	CallID        string        `json:"callId"`
	Plugin        string        `json:"plugin"`
	Outcome       Outcome       `json:"outcome"`
	ErrorKind     api.ErrorKind `json:"errorKind,omitempty"`
	Attempts      int           `json:"attempts"`
	Degraded      bool          `json:"degraded"`
	Duration      time.Duration `json:"-"`
	DurationMs    int64         `json:"durationMs"`
	CreatedAt     time.Time     `json:"createdAt"`
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Plugin        string
	CorrelationID string

	// Limit caps the number of records returned, newest first. Zero means
	// DefaultLimit.
	Limit int
}

const (
	// DefaultLimit is used when Filter.Limit is zero.
	DefaultLimit = 100
	// MaxLimit is the largest limit accepted over HTTP.
	MaxLimit = 1000
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("audit store closed")

// Recorder accepts audit records. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// Store is a Recorder that can also be queried.
type Store interface {
	Recorder
	List(ctx context.Context, f Filter) ([]Record, error)
	Close() error
}

// Nop discards every record.
type Nop struct{}

func (Nop) Record(context.Context, Record) error { return nil }

func (Nop) List(context.Context, Filter) ([]Record, error) { return nil, nil }

func (Nop) Close() error { return nil }

// EffectiveLimit returns the limit to apply for f.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

// Matches reports whether rec passes the filter.
func (f Filter) Matches(rec Record) bool {
	if f.Plugin != "" && rec.Plugin != f.Plugin {
		return false
	}
	if f.CorrelationID != "" && rec.CorrelationID != f.CorrelationID {
		return false
	}
	return true
}
