package provider

import "context"

// Provider abstracts a streaming language model backend.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string

	// StreamCompletion starts one model turn. The returned channel receives
	// Delta values and is closed by the provider when the turn ends. A
	// stream failure is reported as a final DeltaError before the close.
	// Errors returned directly mean no delta was produced.
	StreamCompletion(ctx context.Context, req *Request) (<-chan Delta, error)
}
