// Package provider defines the interface the orchestrator uses to stream
// completions from a language model. Adapters translate their backend
// protocol into the closed Delta union so the engine never sees
// backend-specific chunk shapes.
package provider
