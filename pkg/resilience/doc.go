// Package resilience isolates failing plugins and retries transient
// failures.
//
// A governed invocation runs as Breaker(Retry(call)): the [Breaker] sees one
// outcome per retry sequence, and a [Guard] turns whatever failure survives
// into a safe fallback message for the model. Cancellation passes straight
// through every layer; it is never retried, never counted against a circuit,
// and never degraded.
package resilience
