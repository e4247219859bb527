// Package engine drives one conversational request through a language
// model. It interleaves streamed text with governed plugin invocations and
// produces an ordered, cancellable sequence of api.StreamEvent values that
// always ends with exactly one final event.
//
// Every function call the model makes passes the same pipeline: the
// request's offered plugins, the security validator (with the optional
// confirmation predicate), the rate limiter, argument schema validation, and
// finally Breaker(Retry(invoke)) with a fallback note on failure. Failures
// become function_failed events plus a model-visible tool message; only
// cancellation, provider failures and the chain depth limit end a stream
// early.
package engine
