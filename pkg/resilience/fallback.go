package resilience

import (
	"errors"
	"fmt"

	"github.com/rhuss/plugflow/pkg/api"
)

// Classify maps a plugin failure to its error kind.
func Classify(err error, isTransient func(error) bool) api.ErrorKind {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return api.ErrorKindCircuitOpen
	case isTransient != nil && isTransient(err):
		return api.ErrorKindTransientPluginFailure
	default:
		return api.ErrorKindPermanentPluginFailure
	}
}

// FallbackResponse returns the model-visible note for a failed invocation.
// The text depends only on the plugin name and the error kind, so no error
// detail can reach the model or the user.
func FallbackResponse(name string, kind api.ErrorKind) string {
	var reason string
	switch kind {
	case api.ErrorKindPolicyRejected:
		reason = "is not permitted by the current security policy"
	case api.ErrorKindRateLimited:
		reason = "has reached its usage limit; try again later"
	case api.ErrorKindCircuitOpen:
		reason = "is temporarily unavailable after repeated failures"
	case api.ErrorKindTransientPluginFailure:
		reason = "did not respond in time after several attempts"
	case api.ErrorKindMalformedArguments:
		reason = "received arguments that were not valid JSON"
	case api.ErrorKindChainLimitExceeded:
		reason = "was not called because too many functions were chained in this response"
	default:
		reason = "could not complete the request"
	}
	return fmt.Sprintf("The %s function %s. Continue without its result and tell the user if it matters.", name, reason)
}
