package engine

import (
	"github.com/rhuss/plugflow/pkg/plugin"
	"github.com/rhuss/plugflow/pkg/security"
)

// PluginStatus is the introspection view of one registered plugin.
type PluginStatus struct {
	Descriptor plugin.Descriptor `json:"descriptor"`
	Policy     security.Decision `json:"policy"`
	Circuit    CircuitStatus     `json:"circuit"`

	// RateLimit is nil for plugins without a configured budget.
	RateLimit *RateStatus `json:"rateLimit,omitempty"`
}

// CircuitStatus is a snapshot of a plugin's breaker.
type CircuitStatus struct {
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
}

// RateStatus is the remaining budget in the current window.
type RateStatus struct {
	Limit     string `json:"limit"`
	Remaining int    `json:"remaining"`
}

// Plugins reports the status of every registered plugin in name order.
// Reading the status never records an invocation.
func (o *Orchestrator) Plugins() []PluginStatus {
	descs := o.registry.Descriptors()
	out := make([]PluginStatus, 0, len(descs))
	for _, d := range descs {
		c := o.guard.Breaker.State(d.Name)
		st := PluginStatus{
			Descriptor: d,
			Policy:     o.validator.Decide(d.Name),
			Circuit: CircuitStatus{
				State:               c.State.String(),
				ConsecutiveFailures: c.ConsecutiveFailures,
			},
		}
		if rs := o.limiter.Status(d.Name); rs.Limited {
			st.RateLimit = &RateStatus{Limit: rs.Rate.String(), Remaining: rs.Remaining}
		}
		out = append(out, st)
	}
	return out
}
