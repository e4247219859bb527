// Package security decides whether a plugin may run.
//
// A Policy is loaded once at startup and never mutated. The Validator is a
// pure function of it: disabled plugins are always rejected, plugins outside
// the allowlist are rejected, and plugins that require confirmation need an
// affirmative answer from a caller-supplied predicate before dispatch.
package security

import (
	"github.com/rhuss/plugflow/pkg/plugin"
	"github.com/rhuss/plugflow/pkg/ratelimit"
)

// Policy is the static security configuration.
type Policy struct {
	Allowlist           map[string]struct{}
	RequireConfirmation map[string]struct{}
	Disabled            map[string]struct{}
	RateLimits          map[string]ratelimit.Rate
}

// NewPolicy builds a policy from name lists.
func NewPolicy(allow, confirm, disabled []string, limits map[string]ratelimit.Rate) Policy {
	p := Policy{
		Allowlist:           toSet(allow),
		RequireConfirmation: toSet(confirm),
		Disabled:            toSet(disabled),
		RateLimits:          make(map[string]ratelimit.Rate, len(limits)),
	}
	for k, v := range limits {
		p.RateLimits[k] = v
	}
	return p
}

// WithRiskDefaults returns a copy of p in which every SystemModifying plugin
// of the registry requires confirmation.
func (p Policy) WithRiskDefaults(reg *plugin.Registry) Policy {
	out := p
	out.RequireConfirmation = make(map[string]struct{}, len(p.RequireConfirmation))
	for k := range p.RequireConfirmation {
		out.RequireConfirmation[k] = struct{}{}
	}
	for _, d := range reg.Descriptors() {
		if d.RiskTier == plugin.SystemModifying {
			out.RequireConfirmation[d.Name] = struct{}{}
		}
	}
	return out
}

func toSet(names []string) map[string]struct{} {
	s := make(map[string]struct{}, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func has(s map[string]struct{}, name string) bool {
	_, ok := s[name]
	return ok
}
