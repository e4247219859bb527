package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rhuss/plugflow/pkg/plugin"
)

// ErrPolicyRejected is returned for plugins the policy does not permit,
// including plugins whose confirmation was denied.
var ErrPolicyRejected = errors.New("rejected by security policy")

// ConfirmFunc asks the caller to approve an invocation. It may block, and
// must return promptly once ctx is done.
type ConfirmFunc func(ctx context.Context, inv plugin.Invocation) (bool, error)

// Decision is the policy verdict for one plugin, used for introspection.
type Decision struct {
	Allowed              bool   `json:"allowed"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
	Reason               string `json:"reason,omitempty"`
}

// Validator evaluates a Policy.
type Validator struct {
	policy Policy
	logger *slog.Logger
}

// NewValidator returns a validator for policy. A nil logger uses
// slog.Default().
func NewValidator(policy Policy, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{policy: policy, logger: logger}
}

// Policy returns the validator's policy.
func (v *Validator) Policy() Policy {
	return v.policy
}

// CanExecute reports whether the plugin may run at all. The disabled list
// wins over the allowlist.
func (v *Validator) CanExecute(name string) bool {
	d := v.decide(name)
	if !d.Allowed {
		v.logger.Warn("security policy rejection", "plugin", name, "reason", d.Reason)
	}
	return d.Allowed
}

// RequiresConfirmation reports whether an allowed plugin additionally needs
// caller approval.
func (v *Validator) RequiresConfirmation(name string) bool {
	return has(v.policy.RequireConfirmation, name)
}

// Decide returns the full verdict for a plugin without logging.
func (v *Validator) Decide(name string) Decision {
	return v.decide(name)
}

func (v *Validator) decide(name string) Decision {
	d := Decision{RequiresConfirmation: v.RequiresConfirmation(name)}
	switch {
	case has(v.policy.Disabled, name):
		d.Reason = "disabled"
	case !has(v.policy.Allowlist, name):
		d.Reason = "not allowlisted"
	default:
		d.Allowed = true
	}
	return d
}

// Authorize runs the full gate for one invocation: CanExecute, then the
// confirmation predicate when the plugin requires one. A nil confirm denies
// every plugin that requires confirmation. Context errors from the predicate
// are returned as-is so cancellation is not reported as a rejection.
func (v *Validator) Authorize(ctx context.Context, inv plugin.Invocation, confirm ConfirmFunc) error {
	if !v.CanExecute(inv.Name) {
		return fmt.Errorf("%w: plugin %s is %s", ErrPolicyRejected, inv.Name, v.decide(inv.Name).Reason)
	}
	d := v.decide(inv.Name)
	if !d.RequiresConfirmation {
		return nil
	}
	if confirm == nil {
		v.logger.Warn("security policy rejection", "plugin", inv.Name, "reason", "confirmation unavailable")
		return fmt.Errorf("%w: plugin %s requires confirmation", ErrPolicyRejected, inv.Name)
	}
	ok, err := confirm(ctx, inv)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		v.logger.Warn("confirmation failed", "plugin", inv.Name, "error", err)
		return fmt.Errorf("%w: confirmation for %s failed", ErrPolicyRejected, inv.Name)
	}
	if !ok {
		v.logger.Info("security policy rejection", "plugin", inv.Name, "reason", "confirmation denied")
		return fmt.Errorf("%w: confirmation for %s denied", ErrPolicyRejected, inv.Name)
	}
	return nil
}

// ConfirmList returns a ConfirmFunc that approves exactly the named plugins.
func ConfirmList(names []string) ConfirmFunc {
	set := toSet(names)
	return func(_ context.Context, inv plugin.Invocation) (bool, error) {
		return has(set, inv.Name), nil
	}
}
