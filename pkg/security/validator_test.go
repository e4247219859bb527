package security

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhuss/plugflow/pkg/plugin"
)

func inv(name string) plugin.Invocation {
	return plugin.Invocation{CallID: "call_1", Name: name}
}

func TestCanExecute(t *testing.T) {
	v := NewValidator(NewPolicy(
		[]string{"WeatherPlugin", "ClockPlugin", "Shell"},
		nil,
		[]string{"Shell", "Ghost"},
		nil,
	), nil)

	assert.True(t, v.CanExecute("WeatherPlugin"))
	assert.False(t, v.CanExecute("Shell"), "disabled wins over allowlist")
	assert.False(t, v.CanExecute("Ghost"))
	assert.False(t, v.CanExecute("Unknown"), "not allowlisted")

	assert.Equal(t, Decision{Reason: "disabled"}, v.Decide("Shell"))
	assert.Equal(t, Decision{Reason: "not allowlisted"}, v.Decide("Unknown"))
}

func TestAuthorizeConfirmation(t *testing.T) {
	v := NewValidator(NewPolicy([]string{"FileWriter", "WeatherPlugin"}, []string{"FileWriter"}, nil, nil), nil)
	ctx := context.Background()

	require.NoError(t, v.Authorize(ctx, inv("WeatherPlugin"), nil), "no confirmation needed")

	err := v.Authorize(ctx, inv("FileWriter"), nil)
	assert.ErrorIs(t, err, ErrPolicyRejected, "nil predicate auto-denies")

	err = v.Authorize(ctx, inv("FileWriter"), ConfirmList([]string{"Other"}))
	assert.ErrorIs(t, err, ErrPolicyRejected)

	assert.NoError(t, v.Authorize(ctx, inv("FileWriter"), ConfirmList([]string{"FileWriter"})))

	err = v.Authorize(ctx, inv("FileWriter"), func(context.Context, plugin.Invocation) (bool, error) {
		return false, errors.New("ui gone")
	})
	assert.ErrorIs(t, err, ErrPolicyRejected)
}

func TestAuthorizeRejectsBeforeConfirming(t *testing.T) {
	v := NewValidator(NewPolicy(nil, []string{"Shell"}, []string{"Shell"}, nil), nil)
	called := false
	err := v.Authorize(context.Background(), inv("Shell"), func(context.Context, plugin.Invocation) (bool, error) {
		called = true
		return true, nil
	})
	assert.ErrorIs(t, err, ErrPolicyRejected)
	assert.False(t, called)
}

func TestAuthorizeCancelledConfirmation(t *testing.T) {
	v := NewValidator(NewPolicy([]string{"FileWriter"}, []string{"FileWriter"}, nil, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	err := v.Authorize(ctx, inv("FileWriter"), func(ctx context.Context, _ plugin.Invocation) (bool, error) {
		cancel()
		<-ctx.Done()
		return false, ctx.Err()
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrPolicyRejected)
}

func TestWithRiskDefaults(t *testing.T) {
	reg, err := plugin.NewRegistry(
		plugin.Descriptor{Name: "FileWriter", Backend: "fs", RiskTier: plugin.SystemModifying},
		plugin.Descriptor{Name: "Reader", Backend: "fs", RiskTier: plugin.DataAccess},
	)
	require.NoError(t, err)

	base := NewPolicy([]string{"FileWriter", "Reader"}, nil, nil, nil)
	p := base.WithRiskDefaults(reg)

	v := NewValidator(p, nil)
	assert.True(t, v.RequiresConfirmation("FileWriter"))
	assert.False(t, v.RequiresConfirmation("Reader"))
	assert.Empty(t, base.RequireConfirmation, "original policy untouched")
}

// TestDisabledNeverExecutes checks that membership in the disabled set
// forces CanExecute to false for any allowlist.
func TestDisabledNeverExecutes(t *testing.T) {
	properties := gopter.NewProperties(nil)
	pool := []string{"a", "b", "c", "d", "e", "f"}
	name := func() gopter.Gen {
		return gen.IntRange(0, len(pool)-1).Map(func(i int) string { return pool[i] })
	}

	properties.Property("disabled implies not executable", prop.ForAll(
		func(allow, disabled []string, probe string) bool {
			v := NewValidator(NewPolicy(allow, nil, disabled, nil), nil)
			if has(toSet(disabled), probe) {
				return !v.CanExecute(probe)
			}
			return v.CanExecute(probe) == has(toSet(allow), probe)
		},
		gen.SliceOf(name()),
		gen.SliceOf(name()),
		name(),
	))

	properties.TestingRun(t)
}
