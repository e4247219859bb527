package engine

import "time"

const (
	defaultMaxChainDepth = 10
	defaultPluginTimeout = 30 * time.Second

	// eventBuffer bounds the output channel so a slow consumer applies
	// backpressure to the provider read loop.
	eventBuffer = 16
)

// Config holds orchestrator settings.
type Config struct {
	// DefaultModel is used when a request omits the model.
	DefaultModel string

	// MaxChainDepth is the number of consecutive model turns that may issue
	// function calls. A call in the turn after that fails with
	// ChainLimitExceeded and ends the stream. Zero or negative means 10.
	MaxChainDepth int

	// PluginTimeout bounds each invocation attempt. A timed-out attempt is
	// a transient failure and is retried. Zero means 30s; negative disables
	// the per-attempt deadline.
	PluginTimeout time.Duration
}

func (c Config) maxChainDepth() int {
	if c.MaxChainDepth <= 0 {
		return defaultMaxChainDepth
	}
	return c.MaxChainDepth
}

func (c Config) pluginTimeout() time.Duration {
	if c.PluginTimeout == 0 {
		return defaultPluginTimeout
	}
	return c.PluginTimeout
}
