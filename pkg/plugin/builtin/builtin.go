// Package builtin hosts in-process plugins.
//
// Each Plugin pairs a descriptor with a handler. A Backend routes calls to
// handlers by plugin name and satisfies plugin.Invoker, so the router can
// treat built-in plugins exactly like remote ones.
package builtin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rhuss/plugflow/pkg/plugin"
)

// Handler executes a plugin with JSON-encoded arguments. Implementations
// must be safe for concurrent use and respect ctx.
type Handler func(ctx context.Context, args json.RawMessage) (string, error)

// Plugin is a built-in plugin ready for registration.
type Plugin struct {
	Descriptor plugin.Descriptor
	Handler    Handler
}

// Backend serves built-in plugins.
type Backend struct {
	plugins map[string]Plugin
	order   []string
}

var _ plugin.Invoker = (*Backend)(nil)

// NewBackend returns a backend serving the given plugins. Descriptor
// backends are forced to plugin.BackendBuiltin.
func NewBackend(plugins ...Plugin) *Backend {
	b := &Backend{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		p.Descriptor.Backend = plugin.BackendBuiltin
		if _, dup := b.plugins[p.Descriptor.Name]; !dup {
			b.order = append(b.order, p.Descriptor.Name)
		}
		b.plugins[p.Descriptor.Name] = p
	}
	return b
}

// Descriptors returns the descriptors of all served plugins in registration
// order.
func (b *Backend) Descriptors() []plugin.Descriptor {
	out := make([]plugin.Descriptor, 0, len(b.order))
	for _, n := range b.order {
		out = append(out, b.plugins[n].Descriptor)
	}
	return out
}

// Invoke runs the named handler.
func (b *Backend) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	p, ok := b.plugins[name]
	if !ok {
		return "", fmt.Errorf("%w: builtin %s", plugin.ErrNotFound, name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.Handler(ctx, args)
}

// decodeArgs unmarshals args into v, treating empty input as {}.
func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return fmt.Errorf("%w: %v", plugin.ErrInvalidArguments, err)
	}
	return nil
}

func encodeResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(data), nil
}
