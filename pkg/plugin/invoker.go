package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Invocation is one fully assembled function call. It is consumed exactly
// once.
type Invocation struct {
	CallID    string
	Name      string
	Arguments json.RawMessage
}

// Invoker dispatches a plugin call. Implementations return errors wrapped
// with Transient for failures worth retrying.
type Invoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, name string, args json.RawMessage) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, name string, args json.RawMessage) (string, error) {
	return f(ctx, name, args)
}

// Router dispatches each call to the backend named by the plugin's
// descriptor.
type Router struct {
	registry *Registry
	backends map[string]Invoker
	logger   *slog.Logger
}

// Ensure Router implements Invoker at compile time.
var _ Invoker = (*Router)(nil)

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger used to report backend panics.
func WithRouterLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) { r.logger = logger }
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry, opts ...RouterOption) *Router {
	r := &Router{registry: registry, backends: make(map[string]Invoker), logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle registers the invoker for a backend name. It is not safe to call
// once the router is serving.
func (r *Router) Handle(backend string, inv Invoker) {
	r.backends[backend] = inv
}

// Backends returns the registered backend names.
func (r *Router) Backends() []string {
	out := make([]string, 0, len(r.backends))
	for name := range r.backends {
		out = append(out, name)
	}
	return out
}

// Invoke routes the call and converts backend panics into permanent errors.
func (r *Router) Invoke(ctx context.Context, name string, args json.RawMessage) (result string, err error) {
	d, ok := r.registry.Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	inv, ok := r.backends[d.Backend]
	if !ok {
		return "", fmt.Errorf("%w: no backend %q for plugin %s", ErrNotFound, d.Backend, name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("plugin backend panicked", "plugin", name, "backend", d.Backend, "panic", rec)
			result, err = "", fmt.Errorf("plugin %s panicked", name)
		}
	}()
	return inv.Invoke(ctx, name, args)
}
