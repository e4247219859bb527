package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/rhuss/plugflow/pkg/audit"
	"github.com/rhuss/plugflow/pkg/audit/memory"
	"github.com/rhuss/plugflow/pkg/audit/postgres"
	"github.com/rhuss/plugflow/pkg/config"
	"github.com/rhuss/plugflow/pkg/debug"
	"github.com/rhuss/plugflow/pkg/engine"
	"github.com/rhuss/plugflow/pkg/plugin"
	"github.com/rhuss/plugflow/pkg/plugin/builtin"
	"github.com/rhuss/plugflow/pkg/plugin/mcp"
	"github.com/rhuss/plugflow/pkg/provider"
	"github.com/rhuss/plugflow/pkg/provider/openai"
	"github.com/rhuss/plugflow/pkg/ratelimit"
	"github.com/rhuss/plugflow/pkg/resilience"
	"github.com/rhuss/plugflow/pkg/security"
)

// app holds the wired components of a running gateway.
type app struct {
	registry     *plugin.Registry
	orchestrator *engine.Orchestrator
	store        audit.Store // nil when auditing is disabled
	mcpClients   []*mcp.Client
	logger       *slog.Logger
}

// Close releases MCP sessions and the audit store.
func (a *app) Close() {
	for _, c := range a.mcpClients {
		if err := c.Close(); err != nil {
			a.logger.Warn("closing MCP client", "mcp_server", c.Name(), "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing audit store", "error", err)
		}
	}
}

func initLogging(cfg *config.Config) *slog.Logger {
	return debug.Init(debug.Settings{
		Categories: cfg.Observability.Debug,
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		Output:     os.Stderr,
	})
}

// buildApp wires provider, plugins, governance and audit from cfg.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	reg, router, err := a.buildPlugins(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.registry = reg

	validator, limiter, err := buildGovernance(cfg, reg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	recorder, err := a.buildAudit(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	orch, err := engine.New(buildProvider(cfg, logger), reg, router,
		engine.Config{
			DefaultModel:  cfg.Engine.DefaultModel,
			MaxChainDepth: cfg.Engine.MaxChainDepth,
			PluginTimeout: cfg.Engine.PluginTimeout,
		},
		engine.WithValidator(validator),
		engine.WithLimiter(limiter),
		engine.WithGuard(buildGuard(cfg, logger)),
		engine.WithRecorder(recorder),
		engine.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}
	a.orchestrator = orch
	return a, nil
}

func buildProvider(cfg *config.Config, logger *slog.Logger) provider.Provider {
	p := openai.New(openai.Config{
		Name:    cfg.Engine.Provider,
		BaseURL: cfg.Engine.BackendURL,
		APIKey:  cfg.Engine.APIKey,
		Timeout: cfg.Engine.ProviderTimeout,
	}, logger)
	return provider.Throttle(p, cfg.Engine.ProviderRPS, cfg.Engine.ProviderBurst)
}

// buildPlugins registers the selected built-ins and every tool discovered
// on the configured MCP servers. Unreachable MCP servers are skipped.
func (a *app) buildPlugins(ctx context.Context, cfg *config.Config) (*plugin.Registry, *plugin.Router, error) {
	builtins, err := selectBuiltins(cfg.Plugins.Builtin)
	if err != nil {
		return nil, nil, err
	}
	backend := builtin.NewBackend(builtins...)
	descs := backend.Descriptors()

	clients, mcpDescs := mcp.ConnectAll(ctx, cfg.MCPServers(), a.logger)
	a.mcpClients = clients
	descs = append(descs, mcpDescs...)

	reg, err := plugin.NewRegistry(descs...)
	if err != nil {
		return nil, nil, fmt.Errorf("registering plugins: %w", err)
	}

	router := plugin.NewRouter(reg, plugin.WithRouterLogger(a.logger))
	router.Handle(plugin.BackendBuiltin, backend)
	for _, c := range clients {
		router.Handle(c.Name(), c)
	}

	a.logger.Info("plugins registered",
		"builtin", len(builtins),
		"mcp_servers", len(clients),
		"total", reg.Len(),
	)
	return reg, router, nil
}

// selectBuiltins returns the named built-in plugins, or all of them when
// names is empty.
func selectBuiltins(names []string) ([]builtin.Plugin, error) {
	all := builtin.Defaults()
	if len(names) == 0 {
		return all, nil
	}
	var out []builtin.Plugin
	var unknown []string
	for _, n := range names {
		i := slices.IndexFunc(all, func(p builtin.Plugin) bool { return p.Descriptor.Name == n })
		if i < 0 {
			unknown = append(unknown, n)
			continue
		}
		out = append(out, all[i])
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("plugins.builtin: unknown plugin(s) %s", strings.Join(unknown, ", "))
	}
	return out, nil
}

// buildGovernance derives the validator and rate limiter from the security
// section. An empty allowlist admits every registered plugin.
func buildGovernance(cfg *config.Config, reg *plugin.Registry, logger *slog.Logger) (*security.Validator, *ratelimit.Limiter, error) {
	limits, err := cfg.Security.Limits()
	if err != nil {
		return nil, nil, err
	}

	allow := cfg.Security.Allowlist
	if len(allow) == 0 {
		allow = reg.Names()
	}
	for _, n := range append(slices.Clone(cfg.Security.Allowlist), cfg.Security.RequireConfirmation...) {
		if _, ok := reg.Lookup(n); !ok {
			logger.Warn("security policy names an unregistered plugin", "plugin", n)
		}
	}

	policy := security.NewPolicy(allow, cfg.Security.RequireConfirmation, cfg.Security.Disabled, limits)
	if cfg.Security.ConfirmSystemModifying {
		policy = policy.WithRiskDefaults(reg)
	}

	return security.NewValidator(policy, logger),
		ratelimit.NewLimiter(limits, ratelimit.WithLogger(logger)),
		nil
}

func buildGuard(cfg *config.Config, logger *slog.Logger) *resilience.Guard {
	r := cfg.Resilience
	return resilience.NewGuard(
		resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold: r.FailureThreshold,
			RecoveryTimeout:  r.RecoveryTimeout,
		}, resilience.WithBreakerLogger(logger)),
		resilience.NewRetrier(resilience.RetryConfig{
			MaxRetries: r.MaxRetries,
			BaseDelay:  r.BaseDelay,
			MaxDelay:   r.MaxDelay,
		}, resilience.WithRetrierLogger(logger)),
	)
}

// buildAudit opens the configured audit store. The returned recorder is
// never nil.
func (a *app) buildAudit(ctx context.Context, cfg *config.Config) (audit.Recorder, error) {
	switch cfg.Audit.Type {
	case "memory":
		a.store = memory.New(cfg.Audit.MaxSize)
		a.logger.Info("audit enabled", "type", "memory", "max_size", cfg.Audit.MaxSize)
	case "postgres":
		pg := cfg.Audit.Postgres
		store, err := postgres.New(ctx, postgres.Config{
			DSN:            pg.DSN,
			MaxConns:       pg.MaxConns,
			MigrateOnStart: pg.MigrateOnStart,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres audit store: %w", err)
		}
		a.store = store
		a.logger.Info("audit enabled", "type", "postgres")
	case "none", "":
		a.logger.Info("audit disabled")
		return audit.Nop{}, nil
	default:
		return nil, errors.New("audit.type must be none, memory or postgres")
	}
	return a.store, nil
}
