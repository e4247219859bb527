package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/plugflow/pkg/config"
	"github.com/rhuss/plugflow/pkg/transport"
	transporthttp "github.com/rhuss/plugflow/pkg/transport/http"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := initLogging(cfg)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := newHTTPServer(cfg, app, logger)

	logger.Info("plugflow starting",
		slog.Int("port", cfg.Server.Port),
		slog.String("backend", cfg.Engine.BackendURL),
		slog.String("model", cfg.Engine.DefaultModel),
		slog.Int("plugins", app.registry.Len()),
		slog.String("audit", cfg.Audit.Type),
	)

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", cfg.Server.Port, err)
	}
	return srv.ServeOn(ctx, ln)
}

// newHTTPServer builds the HTTP surface over a wired app.
func newHTTPServer(cfg *config.Config, a *app, logger *slog.Logger) *transporthttp.Server {
	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(":" + strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithLogger(logger),
		transporthttp.WithReadTimeout(cfg.Server.ReadTimeout),
		transporthttp.WithWriteTimeout(cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, transporthttp.WithCORSOrigins(cfg.Server.CORSOrigins...))
	}
	if cfg.Observability.Metrics.Enabled {
		opts = append(opts, transporthttp.WithMetrics(cfg.Observability.Metrics.Path))
	}

	handler := transport.NewStreamHandler(a.orchestrator, a.registry.Names(), logger)

	var store transporthttp.AuditLister
	if a.store != nil {
		store = a.store
	}
	return transporthttp.NewServer(handler, a.orchestrator, store, opts...)
}
