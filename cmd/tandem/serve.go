package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tandem-dev/tandem/pkg/agent"
	"github.com/tandem-dev/tandem/pkg/commands"
	"github.com/tandem-dev/tandem/pkg/config"
	"github.com/tandem-dev/tandem/pkg/llms"
	"github.com/tandem-dev/tandem/pkg/observability"
	"github.com/tandem-dev/tandem/pkg/server"
	"github.com/tandem-dev/tandem/pkg/session"
	"github.com/tandem-dev/tandem/pkg/store"
	"github.com/tandem-dev/tandem/pkg/tools"
)

const shutdownTimeout = 30 * time.Second

// ServeCmd starts the backend HTTP server.
type ServeCmd struct {
	Port int `help:"HTTP port (overrides PORT)."`
}

func (c *ServeCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	slog.Debug("Configuration loaded",
		"port", cfg.Port,
		"model", cfg.OpenRouterModel,
		"database", cfg.DatabaseDriver,
		"log_level", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		cancel()
	}()

	st, err := store.Open(cfg.DatabaseDriver, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	metrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	provider := llms.NewOpenRouter(llms.OpenRouterConfig{
		APIKey:    cfg.OpenRouterAPIKey,
		BaseURL:   cfg.OpenRouterBaseURL,
		Model:     cfg.OpenRouterModel,
		MaxTokens: cfg.MaxTokens,
	})

	registry := tools.DefaultRegistry()
	manager := session.NewManager(st, agent.New(provider, registry, st, metrics))

	catalog, err := commands.Load(cfg.CommandsDir)
	if err != nil {
		return fmt.Errorf("loading commands: %w", err)
	}
	if err := catalog.Watch(ctx); err != nil {
		slog.Warn("Command hot-reload disabled", "error", err)
	}

	srv := server.New(cfg, manager, st, registry, catalog, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
