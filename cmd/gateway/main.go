package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/EarningEdge/forex-trade-processor/internal/auth"
	"github.com/EarningEdge/forex-trade-processor/internal/config"
	"github.com/EarningEdge/forex-trade-processor/internal/fanout"
	"github.com/EarningEdge/forex-trade-processor/internal/gateway"
	"github.com/EarningEdge/forex-trade-processor/internal/ledger"
	"github.com/EarningEdge/forex-trade-processor/internal/metaapi"
	"github.com/EarningEdge/forex-trade-processor/internal/server"
	"github.com/EarningEdge/forex-trade-processor/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gateway.yaml", "path to config file")
	flag.Parse()

	// .env is optional; config expands ${VAR} references.
	_ = godotenv.Load()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	api := metaapi.NewClient(metaapi.ClientConfig{
		Token:           cfg.MetaAPI.Token,
		ProvisioningURL: cfg.MetaAPI.ProvisioningURL,
		StreamingURL:    cfg.MetaAPI.StreamingURL,
		PollInterval:    cfg.MetaAPI.PollInterval,
		MaxRetries:      cfg.MetaAPI.MaxRetries,
	}, logger)

	history := ledger.New()
	engine := fanout.NewEngine(cfg.Gateway.SubscriberBuffer, logger)
	manager := gateway.NewManager(api, history, engine, logger)
	engine.SetSnapshotSource(manager)

	authService := auth.NewService(cfg.Admin.Email, cfg.Admin.Password, cfg.Admin.JWTSecret)

	srv := server.New(cfg.Server, manager, engine, history, api, authService, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.ListenAndServe()
	}()

	// Startup monitoring: connect the default account first, then pick up
	// every other deployed account.
	go func() {
		if cfg.Gateway.DefaultAccountID != "" {
			logger.Info("connecting default account", "account_id", cfg.Gateway.DefaultAccountID)
			manager.Connect(ctx, cfg.Gateway.DefaultAccountID)
		}
		manager.ReconcileAll(ctx)
		manager.RunReconcileLoop(ctx, cfg.Gateway.ReconcileInterval)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
		cancel()
	}

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	manager.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", "error", err)
	}

	logger.Info("gateway stopped")
}
