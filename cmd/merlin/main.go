// Merlin - Real-time fraud risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/merlin/internal/api"
	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/cache"
	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/engine"
	"github.com/opensource-finance/merlin/internal/history"
	"github.com/opensource-finance/merlin/internal/metrics"
	"github.com/opensource-finance/merlin/internal/repository"
	"github.com/opensource-finance/merlin/internal/review"
	"github.com/opensource-finance/merlin/internal/rules"
	"github.com/opensource-finance/merlin/internal/strategy"
	"github.com/opensource-finance/merlin/internal/velocity"
	"github.com/opensource-finance/merlin/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("MERLIN_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting merlin",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("MERLIN_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"history", cfg.History.Driver,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize History Store
	store, err := history.New(cfg.History)
	if err != nil {
		slog.Error("failed to initialize history store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("history store initialized",
		"driver", cfg.History.Driver,
		"seed_users", cfg.History.SeedUsers,
	)

	// Initialize Velocity Service
	velocitySvc := velocity.NewService(cacheImpl, repo)
	slog.Info("velocity service initialized", "mode", cfg.Engine.VelocityMode)

	// Initialize Extension Rule Engine
	extEngine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize extension rule engine", "error", err)
		os.Exit(1)
	}
	defer extEngine.Close()

	// Load extension rules from database (configure via API)
	if err := loadRulesFromDatabase(ctx, repo, extEngine); err != nil {
		slog.Error("failed to load extension rules", "error", err)
		os.Exit(1)
	}
	slog.Info("extension rule engine initialized", "rules_count", extEngine.RulesCount())

	// Initialize Scoring Engine
	scoringEngine := engine.New(cfg.Engine, store,
		engine.WithExtensionRules(extEngine),
		engine.WithVelocityCounter(velocitySvc.CounterFunc()),
	)
	slog.Info("scoring engine initialized",
		"block_threshold", cfg.Engine.BlockThreshold,
		"review_threshold", cfg.Engine.ReviewThreshold,
	)

	// Initialize Strategy Provider
	strategies, err := strategy.NewProvider(cfg.Strategies, cfg.RotationEvery)
	if err != nil {
		slog.Error("failed to initialize strategy provider", "error", err)
		os.Exit(1)
	}
	slog.Info("strategy provider initialized",
		"strategies", len(cfg.Strategies),
		"rotation_every", cfg.RotationEvery,
	)

	// Initialize Review Queue and Metrics
	reviews := review.NewQueue(cfg.ReviewQueueCap)
	aggregator := metrics.NewAggregator()

	// Initialize Alert Worker
	alertWorker := worker.NewAlertWorker(busImpl)
	if err := alertWorker.Start(ctx); err != nil {
		slog.Error("failed to start alert worker", "error", err)
	} else {
		slog.Info("alert worker started")
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, scoringEngine, strategies, reviews, aggregator, extEngine, repo, cacheImpl, busImpl, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("merlin is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := alertWorker.Stop(); err != nil {
		slog.Error("failed to stop alert worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("merlin shutdown complete")
}

// loadRulesFromDatabase loads extension rules from the database into the
// engine. Rules are configured via POST /rules - no hardcoded defaults.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, eng *rules.Engine) error {
	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return eng.LoadRules(dbRules)
	}

	slog.Info("no extension rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🧙 MERLIN                   ║")
	fmt.Println("  ║      Fraud Risk Scoring Engine            ║")
	fmt.Println("  ║     Every transaction, divined.           ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /analyze             - Score a transaction")
	fmt.Println("    GET  /analyses/{id}       - Get analysis by ID")
	fmt.Println("    GET  /transactions/{id}   - Get transaction by ID")
	fmt.Println("    GET  /review              - List pending manual reviews")
	fmt.Println("    POST /review/{id}/resolve - Resolve a manual review")
	fmt.Println("    GET  /strategies          - List scoring strategies")
	fmt.Println("    GET  /strategies/current  - Get active strategy")
	fmt.Println("    GET  /metrics             - System metrics snapshot")
	fmt.Println("    GET  /rules               - List extension rules")
	fmt.Println("    POST /rules               - Create an extension rule")
	fmt.Println("    POST /rules/reload        - Hot-reload rules from database")
	fmt.Println("    GET  /health              - Health check")
	fmt.Println()
}
