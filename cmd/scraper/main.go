package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/scraper/internal/core/config"
	"github.com/vietddude/scraper/internal/indexing/health"
	"github.com/vietddude/scraper/internal/scraper"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Optional .env for provider/database credentials referenced in the config
	_ = godotenv.Load()

	// Load configuration first (before setting up logger)
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Fall back to default logger for config load errors
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(
		&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	slog.Info("Logger initialized", "level", slogLevel.String(), "agent", cfg.Agent.Name)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Build the agent: registry, database, migrations. Any per-chain failure
	// aborts here before a single task is spawned.
	agent, err := scraper.New(ctx, *cfg)
	if err != nil {
		slog.Error("Failed to initialize scraper", "error", err)
		os.Exit(1)
	}
	defer agent.Close()

	// Health and metrics listeners live outside the supervised group.
	healthServer := health.NewServer(cfg.Agent.Name, agent.InstanceID(), len(cfg.Chains), cfg.Server.Port, cfg.Server.GRPCPort)
	go func() {
		if err := healthServer.Start(); err != nil {
			slog.Error("Health server failed", "error", err)
		}
	}()

	// Handle OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	// Spawn every sync and metrics task into one fail-fast group.
	group, err := agent.Run(ctx)
	if err != nil {
		slog.Error("Failed to start sync tasks", "error", err)
		os.Exit(1)
	}

	// The group resolves on the first task exit, whatever the cause. Every
	// task is meant to run forever, so anything but a shutdown signal is
	// fatal; restarting the process is the recovery path.
	outcome := group.Wait(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Stop(shutdownCtx); err != nil {
		slog.Warn("Error stopping health server", "error", err)
	}

	if outcome.Err != nil && !errors.Is(outcome.Err, context.Canceled) {
		slog.Error("Sync task terminated, aborting",
			"chain", outcome.Chain, "event", outcome.Event, "error", outcome.Err)
		os.Exit(1)
	}

	slog.Info("Scraper stopped gracefully")
}
