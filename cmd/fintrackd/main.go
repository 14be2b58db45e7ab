package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/capture"
	"fintrack/internal/config"
	"fintrack/internal/remote"
	"fintrack/internal/services"
	"fintrack/internal/session"
	"fintrack/internal/storage"
	"fintrack/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting fintrackd")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.Open(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("failed to open local ledger", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer store.Close()

	api := remote.NewClient(cfg.APIBaseURL)
	sessions := session.NewManager(store)
	engine := services.NewSyncEngine(store, api, sessions, cfg.SyncPageLimit)

	var tracker *services.Tracker
	syncWorker := worker.NewSyncWorker(engine, sessions, cfg.SyncInterval, func(ctx context.Context) {
		if err := tracker.Logout(ctx); err != nil {
			slog.ErrorContext(ctx, "forced logout failed", "error", err)
		}
	})
	tracker = services.NewTracker(store, api, sessions, syncWorker)

	pipeline := capture.NewPipeline(store, &logPrompter{}, tracker, int64(cfg.CaptureConcurrency))

	mq, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("failed to connect to message delivery", "error", err)
		os.Exit(1)
	}
	defer mq.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := syncWorker.Start(ctx); err != nil {
		logger.Error("failed to start sync worker", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := mq.Consume(ctx, pipeline.HandleMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("message consumption failed", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// captures in flight finish their terminal storage write before the
	// process lets go of the ledger
	if err := pipeline.Shutdown(shutdownCtx); err != nil {
		logger.Warn("capture pipeline shutdown timed out", "error", err)
	}
	if err := syncWorker.Stop(shutdownCtx); err != nil {
		logger.Warn("sync worker shutdown timed out", "error", err)
	}

	logger.Info("fintrackd stopped")
}

// logPrompter satisfies the capture prompt port for headless deployments:
// the actionable choice is surfaced in the log and resolved later through
// the captured-message history.
type logPrompter struct{}

func (*logPrompter) Prompt(ctx context.Context, req capture.PromptRequest) error {
	slog.InfoContext(ctx, "new expense detected, confirm or defer",
		"correlation_id", req.CorrelationID,
		"sender", req.Sender,
		"amount", req.Amount)
	return nil
}

func (*logPrompter) Cancel(correlationID int64) {
	slog.Debug("prompt dismissed", "correlation_id", correlationID)
}
