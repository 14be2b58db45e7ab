// Command smssend publishes a single inbound text message onto the delivery
// queue. Development tool for exercising the capture pipeline end to end.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"fintrack/internal/amqp"
	"fintrack/internal/config"
)

func main() {
	_ = godotenv.Load()

	sender := flag.String("sender", "900", "message sender id")
	body := flag.String("body", "", "message body")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *body == "" {
		logger.Error("-body is required")
		os.Exit(2)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("failed to connect to message delivery", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.PublishInbound(ctx, *sender, *body); err != nil {
		logger.Error("failed to publish message", "error", err)
		os.Exit(1)
	}
}
