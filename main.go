package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	clts "tokenwatch/clients"
	"tokenwatch/config"
	"tokenwatch/internal/app"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load config from environment variables
	cfg := config.Load()
	logger.Info("starting tokenwatch", zap.Bool("isProd", cfg.IsProd))

	if result := cfg.Validate(); !result.Valid {
		for _, e := range result.Errors {
			logger.Error("invalid configuration",
				zap.String("field", e.Field),
				zap.String("message", e.Message),
			)
		}
		logger.Fatal("configuration validation failed", zap.Int("errors", len(result.Errors)))
	}

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)
	defer clients.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runner := app.NewRunner(clients, cfg)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}
