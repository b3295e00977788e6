// Package main runs the payflow HTTP server configured from the environment.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/payflow/payflow/internal/cli"
	"github.com/payflow/payflow/internal/infrastructure/config"
	"github.com/payflow/payflow/internal/infrastructure/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := logging.New(cfg)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cli.Serve(ctx, cfg, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
