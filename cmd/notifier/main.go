package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ordermesh/ordersvc/internal/app"
	"github.com/ordermesh/ordersvc/internal/config"
	"github.com/ordermesh/ordersvc/internal/logging"
)

func main() {
	cfg, err := config.Load("notification-service")
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Service: cfg.ServiceName, Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := app.BuildNotifier(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := n.Run(ctx); err != nil {
		logger.Error("notifier stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("notifier stopped")
}
