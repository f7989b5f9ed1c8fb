package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ordermesh/ordersvc/internal/app"
	"github.com/ordermesh/ordersvc/internal/config"
	"github.com/ordermesh/ordersvc/internal/logging"
)

func main() {
	cfg, err := config.Load("order-service")
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Service: cfg.ServiceName, Level: cfg.LogLevel, Format: cfg.LogFormat})
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	svc, err := app.BuildOrderService(bootCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if err := svc.Run(ctx); err != nil {
		logger.Error("order service stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("order service stopped")
}
