// Package app assembles the order and notification services from
// configuration and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc/health"

	"github.com/ordermesh/ordersvc/internal/auth"
	"github.com/ordermesh/ordersvc/internal/config"
	"github.com/ordermesh/ordersvc/internal/domain"
	healthcheck "github.com/ordermesh/ordersvc/internal/health"
	"github.com/ordermesh/ordersvc/internal/handler"
	"github.com/ordermesh/ordersvc/internal/logging"
	"github.com/ordermesh/ordersvc/internal/messaging"
	"github.com/ordermesh/ordersvc/internal/metrics"
	"github.com/ordermesh/ordersvc/internal/repository/memory"
	"github.com/ordermesh/ordersvc/internal/repository/postgres"
	"github.com/ordermesh/ordersvc/internal/service"
)

// OrderService is the assembled order process.
type OrderService struct {
	cfg        config.Config
	logger     *slog.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Orders
	checker    *healthcheck.Checker
	grpcHealth *health.Server
	dispatcher *messaging.Dispatcher
	publisher  *messaging.Publisher
	handler    http.Handler
	closeStore func()
}

// BuildOrderService connects the store and broker named by cfg. An
// unreachable broker is logged and tolerated: orders are still accepted and
// their failed publishes are only counted.
func BuildOrderService(ctx context.Context, cfg config.Config, logger *slog.Logger) (*OrderService, error) {
	if err := cfg.ValidateOrderService(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger = logging.Resolve(logger)

	verifier, err := auth.NewVerifier([]byte(cfg.JWTSecret), verifierOptions(cfg)...)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewOrders(reg)

	orders, ping, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	transport, err := newBroadcaster(cfg)
	if err != nil {
		closeStore()
		return nil, err
	}
	if err := transport.Ping(ctx); err != nil {
		logger.Warn("broker unreachable, starting without event delivery", "broker", cfg.Broker, "error", err)
	} else {
		logger.Info("broker connected", "broker", cfg.Broker)
	}
	publisher := messaging.NewPublisher(transport, cfg.EventChannel)
	dispatcher := messaging.NewDispatcher(publisher, messaging.DispatcherOptions{
		Workers:   cfg.PublishWorkers,
		QueueSize: cfg.PublishQueueSize,
		Timeout:   cfg.PublishTimeout,
		Published: m.EventsPublished,
		Logger:    logger,
	})

	svc := service.NewOrderService(service.Dependencies{
		Orders:        orders,
		Events:        dispatcher,
		OrdersCreated: m.OrdersCreated,
		Logger:        logger,
	})

	checker := healthcheck.NewChecker(cfg.ServiceName, 0, logger)
	checker.Critical("store", ping)
	checker.Optional("broker", transport.Ping)

	return &OrderService{
		cfg:        cfg,
		logger:     logger,
		registry:   reg,
		metrics:    m,
		checker:    checker,
		grpcHealth: health.NewServer(),
		dispatcher: dispatcher,
		publisher:  publisher,
		handler: handler.NewOrderRouter(handler.OrderRouterConfig{
			Orders:     svc,
			Verifier:   verifier,
			Health:     checker,
			Metrics:    m.HTTP,
			Exposition: metrics.Handler(reg),
			Logger:     logger,
		}),
		closeStore: closeStore,
	}, nil
}

func verifierOptions(cfg config.Config) []auth.Option {
	var opts []auth.Option
	if cfg.JWTIssuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, auth.WithAudience(cfg.JWTAudience))
	}
	return opts
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (domain.OrderRepository, healthcheck.Probe, func(), error) {
	switch cfg.OrderStore {
	case config.StoreMemory:
		logger.Warn("using in-memory order store; orders are lost on restart")
		store := memory.NewStore()
		return store, store.Ping, func() {}, nil
	case config.StorePostgres:
		store, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns: int32(cfg.DBMaxConns),
			MinConns: int32(cfg.DBMinConns),
		}, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, nil, err
		}
		return store, store.Ping, store.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown order store %q", cfg.OrderStore)
	}
}

// Handler is the HTTP surface, exposed for tests.
func (s *OrderService) Handler() http.Handler { return s.handler }

// Metrics returns the collectors of this instance.
func (s *OrderService) Metrics() *metrics.Orders { return s.metrics }

// Start launches the publish workers and the gRPC health watcher.
func (s *OrderService) Start(ctx context.Context) {
	s.dispatcher.Start(ctx)
	go s.checker.Watch(ctx, s.grpcHealth, s.cfg.HealthInterval)
}

// Run serves until ctx is cancelled, then drains queued events and releases
// the store and broker.
func (s *OrderService) Run(ctx context.Context) error {
	// publishes must outlive ctx long enough to drain on shutdown
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	s.Start(workCtx)

	err := serve(ctx, s.logger, servers{
		http:     newHTTPServer(s.cfg.HTTPPort, s.handler),
		grpc:     healthcheck.NewGRPCServer(s.grpcHealth),
		grpcAddr: net.JoinHostPort("", s.cfg.GRPCPort),
	}, s.cfg.ShutdownTimeout)

	return errors.Join(err, s.Close())
}

// Close drains the dispatcher and closes the broker and the store.
func (s *OrderService) Close() error {
	s.dispatcher.Close()
	err := s.publisher.Close()
	s.closeStore()
	return err
}
