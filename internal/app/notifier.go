package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc/health"

	"github.com/ordermesh/ordersvc/internal/config"
	healthcheck "github.com/ordermesh/ordersvc/internal/health"
	"github.com/ordermesh/ordersvc/internal/handler"
	"github.com/ordermesh/ordersvc/internal/logging"
	"github.com/ordermesh/ordersvc/internal/messaging"
	"github.com/ordermesh/ordersvc/internal/metrics"
	"github.com/ordermesh/ordersvc/internal/subscriber"
)

// Notifier is the assembled notification process.
type Notifier struct {
	cfg        config.Config
	logger     *slog.Logger
	metrics    *metrics.Notifier
	checker    *healthcheck.Checker
	grpcHealth *health.Server
	supervisor *subscriber.Supervisor
	pinger     messaging.Pinger
	handler    http.Handler
	started    atomic.Bool
	done       chan struct{}
}

// BuildNotifier prepares the subscription supervisor and its liveness
// connection. Nothing is dialled until Start.
func BuildNotifier(cfg config.Config, logger *slog.Logger) (*Notifier, error) {
	if err := cfg.ValidateNotifier(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger = logging.Resolve(logger)

	dialer, pinger, err := newSubscriberTransport(cfg)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewNotifier(reg)

	supervisor := subscriber.New(dialer, subscriber.NewNotificationDispatcher(cfg.NotifyDelay, logger), subscriber.Options{
		Channel:    cfg.EventChannel,
		Backoff:    subscriber.Backoff{Step: cfg.ReconnectStep, Cap: cfg.ReconnectCap},
		Processed:  m.EventsProcessed,
		Reconnects: m.ReconnectAttempts,
		State:      m.SubscriberState,
		Logger:     logger,
	})

	// subscription state is reported on /status but does not gate health
	checker := healthcheck.NewChecker(cfg.ServiceName, 0, logger)
	checker.Critical("broker", pinger.Ping)

	return &Notifier{
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		checker:    checker,
		grpcHealth: health.NewServer(),
		supervisor: supervisor,
		pinger:     pinger,
		handler: handler.NewNotifierRouter(handler.NotifierRouterConfig{
			Health:     checker,
			Status:     supervisor.Connection().Snapshot,
			Metrics:    m.HTTP,
			Exposition: metrics.Handler(reg),
			Logger:     logger,
		}),
		done: make(chan struct{}),
	}, nil
}

func (n *Notifier) Handler() http.Handler { return n.handler }

func (n *Notifier) Metrics() *metrics.Notifier { return n.metrics }

// Connection exposes the subscriber state.
func (n *Notifier) Connection() *subscriber.Connection { return n.supervisor.Connection() }

// Start runs the supervisor and the gRPC health watcher until ctx is done.
func (n *Notifier) Start(ctx context.Context) {
	if !n.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(n.done)
		if err := n.supervisor.Run(ctx); err != nil {
			n.logger.Error("subscriber stopped", "error", err)
		}
	}()
	go n.checker.Watch(ctx, n.grpcHealth, n.cfg.HealthInterval)
}

// Run serves until ctx is cancelled or a server fails. Either way the
// supervisor is stopped before Run returns.
func (n *Notifier) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n.Start(ctx)
	err := serve(ctx, n.logger, servers{
		http:     newHTTPServer(n.cfg.HTTPPort, n.handler),
		grpc:     healthcheck.NewGRPCServer(n.grpcHealth),
		grpcAddr: net.JoinHostPort("", n.cfg.GRPCPort),
	}, n.cfg.ShutdownTimeout)
	cancel()
	return errors.Join(err, n.Close())
}

// Close waits for the supervisor to stop, if it was started, and closes the
// liveness connection. The caller must have cancelled Start's context.
func (n *Notifier) Close() error {
	if n.started.Load() {
		<-n.done
	}
	return n.pinger.Close()
}
