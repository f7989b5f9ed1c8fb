package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ordermesh/ordersvc/internal/domain"
)

// Publish outcomes recorded on DispatcherOptions.Published.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeDropped = "dropped"
)

// DispatcherOptions tunes a Dispatcher. Zero values pick defaults.
type DispatcherOptions struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	// Published counts publish attempts by outcome. Optional.
	Published *prometheus.CounterVec
	Logger    *slog.Logger
}

// Dispatcher hands committed orders to a fixed pool of workers that publish
// them off the request path. Submit never blocks; a full queue drops the
// event. Publish failures are logged and counted, never retried.
type Dispatcher struct {
	publisher domain.EventPublisher
	queue     chan domain.Order
	workers   int
	timeout   time.Duration
	published *prometheus.CounterVec
	logger    *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewDispatcher(publisher domain.EventPublisher, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		publisher: publisher,
		queue:     make(chan domain.Order, opts.QueueSize),
		workers:   opts.Workers,
		timeout:   opts.Timeout,
		published: opts.Published,
		logger:    logger.With("component", "dispatcher"),
	}
}

// Start launches the workers. ctx bounds every publish call; it is not
// derived from any request.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.run(ctx)
	}
}

// Submit queues order for publication and reports whether it was accepted.
func (d *Dispatcher) Submit(order domain.Order) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(order, "dispatcher closed")
		return false
	}
	select {
	case d.queue <- order:
		return true
	default:
		d.drop(order, "queue full")
		return false
	}
}

// Close stops accepting work and waits for queued events to be published.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()
	for order := range d.queue {
		d.publish(ctx, order)
	}
}

func (d *Dispatcher) publish(ctx context.Context, order domain.Order) {
	defer func() {
		if r := recover(); r != nil {
			d.observe(OutcomeError)
			d.logger.Error("order event publisher panicked",
				"order_id", order.ID,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	if err := d.publisher.PublishOrderCreated(ctx, &order); err != nil {
		d.observe(OutcomeError)
		d.logger.Warn("order event not published",
			"order_id", order.ID,
			"user_id", order.UserID,
			"error", err.Error(),
		)
		return
	}
	d.observe(OutcomeSuccess)
	d.logger.Info("order event published",
		"order_id", order.ID,
		"duration", time.Since(start),
	)
}

func (d *Dispatcher) drop(order domain.Order, reason string) {
	d.observe(OutcomeDropped)
	d.logger.Warn("order event dropped",
		"order_id", order.ID,
		"reason", reason,
	)
}

func (d *Dispatcher) observe(outcome string) {
	if d.published != nil {
		d.published.WithLabelValues(outcome).Inc()
	}
}
