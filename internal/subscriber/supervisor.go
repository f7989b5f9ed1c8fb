// Package subscriber keeps one long-lived subscription to the order event
// channel alive and hands every received event to a Processor.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ordermesh/ordersvc/internal/messaging"
)

// Processing outcomes recorded on Options.Processed.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

// Options configures a Supervisor. Metrics are optional.
type Options struct {
	Channel string
	Backoff Backoff
	// Wait replaces the real timer between failed handshakes.
	Wait WaitFunc

	Processed  *prometheus.CounterVec
	Reconnects prometheus.Counter
	State      prometheus.Gauge
	Logger     *slog.Logger
}

// Supervisor drives the Connection through
// Disconnected -> Connecting -> Connected -> Subscribed and back to
// Connecting whenever the connection is lost. Handshakes are strictly
// sequential and retried forever with linear, capped backoff. Payloads are
// handled one at a time in delivery order.
type Supervisor struct {
	dialer    messaging.Dialer
	processor Processor
	channel   string
	wait      WaitFunc
	conn      *Connection

	processed  *prometheus.CounterVec
	reconnects prometheus.Counter
	logger     *slog.Logger
}

func New(dialer messaging.Dialer, processor Processor, opts Options) *Supervisor {
	if opts.Channel == "" {
		opts.Channel = messaging.EventOrderCreated
	}
	if opts.Backoff == (Backoff{}) {
		opts.Backoff = DefaultBackoff
	}
	if opts.Wait == nil {
		opts.Wait = sleepCtx
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "subscriber", "channel", opts.Channel)

	gauge := opts.State
	conn := NewConnection(opts.Backoff, func(from, to State) {
		if gauge != nil {
			gauge.Set(float64(to))
		}
		logger.Debug("connection state changed", "from", from.String(), "state", to.String())
	})

	return &Supervisor{
		dialer:     dialer,
		processor:  processor,
		channel:    opts.Channel,
		wait:       opts.Wait,
		conn:       conn,
		processed:  opts.Processed,
		reconnects: opts.Reconnects,
		logger:     logger,
	}
}

// Connection exposes the supervised connection for status reporting.
func (s *Supervisor) Connection() *Connection { return s.conn }

// Run supervises the subscription until ctx is cancelled. It returns nil on
// cancellation; every broker failure is absorbed by reconnecting.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.moveTo(Disconnected)

	for ctx.Err() == nil {
		s.moveTo(Connecting)

		sess, sub, err := s.handshake(ctx)
		if err != nil {
			if ctx.Err() != nil || !s.retry(ctx, "handshake failed, retrying", err) {
				return nil
			}
			continue
		}

		s.logger.Info("subscribed")
		err = s.consume(ctx, sub)
		_ = sub.Close()
		_ = sess.Close()
		if ctx.Err() != nil {
			return nil
		}
		s.moveTo(Connecting)
		if !s.retry(ctx, "subscription lost, reconnecting", err) {
			return nil
		}
	}
	return nil
}

// retry records a failed attempt and sleeps for its backoff. It reports
// false when ctx ended during the wait.
func (s *Supervisor) retry(ctx context.Context, msg string, cause error) bool {
	delay := s.conn.Failed()
	if s.reconnects != nil {
		s.reconnects.Inc()
	}
	s.logger.Warn(msg, "attempt", s.conn.Snapshot().Attempt, "delay", delay, "error", cause)
	return s.wait(ctx, delay) == nil
}

func (s *Supervisor) handshake(ctx context.Context) (messaging.Session, messaging.Subscription, error) {
	sess, err := s.dialer.Dial(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	s.moveTo(Connected)

	sub, err := sess.Subscribe(ctx, s.channel)
	if err != nil {
		_ = sess.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.moveTo(Subscribed)
	return sess, sub, nil
}

// consume reads until the subscription fails. The attempt counter resets on
// the first delivered payload, so a subscription that drops straight after
// the handshake keeps backing off.
func (s *Supervisor) consume(ctx context.Context, sub messaging.Subscription) error {
	stop := context.AfterFunc(ctx, func() { _ = sub.Close() })
	defer stop()

	stable := false
	for {
		payload, err := sub.Receive(ctx)
		if err != nil {
			return err
		}
		if !stable {
			s.conn.Established()
			stable = true
		}
		s.handle(ctx, payload)
	}
}

func (s *Supervisor) handle(ctx context.Context, payload []byte) {
	evt, err := messaging.DecodeOrderCreated(payload)
	if err != nil {
		s.fail(ctx, &ConsumptionError{Stage: StageDecode, Err: err})
		return
	}
	if err := s.processor.Process(ctx, evt); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return
		}
		s.fail(ctx, &ConsumptionError{Stage: StageProcess, OrderID: evt.OrderID, Err: err})
		return
	}
	s.count(OutcomeSuccess)
}

func (s *Supervisor) fail(ctx context.Context, err *ConsumptionError) {
	s.logger.ErrorContext(ctx, "event not processed",
		"stage", err.Stage, "order_id", err.OrderID, "error", err.Err)
	s.count(OutcomeError)
}

func (s *Supervisor) count(outcome string) {
	if s.processed != nil {
		s.processed.WithLabelValues(outcome).Inc()
	}
}

func (s *Supervisor) moveTo(to State) {
	if s.conn.State() == to && to != Connecting {
		return
	}
	if err := s.conn.MoveTo(to); err != nil {
		s.logger.Error("connection state", "error", err)
	}
}
