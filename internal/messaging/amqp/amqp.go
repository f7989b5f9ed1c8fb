// Package amqp carries order events over a RabbitMQ fanout exchange named
// after the channel. Each subscriber binds its own exclusive, auto-deleted
// queue, so nothing is buffered for a listener that is not connected.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ordermesh/ordersvc/internal/messaging"
)

// Options addresses a RabbitMQ broker.
type Options struct {
	URL         string
	DialTimeout time.Duration
}

func (o Options) dial() (*amqp.Connection, error) {
	timeout := o.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return amqp.DialConfig(o.URL, amqp.Config{
		Dial:      amqp.DefaultDial(timeout),
		Heartbeat: 10 * time.Second,
	})
}

// declareExchange must be identical on both sides or the broker rejects the
// second declaration.
func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeFanout, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

// Broadcaster publishes to the fanout exchange. The connection is opened
// lazily and reopened on the next Broadcast after a failure; a failed
// Broadcast itself is never retried.
type Broadcaster struct {
	opts Options

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

func NewBroadcaster(opts Options) *Broadcaster {
	return &Broadcaster{opts: opts, declared: make(map[string]bool)}
}

func (b *Broadcaster) Broadcast(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureChannel(); err != nil {
		return err
	}
	if !b.declared[channel] {
		if err := declareExchange(b.ch, channel); err != nil {
			b.reset()
			return err
		}
		b.declared[channel] = true
	}
	err := b.ch.PublishWithContext(ctx, channel, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	})
	if err != nil {
		b.reset()
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Ping reports whether the broker is reachable.
func (b *Broadcaster) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ensureChannel()
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn, b.ch = nil, nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

func (b *Broadcaster) ensureChannel() error {
	if b.conn != nil && !b.conn.IsClosed() && b.ch != nil {
		return nil
	}
	b.reset()
	conn, err := b.opts.dial()
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	b.conn, b.ch = conn, ch
	return nil
}

func (b *Broadcaster) reset() {
	if b.conn != nil {
		_ = b.conn.Close()
	}
	b.conn, b.ch = nil, nil
	b.declared = make(map[string]bool)
}

// Pinger keeps its own connection for liveness checks and redials when the
// broker has dropped it.
type Pinger struct {
	opts Options

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewPinger(opts Options) *Pinger {
	return &Pinger{opts: opts}
}

func (p *Pinger) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && !p.conn.IsClosed() {
		return nil
	}
	conn, err := p.opts.dial()
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	p.conn = conn
	return nil
}

func (p *Pinger) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

// Dialer opens a new broker connection per Dial.
type Dialer struct {
	opts Options
}

func NewDialer(opts Options) *Dialer {
	return &Dialer{opts: opts}
}

func (d *Dialer) Dial(ctx context.Context) (messaging.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := d.opts.dial()
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	return &session{conn: conn}, nil
}

type session struct {
	conn *amqp.Connection
}

func (s *session) Subscribe(_ context.Context, channel string) (messaging.Subscription, error) {
	ch, err := s.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch, channel); err != nil {
		_ = ch.Close()
		return nil, err
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", channel, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bind queue %s: %w", q.Name, err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}
	return &subscription{
		ch:         ch,
		deliveries: deliveries,
		closed:     s.conn.NotifyClose(make(chan *amqp.Error, 1)),
	}, nil
}

func (s *session) Close() error {
	err := s.conn.Close()
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

type subscription struct {
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	closed     chan *amqp.Error
}

func (s *subscription) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-s.deliveries:
		if !ok {
			return nil, s.closeReason()
		}
		return d.Body, nil
	}
}

func (s *subscription) closeReason() error {
	select {
	case reason, ok := <-s.closed:
		if ok && reason != nil {
			return fmt.Errorf("amqp connection closed: %w", reason)
		}
	default:
	}
	return errors.New("amqp delivery channel closed")
}

func (s *subscription) Close() error {
	err := s.ch.Close()
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}
