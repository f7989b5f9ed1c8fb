// Package redis carries order events over Redis PUBLISH/SUBSCRIBE.
package redis

import (
	"context"
	"errors"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ordermesh/ordersvc/internal/messaging"
)

// Options addresses a Redis server.
type Options struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	// HealthInterval is how long a subscription may stay silent before it
	// pings the server to prove the connection is alive.
	HealthInterval time.Duration
}

func (o Options) newClient() *goredis.Client {
	dialTimeout := o.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return goredis.NewClient(&goredis.Options{
		Addr:        o.Addr,
		Password:    o.Password,
		DB:          o.DB,
		DialTimeout: dialTimeout,
		MaxRetries:  -1,
	})
}

func (o Options) healthInterval() time.Duration {
	if o.HealthInterval <= 0 {
		return 15 * time.Second
	}
	return o.HealthInterval
}

// Broadcaster publishes payloads with PUBLISH.
type Broadcaster struct {
	client *goredis.Client
}

func NewBroadcaster(opts Options) *Broadcaster {
	return &Broadcaster{client: opts.newClient()}
}

func (b *Broadcaster) Broadcast(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *Broadcaster) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *Broadcaster) Close() error { return b.client.Close() }

// Pinger holds a connection used only for liveness checks.
type Pinger struct {
	client *goredis.Client
}

func NewPinger(opts Options) *Pinger {
	return &Pinger{client: opts.newClient()}
}

func (p *Pinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *Pinger) Close() error { return p.client.Close() }

// Dialer opens one dedicated client per Dial so a dead connection is thrown
// away whole instead of being repaired behind the caller's back.
type Dialer struct {
	opts Options
}

func NewDialer(opts Options) *Dialer {
	return &Dialer{opts: opts}
}

func (d *Dialer) Dial(ctx context.Context) (messaging.Session, error) {
	client := d.opts.newClient()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &session{client: client, healthInterval: d.opts.healthInterval()}, nil
}

type session struct {
	client         *goredis.Client
	healthInterval time.Duration
}

func (s *session) Subscribe(ctx context.Context, channel string) (messaging.Subscription, error) {
	ps := s.client.Subscribe(ctx, channel)
	// The first reply is the subscription confirmation.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	return &subscription{ps: ps, healthInterval: s.healthInterval}, nil
}

func (s *session) Close() error { return s.client.Close() }

type subscription struct {
	ps             *goredis.PubSub
	healthInterval time.Duration
}

func (s *subscription) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		msg, err := s.ps.ReceiveTimeout(ctx, s.healthInterval)
		if err != nil {
			if isTimeout(err) {
				if err := s.ps.Ping(ctx); err != nil {
					return nil, err
				}
				continue
			}
			return nil, err
		}
		switch m := msg.(type) {
		case *goredis.Message:
			return []byte(m.Payload), nil
		case *goredis.Subscription:
			if m.Kind == "unsubscribe" && m.Count == 0 {
				return nil, errors.New("redis: subscription cancelled by server")
			}
		case *goredis.Pong:
		}
	}
}

func (s *subscription) Close() error { return s.ps.Close() }

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
