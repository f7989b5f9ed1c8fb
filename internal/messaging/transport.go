package messaging

import "context"

// Broadcaster sends a payload to every listener currently subscribed to channel.
// Delivery is best effort: no acknowledgement and no backlog.
type Broadcaster interface {
	Broadcast(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// Dialer opens a fresh broker connection. Each call returns an independent
// Session; the caller owns reconnection.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Session is one live broker connection.
type Session interface {
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription yields payloads in delivery order. Receive returns an error
// once the underlying connection is unusable; the Subscription is then dead.
// Close may be called concurrently with Receive to unblock it.
type Subscription interface {
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Pinger checks a broker connection that is kept apart from subscriptions.
type Pinger interface {
	Ping(ctx context.Context) error
	Close() error
}
