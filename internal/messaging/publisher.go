package messaging

import (
	"context"
	"fmt"

	"github.com/ordermesh/ordersvc/internal/domain"
)

// Publisher adapts a Broadcaster to domain.EventPublisher.
type Publisher struct {
	transport Broadcaster
	channel   string
}

// NewPublisher broadcasts order events on channel, EventOrderCreated when empty.
func NewPublisher(transport Broadcaster, channel string) *Publisher {
	if channel == "" {
		channel = EventOrderCreated
	}
	return &Publisher{transport: transport, channel: channel}
}

func (p *Publisher) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	payload, err := EncodeOrderCreated(order)
	if err != nil {
		return fmt.Errorf("encode order %d: %w", order.ID, err)
	}
	if err := p.transport.Broadcast(ctx, p.channel, payload); err != nil {
		return &PublicationError{OrderID: order.ID, Channel: p.channel, Err: err}
	}
	return nil
}

func (p *Publisher) Close() error { return p.transport.Close() }
