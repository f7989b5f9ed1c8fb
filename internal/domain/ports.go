package domain

import "context"

// OrderRepository persists orders. Implementations assign ID, Status default
// and timestamps inside Create and must never expose a partially written order.
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	GetForUser(ctx context.Context, userID, orderID int64) (*Order, error)
	ListByUser(ctx context.Context, userID int64) ([]Order, error)
}

// EventPublisher broadcasts order domain events.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, order *Order) error
}
