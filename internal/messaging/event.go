// Package messaging defines the order.created broadcast and the transports that carry it.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ordermesh/ordersvc/internal/domain"
)

// EventOrderCreated is both the event name and the default channel it is broadcast on.
const EventOrderCreated = "order.created"

// OrderCreatedEvent is the wire projection of a freshly persisted order.
// It is never stored and carries no envelope or schema version.
type OrderCreatedEvent struct {
	Event      string      `json:"event"`
	OrderID    int64       `json:"order_id"`
	UserID     int64       `json:"user_id"`
	ProductID  string      `json:"product_id"`
	TotalPrice json.Number `json:"total_price"`
}

// NewOrderCreatedEvent projects order onto the wire shape.
func NewOrderCreatedEvent(order *domain.Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		Event:      EventOrderCreated,
		OrderID:    order.ID,
		UserID:     order.UserID,
		ProductID:  order.ProductID,
		TotalPrice: json.Number(order.TotalPrice.String()),
	}
}

// Price returns the total price as a decimal.
func (e OrderCreatedEvent) Price() (decimal.Decimal, error) {
	return decimal.NewFromString(e.TotalPrice.String())
}

// EncodeOrderCreated marshals the event for order.
func EncodeOrderCreated(order *domain.Order) ([]byte, error) {
	return json.Marshal(NewOrderCreatedEvent(order))
}

// DecodeOrderCreated parses a broadcast payload. Unknown fields are ignored;
// the event name, ids and price must be present and sane.
func DecodeOrderCreated(payload []byte) (OrderCreatedEvent, error) {
	var evt OrderCreatedEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		return OrderCreatedEvent{}, fmt.Errorf("decode %s: %w", EventOrderCreated, err)
	}
	switch {
	case evt.Event != EventOrderCreated:
		return OrderCreatedEvent{}, fmt.Errorf("unexpected event %q", evt.Event)
	case evt.OrderID <= 0:
		return OrderCreatedEvent{}, errors.New("order_id must be positive")
	case evt.UserID <= 0:
		return OrderCreatedEvent{}, errors.New("user_id must be positive")
	case evt.TotalPrice == "":
		return OrderCreatedEvent{}, errors.New("total_price is required")
	}
	if _, err := evt.Price(); err != nil {
		return OrderCreatedEvent{}, fmt.Errorf("total_price: %w", err)
	}
	return evt, nil
}
