// Package service holds the order use cases behind the HTTP handlers.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/ordermesh/ordersvc/internal/domain"
)

// EventSink accepts committed orders for asynchronous publication.
// Submit must not block.
type EventSink interface {
	Submit(order domain.Order) bool
}

type Dependencies struct {
	Orders domain.OrderRepository
	Events EventSink
	// OrdersCreated counts committed orders. Optional.
	OrdersCreated prometheus.Counter
	Logger        *slog.Logger
}

type OrderService struct {
	orders        domain.OrderRepository
	events        EventSink
	ordersCreated prometheus.Counter
	logger        *slog.Logger
}

func NewOrderService(deps Dependencies) *OrderService {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{
		orders:        deps.Orders,
		events:        deps.Events,
		ordersCreated: deps.OrdersCreated,
		logger:        logger.With("component", "order_service"),
	}
}

// CreateOrder validates and persists a new pending order, then hands it to
// the event sink. The result depends only on persistence: publication runs
// later and its outcome never reaches the caller.
func (s *OrderService) CreateOrder(ctx context.Context, userID int64, productID string, quantity int, totalPrice decimal.Decimal) (*domain.Order, error) {
	order, err := domain.NewOrder(userID, productID, quantity, totalPrice)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.logger.ErrorContext(ctx, "persist order", "user_id", userID, "error", err)
		return nil, asPersistence("insert", err)
	}
	if s.ordersCreated != nil {
		s.ordersCreated.Inc()
	}
	s.logger.InfoContext(ctx, "order created", "order_id", order.ID, "user_id", order.UserID)

	if s.events != nil {
		s.events.Submit(*order)
	}
	return order, nil
}

// GetOrder returns the order only if userID owns it. Absent and foreign
// orders are indistinguishable.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	order, err := s.orders.GetForUser(ctx, userID, orderID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "load order", "order_id", orderID, "user_id", userID, "error", err)
		return nil, asPersistence("select", err)
	}
	if !order.OwnedBy(userID) {
		return nil, domain.ErrNotFound
	}
	return order, nil
}

// ListOrders returns userID's orders newest first, never nil.
func (s *OrderService) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		s.logger.ErrorContext(ctx, "list orders", "user_id", userID, "error", err)
		return nil, asPersistence("select", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// Ping checks the backing store when it supports it.
func (s *OrderService) Ping(ctx context.Context) error {
	if p, ok := s.orders.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func asPersistence(op string, err error) error {
	var perr *domain.PersistenceError
	if errors.As(err, &perr) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
