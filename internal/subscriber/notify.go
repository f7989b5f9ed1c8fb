package subscriber

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ordermesh/ordersvc/internal/messaging"
)

// Processor performs the side effect for one received event.
type Processor interface {
	Process(ctx context.Context, evt messaging.OrderCreatedEvent) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, evt messaging.OrderCreatedEvent) error

func (f ProcessorFunc) Process(ctx context.Context, evt messaging.OrderCreatedEvent) error {
	return f(ctx, evt)
}

// NotificationDispatcher simulates sending a customer notification: it
// takes Delay to "deliver" and logs the result.
type NotificationDispatcher struct {
	Delay  time.Duration
	logger *slog.Logger
}

func NewNotificationDispatcher(delay time.Duration, logger *slog.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationDispatcher{Delay: delay, logger: logger.With("component", "notifier")}
}

func (n *NotificationDispatcher) Process(ctx context.Context, evt messaging.OrderCreatedEvent) error {
	if err := sleepCtx(ctx, n.Delay); err != nil {
		return err
	}
	n.logger.InfoContext(ctx, "notification sent",
		"notification_id", uuid.NewString(),
		"order_id", evt.OrderID,
		"user_id", evt.UserID,
		"product_id", evt.ProductID,
		"total_price", evt.TotalPrice.String(),
	)
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
