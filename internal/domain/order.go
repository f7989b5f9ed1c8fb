// Package domain defines the order aggregate and the ports the order service depends on.
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// Column limits of the orders table.
const (
	MaxProductIDLength = 50
	PriceScale         = 2
)

var maxTotalPrice = decimal.New(1, 8)

// Order is a persisted purchase of a single product by a user.
// Only Status and UpdatedAt may change after the store returns it.
type Order struct {
	ID         int64
	UserID     int64
	ProductID  string
	Quantity   int
	TotalPrice decimal.Decimal
	Status     OrderStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewOrder validates a create request and returns an unsaved pending order.
// Prices finer than a cent are rejected, never rounded. ID and timestamps are
// assigned by the store.
func NewOrder(userID int64, productID string, quantity int, totalPrice decimal.Decimal) (*Order, error) {
	productID = strings.TrimSpace(productID)
	switch {
	case userID <= 0:
		return nil, &ValidationError{Field: "user_id", Reason: "must be a positive integer"}
	case productID == "":
		return nil, &ValidationError{Field: "product_id", Reason: "is required"}
	case utf8.RuneCountInString(productID) > MaxProductIDLength:
		return nil, &ValidationError{Field: "product_id", Reason: fmt.Sprintf("must be at most %d characters", MaxProductIDLength)}
	case quantity <= 0:
		return nil, &ValidationError{Field: "quantity", Reason: "must be at least 1"}
	case !totalPrice.IsPositive():
		return nil, &ValidationError{Field: "total_price", Reason: "must be greater than 0"}
	case !totalPrice.Equal(totalPrice.Truncate(PriceScale)):
		return nil, &ValidationError{Field: "total_price", Reason: fmt.Sprintf("must have at most %d decimal places", PriceScale)}
	case totalPrice.GreaterThanOrEqual(maxTotalPrice):
		return nil, &ValidationError{Field: "total_price", Reason: "must be less than " + maxTotalPrice.String()}
	}
	return &Order{
		UserID:     userID,
		ProductID:  productID,
		Quantity:   quantity,
		TotalPrice: totalPrice,
		Status:     StatusPending,
	}, nil
}

// OwnedBy reports whether the order belongs to userID.
func (o *Order) OwnedBy(userID int64) bool {
	return o != nil && o.UserID == userID
}
