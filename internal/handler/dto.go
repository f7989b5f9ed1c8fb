package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ordermesh/ordersvc/internal/domain"
)

type createOrderRequest struct {
	ProductID  string           `json:"product_id"`
	Quantity   int              `json:"quantity"`
	TotalPrice *decimal.Decimal `json:"total_price"`
}

type orderResponse struct {
	ID         int64       `json:"id"`
	UserID     int64       `json:"user_id"`
	ProductID  string      `json:"product_id"`
	Quantity   int         `json:"quantity"`
	TotalPrice json.Number `json:"total_price"`
	Status     string      `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func toResponse(o domain.Order) orderResponse {
	return orderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		ProductID:  o.ProductID,
		Quantity:   o.Quantity,
		TotalPrice: json.Number(o.TotalPrice.String()),
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func toResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toResponse(o))
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}
