// Package handler exposes the services over HTTP with chi.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/ordermesh/ordersvc/internal/auth"
	"github.com/ordermesh/ordersvc/internal/domain"
)

// OrderUseCases is what the order routes need from the service layer.
type OrderUseCases interface {
	CreateOrder(ctx context.Context, userID int64, productID string, quantity int, totalPrice decimal.Decimal) (*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]domain.Order, error)
}

const maxBodyBytes = 1 << 20

type OrderHandler struct {
	orders OrderUseCases
	logger *slog.Logger
}

func NewOrderHandler(orders OrderUseCases, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{orders: orders, logger: logger.With("component", "http")}
}

// Routes mounts the order endpoints; the caller applies authentication.
func (h *OrderHandler) Routes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
}

func (h *OrderHandler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing token"})
		return
	}

	var req createOrderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.TotalPrice == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "total_price is required"})
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), userID, req.ProductID, req.Quantity, *req.TotalPrice)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(*order))
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing token"})
		return
	}
	orders, err := h.orders.ListOrders(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponses(orders))
}

func (h *OrderHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing token"})
		return
	}
	orderID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order ID"})
		return
	}
	order, err := h.orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(*order))
}
