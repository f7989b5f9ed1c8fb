// Package memory is an in-process OrderRepository for tests and for running
// the service without Postgres.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ordermesh/ordersvc/internal/domain"
)

type Store struct {
	mu     sync.RWMutex
	orders map[int64]domain.Order
	byUser map[int64][]int64
	nextID int64
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		orders: make(map[int64]domain.Order),
		byUser: make(map[int64][]int64),
		nextID: 1,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used to stamp new orders.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Create(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return &domain.PersistenceError{Op: "insert", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	order.ID = s.nextID
	order.Status = domain.StatusPending
	order.CreatedAt = now
	order.UpdatedAt = now
	s.nextID++

	s.orders[order.ID] = *order
	s.byUser[order.UserID] = append(s.byUser[order.UserID], order.ID)
	return nil
}

func (s *Store) GetForUser(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "select", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok || !order.OwnedBy(userID) {
		return nil, domain.ErrNotFound
	}
	return &order, nil
}

func (s *Store) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.PersistenceError{Op: "select", Err: err}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byUser[userID]
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.orders[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
