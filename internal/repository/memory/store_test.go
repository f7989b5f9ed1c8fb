package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ordermesh/ordersvc/internal/domain"
)

func newOrder(t *testing.T, userID int64, product string) *domain.Order {
	t.Helper()
	order, err := domain.NewOrder(userID, product, 1, decimal.NewFromInt(10))
	require.NoError(t, err)
	return order
}

func TestCreateAssignsIDAndTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	first := newOrder(t, 42, "SKU-1")
	require.NoError(t, store.Create(ctx, first))
	second := newOrder(t, 42, "SKU-2")
	require.NoError(t, store.Create(ctx, second))

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.Equal(t, domain.StatusPending, first.Status)
	assert.Equal(t, now, first.CreatedAt)
	assert.Equal(t, now, first.UpdatedAt)
}

func TestGetForUserHidesOtherUsersOrders(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	order := newOrder(t, 42, "SKU-1")
	require.NoError(t, store.Create(ctx, order))

	got, err := store.GetForUser(ctx, 42, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "SKU-1", got.ProductID)

	_, err = store.GetForUser(ctx, 7, order.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = store.GetForUser(ctx, 42, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListByUserNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		// the last two orders share a timestamp
		if tick > 2 {
			return base.Add(2 * time.Minute)
		}
		return base.Add(time.Duration(tick) * time.Minute)
	}
	store := NewStore().WithClock(clock)
	ctx := context.Background()

	for _, p := range []string{"a", "b", "c", "d"} {
		require.NoError(t, store.Create(ctx, newOrder(t, 42, p)))
	}
	require.NoError(t, store.Create(ctx, newOrder(t, 7, "other")))

	orders, err := store.ListByUser(ctx, 42)
	require.NoError(t, err)
	var ids []int64
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []int64{4, 3, 2, 1}, ids)
}

func TestListByUserEmpty(t *testing.T) {
	orders, err := NewStore().ListByUser(context.Background(), 42)
	require.NoError(t, err)
	assert.NotNil(t, orders)
	assert.Empty(t, orders)
}

func TestConcurrentCreatesGetDistinctIDs(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	const n = 100
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := domain.NewOrder(42, "SKU-1", 1, decimal.NewFromInt(1))
			if err != nil {
				return
			}
			if store.Create(ctx, order) == nil {
				ids <- order.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestCancelledContextIsPersistenceError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewStore().Create(ctx, newOrder(t, 42, "SKU-1"))
	assert.ErrorIs(t, err, domain.ErrPersistence)
}
