package order

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

func seed(t *testing.T, b *Book, orders ...model.Order) {
	t.Helper()
	for _, o := range orders {
		require.NoError(t, b.Append(context.Background(), o))
	}
}

func TestListForUser_MatchesByIDThenEmail(t *testing.T) {
	ctx := context.Background()
	b := NewBook(repository.NewMemoryStore(), zap.NewNop())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	seed(t, b,
		model.Order{ID: "o1", User: model.OrderCustomer{ID: "u1"}, CreatedAt: base},
		model.Order{ID: "o2", User: model.OrderCustomer{ID: "u2", Email: "ann@example.com"}, CreatedAt: base.Add(time.Hour)},
		model.Order{ID: "o3", User: model.OrderCustomer{Email: "ANN@example.com"}, CreatedAt: base.Add(2 * time.Hour)},
		model.Order{ID: "o4", User: model.OrderCustomer{ID: "u1"}, CreatedAt: base.Add(3 * time.Hour)},
	)

	got, err := b.ListForUser(ctx, model.SessionIdentity{ID: "u1", Email: "ann@example.com"})
	require.NoError(t, err)

	ids := make([]string, 0, len(got))
	for _, o := range got {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []string{"o4", "o3", "o1"}, ids)
}

func TestUpdateStatus_AppendsHistory(t *testing.T) {
	ctx := context.Background()
	b := NewBook(repository.NewMemoryStore(), zap.NewNop())
	now := time.Date(2025, 2, 2, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	seed(t, b, model.Order{
		ID:            "o1",
		Status:        model.OrderStatusPending,
		StatusHistory: []model.StatusEntry{{Status: model.OrderStatusPending}},
	})

	o, err := b.UpdateStatus(ctx, "o1", model.OrderStatusShipped, "")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, o.Status)
	require.Len(t, o.StatusHistory, 2)
	assert.Equal(t, NoteUpdatedByAdmin, o.StatusHistory[1].Note)
	assert.Equal(t, now, o.UpdatedAt)

	stored, err := b.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusShipped, stored.Status)

	_, err = b.UpdateStatus(ctx, "o1", "Lost", "")
	assert.ErrorIs(t, err, model.ErrInvalidStatus)

	_, err = b.UpdateStatus(ctx, "missing", model.OrderStatusCancelled, "")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestDelete_RefusesShippedAndDelivered(t *testing.T) {
	ctx := context.Background()
	b := NewBook(repository.NewMemoryStore(), zap.NewNop())

	seed(t, b,
		model.Order{ID: "pending", Status: model.OrderStatusPending},
		model.Order{ID: "shipped", Status: model.OrderStatusShipped},
		model.Order{ID: "delivered", Status: model.OrderStatusDelivered},
		model.Order{ID: "cancelled", Status: model.OrderStatusCancelled},
	)

	assert.ErrorIs(t, b.Delete(ctx, "shipped"), model.ErrOrderLocked)
	assert.ErrorIs(t, b.Delete(ctx, "delivered"), model.ErrOrderLocked)
	require.NoError(t, b.Delete(ctx, "pending"))
	require.NoError(t, b.Delete(ctx, "cancelled"))
	assert.ErrorIs(t, b.Delete(ctx, "pending"), model.ErrOrderNotFound)

	left, err := b.List(ctx)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestAppend_ConcurrentWritersKeepEveryOrder(t *testing.T) {
	ctx := context.Background()
	b := NewBook(repository.NewMemoryStore(), zap.NewNop())

	const n = 16
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Append(ctx, model.Order{ID: fmt.Sprintf("o%d", i), Status: model.OrderStatusPending}))
		}()
	}
	wg.Wait()

	orders, err := b.List(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, n)
}
