package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

type brokenStore struct {
	*repository.MemoryStore
}

func (b brokenStore) Set(context.Context, string, []byte) error {
	return errors.New("storage disabled")
}

func item(id int64, size string, qty int, price int64) model.LineItem {
	return model.LineItem{
		ProductID: id,
		Size:      size,
		Quantity:  qty,
		Price:     decimal.NewFromInt(price),
		Name:      "product",
	}
}

func newLedger(t *testing.T) (*Ledger, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	return NewLedger(context.Background(), store, zap.NewNop()), store
}

func TestAdd_MergesByIdentity(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	for _, q := range []int{2, 3, 5} {
		require.NoError(t, l.Add(ctx, item(7, "M", q, 100)))
	}
	require.NoError(t, l.Add(ctx, item(7, "L", 1, 100)))
	require.NoError(t, l.Add(ctx, item(8, "", 1, 50)))

	items := l.Items()
	require.Len(t, items, 3)
	assert.Equal(t, 10, items[0].Quantity)
	assert.Equal(t, "L", items[1].Size)
	assert.Equal(t, int64(8), items[2].ProductID)
}

func TestAdd_CoercesNewQuantityAndClampsMerge(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	require.NoError(t, l.Add(ctx, item(1, "S", 0, 10)))
	assert.Equal(t, 1, l.Items()[0].Quantity)

	require.NoError(t, l.Add(ctx, item(1, "S", -5, 10)))
	assert.Equal(t, 0, l.Items()[0].Quantity)
}

func TestRemoveThenAdd_LeavesNoResidue(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	require.NoError(t, l.Add(ctx, item(3, "M", 4, 10)))
	require.NoError(t, l.Remove(ctx, 3, "M"))
	require.NoError(t, l.Add(ctx, item(3, "M", 2, 10)))

	items := l.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestRemove_MissingIsNoop(t *testing.T) {
	l, _ := newLedger(t)
	require.NoError(t, l.Remove(context.Background(), 42, "XL"))
	assert.Equal(t, 0, l.Len())
}

func TestDecrease_StopsAtPendingRemoval(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	require.NoError(t, l.Add(ctx, item(5, "M", 2, 10)))
	require.NoError(t, l.Decrease(ctx, 5, "M"))
	assert.Equal(t, 1, l.Items()[0].Quantity)

	require.NoError(t, l.Decrease(ctx, 5, "M"))
	require.Len(t, l.Items(), 1, "decrease must not delete the line")
	assert.Equal(t, 0, l.Items()[0].Quantity)
	assert.Len(t, l.PendingRemoval(), 1)

	require.NoError(t, l.Decrease(ctx, 5, "M"))
	assert.Equal(t, 0, l.Items()[0].Quantity)
}

func TestSetQuantity(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)

	require.NoError(t, l.Add(ctx, item(9, "M", 3, 10)))
	require.NoError(t, l.SetQuantity(ctx, 9, "M", 17))
	assert.Equal(t, 17, l.Items()[0].Quantity)

	require.NoError(t, l.SetQuantity(ctx, 9, "M", 0))
	assert.Equal(t, 0, l.Len())
}

func TestClear_PersistsEmptyLedger(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	require.NoError(t, l.Add(ctx, item(1, "", 1, 10)))
	require.NoError(t, l.Clear(ctx))

	rehydrated := NewLedger(ctx, store, zap.NewNop())
	assert.Equal(t, 0, rehydrated.Len())
}

func TestLedger_RehydratesFromStore(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	require.NoError(t, l.Add(ctx, item(7, "M", 2, 100)))
	require.NoError(t, l.Increase(ctx, 7, "M"))

	rehydrated := NewLedger(ctx, store, zap.NewNop())
	items := rehydrated.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity)
	assert.True(t, decimal.NewFromInt(300).Equal(rehydrated.Subtotal()))
}

func TestLedger_CorruptStorageStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Set(ctx, model.KeyCart, []byte("not json")))

	l := NewLedger(ctx, store, zap.NewNop())
	assert.Equal(t, 0, l.Len())
}

func TestLedger_PersistenceFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(ctx, brokenStore{repository.NewMemoryStore()}, zap.NewNop())

	err := l.Add(ctx, item(1, "M", 2, 10))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrPersistenceWrite)

	items := l.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestItems_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(t)
	require.NoError(t, l.Add(ctx, item(1, "M", 1, 10)))

	items := l.Items()
	items[0].Quantity = 99
	assert.Equal(t, 1, l.Items()[0].Quantity)
}

func TestRemovePurchased_KeepsLaterAdditions(t *testing.T) {
	ctx := context.Background()
	l, store := newLedger(t)

	require.NoError(t, l.Add(ctx, item(1, "M", 2, 10)))
	require.NoError(t, l.Add(ctx, item(2, "", 1, 10)))
	purchased := l.Items()

	require.NoError(t, l.Increase(ctx, 1, "M"))
	require.NoError(t, l.Add(ctx, item(3, "L", 1, 10)))

	require.NoError(t, l.RemovePurchased(ctx, purchased))

	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, int64(3), items[1].ProductID)

	rehydrated := NewLedger(ctx, store, zap.NewNop()).Items()
	require.Len(t, rehydrated, 2)
	assert.Equal(t, 1, rehydrated[0].Quantity)
	assert.Equal(t, int64(3), rehydrated[1].ProductID)
}
