package checkout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/storefront/internal/cart"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/order"
	"github.com/mmeshcher/storefront/internal/payment"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/session"
)

type countingStore struct {
	*repository.MemoryStore
	writes atomic.Int64
}

func (c *countingStore) Set(ctx context.Context, key string, value []byte) error {
	c.writes.Add(1)
	return c.MemoryStore.Set(ctx, key, value)
}

func (c *countingStore) Delete(ctx context.Context, key string) error {
	c.writes.Add(1)
	return c.MemoryStore.Delete(ctx, key)
}

type stubGateway struct {
	status model.PaymentStatus
	err    error
}

func (g stubGateway) Authorize(context.Context, string) (model.PaymentStatus, error) {
	return g.status, g.err
}

type gatewayFunc func(ctx context.Context, method string) (model.PaymentStatus, error)

func (f gatewayFunc) Authorize(ctx context.Context, method string) (model.PaymentStatus, error) {
	return f(ctx, method)
}

type failingOrders struct{}

func (failingOrders) Append(context.Context, model.Order) error {
	return errors.New("quota exceeded")
}

type fixture struct {
	store    *countingStore
	ledger   *cart.Ledger
	sessions *session.Store
	book     *order.Book
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := &countingStore{MemoryStore: repository.NewMemoryStore()}
	logger := zap.NewNop()

	return fixture{
		store:  store,
		ledger: cart.NewLedger(ctx, store, logger),
		sessions: session.NewStore(ctx, store, logger, session.Options{
			AdminEmail:    "admin123@gmail.com",
			AdminPassword: "admin123",
			HashCost:      bcrypt.MinCost,
		}),
		book: order.NewBook(store, logger),
	}
}

func (f fixture) reconciler(gw payment.Gateway) *Reconciler {
	return NewReconciler(f.ledger, f.sessions, f.book, gw, Options{ShippingFee: decimal.NewFromInt(30)}, zap.NewNop())
}

func (f fixture) login(t *testing.T) model.SessionIdentity {
	t.Helper()
	ctx := context.Background()
	_, err := f.sessions.Register(ctx, "buyer@example.com", "pw", "Buyer")
	require.NoError(t, err)
	id, err := f.sessions.Login(ctx, "buyer@example.com", "pw")
	require.NoError(t, err)
	return id
}

func validRequest() Request {
	return Request{
		Name:      "Buyer",
		Phone:     "0900000000",
		Addresses: []model.Address{{ID: "home", Street: "1 Main", City: "Hanoi"}},
	}
}

func TestCheckout_ExampleScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	identity := f.login(t)

	require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 7, Size: "M", Quantity: 2, Price: decimal.NewFromInt(100), Name: "Tee"}))
	require.NoError(t, f.ledger.Increase(ctx, 7, "M"))
	assert.Equal(t, 3, f.ledger.Items()[0].Quantity)
	require.NoError(t, f.ledger.SetQuantity(ctx, 7, "M", 1))

	o, err := f.reconciler(stubGateway{status: model.PaymentStatusPending}).Checkout(ctx, validRequest())
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(100).Equal(o.Subtotal))
	assert.True(t, decimal.NewFromInt(130).Equal(o.Total))
	assert.Equal(t, model.OrderStatusPending, o.Status)
	assert.Equal(t, identity.ID, o.User.ID)
	assert.Equal(t, "home", o.User.ShippingAddressID)
	require.Len(t, o.StatusHistory, 1)
	assert.Equal(t, NotePlaced, o.StatusHistory[0].Note)

	assert.Equal(t, 0, f.ledger.Len())
	orders, err := f.book.List(ctx)
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	u, err := f.sessions.User(ctx, identity.ID)
	require.NoError(t, err)
	assert.Equal(t, "0900000000", u.Phone)
	assert.Equal(t, "home", u.ShippingAddressID)
}

func TestCheckout_EmptyCartWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t)
	before := f.store.writes.Load()

	_, err := f.reconciler(stubGateway{status: model.PaymentStatusPending}).Checkout(ctx, validRequest())
	assert.ErrorIs(t, err, model.ErrEmptyCart)
	assert.Equal(t, before, f.store.writes.Load())

	orders, err := f.book.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckout_PendingRemovalLinesAreSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t)

	require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(10)}))
	require.NoError(t, f.ledger.Decrease(ctx, 1, ""))

	_, err := f.reconciler(stubGateway{status: model.PaymentStatusPending}).Checkout(ctx, validRequest())
	assert.ErrorIs(t, err, model.ErrEmptyCart)

	require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 2, Quantity: 2, Price: decimal.NewFromInt(10)}))
	o, err := f.reconciler(stubGateway{status: model.PaymentStatusPending}).Checkout(ctx, validRequest())
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assert.Equal(t, int64(2), o.Items[0].ProductID)
}

func TestCheckout_Preconditions(t *testing.T) {
	ctx := context.Background()

	t.Run("anonymous", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(10)}))

		_, err := f.reconciler(stubGateway{}).Checkout(ctx, validRequest())
		assert.ErrorIs(t, err, model.ErrAuthRequired)
	})

	t.Run("missing contact", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(10)}))

		req := validRequest()
		req.Phone = "  "
		_, err := f.reconciler(stubGateway{}).Checkout(ctx, req)
		assert.ErrorIs(t, err, model.ErrMissingContactInfo)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("incomplete address needs confirmation", func(t *testing.T) {
		f := newFixture(t)
		f.login(t)
		require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(10)}))

		req := validRequest()
		req.Addresses = []model.Address{{Street: "1 Main"}}
		_, err := f.reconciler(stubGateway{status: model.PaymentStatusPending}).Checkout(ctx, req)
		assert.ErrorIs(t, err, model.ErrIncompleteAddress)
		assert.Equal(t, 1, f.ledger.Len())

		req.ConfirmIncompleteAddress = true
		_, err = f.reconciler(stubGateway{status: model.PaymentStatusPending}).Checkout(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, 0, f.ledger.Len())
	})
}

func TestCheckout_PaidOrderStartsProcessing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t)
	require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(10)}))

	req := validRequest()
	req.PaymentMethod = "momo"
	o, err := f.reconciler(stubGateway{status: model.PaymentStatusPaid}).Checkout(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusProcessing, o.Status)
	assert.Equal(t, model.PaymentStatusPaid, o.PaymentStatus)
	assert.Equal(t, NotePaymentPaid, o.StatusHistory[0].Note)
}

func TestCheckout_PaymentFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t)
	require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(10)}))

	_, err := f.reconciler(stubGateway{err: model.ErrPaymentCancelled}).Checkout(ctx, validRequest())
	assert.ErrorIs(t, err, model.ErrPaymentCancelled)
	assert.Equal(t, 1, f.ledger.Len())
}

func TestCheckout_AppendFailureLeavesCartUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t)
	require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 1, Quantity: 3, Price: decimal.NewFromInt(10)}))

	r := NewReconciler(f.ledger, f.sessions, failingOrders{}, stubGateway{status: model.PaymentStatusPending},
		Options{ShippingFee: decimal.NewFromInt(30)}, zap.NewNop())

	_, err := r.Checkout(ctx, validRequest())
	require.Error(t, err)
	require.Equal(t, 1, f.ledger.Len())
	assert.Equal(t, 3, f.ledger.Items()[0].Quantity)
}

func TestCheckout_KeepsItemsAddedWhileAwaitingPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t)
	require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 1, Size: "M", Quantity: 2, Price: decimal.NewFromInt(10)}))

	gw := gatewayFunc(func(ctx context.Context, _ string) (model.PaymentStatus, error) {
		require.NoError(t, f.ledger.Add(ctx, model.LineItem{ProductID: 2, Quantity: 1, Price: decimal.NewFromInt(5)}))
		require.NoError(t, f.ledger.Increase(ctx, 1, "M"))
		return model.PaymentStatusPaid, nil
	})

	req := validRequest()
	req.PaymentMethod = payment.MethodMomo
	o, err := f.reconciler(gw).Checkout(ctx, req)
	require.NoError(t, err)

	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.True(t, decimal.NewFromInt(20).Equal(o.Subtotal))

	items := f.ledger.Items()
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ProductID)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, int64(2), items[1].ProductID)

	rehydrated := cart.NewLedger(ctx, f.store, zap.NewNop())
	assert.Equal(t, 2, rehydrated.Len())
}
