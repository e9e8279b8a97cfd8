// Package checkout превращает содержимое корзины в оформленный заказ.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/payment"
	"github.com/mmeshcher/storefront/internal/session"
	"github.com/mmeshcher/storefront/internal/validation"
)

// Примечания к первой записи истории статусов.
const (
	NotePlaced      = "order placed, awaiting processing"
	NotePaymentPaid = "payment received"
)

// Cart описывает корзину, из которой оформляется заказ.
type Cart interface {
	Items() []model.LineItem
	RemovePurchased(ctx context.Context, purchased []model.LineItem) error
}

// Sessions предоставляет текущую личность и обновление профиля.
type Sessions interface {
	Current() (model.SessionIdentity, bool)
	UpdateProfile(ctx context.Context, userID string, upd session.ProfileUpdate) (model.UserRecord, error)
}

// Orders принимает оформленные заказы.
type Orders interface {
	Append(ctx context.Context, o model.Order) error
}

// Options задаёт параметры оформления.
type Options struct {
	ShippingFee decimal.Decimal
}

// Request содержит контактные данные и выбор покупателя.
type Request struct {
	Name                     string          `json:"name"`
	Phone                    string          `json:"phone"`
	Addresses                []model.Address `json:"addresses"`
	ShippingAddressID        string          `json:"shippingAddressId"`
	PaymentMethod            string          `json:"paymentMethod"`
	ConfirmIncompleteAddress bool            `json:"confirmIncompleteAddress"`
}

// Reconciler оформляет заказы.
type Reconciler struct {
	cart     Cart
	sessions Sessions
	orders   Orders
	payments payment.Gateway
	opts     Options
	logger   *zap.Logger
	now      func() time.Time
}

// NewReconciler создаёт Reconciler.
func NewReconciler(cart Cart, sessions Sessions, orders Orders, payments payment.Gateway, opts Options, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		cart:     cart,
		sessions: sessions,
		orders:   orders,
		payments: payments,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Checkout оформляет заказ из позиций корзины с положительным количеством.
//
// Заказ записывается до очистки корзины: если запись не удалась, корзина остаётся нетронутой.
// Из корзины удаляется только то, что вошло в заказ: позиции, добавленные во время ожидания
// оплаты, остаются. Ошибки записи профиля и очистки корзины не отменяют заказ. В этом случае возвращаются
// и заказ, и ошибка, оборачивающая model.ErrPersistenceWrite.
func (r *Reconciler) Checkout(ctx context.Context, req Request) (model.Order, error) {
	items := purchasable(r.cart.Items())
	if len(items) == 0 {
		return model.Order{}, model.ErrEmptyCart
	}

	identity, ok := r.sessions.Current()
	if !ok {
		return model.Order{}, model.ErrAuthRequired
	}

	if !validation.HasContactInfo(req.Name, req.Phone) {
		return model.Order{}, model.ErrMissingContactInfo
	}

	addresses := session.WithIDs(req.Addresses)
	shippingID := session.SelectAddressID(addresses, req.ShippingAddressID)
	if !req.ConfirmIncompleteAddress && !shippingComplete(addresses, shippingID) {
		return model.Order{}, model.ErrIncompleteAddress
	}

	method := strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if method == "" {
		method = payment.MethodCOD
	}
	paid, err := r.payments.Authorize(ctx, method)
	if err != nil {
		return model.Order{}, fmt.Errorf("authorize payment: %w", err)
	}

	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Total())
	}

	status, note := model.OrderStatusPending, NotePlaced
	if paid == model.PaymentStatusPaid {
		status, note = model.OrderStatusProcessing, NotePaymentPaid
	}

	email := identity.Email
	if email == "" {
		email = identity.Username
	}

	now := r.now().UTC()
	o := model.Order{
		ID: uuid.NewString(),
		User: model.OrderCustomer{
			ID:                identity.ID,
			Name:              strings.TrimSpace(req.Name),
			Email:             email,
			Phone:             strings.TrimSpace(req.Phone),
			Addresses:         addresses,
			ShippingAddressID: shippingID,
		},
		Items:         items,
		Subtotal:      subtotal,
		ShippingFee:   r.opts.ShippingFee,
		Total:         subtotal.Add(r.opts.ShippingFee),
		Status:        status,
		PaymentMethod: method,
		PaymentStatus: paid,
		StatusHistory: []model.StatusEntry{{Status: status, At: now, Note: note}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := r.orders.Append(ctx, o); err != nil {
		return model.Order{}, fmt.Errorf("append order: %w", err)
	}
	r.logger.Info("order placed",
		zap.String("order", o.ID),
		zap.String("user", identity.ID),
		zap.String("total", o.Total.String()),
		zap.String("payment", string(paid)),
	)

	var warnings []error
	_, err = r.sessions.UpdateProfile(ctx, identity.ID, session.ProfileUpdate{
		Name:              o.User.Name,
		Phone:             o.User.Phone,
		Addresses:         addresses,
		ShippingAddressID: shippingID,
	})
	if err != nil {
		r.logger.Warn("cannot save contact info after checkout", zap.String("user", identity.ID), zap.Error(err))
		if !errors.Is(err, model.ErrPersistenceWrite) {
			err = fmt.Errorf("%w: %w", model.ErrPersistenceWrite, err)
		}
		warnings = append(warnings, err)
	}

	if err := r.cart.RemovePurchased(ctx, items); err != nil {
		warnings = append(warnings, err)
	}

	return o, errors.Join(warnings...)
}

func purchasable(items []model.LineItem) []model.LineItem {
	res := make([]model.LineItem, 0, len(items))
	for _, it := range items {
		if it.Quantity > 0 {
			res = append(res, it)
		}
	}
	return res
}

func shippingComplete(addresses []model.Address, id string) bool {
	for _, a := range addresses {
		if a.ID == id {
			return validation.IsAddressComplete(a)
		}
	}
	return false
}
