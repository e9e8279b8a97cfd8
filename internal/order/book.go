// Package order управляет коллекцией оформленных заказов.
package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

// NoteUpdatedByAdmin используется как примечание к смене статуса, если администратор его не указал.
const NoteUpdatedByAdmin = "updated by admin"

// Book хранит заказы под ключом orders. Изменения коллекции выполняются под mu
// от чтения до записи.
type Book struct {
	mu     sync.Mutex
	store  model.KVStore
	logger *zap.Logger
	now    func() time.Time
}

// NewBook создаёт коллекцию заказов поверх хранилища.
func NewBook(store model.KVStore, logger *zap.Logger) *Book {
	return &Book{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Append добавляет заказ в конец коллекции.
func (b *Book) Append(ctx context.Context, o model.Order) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders, err := b.load(ctx)
	if err != nil {
		return err
	}
	return repository.SetJSON(ctx, b.store, model.KeyOrders, append(orders, o))
}

// List возвращает все заказы, новые первыми.
func (b *Book) List(ctx context.Context) ([]model.Order, error) {
	orders, err := b.load(ctx)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(orders)
	return orders, nil
}

// ListForUser возвращает заказы пользователя, новые первыми. Заказ принадлежит пользователю,
// если совпадает идентификатор. Если идентификатора в заказе нет, сравнивается email без учёта регистра.
func (b *Book) ListForUser(ctx context.Context, identity model.SessionIdentity) ([]model.Order, error) {
	orders, err := b.load(ctx)
	if err != nil {
		return nil, err
	}

	var res []model.Order
	for _, o := range orders {
		if ownedBy(o, identity) {
			res = append(res, o)
		}
	}
	sortNewestFirst(res)
	return res, nil
}

// Get возвращает заказ по идентификатору.
func (b *Book) Get(ctx context.Context, id string) (model.Order, error) {
	orders, err := b.load(ctx)
	if err != nil {
		return model.Order{}, err
	}
	for _, o := range orders {
		if o.ID == id {
			return o, nil
		}
	}
	return model.Order{}, fmt.Errorf("%w: %s", model.ErrOrderNotFound, id)
}

// UpdateStatus меняет статус заказа и дописывает запись в историю.
func (b *Book) UpdateStatus(ctx context.Context, id string, status model.OrderStatus, note string) (model.Order, error) {
	if !status.Valid() {
		return model.Order{}, fmt.Errorf("%w: %q", model.ErrInvalidStatus, status)
	}
	if note == "" {
		note = NoteUpdatedByAdmin
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	orders, err := b.load(ctx)
	if err != nil {
		return model.Order{}, err
	}

	for i := range orders {
		if orders[i].ID != id {
			continue
		}
		now := b.now().UTC()
		orders[i].Status = status
		orders[i].StatusHistory = append(orders[i].StatusHistory, model.StatusEntry{Status: status, At: now, Note: note})
		orders[i].UpdatedAt = now

		if err := repository.SetJSON(ctx, b.store, model.KeyOrders, orders); err != nil {
			return model.Order{}, err
		}
		b.logger.Info("order status updated", zap.String("order", id), zap.String("status", string(status)))
		return orders[i], nil
	}
	return model.Order{}, fmt.Errorf("%w: %s", model.ErrOrderNotFound, id)
}

// Delete удаляет заказ. Отправленные и доставленные заказы удалять нельзя.
func (b *Book) Delete(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	orders, err := b.load(ctx)
	if err != nil {
		return err
	}

	for i, o := range orders {
		if o.ID != id {
			continue
		}
		if o.Status.Locked() {
			return fmt.Errorf("%w: %s is %s", model.ErrOrderLocked, id, o.Status)
		}
		orders = append(orders[:i], orders[i+1:]...)
		if err := repository.SetJSON(ctx, b.store, model.KeyOrders, orders); err != nil {
			return err
		}
		b.logger.Info("order deleted", zap.String("order", id))
		return nil
	}
	return fmt.Errorf("%w: %s", model.ErrOrderNotFound, id)
}

func (b *Book) load(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if _, err := repository.GetJSON(ctx, b.store, model.KeyOrders, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func ownedBy(o model.Order, identity model.SessionIdentity) bool {
	if identity.ID != "" && o.User.ID != "" {
		return o.User.ID == identity.ID
	}
	return o.User.Email != "" && strings.EqualFold(o.User.Email, identity.Email)
}

func sortNewestFirst(orders []model.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
