// Package cart реализует корзину покупателя: дедуплицированный набор позиций (товар, размер) с количеством.
package cart

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
)

// Ledger хранит позиции корзины в памяти и зеркалирует их в хранилище после каждого изменения.
// Состояние в памяти считается основным: ошибка записи не откатывает изменение.
type Ledger struct {
	mu     sync.Mutex
	items  []model.LineItem
	store  model.KVStore
	logger *zap.Logger
}

// NewLedger создаёт корзину и восстанавливает её содержимое из хранилища.
func NewLedger(ctx context.Context, store model.KVStore, logger *zap.Logger) *Ledger {
	l := &Ledger{
		store:  store,
		logger: logger,
	}
	l.Reload(ctx)
	return l
}

// Reload перечитывает корзину из хранилища. Отсутствующее или повреждённое значение даёт пустую корзину.
func (l *Ledger) Reload(ctx context.Context) {
	var items []model.LineItem
	if _, err := repository.GetJSON(ctx, l.store, model.KeyCart, &items); err != nil {
		l.logger.Warn("cannot rehydrate cart", zap.Error(err))
		items = nil
	}

	l.mu.Lock()
	l.items = normalize(items)
	l.mu.Unlock()
}

// Items возвращает копию позиций в порядке добавления.
func (l *Ledger) Items() []model.LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// Len возвращает количество позиций, включая ожидающие удаления.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Subtotal возвращает сумму цена × количество по всем позициям.
func (l *Ledger) Subtotal() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	sum := decimal.Zero
	for _, it := range l.items {
		sum = sum.Add(it.Total())
	}
	return sum
}

// PendingRemoval возвращает позиции с нулевым количеством, удаление которых должен подтвердить пользователь.
func (l *Ledger) PendingRemoval() []model.LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()

	var res []model.LineItem
	for _, it := range l.items {
		if it.Quantity == 0 {
			res = append(res, it)
		}
	}
	return res
}

// Add добавляет позицию. Если позиция с той же идентичностью уже есть, количество суммируется
// (не ниже нуля). Новая позиция с количеством меньше 1 добавляется с количеством 1.
func (l *Ledger) Add(ctx context.Context, item model.LineItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if i := l.index(item.ProductID, item.Size); i >= 0 {
		q := l.items[i].Quantity + item.Quantity
		if q < 0 {
			q = 0
		}
		l.items[i].Quantity = q
	} else {
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		l.items = append(l.items, item)
	}

	return l.persist(ctx)
}

// Remove удаляет позицию. Отсутствие позиции не является ошибкой.
func (l *Ledger) Remove(ctx context.Context, productID int64, size string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.index(productID, size)
	if i < 0 {
		return nil
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return l.persist(ctx)
}

// Increase увеличивает количество позиции на единицу.
func (l *Ledger) Increase(ctx context.Context, productID int64, size string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.index(productID, size)
	if i < 0 {
		return nil
	}
	l.items[i].Quantity++
	return l.persist(ctx)
}

// Decrease уменьшает количество позиции на единицу. Позиция с количеством 1 не удаляется,
// а получает количество 0: решение об удалении принимает вызывающая сторона.
func (l *Ledger) Decrease(ctx context.Context, productID int64, size string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.index(productID, size)
	if i < 0 {
		return nil
	}
	if l.items[i].Quantity <= 1 {
		l.items[i].Quantity = 0
	} else {
		l.items[i].Quantity--
	}
	return l.persist(ctx)
}

// SetQuantity устанавливает количество позиции. Значение не больше нуля удаляет позицию.
func (l *Ledger) SetQuantity(ctx context.Context, productID int64, size string, quantity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	i := l.index(productID, size)
	if i < 0 {
		return nil
	}
	if quantity <= 0 {
		l.items = append(l.items[:i], l.items[i+1:]...)
	} else {
		l.items[i].Quantity = quantity
	}
	return l.persist(ctx)
}

// Clear очищает корзину.
func (l *Ledger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = nil
	return l.persist(ctx)
}

// RemovePurchased вычитает из корзины оплаченные позиции. Позиция удаляется, если её количество
// не превышает купленного. Позиции, добавленные после снимка, и сверх купленного количества остаются.
func (l *Ledger) RemovePurchased(ctx context.Context, purchased []model.LineItem) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	changed := false
	for _, p := range purchased {
		i := l.index(p.ProductID, p.Size)
		if i < 0 {
			continue
		}
		changed = true
		if left := l.items[i].Quantity - p.Quantity; left > 0 {
			l.items[i].Quantity = left
			continue
		}
		l.items = append(l.items[:i], l.items[i+1:]...)
	}
	if !changed {
		return nil
	}
	return l.persist(ctx)
}

func (l *Ledger) index(productID int64, size string) int {
	for i, it := range l.items {
		if it.Matches(productID, size) {
			return i
		}
	}
	return -1
}

func (l *Ledger) snapshot() []model.LineItem {
	res := make([]model.LineItem, len(l.items))
	copy(res, l.items)
	return res
}

func (l *Ledger) persist(ctx context.Context) error {
	if err := repository.SetJSON(ctx, l.store, model.KeyCart, l.snapshot()); err != nil {
		l.logger.Warn("cart persisted only in memory", zap.Error(err))
		return err
	}
	return nil
}

// normalize сливает дубликаты и отбрасывает отрицательные количества в данных, прочитанных из хранилища.
func normalize(items []model.LineItem) []model.LineItem {
	var res []model.LineItem
	for _, it := range items {
		if it.Quantity < 0 {
			continue
		}
		merged := false
		for i := range res {
			if res[i].Matches(it.ProductID, it.Size) {
				res[i].Quantity += it.Quantity
				merged = true
				break
			}
		}
		if !merged {
			res = append(res, it)
		}
	}
	return res
}
