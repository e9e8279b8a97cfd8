// Package service собирает корзину, сессию, заказы и каталог в единый корневой объект витрины.
package service

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/storefront/internal/cart"
	"github.com/mmeshcher/storefront/internal/catalog"
	"github.com/mmeshcher/storefront/internal/checkout"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/order"
	"github.com/mmeshcher/storefront/internal/payment"
	"github.com/mmeshcher/storefront/internal/session"
)

// defaultSyncDelays задаёт паузы перед повторной подпиской на изменения хранилища.
var defaultSyncDelays = []time.Duration{
	time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
	30 * time.Second,
}

// Catalog описывает контракт каталога товаров, используемый сервисом.
type Catalog interface {
	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) (model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// Options задаёт параметры сервиса.
type Options struct {
	ShippingFee decimal.Decimal
	Session     session.Options
}

// CartView описывает содержимое корзины с итогами.
type CartView struct {
	Items          []model.LineItem `json:"items"`
	PendingRemoval []model.LineItem `json:"pendingRemoval,omitempty"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	ShippingFee    decimal.Decimal  `json:"shippingFee"`
	Total          decimal.Decimal  `json:"total"`
}

// AddItem описывает добавление товара в корзину. Если каталог подключён, цена, название
// и изображение берутся из каталога.
type AddItem struct {
	ProductID int64           `json:"id"`
	Size      string          `json:"size"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
}

// Service является корневым объектом витрины. Один экземпляр соответствует одному контексту браузера:
// у него ровно одна корзина и одна сессия.
type Service struct {
	store      model.KVStore
	ledger     *cart.Ledger
	sessions   *session.Store
	orders     *order.Book
	checkout   *checkout.Reconciler
	catalog    Catalog
	opts       Options
	logger     *zap.Logger
	syncDelays []time.Duration
}

// NewService создаёт сервис поверх хранилища и восстанавливает корзину и сессию.
// catalog может быть nil: тогда товары недоступны, а корзина принимает данные из запроса.
func NewService(ctx context.Context, store model.KVStore, catalog Catalog, payments payment.Gateway, opts Options, logger *zap.Logger) *Service {
	ledger := cart.NewLedger(ctx, store, logger)
	sessions := session.NewStore(ctx, store, logger, opts.Session)
	orders := order.NewBook(store, logger)

	return &Service{
		store:      store,
		ledger:     ledger,
		sessions:   sessions,
		orders:     orders,
		checkout:   checkout.NewReconciler(ledger, sessions, orders, payments, checkout.Options{ShippingFee: opts.ShippingFee}, logger),
		catalog:    catalog,
		opts:       opts,
		logger:     logger,
		syncDelays: defaultSyncDelays,
	}
}

// Close закрывает хранилище.
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Register регистрирует пользователя.
func (s *Service) Register(ctx context.Context, email, password, name string) (model.UserRecord, error) {
	u, err := s.sessions.Register(ctx, email, password, name)
	if err != nil {
		return model.UserRecord{}, err
	}
	return redact(u), nil
}

// Login открывает сессию.
func (s *Service) Login(ctx context.Context, identifier, password string) (model.SessionIdentity, error) {
	return s.sessions.Login(ctx, identifier, password)
}

// Logout закрывает сессию.
func (s *Service) Logout(ctx context.Context) error {
	return s.sessions.Logout(ctx)
}

// CurrentUser возвращает личность текущей сессии.
func (s *Service) CurrentUser() (model.SessionIdentity, bool) {
	return s.sessions.Current()
}

// Profile возвращает учётную запись текущего пользователя.
func (s *Service) Profile(ctx context.Context) (model.UserRecord, error) {
	id, ok := s.sessions.Current()
	if !ok {
		return model.UserRecord{}, model.ErrAuthRequired
	}
	u, err := s.sessions.User(ctx, id.ID)
	if err != nil {
		return model.UserRecord{}, err
	}
	return redact(u), nil
}

// UpdateProfile сохраняет контактные данные текущего пользователя.
func (s *Service) UpdateProfile(ctx context.Context, upd session.ProfileUpdate) (model.UserRecord, error) {
	id, ok := s.sessions.Current()
	if !ok {
		return model.UserRecord{}, model.ErrAuthRequired
	}
	u, err := s.sessions.UpdateProfile(ctx, id.ID, upd)
	if err != nil {
		return model.UserRecord{}, err
	}
	return redact(u), nil
}

// Cart возвращает содержимое корзины. Стоимость доставки добавляется, только если
// в корзине есть позиции к оплате.
func (s *Service) Cart() CartView {
	items := s.ledger.Items()
	view := CartView{
		Items:          items,
		PendingRemoval: s.ledger.PendingRemoval(),
		Subtotal:       decimal.Zero,
		ShippingFee:    decimal.Zero,
	}

	payable := false
	for _, it := range items {
		view.Subtotal = view.Subtotal.Add(it.Total())
		if it.Quantity > 0 {
			payable = true
		}
	}
	if payable {
		view.ShippingFee = s.opts.ShippingFee
	}
	view.Total = view.Subtotal.Add(view.ShippingFee)
	return view
}

// AddToCart добавляет товар в корзину.
func (s *Service) AddToCart(ctx context.Context, in AddItem) error {
	item := model.LineItem{
		ProductID: in.ProductID,
		Size:      strings.TrimSpace(in.Size),
		Quantity:  in.Quantity,
		Price:     in.Price,
		Name:      in.Name,
		Image:     in.Image,
	}

	if s.catalog != nil {
		p, err := s.catalog.GetProduct(ctx, strconv.FormatInt(in.ProductID, 10))
		if err != nil {
			return err
		}
		if len(p.Sizes) > 0 && !slices.Contains(p.Sizes, item.Size) {
			return fmt.Errorf("%w: size %q is not offered for product %d", model.ErrValidation, item.Size, in.ProductID)
		}
		item.Price = p.Price
		item.Name = p.Name
		item.Image = p.Cover()
	}

	if item.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", model.ErrValidation)
	}
	return s.ledger.Add(ctx, item)
}

// RemoveFromCart удаляет позицию из корзины.
func (s *Service) RemoveFromCart(ctx context.Context, productID int64, size string) error {
	return s.ledger.Remove(ctx, productID, size)
}

// IncreaseQuantity увеличивает количество на единицу.
func (s *Service) IncreaseQuantity(ctx context.Context, productID int64, size string) error {
	return s.ledger.Increase(ctx, productID, size)
}

// DecreaseQuantity уменьшает количество на единицу, не удаляя позицию.
func (s *Service) DecreaseQuantity(ctx context.Context, productID int64, size string) error {
	return s.ledger.Decrease(ctx, productID, size)
}

// SetQuantity задаёт количество. Значение меньше 1 удаляет позицию.
func (s *Service) SetQuantity(ctx context.Context, productID int64, size string, quantity int) error {
	return s.ledger.SetQuantity(ctx, productID, size, quantity)
}

// ClearCart очищает корзину.
func (s *Service) ClearCart(ctx context.Context) error {
	return s.ledger.Clear(ctx)
}

// Checkout оформляет заказ из корзины.
func (s *Service) Checkout(ctx context.Context, req checkout.Request) (model.Order, error) {
	return s.checkout.Checkout(ctx, req)
}

// MyOrders возвращает заказы текущего пользователя.
func (s *Service) MyOrders(ctx context.Context) ([]model.Order, error) {
	id, ok := s.sessions.Current()
	if !ok {
		return nil, model.ErrAuthRequired
	}
	return s.orders.ListForUser(ctx, id)
}

// DeleteMyOrder удаляет заказ текущего пользователя. Чужой заказ считается несуществующим.
func (s *Service) DeleteMyOrder(ctx context.Context, orderID string) error {
	id, ok := s.sessions.Current()
	if !ok {
		return model.ErrAuthRequired
	}

	mine, err := s.orders.ListForUser(ctx, id)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(mine, func(o model.Order) bool { return o.ID == orderID }) {
		return fmt.Errorf("%w: %s", model.ErrOrderNotFound, orderID)
	}
	return s.orders.Delete(ctx, orderID)
}

// Products возвращает товары коллекции, отфильтрованные по запросу.
func (s *Service) Products(ctx context.Context, query, collection string) ([]model.Product, error) {
	if s.catalog == nil {
		return nil, model.ErrCatalogDisabled
	}
	products, err := s.catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.Filter(catalog.FilterCollection(products, collection), query), nil
}

// Product возвращает товар по идентификатору.
func (s *Service) Product(ctx context.Context, id string) (model.Product, error) {
	if s.catalog == nil {
		return model.Product{}, model.ErrCatalogDisabled
	}
	return s.catalog.GetProduct(ctx, id)
}

// Users возвращает все учётные записи без секретов. Только для администратора.
func (s *Service) Users(ctx context.Context) ([]model.UserRecord, error) {
	if !s.sessions.IsAdmin() {
		return nil, model.ErrForbidden
	}
	users, err := s.sessions.Users(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i] = redact(users[i])
	}
	return users, nil
}

// PromoteUser выдаёт пользователю роль администратора.
func (s *Service) PromoteUser(ctx context.Context, identifier string) error {
	if !s.sessions.IsAdmin() {
		return model.ErrForbidden
	}
	return s.sessions.PromoteToAdmin(ctx, identifier)
}

// DeleteUser удаляет пользователя.
func (s *Service) DeleteUser(ctx context.Context, identifier string) error {
	if !s.sessions.IsAdmin() {
		return model.ErrForbidden
	}
	return s.sessions.DeleteUser(ctx, identifier)
}

// AllOrders возвращает все заказы.
func (s *Service) AllOrders(ctx context.Context) ([]model.Order, error) {
	if !s.sessions.IsAdmin() {
		return nil, model.ErrForbidden
	}
	return s.orders.List(ctx)
}

// UpdateOrderStatus меняет статус заказа.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, note string) (model.Order, error) {
	if !s.sessions.IsAdmin() {
		return model.Order{}, model.ErrForbidden
	}
	return s.orders.UpdateStatus(ctx, orderID, status, note)
}

// DeleteOrder удаляет заказ.
func (s *Service) DeleteOrder(ctx context.Context, orderID string) error {
	if !s.sessions.IsAdmin() {
		return model.ErrForbidden
	}
	return s.orders.Delete(ctx, orderID)
}

// CreateProduct добавляет товар в каталог.
func (s *Service) CreateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if err := s.adminCatalog(); err != nil {
		return model.Product{}, err
	}
	if err := validateProduct(p); err != nil {
		return model.Product{}, err
	}
	return s.catalog.CreateProduct(ctx, p)
}

// UpdateProduct заменяет товар в каталоге.
func (s *Service) UpdateProduct(ctx context.Context, p model.Product) (model.Product, error) {
	if err := s.adminCatalog(); err != nil {
		return model.Product{}, err
	}
	if err := validateProduct(p); err != nil {
		return model.Product{}, err
	}
	return s.catalog.UpdateProduct(ctx, p)
}

// DeleteProduct удаляет товар из каталога.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.adminCatalog(); err != nil {
		return err
	}
	return s.catalog.DeleteProduct(ctx, id)
}

// StartSync следит за изменениями хранилища, сделанными другими процессами, и перечитывает
// корзину и сессию. Блокируется до отмены контекста. Если хранилище не сообщает
// об изменениях, сразу возвращает nil. Обрыв подписки не завершает StartSync:
// подписка восстанавливается с нарастающей паузой.
func (s *Service) StartSync(ctx context.Context) error {
	watcher, ok := s.store.(model.KVWatcher)
	if !ok {
		s.logger.Info("storage change feed unavailable, cross-process sync disabled")
		return nil
	}

	var cartDirty, sessionDirty atomic.Bool
	signal := make(chan struct{}, 1)
	wake := func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for attempt := 0; ; attempt++ {
			err := watcher.Watch(ctx, func(key string) {
				switch key {
				case model.KeyCart:
					cartDirty.Store(true)
				case model.KeyAuthUser, model.KeyUsers:
					sessionDirty.Store(true)
				default:
					return
				}
				wake()
			})
			if ctx.Err() != nil {
				return nil
			}

			delay := s.syncDelays[min(attempt, len(s.syncDelays)-1)]
			s.logger.Warn("storage change feed lost, resubscribing",
				zap.Error(err),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)

			// Пока подписки не было, изменения могли пройти мимо.
			cartDirty.Store(true)
			sessionDirty.Store(true)
			wake()

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-signal:
				if cartDirty.Swap(false) {
					s.ledger.Reload(ctx)
				}
				if sessionDirty.Swap(false) {
					s.sessions.Reload(ctx)
				}
			}
		}
	})
	return g.Wait()
}

func (s *Service) adminCatalog() error {
	if !s.sessions.IsAdmin() {
		return model.ErrForbidden
	}
	if s.catalog == nil {
		return model.ErrCatalogDisabled
	}
	return nil
}

func validateProduct(p model.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: product name is required", model.ErrValidation)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", model.ErrValidation)
	}
	return nil
}

func redact(u model.UserRecord) model.UserRecord {
	u.Password = ""
	return u
}
