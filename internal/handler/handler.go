// Package handler содержит HTTP-обработчики API витрины.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/checkout"
	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/service"
	"github.com/mmeshcher/storefront/internal/session"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, email, password, name string) (model.UserRecord, error)
	Login(ctx context.Context, identifier, password string) (model.SessionIdentity, error)
	Logout(ctx context.Context) error
	CurrentUser() (model.SessionIdentity, bool)
	Profile(ctx context.Context) (model.UserRecord, error)
	UpdateProfile(ctx context.Context, upd session.ProfileUpdate) (model.UserRecord, error)

	Cart() service.CartView
	AddToCart(ctx context.Context, in service.AddItem) error
	RemoveFromCart(ctx context.Context, productID int64, size string) error
	IncreaseQuantity(ctx context.Context, productID int64, size string) error
	DecreaseQuantity(ctx context.Context, productID int64, size string) error
	SetQuantity(ctx context.Context, productID int64, size string, quantity int) error
	ClearCart(ctx context.Context) error

	Checkout(ctx context.Context, req checkout.Request) (model.Order, error)
	MyOrders(ctx context.Context) ([]model.Order, error)
	DeleteMyOrder(ctx context.Context, orderID string) error

	Products(ctx context.Context, query, collection string) ([]model.Product, error)
	Product(ctx context.Context, id string) (model.Product, error)

	Users(ctx context.Context) ([]model.UserRecord, error)
	PromoteUser(ctx context.Context, identifier string) error
	DeleteUser(ctx context.Context, identifier string) error
	AllOrders(ctx context.Context) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status model.OrderStatus, note string) (model.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
	CreateProduct(ctx context.Context, p model.Product) (model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) (model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type warningResponse struct {
	Warning string `json:"warning,omitempty"`
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionResponse struct {
	model.SessionIdentity
	Warning string `json:"warning,omitempty"`
}

type profileRequest struct {
	Name              string          `json:"name"`
	Phone             string          `json:"phone"`
	Addresses         []model.Address `json:"addresses"`
	ShippingAddressID string          `json:"shippingAddressId"`
}

// Register обрабатывает регистрацию нового пользователя. Сессия не открывается.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeError(w, "register user error", err)
		return
	}

	h.writeJSON(w, http.StatusCreated, u)
}

// Login выполняет аутентификацию пользователя и устанавливает cookie. Ошибка записи считается
// предупреждением, только если личность уже установлена.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	identity, err := h.service.Login(r.Context(), req.Login, req.Password)
	if err != nil && identity.ID == "" {
		h.writeError(w, "login user error", err)
		return
	}
	warning, err := splitWarning(err)
	if err != nil {
		h.writeError(w, "login user error", err)
		return
	}

	h.authMiddleware.SetAuthCookie(w, identity.ID)
	h.writeJSON(w, http.StatusOK, sessionResponse{SessionIdentity: identity, Warning: warning})
}

// Logout закрывает сессию и удаляет cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	warning, err := splitWarning(h.service.Logout(r.Context()))
	if err != nil {
		h.writeError(w, "logout error", err)
		return
	}

	h.authMiddleware.ClearAuthCookie(w)
	h.writeJSON(w, http.StatusOK, warningResponse{Warning: warning})
}

// GetSession возвращает личность текущей сессии.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	h.writeJSON(w, http.StatusOK, sessionResponse{SessionIdentity: identity})
}

// GetProfile возвращает учётную запись текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Profile(r.Context())
	if err != nil {
		h.writeError(w, "get profile error", err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

// UpdateProfile сохраняет контактные данные и адреса текущего пользователя.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	u, err := h.service.UpdateProfile(r.Context(), session.ProfileUpdate{
		Name:              req.Name,
		Phone:             req.Phone,
		Addresses:         req.Addresses,
		ShippingAddressID: req.ShippingAddressID,
	})
	if err != nil {
		h.writeError(w, "update profile error", err)
		return
	}
	h.writeJSON(w, http.StatusOK, u)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// writeError отвечает статусом, соответствующим ошибке. Неизвестные ошибки пишутся в журнал
// и возвращаются как 500 без подробностей.
func (h *Handler) writeError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, zap.Error(err))
		http.Error(w, http.StatusText(status), status)
		return
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrMissingContactInfo):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrIncompleteAddress):
		return http.StatusPreconditionRequired
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrAuthRequired), errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, model.ErrUserNotFound), errors.Is(err, model.ErrOrderNotFound), errors.Is(err, model.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrEmptyCart), errors.Is(err, model.ErrDuplicateIdentity), errors.Is(err, model.ErrOrderLocked):
		return http.StatusConflict
	case errors.Is(err, model.ErrPaymentCancelled):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrCatalogDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// splitWarning отделяет ошибку записи в хранилище, после которой изменение всё равно
// действует в памяти, от настоящих ошибок.
func splitWarning(err error) (string, error) {
	if err == nil {
		return "", nil
	}
	if errors.Is(err, model.ErrPersistenceWrite) {
		return err.Error(), nil
	}
	return "", err
}
