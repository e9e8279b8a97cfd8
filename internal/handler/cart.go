package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/checkout"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/service"
)

type cartResponse struct {
	service.CartView
	Warning string `json:"warning,omitempty"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type orderResponse struct {
	model.Order
	Warning string `json:"warning,omitempty"`
}

// GetCart возвращает содержимое корзины.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, cartResponse{CartView: h.service.Cart()})
}

// AddCartItem добавляет товар в корзину.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req service.AddItem
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	h.respondCart(w, "add to cart error", h.service.AddToCart(r.Context(), req))
}

// RemoveCartItem удаляет позицию корзины.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	h.respondCart(w, "remove from cart error", h.service.RemoveFromCart(r.Context(), id, sizeParam(r)))
}

// IncreaseCartItem увеличивает количество позиции на единицу.
func (h *Handler) IncreaseCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	h.respondCart(w, "increase quantity error", h.service.IncreaseQuantity(r.Context(), id, sizeParam(r)))
}

// DecreaseCartItem уменьшает количество позиции на единицу. Позиция с нулевым количеством
// остаётся в корзине до подтверждения удаления.
func (h *Handler) DecreaseCartItem(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}
	h.respondCart(w, "decrease quantity error", h.service.DecreaseQuantity(r.Context(), id, sizeParam(r)))
}

// SetCartItemQuantity задаёт количество позиции.
func (h *Handler) SetCartItemQuantity(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var req quantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	h.respondCart(w, "set quantity error", h.service.SetQuantity(r.Context(), id, sizeParam(r), req.Quantity))
}

// ClearCart очищает корзину.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, "clear cart error", h.service.ClearCart(r.Context()))
}

// Checkout оформляет заказ из корзины.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkout.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.Checkout(r.Context(), req)
	if o.ID == "" {
		h.writeError(w, "checkout error", err)
		return
	}

	// Заказ уже записан: оставшиеся ошибки касаются профиля и корзины.
	resp := orderResponse{Order: o}
	if err != nil {
		h.logger.Warn("order placed with storage warning", zap.String("order", o.ID), zap.Error(err))
		resp.Warning = err.Error()
	}
	h.writeJSON(w, http.StatusCreated, resp)
}

// GetOrders возвращает заказы текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.MyOrders(r.Context())
	if err != nil {
		h.writeError(w, "get orders error", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// DeleteOrder удаляет заказ текущего пользователя.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteMyOrder(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		h.writeError(w, "delete order error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondCart(w http.ResponseWriter, msg string, err error) {
	warning, err := splitWarning(err)
	if err != nil {
		h.writeError(w, msg, err)
		return
	}
	h.writeJSON(w, http.StatusOK, cartResponse{CartView: h.service.Cart(), Warning: warning})
}

func productID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// sizeParam возвращает размер из параметра запроса без пробелов по краям.
// Отсутствие параметра означает товар без размера.
func sizeParam(r *http.Request) string {
	return strings.TrimSpace(r.URL.Query().Get("size"))
}
