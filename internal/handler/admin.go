package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/storefront/internal/model"
)

type promoteRequest struct {
	Identifier string `json:"identifier"`
}

type statusRequest struct {
	Status model.OrderStatus `json:"status"`
	Note   string            `json:"note"`
}

// ListProducts возвращает товары каталога с фильтрацией по запросу q и коллекции collection.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	products, err := h.service.Products(r.Context(), q.Get("q"), q.Get("collection"))
	if err != nil {
		h.writeError(w, "list products error", err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	h.writeJSON(w, http.StatusOK, products)
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Product(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, "get product error", err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// AdminListUsers возвращает все учётные записи.
func (h *Handler) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.Users(r.Context())
	if err != nil {
		h.writeError(w, "list users error", err)
		return
	}
	h.writeJSON(w, http.StatusOK, users)
}

// AdminPromoteUser выдаёт пользователю роль администратора.
func (h *Handler) AdminPromoteUser(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.PromoteUser(r.Context(), req.Identifier); err != nil {
		h.writeError(w, "promote user error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminDeleteUser удаляет учётную запись по email или имени пользователя.
func (h *Handler) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteUser(r.Context(), chi.URLParam(r, "identifier")); err != nil {
		h.writeError(w, "delete user error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminListOrders возвращает все заказы, новые первыми.
func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.AllOrders(r.Context())
	if err != nil {
		h.writeError(w, "list orders error", err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}
	h.writeJSON(w, http.StatusOK, orders)
}

// AdminUpdateOrderStatus меняет статус заказа.
func (h *Handler) AdminUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	o, err := h.service.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status, req.Note)
	if err != nil {
		h.writeError(w, "update order status error", err)
		return
	}
	h.writeJSON(w, http.StatusOK, o)
}

// AdminDeleteOrder удаляет заказ. Отправленные и доставленные заказы удалить нельзя.
func (h *Handler) AdminDeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteOrder(r.Context(), chi.URLParam(r, "orderID")); err != nil {
		h.writeError(w, "delete order error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AdminCreateProduct добавляет товар в каталог.
func (h *Handler) AdminCreateProduct(w http.ResponseWriter, r *http.Request) {
	var p model.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	created, err := h.service.CreateProduct(r.Context(), p)
	if err != nil {
		h.writeError(w, "create product error", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// AdminUpdateProduct заменяет товар каталога.
func (h *Handler) AdminUpdateProduct(w http.ResponseWriter, r *http.Request) {
	var p model.Product
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	p.ID = chi.URLParam(r, "productID")

	updated, err := h.service.UpdateProduct(r.Context(), p)
	if err != nil {
		h.writeError(w, "update product error", err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// AdminDeleteProduct удаляет товар из каталога.
func (h *Handler) AdminDeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "productID")); err != nil {
		h.writeError(w, "delete product error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
