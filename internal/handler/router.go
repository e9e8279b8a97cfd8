package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/storefront/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/session/register", h.Register)
		r.Post("/session/login", h.Login)
		r.Post("/session/logout", h.Logout)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Post("/items", h.AddCartItem)
			r.Route("/items/{productID}", func(r chi.Router) {
				r.Put("/", h.SetCartItemQuantity)
				r.Delete("/", h.RemoveCartItem)
				r.Post("/increase", h.IncreaseCartItem)
				r.Post("/decrease", h.DecreaseCartItem)
			})
		})

		r.Get("/products", h.ListProducts)
		r.Get("/products/{productID}", h.GetProduct)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/session", h.GetSession)
			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)

			r.Post("/checkout", h.Checkout)
			r.Get("/orders", h.GetOrders)
			r.Delete("/orders/{orderID}", h.DeleteOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Use(h.authMiddleware.RequireAdmin)

				r.Get("/users", h.AdminListUsers)
				r.Post("/users/promote", h.AdminPromoteUser)
				r.Delete("/users/{identifier}", h.AdminDeleteUser)

				r.Get("/orders", h.AdminListOrders)
				r.Put("/orders/{orderID}/status", h.AdminUpdateOrderStatus)
				r.Delete("/orders/{orderID}", h.AdminDeleteOrder)

				r.Post("/products", h.AdminCreateProduct)
				r.Put("/products/{productID}", h.AdminUpdateProduct)
				r.Delete("/products/{productID}", h.AdminDeleteProduct)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
