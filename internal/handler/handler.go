// Package handler serves the order API over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// OrderService places and reads orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
	GetOrder(ctx context.Context, userID, id string) (*order.Order, error)
}

var _ OrderService = (*order.Service)(nil)

// Handler maps HTTP requests to the order service and the product catalog.
type Handler struct {
	orders   OrderService
	products product.Repository
	catalog  product.Writer
	newID    func() string
}

// NewHandler constructs a Handler. Product reads go through products and
// writes through catalog.
func NewHandler(orders OrderService, products product.Repository, catalog product.Writer) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
		catalog:  catalog,
		newID:    func() string { return uuid.New().String() },
	}
}

// Register adds the API routes to mux. Every route runs behind authn and
// then limit, so calls are limited per principal. Catalog writes require
// the admin role.
func (h *Handler) Register(mux *http.ServeMux, authn, limit httpmiddleware.Middleware) {
	route := func(pattern string, fn http.HandlerFunc, extra ...httpmiddleware.Middleware) {
		mws := append([]httpmiddleware.Middleware{authn, limit}, extra...)
		mux.Handle(pattern, httpmiddleware.Wrap(fn, mws...))
	}
	admin := RequireRole(auth.RoleAdmin)

	route("POST /api/orders", h.PlaceOrder)
	route("GET /api/orders/{id}", h.GetOrder)
	route("GET /api/products/{id}", h.GetProduct)
	route("POST /api/products", h.CreateProduct, admin)
	route("PUT /api/products/{id}", h.UpdateProduct, admin)
}
