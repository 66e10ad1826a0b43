package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/product"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// GetProduct handles GET /api/products/{id} for any authenticated role.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), r.PathValue("id"))
	if errors.Is(err, product.ErrNotFound) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		zctx.From(r.Context()).Error("Get product", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// CreateProduct handles POST /api/products. The product id is generated.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	p, ok := h.readProduct(w, r)
	if !ok {
		return
	}
	p.ID = h.newID()
	if !h.saveProduct(w, r, p) {
		return
	}
	zctx.From(r.Context()).Info("Created product", zap.String("product_id", p.ID))
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// UpdateProduct handles PUT /api/products/{id}. Only active products can
// be updated.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if _, err := h.products.GetByID(ctx, id); err != nil {
		if errors.Is(err, product.ErrNotFound) {
			httpmiddleware.WriteError(w, http.StatusNotFound, "product not found")
			return
		}
		zctx.From(ctx).Error("Get product", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	p, ok := h.readProduct(w, r)
	if !ok {
		return
	}
	p.ID = id
	if !h.saveProduct(w, r, p) {
		return
	}
	zctx.From(ctx).Info("Updated product", zap.String("product_id", id))
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

func (h *Handler) readProduct(w http.ResponseWriter, r *http.Request) (*product.Product, bool) {
	p, err := decodeProduct(jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096))
	if err != nil {
		zctx.From(r.Context()).Debug("Malformed product request", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if err := p.Validate(); err != nil {
		httpmiddleware.WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return p, true
}

func (h *Handler) saveProduct(w http.ResponseWriter, r *http.Request, p *product.Product) bool {
	if err := h.catalog.Upsert(r.Context(), p); err != nil {
		zctx.From(r.Context()).Error("Save product", zap.String("product_id", p.ID), zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
		return false
	}
	return true
}
