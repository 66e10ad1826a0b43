package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/internal/domain/order"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// PlaceOrder handles POST /api/orders for the authenticated principal.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, ok := auth.PrincipalFrom(ctx)
	if !ok {
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	items, err := decodePlaceOrder(jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096))
	if err != nil {
		zctx.From(ctx).Debug("Malformed order request", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		UserID: p.UserID,
		Role:   p.Role,
		Items:  items,
	})
	if err != nil {
		writeOrderError(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// GetOrder handles GET /api/orders/{id}. Orders of other users are
// reported as missing.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	o, err := h.orders.GetOrder(r.Context(), p.UserID, r.PathValue("id"))
	if err != nil {
		writeOrderError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// conflictRetryAfter is the Retry-After value, in seconds, sent when stock
// contention outlasted the service retries.
const conflictRetryAfter = "1"

// writeOrderError maps err to the API error response.
func writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	switch order.Classify(err) {
	case order.KindInvalidArgument:
		httpmiddleware.WriteError(w, http.StatusBadRequest, err.Error())
	case order.KindNotFound:
		httpmiddleware.WriteError(w, http.StatusNotFound, notFoundMessage(err))
	case order.KindInsufficientStock:
		httpmiddleware.WriteError(w, http.StatusConflict, err.Error())
	case order.KindConflict:
		zctx.From(r.Context()).Warn("Order placement contended", zap.Error(err))
		w.Header().Set("Retry-After", conflictRetryAfter)
		httpmiddleware.WriteError(w, http.StatusServiceUnavailable, "stock is being updated concurrently, retry later")
	default:
		zctx.From(r.Context()).Error("Order request failed", zap.Error(err))
		httpmiddleware.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}

// notFoundMessage returns the outermost domain message, without the wrap
// chain of the storage layer.
func notFoundMessage(err error) string {
	if errors.Is(err, order.ErrNotFound) {
		return order.ErrNotFound.Error()
	}
	return err.Error()
}
