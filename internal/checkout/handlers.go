package checkout

import (
	"context"
	"errors"
	"net/http"

	"github.com/noah-isme/homestay-pricing/internal/cart"
	"github.com/noah-isme/homestay-pricing/internal/common"
	"github.com/noah-isme/homestay-pricing/internal/obs"
)

// Handler exposes cart pricing over HTTP.
type Handler struct {
	Svc   *Service
	Carts *cart.Registry
}

// Summary answers the fast-path cart total.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	items, ok := h.items(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.Summary(r.Context(), items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if out.Degraded {
		obs.MarkDegraded(r.Context())
	}
	common.Data(w, http.StatusOK, out)
}

// Breakdown answers the per-night cart breakdown.
func (h *Handler) Breakdown(w http.ResponseWriter, r *http.Request) {
	items, ok := h.items(w, r)
	if !ok {
		return
	}
	out, err := h.Svc.Breakdown(r.Context(), items)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if out.Degraded {
		obs.MarkDegraded(r.Context())
	}
	common.Data(w, http.StatusOK, out)
}

func (h *Handler) items(w http.ResponseWriter, r *http.Request) ([]cart.Item, bool) {
	if h.Svc == nil || h.Carts == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return nil, false
	}
	filter, err := cart.ParseFilter(r.URL.Query())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return nil, false
	}
	store, ok := cart.OpenFromRequest(w, r, h.Carts)
	if !ok {
		return nil, false
	}
	return store.ByParams(filter), true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = common.NewAppError("UNAVAILABLE", "pricing timed out", http.StatusServiceUnavailable, err)
	} else {
		err = common.NewAppError("INTERNAL", "unable to price cart", http.StatusInternalServerError, err)
	}
	common.WriteError(w, err)
}
