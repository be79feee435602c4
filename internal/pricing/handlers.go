package pricing

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/homestay-pricing/internal/common"
	"github.com/noah-isme/homestay-pricing/internal/obs"
	"github.com/noah-isme/homestay-pricing/internal/stay"
)

// Handler exposes stay pricing over HTTP.
type Handler struct {
	Service   *Service
	Validator *validator.Validate
}

type quoteRequest struct {
	RoomID        int64  `json:"roomID" validate:"gte=0"`
	RoomTypeID    int64  `json:"roomTypeID" validate:"required,gt=0"`
	RentalID      int64  `json:"rentalId" validate:"gte=0"`
	CheckInDate   string `json:"checkInDate" validate:"required"`
	CheckOutDate  string `json:"checkOutDate" validate:"required"`
	FallbackPrice int64  `json:"fallbackPrice" validate:"gte=0"`
}

type totalView struct {
	Value    Money `json:"value"`
	Degraded bool  `json:"degraded"`
}

// Quote prices a single stay both night by night and through the backend
// total.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return
	}
	var req quoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validator != nil {
		if err := h.Validator.Struct(req); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid quote request", common.ValidationDetails(err))
			return
		}
	}
	st, err := req.stay()
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
		return
	}

	ctx := r.Context()
	quote := h.Service.PriceStay(ctx, st)
	total := h.Service.ResolveTotal(ctx, st)
	if quote.Degraded || total.Degraded {
		obs.MarkDegraded(ctx)
	}
	common.Data(w, http.StatusOK, map[string]any{
		"quote": quote,
		"total": totalView{Value: total.Value, Degraded: total.Degraded},
	})
}

// Table returns the pricing rows of a room type.
func (h *Handler) Table(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "roomTypeID"), 10, 64)
	if err != nil || id <= 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid room type id", nil)
		return
	}
	res := h.Service.Table(r.Context(), id)
	rows := res.Value
	if rows == nil {
		rows = []Row{}
	}
	if res.Degraded {
		obs.MarkDegraded(r.Context())
	}
	common.Data(w, http.StatusOK, map[string]any{
		"roomTypeId": id,
		"rows":       rows,
		"degraded":   res.Degraded,
	})
}

// Stats reports cache occupancy.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return
	}
	common.Data(w, http.StatusOK, h.Service.Stats())
}

func (req quoteRequest) stay() (Stay, error) {
	checkIn, err := stay.ParseInstant(strings.TrimSpace(req.CheckInDate))
	if err != nil {
		return Stay{}, errInvalidField("checkInDate")
	}
	checkOut, err := stay.ParseInstant(strings.TrimSpace(req.CheckOutDate))
	if err != nil {
		return Stay{}, errInvalidField("checkOutDate")
	}
	return Stay{
		RoomID:        req.RoomID,
		RoomTypeID:    req.RoomTypeID,
		RentalID:      req.RentalID,
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		FallbackPrice: req.FallbackPrice,
	}, nil
}

type errInvalidField string

func (e errInvalidField) Error() string { return "invalid " + string(e) }
