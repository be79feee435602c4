package cart

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/homestay-pricing/internal/common"
	"github.com/noah-isme/homestay-pricing/internal/stay"
)

// Handler wires cart stores to HTTP.
type Handler struct {
	Carts     *Registry
	Validator *validator.Validate
}

type addItemRequest struct {
	RoomID       int64  `json:"roomID" validate:"required,gt=0"`
	RoomTypeID   int64  `json:"roomTypeID" validate:"required,gt=0"`
	HomeStayID   int64  `json:"homeStayID" validate:"required,gt=0"`
	RentalID     int64  `json:"rentalId" validate:"gte=0"`
	RentalName   string `json:"rentalName" validate:"max=200"`
	Price        int64  `json:"price" validate:"gte=0"`
	CheckInDate  string `json:"checkInDate" validate:"required"`
	CheckOutDate string `json:"checkOutDate" validate:"required"`
	Image        string `json:"image" validate:"omitempty,url"`
	RoomTypeName string `json:"roomTypeName" validate:"max=200"`
}

// Get returns the cart, optionally filtered by query parameters.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusOK, view(store, store.ByParams(filter)))
}

// Count returns the number of items matching the query filter.
func (h *Handler) Count(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	filter, err := ParseFilter(r.URL.Query())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"count": store.Count(filter)})
}

// AddItem adds a room to the cart. Conflicting or duplicate rooms leave the
// cart unchanged and answer 200 with added=false.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if h.Validator != nil {
		if err := h.Validator.Struct(req); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid cart item", common.ValidationDetails(err))
			return
		}
	}
	item, err := req.item()
	if err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
		return
	}
	added, err := store.Add(r.Context(), item)
	if err != nil && !added {
		if errors.Is(err, ErrInvalidItem) {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), nil)
			return
		}
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "cart not ready", nil)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	data := view(store, store.Items())
	data["added"] = added
	data["persisted"] = err == nil
	common.Data(w, status, data)
}

// GetItem returns the item of one room.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid room id", nil)
		return
	}
	item, found := store.Get(roomID)
	if !found {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "room not in cart", nil)
		return
	}
	common.Data(w, http.StatusOK, item)
}

// RemoveItem drops a room from the cart. Removing an absent room succeeds.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	roomID, err := strconv.ParseInt(chi.URLParam(r, "roomID"), 10, 64)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid room id", nil)
		return
	}
	err = store.Remove(r.Context(), roomID)
	if err != nil && !store.Loaded() {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "cart not ready", nil)
		return
	}
	data := view(store, store.Items())
	data["persisted"] = err == nil
	common.Data(w, http.StatusOK, data)
}

// Clear empties the cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	store, ok := h.open(w, r)
	if !ok {
		return
	}
	err := store.Clear(r.Context())
	if err != nil && !store.Loaded() {
		common.JSONError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "cart not ready", nil)
		return
	}
	data := view(store, store.Items())
	data["persisted"] = err == nil
	common.Data(w, http.StatusOK, data)
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) (*Store, bool) {
	if h.Carts == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart registry not configured", nil)
		return nil, false
	}
	return OpenFromRequest(w, r, h.Carts)
}

// OpenFromRequest opens the cart named by the {owner} route parameter. On
// failure it writes the error response and reports false.
func OpenFromRequest(w http.ResponseWriter, r *http.Request, carts *Registry) (*Store, bool) {
	store, err := carts.Open(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		if errors.Is(err, ErrInvalidOwner) {
			common.WriteError(w, common.NewAppError("BAD_REQUEST", "invalid cart owner", http.StatusBadRequest, err))
			return nil, false
		}
		common.WriteError(w, common.NewAppError("UNAVAILABLE", "cart storage unavailable", http.StatusServiceUnavailable, err))
		return nil, false
	}
	return store, true
}

// ParseFilter reads homeStayId, roomTypeId, rentalId, checkInDate and
// checkOutDate from query parameters. checkIn and checkOut are accepted as
// short aliases.
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter
	ids := []struct {
		name string
		dst  *int64
	}{
		{"homeStayId", &f.HomeStayID},
		{"roomTypeId", &f.RoomTypeID},
		{"rentalId", &f.RentalID},
	}
	for _, id := range ids {
		raw := strings.TrimSpace(q.Get(id.name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			return Filter{}, errors.New("invalid " + id.name)
		}
		*id.dst = v
	}
	dates := []struct {
		name  string
		alias string
		dst   *stay.Date
	}{
		{"checkInDate", "checkIn", &f.CheckIn},
		{"checkOutDate", "checkOut", &f.CheckOut},
	}
	for _, d := range dates {
		raw := strings.TrimSpace(q.Get(d.name))
		if raw == "" {
			raw = strings.TrimSpace(q.Get(d.alias))
		}
		if raw == "" {
			continue
		}
		v, err := stay.ParseDate(raw)
		if err != nil {
			return Filter{}, errors.New("invalid " + d.name)
		}
		*d.dst = v
	}
	return f, nil
}

func (req addItemRequest) item() (Item, error) {
	checkIn, err := stay.ParseInstant(strings.TrimSpace(req.CheckInDate))
	if err != nil {
		return Item{}, errors.New("invalid checkInDate")
	}
	checkOut, err := stay.ParseInstant(strings.TrimSpace(req.CheckOutDate))
	if err != nil {
		return Item{}, errors.New("invalid checkOutDate")
	}
	return Item{
		RoomID:       req.RoomID,
		RoomTypeID:   req.RoomTypeID,
		HomeStayID:   req.HomeStayID,
		RentalID:     req.RentalID,
		RentalName:   strings.TrimSpace(req.RentalName),
		Price:        req.Price,
		CheckInDate:  checkIn,
		CheckOutDate: checkOut,
		Image:        strings.TrimSpace(req.Image),
		RoomTypeName: strings.TrimSpace(req.RoomTypeName),
	}, nil
}

func view(store *Store, items []Item) map[string]any {
	if items == nil {
		items = []Item{}
	}
	var homeStay any
	if id, ok := store.HomeStayID(); ok {
		homeStay = id
	}
	return map[string]any{
		"homeStayId": homeStay,
		"items":      items,
		"count":      len(items),
	}
}
