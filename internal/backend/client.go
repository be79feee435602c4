// Package backend talks to the upstream homestay API that owns room
// calendars, pricing tables and booking totals.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/homestay-pricing/internal/obs"
	"github.com/noah-isme/homestay-pricing/internal/pricing"
	"github.com/noah-isme/homestay-pricing/internal/resilience"
	"github.com/noah-isme/homestay-pricing/internal/stay"
)

const (
	totalPricePath = "/api/Booking/GetTotalPrice"
	dateTypePath   = "/api/Calendar/GetDateType"
	pricingPath    = "/api/Pricing/GetAllPricingByRoomType/"

	maxBodyBytes = 1 << 20
)

// errMissingValue reports a null or empty body where a number was expected.
var errMissingValue = errors.New("missing value")

// Doer executes HTTP requests. resilience.HTTPClient satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Config wires the HTTP client.
type Config struct {
	BaseURL string
	HTTP    Doer
	Logger  *zerolog.Logger
}

// Client implements pricing.Backend over the upstream REST API.
type Client struct {
	base   *url.URL
	http   Doer
	logger *zerolog.Logger
}

var _ pricing.Backend = (*Client)(nil)

var nopLogger = zerolog.Nop()

// NewClient validates cfg and constructs a client.
func NewClient(cfg Config) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("backend: base url is required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: invalid base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.New("backend: base url must be http or https")
	}
	doer := cfg.HTTP
	if doer == nil {
		doer = resilience.HTTPClient{Client: &http.Client{Timeout: 10 * time.Second}, MaxAttempts: 1}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &nopLogger
	}
	return &Client{base: base, http: doer, logger: logger}, nil
}

// TotalPrice asks the backend for the total price of a stay.
func (c *Client) TotalPrice(ctx context.Context, q pricing.StayKey) (pricing.Money, error) {
	params := url.Values{}
	params.Set("checkInDate", q.CheckIn.String())
	params.Set("checkOutDate", q.CheckOut.String())
	params.Set("roomTypeId", strconv.FormatInt(q.RoomTypeID, 10))
	if q.RentalID != 0 {
		params.Set("rentalId", strconv.FormatInt(q.RentalID, 10))
	}
	var raw json.Number
	if err := c.getJSON(ctx, "total_price", totalPricePath, params, &raw); err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, &Error{Op: "total_price", Kind: ErrMalformed, Err: errMissingValue}
	}
	total, err := parseMoney(raw)
	if err != nil {
		return 0, &Error{Op: "total_price", Kind: ErrMalformed, Err: err}
	}
	return total, nil
}

// DateType asks the backend how a night is classified.
func (c *Client) DateType(ctx context.Context, q pricing.DateTypeQuery) (pricing.DayType, error) {
	params := url.Values{}
	params.Set("date", q.Date.String())
	params.Set("roomTypeId", strconv.FormatInt(q.RoomTypeID, 10))
	if q.RentalID != 0 {
		params.Set("rentalId", strconv.FormatInt(q.RentalID, 10))
	}
	var raw json.Number
	if err := c.getJSON(ctx, "date_type", dateTypePath, params, &raw); err != nil {
		return 0, err
	}
	if raw == "" {
		return 0, &Error{Op: "date_type", Kind: ErrMalformed, Err: errMissingValue}
	}
	v, err := raw.Int64()
	if err != nil {
		return 0, &Error{Op: "date_type", Kind: ErrMalformed, Err: err}
	}
	return pricing.DayType(v), nil
}

type wireRow struct {
	DayType   int         `json:"dayType"`
	RentPrice json.Number `json:"rentPrice"`
	UnitPrice json.Number `json:"unitPrice"`
	Note      string      `json:"note"`
	StartDate *string     `json:"startDate"`
	EndDate   *string     `json:"endDate"`
}

// PricingByRoomType fetches the full pricing table of a room type.
func (c *Client) PricingByRoomType(ctx context.Context, roomTypeID int64) ([]pricing.Row, error) {
	var wire []wireRow
	path := pricingPath + strconv.FormatInt(roomTypeID, 10)
	if err := c.getJSON(ctx, "pricing_table", path, nil, &wire); err != nil {
		return nil, err
	}
	rows := make([]pricing.Row, 0, len(wire))
	for _, w := range wire {
		row, err := w.row()
		if err != nil {
			return nil, &Error{Op: "pricing_table", Kind: ErrMalformed, Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (w wireRow) row() (pricing.Row, error) {
	rent, err := parseMoney(w.RentPrice)
	if err != nil {
		return pricing.Row{}, fmt.Errorf("rentPrice: %w", err)
	}
	unit, err := parseMoney(w.UnitPrice)
	if err != nil {
		return pricing.Row{}, fmt.Errorf("unitPrice: %w", err)
	}
	row := pricing.Row{DayType: pricing.DayType(w.DayType), RentPrice: rent, UnitPrice: unit, Note: w.Note}
	if row.StartDate, err = optionalDate(w.StartDate); err != nil {
		return pricing.Row{}, fmt.Errorf("startDate: %w", err)
	}
	if row.EndDate, err = optionalDate(w.EndDate); err != nil {
		return pricing.Row{}, fmt.Errorf("endDate: %w", err)
	}
	return row, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values, out any) (err error) {
	ctx, span := otel.Tracer("backend.Client").Start(ctx, "Client."+op)
	defer span.End()
	span.SetAttributes(attribute.String("backend.op", op), attribute.String("http.route", path))

	start := time.Now()
	defer func() {
		obs.ObserveBackendRequest(op, resultLabel(err), float64(time.Since(start).Microseconds())/1000)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, op+" failed")
			c.logger.Debug().Err(err).Str("op", op).Msg("backend request failed")
		}
	}()

	target := *c.base
	target.Path = c.base.Path + path
	target.RawQuery = params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return &Error{Op: op, Kind: ErrNetwork, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) {
			return &Error{Op: op, Kind: ErrServer, Status: statusErr.Code, Err: err}
		}
		return &Error{Op: op, Kind: ErrNetwork, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return &Error{Op: op, Kind: ErrServer, Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &Error{Op: op, Kind: ErrNetwork, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Kind: ErrMalformed, Err: err}
	}
	return nil
}

// parseMoney accepts integral or fractional JSON numbers and rounds to whole
// currency units. An empty number is zero; only optional row fields rely on
// that.
func parseMoney(n json.Number) (pricing.Money, error) {
	if n == "" {
		return 0, nil
	}
	if v, err := n.Int64(); err == nil {
		return v, nil
	}
	f, err := n.Float64()
	if err != nil {
		return 0, err
	}
	f = math.Round(f)
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, fmt.Errorf("amount %s out of range", n)
	}
	return pricing.Money(f), nil
}

func optionalDate(v *string) (stay.Date, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return stay.Date{}, nil
	}
	return stay.ParseDate(strings.TrimSpace(*v))
}
