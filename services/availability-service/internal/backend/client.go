package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brightsmile/dentalbook/libs/httpx"
	"github.com/brightsmile/dentalbook/services/availability-service/internal/model"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var ErrUnexpectedStatus = errors.New("backend: unexpected status")

// Client reads dentists, bookings and off-hours from the clinic backend REST API.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	logger   *slog.Logger
	onReject func(Reject)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRejectHandler is called for each record the backend returned that could not be converted.
func WithRejectHandler(fn func(Reject)) Option {
	return func(c *Client) { c.onReject = fn }
}

func NewClient(baseURL, token string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		logger:  logger,
		http: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListDentists(ctx context.Context) ([]model.Dentist, error) {
	var dtos []DentistDTO
	if err := c.get(ctx, "/dentists", nil, &dtos); err != nil {
		return nil, err
	}
	out, rejects := ConvertDentists(dtos)
	c.reject(rejects)
	return out, nil
}

// ListBookings asks for bookings starting in [from-1d, to) so appointments that run past
// midnight into the requested day are included.
func (c *Client) ListBookings(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	var dtos []BookingDTO
	if err := c.get(ctx, "/bookings", rangeQuery(from.AddDate(0, 0, -1), to), &dtos); err != nil {
		return nil, err
	}
	out, rejects := ConvertBookings(dtos)
	c.reject(rejects)
	return out, nil
}

func (c *Client) ListOffHours(ctx context.Context, from, to time.Time) ([]model.OffHour, error) {
	var dtos []OffHourDTO
	if err := c.get(ctx, "/offhours", rangeQuery(from, to), &dtos); err != nil {
		return nil, err
	}
	out, rejects := ConvertOffHours(dtos)
	c.reject(rejects)
	return out, nil
}

// Ready reports whether the backend answers its dentist listing.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.ListDentists(ctx)
	return err
}

func rangeQuery(from, to time.Time) url.Values {
	q := url.Values{}
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))
	return q
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if id := httpx.RequestIDFromContext(ctx); id != "" {
		req.Header.Set(httpx.RequestIDHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", ErrUnexpectedStatus, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend %s: decode: %w", path, err)
	}
	return nil
}

func (c *Client) reject(rejects []Reject) {
	for _, r := range rejects {
		c.logger.Warn("backend record rejected", "kind", r.Kind, "record_id", r.ID, "reason", r.Reason)
		if c.onReject != nil {
			c.onReject(r)
		}
	}
}
