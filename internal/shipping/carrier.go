// Package shipping talks to the shipping carrier's serviceability API.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultTimeout       = 5 * time.Second
	serviceabilityPath   = "/v1/courier/serviceability"
	maxErrorBodyBytes    = 2048
	maxResponseBodyBytes = 1 << 20
)

// ErrNoCouriers is returned when the carrier cannot serve the route.
var ErrNoCouriers = errors.New("shipping: no courier serves this route")

// ServiceabilityRequest is the carrier query for one shipment.
type ServiceabilityRequest struct {
	PickupPincode   string  `json:"pickupPincode"`
	DeliveryPincode string  `json:"deliveryPincode"`
	WeightKg        float64 `json:"weight"`
	COD             bool    `json:"cod"`
}

// Courier is one courier offered for the route.
type Courier struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Rate    decimal.Decimal `json:"rate"`
	ETADays int             `json:"etaDays"`
	Rating  float64         `json:"rating"`
}

// Serviceability is the carrier's answer. RecommendedCourierID is chosen by the carrier.
type Serviceability struct {
	Couriers             []Courier `json:"couriers"`
	RecommendedCourierID string    `json:"recommendedCourierId"`
}

// Recommended returns the courier the carrier recommends.
func (s Serviceability) Recommended() (Courier, bool) {
	for _, c := range s.Couriers {
		if c.ID == s.RecommendedCourierID {
			return c, true
		}
	}
	return Courier{}, false
}

// StatusError reports a non-2xx carrier response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("shipping: carrier responded %d: %s", e.StatusCode, e.Body)
}

// ClientOption customises the carrier client.
type ClientOption func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds every carrier call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Client is the carrier serviceability client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	timeout time.Duration
}

// NewClient constructs a carrier client for baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("shipping: carrier base url is required")
	}
	c := &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		http:    http.DefaultClient,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Serviceability asks the carrier which couriers serve the route and which one it recommends.
func (c *Client) Serviceability(ctx context.Context, req ServiceabilityRequest) (Serviceability, error) {
	if c == nil {
		return Serviceability{}, errors.New("shipping: client is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return Serviceability{}, fmt.Errorf("shipping: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+serviceabilityPath, bytes.NewReader(payload))
	if err != nil {
		return Serviceability{}, fmt.Errorf("shipping: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Serviceability{}, fmt.Errorf("shipping: serviceability call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return Serviceability{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out Serviceability
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodyBytes)).Decode(&out); err != nil {
		return Serviceability{}, fmt.Errorf("shipping: decode response: %w", err)
	}
	if len(out.Couriers) == 0 {
		return Serviceability{}, ErrNoCouriers
	}
	if _, ok := out.Recommended(); !ok {
		return Serviceability{}, fmt.Errorf("shipping: recommended courier %q not among offered couriers", out.RecommendedCourierID)
	}
	return out, nil
}
