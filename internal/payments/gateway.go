package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrUnsupportedGateway is returned when the manager cannot locate a gateway.
var ErrUnsupportedGateway = errors.New("payments: unsupported gateway")

// ErrOrderNotFound is returned when a gateway has no payment order with the requested id.
var ErrOrderNotFound = errors.New("payments: payment order not found")

// RefundStatus is the normalised refund outcome shared across gateways.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusFailed    RefundStatus = "failed"
)

// CreateOrderRequest asks the gateway to open a payment order the client then pays against.
type CreateOrderRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Receipt        string
	IdempotencyKey string
	Metadata       map[string]string
}

// GatewayOrder is the gateway-side payment order.
type GatewayOrder struct {
	Gateway      string
	ID           string
	Amount       decimal.Decimal
	Currency     string
	ClientSecret string
}

// RefundRequest refunds a captured payment. Notes are forwarded as gateway metadata.
type RefundRequest struct {
	PaymentID      string
	Amount         decimal.Decimal
	Currency       string
	Notes          map[string]string
	IdempotencyKey string
}

// RefundResult is the gateway's answer to a refund request.
type RefundResult struct {
	ID     string
	Amount decimal.Decimal
	Status RefundStatus
}

// Gateway is the contract payment gateway adapters implement.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req CreateOrderRequest) (GatewayOrder, error)
	// FetchOrder reads back a payment order so callers can check the amount the customer paid against.
	FetchOrder(ctx context.Context, id string) (GatewayOrder, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

// Manager routes calls to the gateway recorded on an order, falling back to the default gateway.
type Manager struct {
	gateways       map[string]Gateway
	defaultGateway string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultGateway overrides the gateway used when a call does not name one.
func WithDefaultGateway(name string) ManagerOption {
	return func(m *Manager) {
		m.defaultGateway = normaliseName(name)
	}
}

// NewManager constructs a Manager over the supplied gateways, keyed by their names.
func NewManager(gateways []Gateway, opts ...ManagerOption) (*Manager, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	m := &Manager{gateways: make(map[string]Gateway, len(gateways))}
	for _, gw := range gateways {
		if gw == nil {
			return nil, errors.New("payments: nil gateway registration")
		}
		key := normaliseName(gw.Name())
		if key == "" {
			return nil, fmt.Errorf("payments: gateway %T has no name", gw)
		}
		m.gateways[key] = gw
		if m.defaultGateway == "" {
			m.defaultGateway = key
		}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// DefaultGateway names the gateway used for new orders.
func (m *Manager) DefaultGateway() string {
	if m == nil {
		return ""
	}
	return m.defaultGateway
}

func (m *Manager) resolve(name string) (Gateway, error) {
	if m == nil || len(m.gateways) == 0 {
		return nil, errors.New("payments: no gateways registered")
	}
	if key := normaliseName(name); key != "" {
		if gw, ok := m.gateways[key]; ok {
			return gw, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedGateway, key)
	}
	if gw, ok := m.gateways[m.defaultGateway]; ok {
		return gw, nil
	}
	return nil, ErrUnsupportedGateway
}

// CreateOrder opens a payment order on the named gateway, or the default one when name is empty.
func (m *Manager) CreateOrder(ctx context.Context, name string, req CreateOrderRequest) (GatewayOrder, error) {
	gw, err := m.resolve(name)
	if err != nil {
		return GatewayOrder{}, err
	}
	order, err := gw.CreateOrder(ctx, req)
	if err != nil {
		return GatewayOrder{}, err
	}
	order.Gateway = normaliseName(gw.Name())
	return order, nil
}

// FetchOrder reads a payment order from the named gateway.
func (m *Manager) FetchOrder(ctx context.Context, name, id string) (GatewayOrder, error) {
	gw, err := m.resolve(name)
	if err != nil {
		return GatewayOrder{}, err
	}
	order, err := gw.FetchOrder(ctx, id)
	if err != nil {
		return GatewayOrder{}, err
	}
	order.Gateway = normaliseName(gw.Name())
	return order, nil
}

// Refund delegates to the named gateway.
func (m *Manager) Refund(ctx context.Context, name string, req RefundRequest) (RefundResult, error) {
	gw, err := m.resolve(name)
	if err != nil {
		return RefundResult{}, err
	}
	return gw.Refund(ctx, req)
}

func normaliseName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
