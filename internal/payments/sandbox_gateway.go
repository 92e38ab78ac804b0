package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// SandboxGateway is an in-process gateway for local runs and the memory store profile. Refunds
// succeed unless FailRefunds is set.
type SandboxGateway struct {
	mu          sync.Mutex
	orders      map[string]GatewayOrder
	refunds     map[string]RefundResult
	FailRefunds bool
}

// NewSandboxGateway constructs a SandboxGateway.
func NewSandboxGateway() *SandboxGateway {
	return &SandboxGateway{orders: make(map[string]GatewayOrder), refunds: make(map[string]RefundResult)}
}

// Name implements Gateway.
func (g *SandboxGateway) Name() string { return "sandbox" }

// CreateOrder implements Gateway.
func (g *SandboxGateway) CreateOrder(_ context.Context, req CreateOrderRequest) (GatewayOrder, error) {
	if !req.Amount.IsPositive() {
		return GatewayOrder{}, errors.New("sandbox: amount must be positive")
	}
	order := GatewayOrder{
		Gateway:  g.Name(),
		ID:       "order_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Amount:   req.Amount,
		Currency: strings.ToUpper(req.Currency),
	}
	g.mu.Lock()
	g.orders[order.ID] = order
	g.mu.Unlock()
	return order, nil
}

// FetchOrder implements Gateway. Only orders created by this instance are known.
func (g *SandboxGateway) FetchOrder(_ context.Context, id string) (GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	order, ok := g.orders[id]
	if !ok {
		return GatewayOrder{}, fmt.Errorf("sandbox: %w: %s", ErrOrderNotFound, id)
	}
	return order, nil
}

// Refund implements Gateway. Repeating an idempotency key returns the first result.
func (g *SandboxGateway) Refund(_ context.Context, req RefundRequest) (RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailRefunds {
		return RefundResult{}, errors.New("sandbox: refund declined")
	}
	if res, ok := g.refunds[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return res, nil
	}
	res := RefundResult{
		ID:     "rfnd_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Amount: req.Amount,
		Status: RefundStatusSucceeded,
	}
	if req.IdempotencyKey != "" {
		g.refunds[req.IdempotencyKey] = res
	}
	return res, nil
}
