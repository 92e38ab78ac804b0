//go:build integration

package firestore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pconfig "github.com/hanko-field/orderengine/internal/platform/config"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/platform/firestore/firestoretest"
	"github.com/hanko-field/orderengine/internal/repositories"
)

func newIntegrationRegistry(t *testing.T) *Registry {
	t.Helper()
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "orderengine-test",
		EmulatorHost: firestoretest.Endpoint(t),
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	registry, err := NewRegistry(provider, pfirestore.WithTxAttempts(25))
	require.NoError(t, err)
	return registry
}

func TestCounterRepositoryConcurrentNext(t *testing.T) {
	registry := newIntegrationRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 16
	results := make([]int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			value, err := registry.Counters().Next(ctx, "orders-"+t.Name(), 1)
			assert.NoError(t, err)
			results[i] = value
		}(i)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, v := range results {
		assert.EqualValues(t, i+1, v)
	}
}

func TestInventoryLastUnitHasExactlyOneWinner(t *testing.T) {
	registry := newIntegrationRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	product := domain.Product{
		ID:           "last-unit-" + time.Now().Format("150405.000"),
		Name:         "Linen shirt",
		Price:        decimal.NewFromInt(1999),
		SellingPrice: decimal.NewFromInt(1499),
		Variants:     []domain.Variant{{ID: "v1", Color: "white", Size: "M", Stock: 1}},
	}
	require.NoError(t, registry.ProductWriter().Save(ctx, product))

	ref := domain.StockRef{ProductID: product.ID, VariantID: "v1"}
	var (
		wg        sync.WaitGroup
		successes int
		conflicts int
		mu        sync.Mutex
	)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Inventory().Apply(ctx, []repositories.StockMutation{{Ref: ref, Op: repositories.StockOpReserve, Quantity: 1}})
			mu.Lock()
			defer mu.Unlock()
			var invErr *repositories.InventoryError
			switch {
			case err == nil:
				successes++
			case errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorInsufficientStock:
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	stored, err := registry.Products().Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Variants[0].Stock)
	assert.Equal(t, 1, stored.Variants[0].ReservedStock)
	assert.Equal(t, "Linen shirt", stored.Name)
}

func TestOrderAndCartJoinTransaction(t *testing.T) {
	registry := newIntegrationRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	userID := "user-" + time.Now().Format("150405.000")
	require.NoError(t, registry.CartWriter().Save(ctx, domain.Cart{UserID: userID, Lines: []domain.CartLine{{ProductID: "p1", Quantity: 2}}}))

	now := time.Now().UTC().Truncate(time.Millisecond)
	order := domain.Order{
		ID:            "ord_" + userID,
		OrderNumber:   "ORD-TEST-1",
		UserID:        userID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		Payment:       domain.PaymentReference{Method: domain.PaymentMethodCOD},
		Pricing:       domain.Pricing{Subtotal: decimal.RequireFromString("10.50"), TotalAmount: decimal.RequireFromString("59.50")},
		Items:         []domain.OrderItem{{ProductID: "p1", Quantity: 2, LineSubtotal: decimal.RequireFromString("10.50")}},
		StatusHistory: []domain.StatusChange{{Status: domain.OrderStatusPending, ChangedBy: userID, ChangedAt: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	rollback := errors.New("rollback")
	err := registry.RunInTx(ctx, func(ctx context.Context) error {
		if err := registry.Orders().Insert(ctx, order); err != nil {
			return err
		}
		if err := registry.Carts().Clear(ctx, userID); err != nil {
			return err
		}
		return rollback
	})
	require.ErrorIs(t, err, rollback)
	_, err = registry.Orders().Get(ctx, order.ID)
	assert.True(t, isNotFound(err), "rolled back insert must not persist")
	cart, err := registry.Carts().Get(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)

	require.NoError(t, registry.RunInTx(ctx, func(ctx context.Context) error {
		if err := registry.Orders().Insert(ctx, order); err != nil {
			return err
		}
		return registry.Carts().Clear(ctx, userID)
	}))
	stored, err := registry.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Pricing.TotalAmount.Equal(order.Pricing.TotalAmount))
	cart, err = registry.Carts().Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)

	stored.Status = domain.OrderStatusCancelled
	stored.Refund = &domain.Refund{Status: domain.RefundStatusFailed, NeedsManualAction: true, InitiatedAt: now}
	require.NoError(t, registry.Orders().Update(ctx, stored))
	reloaded, err := registry.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, reloaded.Status)
	require.NotNil(t, reloaded.Refund)
	assert.True(t, reloaded.Refund.NeedsManualAction)

	assert.Error(t, registry.Orders().Insert(ctx, order), "duplicate ids conflict")
}

func TestPaymentClaimConflictsAtCommit(t *testing.T) {
	registry := newIntegrationRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	claim := domain.PaymentClaim{
		Gateway:          "stripe",
		GatewayPaymentID: "ch_" + time.Now().Format("150405.000"),
		OrderID:          "ord_1",
		Amount:           decimal.RequireFromString("574"),
		ClaimedAt:        time.Now().UTC(),
	}
	require.NoError(t, registry.RunInTx(ctx, func(ctx context.Context) error {
		return registry.PaymentClaims().Claim(ctx, claim)
	}))

	claim.OrderID = "ord_2"
	err := registry.RunInTx(ctx, func(ctx context.Context) error {
		return registry.PaymentClaims().Claim(ctx, claim)
	})
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr), "got %v", err)
	assert.True(t, repoErr.IsConflict())
}
