package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

func seeded() *Store {
	s := NewStore()
	s.PutProduct(domain.Product{ID: "tee", Variants: []domain.Variant{{ID: "m", Stock: 1}}})
	s.PutCart(domain.Cart{UserID: "u1", Lines: []domain.CartLine{{ProductID: "tee", VariantID: "m", Quantity: 1}}})
	return s
}

func reserveLast() []repositories.StockMutation {
	return []repositories.StockMutation{{Ref: domain.StockRef{ProductID: "tee", VariantID: "m"}, Op: repositories.StockOpReserve, Quantity: 1}}
}

func TestRunInTxRollsBackEveryChange(t *testing.T) {
	s := seeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.Inventory().Apply(ctx, reserveLast()); err != nil {
			return err
		}
		if err := s.Orders().Insert(ctx, domain.Order{ID: "o1"}); err != nil {
			return err
		}
		if err := s.Carts().Clear(ctx, "u1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	product, err := s.Products().Get(ctx, "tee")
	require.NoError(t, err)
	assert.Zero(t, product.Variants[0].ReservedStock)
	_, err = s.Orders().Get(ctx, "o1")
	assert.Error(t, err)
	cart, err := s.Carts().Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
}

func TestRunInTxNestedCallsJoin(t *testing.T) {
	s := seeded()
	err := s.RunInTx(context.Background(), func(ctx context.Context) error {
		return s.RunInTx(ctx, func(ctx context.Context) error {
			_, err := s.Inventory().Apply(ctx, reserveLast())
			return err
		})
	})
	require.NoError(t, err)
	product, _ := s.Products().Get(context.Background(), "tee")
	assert.Equal(t, 1, product.Variants[0].ReservedStock)
}

func TestConcurrentReservationsForLastUnit(t *testing.T) {
	s := seeded()
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RunInTx(context.Background(), func(ctx context.Context) error {
				_, err := s.Inventory().Apply(ctx, reserveLast())
				return err
			})
			var invErr *repositories.InventoryError
			switch {
			case err == nil:
				wins.Add(1)
			case errors.As(err, &invErr) && invErr.Code == repositories.InventoryErrorInsufficientStock:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
	assert.EqualValues(t, 7, conflicts.Load())
}

func TestOrdersAreCopiedOnReadAndWrite(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	order := domain.Order{ID: "o1", StatusHistory: []domain.StatusChange{{Status: domain.OrderStatusPending}}}
	require.NoError(t, s.Orders().Insert(ctx, order))
	order.StatusHistory[0].Status = domain.OrderStatusCancelled

	stored, err := s.Orders().Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, stored.StatusHistory[0].Status)

	assert.Error(t, s.Orders().Insert(ctx, domain.Order{ID: "o1"}))
	assert.Error(t, s.Orders().Update(ctx, domain.Order{ID: "missing"}))
}

func TestCountersAndMissingLookups(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	first, _ := s.Counters().Next(ctx, "orders", 1)
	second, _ := s.Counters().Next(ctx, "orders", 0)
	assert.EqualValues(t, 1, first)
	assert.EqualValues(t, 2, second)

	_, err := s.Addresses().Get(ctx, "u1", "a1")
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsNotFound())

	cart, err := s.Carts().Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
}

func TestPaymentClaimIsTakenOnceAndRollsBack(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	claim := domain.PaymentClaim{Gateway: "stripe", GatewayPaymentID: "ch_1", OrderID: "o1"}

	rollback := errors.New("rollback")
	err := s.RunInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.PaymentClaims().Claim(ctx, claim))
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	require.NoError(t, s.PaymentClaims().Claim(ctx, claim), "rolled back claim must not persist")
	claim.OrderID = "o2"
	err = s.PaymentClaims().Claim(ctx, claim)
	var repoErr repositories.RepositoryError
	require.True(t, errors.As(err, &repoErr))
	assert.True(t, repoErr.IsConflict())
	assert.Contains(t, err.Error(), "o1")

	// the same id from another gateway is a different payment
	claim.Gateway = "sandbox"
	require.NoError(t, s.PaymentClaims().Claim(ctx, claim))
}
