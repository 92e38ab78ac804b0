// Package memory implements the repositories contracts in process. RunInTx serializes transactions behind
// one lock and rolls every change back when fn fails, which gives the same all-or-nothing behaviour as the
// Firestore backend for single-instance deployments and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

// Store holds all state behind a single mutex.
type Store struct {
	mu        sync.Mutex
	products  map[string]domain.Product
	orders    map[string]domain.Order
	carts     map[string]domain.Cart
	addresses map[string]domain.Address
	counters  map[string]int64
	claims    map[string]domain.PaymentClaim
}

var _ repositories.Registry = (*Store)(nil)

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		orders:    make(map[string]domain.Order),
		carts:     make(map[string]domain.Cart),
		addresses: make(map[string]domain.Address),
		counters:  make(map[string]int64),
		claims:    make(map[string]domain.PaymentClaim),
	}
}

type txKey struct{}

// with runs fn under the store lock unless ctx already belongs to a transaction of this store.
func (s *Store) with(ctx context.Context, fn func() error) error {
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

type snapshot struct {
	products  map[string]domain.Product
	orders    map[string]domain.Order
	carts     map[string]domain.Cart
	addresses map[string]domain.Address
	counters  map[string]int64
	claims    map[string]domain.PaymentClaim
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		products:  maps.Clone(s.products),
		orders:    maps.Clone(s.orders),
		carts:     maps.Clone(s.carts),
		addresses: maps.Clone(s.addresses),
		counters:  maps.Clone(s.counters),
		claims:    maps.Clone(s.claims),
	}
}

func (s *Store) restore(snap snapshot) {
	s.products, s.orders, s.carts, s.addresses = snap.products, snap.orders, snap.carts, snap.addresses
	s.counters, s.claims = snap.counters, snap.claims
}

// RunInTx implements repositories.UnitOfWork. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	if owner, _ := ctx.Value(txKey{}).(*Store); owner == s {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// Close implements repositories.Registry.
func (s *Store) Close(context.Context) error { return nil }

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Products() repositories.ProductRepository     { return productRepo{s} }
func (s *Store) Inventory() repositories.InventoryRepository { return inventoryRepo{s} }
func (s *Store) Orders() repositories.OrderRepository         { return orderRepo{s} }
func (s *Store) Carts() repositories.CartRepository           { return cartRepo{s} }
func (s *Store) Addresses() repositories.AddressRepository   { return addressRepo{s} }
func (s *Store) Counters() repositories.CounterRepository     { return counterRepo{s} }
func (s *Store) PaymentClaims() repositories.PaymentClaimRepository {
	return paymentClaimRepo{s}
}

// PutProduct seeds or replaces a product.
func (s *Store) PutProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product.Variants = slices.Clone(product.Variants)
	s.products[product.ID] = product
}

// PutAddress seeds an address for a user.
func (s *Store) PutAddress(userID string, address domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[addressKey(userID, address.ID)] = address
}

// PutCart seeds or replaces a cart.
func (s *Store) PutCart(cart domain.Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart.Lines = slices.Clone(cart.Lines)
	s.carts[cart.UserID] = cart
}

func addressKey(userID, addressID string) string {
	return strings.TrimSpace(userID) + "/" + strings.TrimSpace(addressID)
}

func notFound(op, what string) error {
	return pfirestore.NotFoundError(op, errors.New(what+" not found"))
}

type productRepo struct{ s *Store }

func (r productRepo) Get(ctx context.Context, productID string) (domain.Product, error) {
	found, err := r.GetMany(ctx, []string{productID})
	if err != nil {
		return domain.Product{}, err
	}
	return found[strings.TrimSpace(productID)], nil
}

func (r productRepo) GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	err := r.s.with(ctx, func() error {
		for _, id := range productIDs {
			id = strings.TrimSpace(id)
			product, ok := r.s.products[id]
			if !ok {
				return notFound("products.getMany", "product "+id)
			}
			product.Variants = slices.Clone(product.Variants)
			out[id] = product
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type inventoryRepo struct{ s *Store }

func (r inventoryRepo) Apply(ctx context.Context, mutations []repositories.StockMutation) ([]repositories.StockResult, error) {
	var results []repositories.StockResult
	err := r.s.with(ctx, func() error {
		working := make(map[string]domain.Product)
		for _, m := range mutations {
			if product, ok := r.s.products[m.Ref.ProductID]; ok {
				product.Variants = slices.Clone(product.Variants)
				working[m.Ref.ProductID] = product
			}
		}
		applied, touched, err := repositories.ApplyStockMutations(working, mutations)
		if err != nil {
			return err
		}
		for _, id := range touched {
			r.s.products[id] = working[id]
		}
		results = applied
		return nil
	})
	return results, err
}

type orderRepo struct{ s *Store }

func (r orderRepo) Insert(ctx context.Context, order domain.Order) error {
	return r.s.with(ctx, func() error {
		if _, exists := r.s.orders[order.ID]; exists {
			return pfirestore.ConflictError("orders.insert", fmt.Errorf("order %s already exists", order.ID))
		}
		r.s.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

func (r orderRepo) Get(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	err := r.s.with(ctx, func() error {
		stored, ok := r.s.orders[strings.TrimSpace(orderID)]
		if !ok {
			return notFound("orders.get", "order "+orderID)
		}
		order = cloneOrder(stored)
		return nil
	})
	return order, err
}

func (r orderRepo) Update(ctx context.Context, order domain.Order) error {
	return r.s.with(ctx, func() error {
		if _, ok := r.s.orders[order.ID]; !ok {
			return notFound("orders.update", "order "+order.ID)
		}
		r.s.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	o.StatusHistory = slices.Clone(o.StatusHistory)
	if o.Cancellation != nil {
		c := *o.Cancellation
		c.StockRestored = slices.Clone(c.StockRestored)
		o.Cancellation = &c
	}
	if o.Refund != nil {
		refund := *o.Refund
		o.Refund = &refund
	}
	return o
}

type cartRepo struct{ s *Store }

func (r cartRepo) Get(ctx context.Context, userID string) (domain.Cart, error) {
	cart := domain.Cart{UserID: userID}
	err := r.s.with(ctx, func() error {
		if stored, ok := r.s.carts[userID]; ok {
			cart = stored
			cart.Lines = slices.Clone(stored.Lines)
		}
		return nil
	})
	return cart, err
}

func (r cartRepo) Clear(ctx context.Context, userID string) error {
	return r.s.with(ctx, func() error {
		r.s.carts[userID] = domain.Cart{UserID: userID, UpdatedAt: time.Now().UTC()}
		return nil
	})
}

type addressRepo struct{ s *Store }

func (r addressRepo) Get(ctx context.Context, userID, addressID string) (domain.Address, error) {
	var address domain.Address
	err := r.s.with(ctx, func() error {
		stored, ok := r.s.addresses[addressKey(userID, addressID)]
		if !ok {
			return notFound("addresses.get", "address "+addressID)
		}
		address = stored
		return nil
	})
	return address, err
}

type counterRepo struct{ s *Store }

func (r counterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if step <= 0 {
		step = 1
	}
	var next int64
	err := r.s.with(ctx, func() error {
		r.s.counters[counterID] += step
		next = r.s.counters[counterID]
		return nil
	})
	return next, err
}

type paymentClaimRepo struct{ s *Store }

func (r paymentClaimRepo) Claim(ctx context.Context, claim domain.PaymentClaim) error {
	return r.s.with(ctx, func() error {
		if held, ok := r.s.claims[claim.Key()]; ok {
			return pfirestore.ConflictError("payments.claim", fmt.Errorf("payment %s already settles order %s", claim.GatewayPaymentID, held.OrderID))
		}
		r.s.claims[claim.Key()] = claim
		return nil
	})
}
