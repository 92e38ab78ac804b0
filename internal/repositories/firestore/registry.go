package firestore

import (
	"context"

	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

// Registry bundles the Firestore repositories over one provider.
type Registry struct {
	provider  *pfirestore.Provider
	uow       *pfirestore.UnitOfWork
	products  *ProductRepository
	inventory *InventoryRepository
	orders    *OrderRepository
	carts     *CartRepository
	addresses *AddressRepository
	counters  *CounterRepository
	claims    *PaymentClaimRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs every repository over provider.
func NewRegistry(provider *pfirestore.Provider, txOpts ...pfirestore.TxOption) (*Registry, error) {
	uow, err := pfirestore.NewUnitOfWork(provider, txOpts...)
	if err != nil {
		return nil, err
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	inventory, err := NewInventoryRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	carts, err := NewCartRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewAddressRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	claims, err := NewPaymentClaimRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:  provider,
		uow:       uow,
		products:  products,
		inventory: inventory,
		orders:    orders,
		carts:     carts,
		addresses: addresses,
		counters:  counters,
		claims:    claims,
	}, nil
}

func (r *Registry) Products() repositories.ProductRepository     { return r.products }
func (r *Registry) Inventory() repositories.InventoryRepository { return r.inventory }
func (r *Registry) Orders() repositories.OrderRepository         { return r.orders }
func (r *Registry) Carts() repositories.CartRepository           { return r.carts }
func (r *Registry) Addresses() repositories.AddressRepository   { return r.addresses }
func (r *Registry) Counters() repositories.CounterRepository     { return r.counters }
func (r *Registry) PaymentClaims() repositories.PaymentClaimRepository {
	return r.claims
}

// RunInTx implements repositories.UnitOfWork.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.uow.RunInTx(ctx, fn)
}

// Ping reports whether Firestore is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx)
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

// ProductWriter exposes catalog seeding for tooling and tests.
func (r *Registry) ProductWriter() *ProductRepository { return r.products }

// AddressWriter exposes address seeding for tooling and tests.
func (r *Registry) AddressWriter() *AddressRepository { return r.addresses }

// CartWriter exposes cart seeding for tooling and tests.
func (r *Registry) CartWriter() *CartRepository { return r.carts }
