package repositories

import (
	"context"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Inventory() InventoryRepository
	Orders() OrderRepository
	Carts() CartRepository
	Addresses() AddressRepository
	Counters() CounterRepository
	PaymentClaims() PaymentClaimRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transactional boundary. Repositories called with the
// context handed to fn join the transaction; their reads and writes commit or roll back together.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository reads the catalog projection used for pricing. Reads join an active transaction.
type ProductRepository interface {
	Get(ctx context.Context, productID string) (domain.Product, error)
	GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// StockOp enumerates the counter mutations the inventory repository supports.
type StockOp string

const (
	// StockOpReserve increments reservedStock when stock - reservedStock >= qty.
	StockOpReserve StockOp = "reserve"
	// StockOpRelease decrements reservedStock, floored at zero.
	StockOpRelease StockOp = "release"
	// StockOpRestore increments stock and decrements soldCount, floored at zero.
	StockOpRestore StockOp = "restore"
	// StockOpDeduct converts a hold into a physical deduction.
	StockOpDeduct StockOp = "deduct"
)

// StockMutation is one requested counter change.
type StockMutation struct {
	Ref      domain.StockRef
	Op       StockOp
	Quantity int
}

// StockLevel is a snapshot of the counters of one stock unit.
type StockLevel struct {
	Stock         int
	ReservedStock int
	SoldCount     int
}

// NetAvailable returns stock - reservedStock.
func (l StockLevel) NetAvailable() int {
	return l.Stock - l.ReservedStock
}

// StockResult reports the counters of a unit before and after a batch was applied.
type StockResult struct {
	Ref    domain.StockRef
	Before StockLevel
	After  StockLevel
}

// InventoryRepository is the only writer of stock counters. Apply fetches every referenced product once,
// checks all preconditions, verifies post-conditions and writes each touched product exactly once. Either
// every mutation in the batch applies or none does.
type InventoryRepository interface {
	Apply(ctx context.Context, mutations []StockMutation) ([]StockResult, error)
}

// OrderRepository persists orders. Get inside a transaction holds the order for the rest of it.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	Update(ctx context.Context, order domain.Order) error
}

// CartRepository reads and clears the per-user cart.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Clear(ctx context.Context, userID string) error
}

// AddressRepository reads address-book entries.
type AddressRepository interface {
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
}

// CounterRepository allocates monotonically increasing sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// PaymentClaimRepository binds a captured gateway payment to the order it paid for. A payment can be
// claimed once; a second claim fails with a conflict, at the latest when the transaction commits.
type PaymentClaimRepository interface {
	Claim(ctx context.Context, claim domain.PaymentClaim) error
}
