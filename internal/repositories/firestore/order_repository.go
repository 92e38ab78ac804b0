package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
)

// OrderRepository persists orders in the orders collection. Orders are never deleted.
type OrderRepository struct {
	orders collection
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	orders, err := newCollection(provider, ordersCollection)
	if err != nil {
		return nil, err
	}
	return &OrderRepository{orders: orders}, nil
}

// Insert creates the order document and fails with a conflict when the id is taken.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order id is required")
	}
	ref, err := r.orders.doc(ctx, id)
	if err != nil {
		return err
	}
	doc := newOrderDocument(order)
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Create(ref, doc)
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Get loads an order. Inside a transaction the read also guards the order against concurrent writers
// until commit.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, pfirestore.NotFoundError("orders.get", errors.New("order id is required"))
	}
	ref, err := r.orders.doc(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := get(ctx, ref)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return doc.toDomain(id), nil
}

// Update writes the lifecycle fields of an existing order. Items, pricing and identity are immutable.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	ref, err := r.orders.doc(ctx, strings.TrimSpace(order.ID))
	if err != nil {
		return err
	}
	updates := mutableFields(newOrderDocument(order))
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Update(ref, updates, firestore.Exists)
	}
	if _, err := ref.Update(ctx, updates, firestore.Exists); err != nil {
		return pfirestore.WrapError("orders.update", err)
	}
	return nil
}

func mutableFields(doc orderDocument) []firestore.Update {
	return []firestore.Update{
		{Path: "status", Value: doc.Status},
		{Path: "paymentStatus", Value: doc.PaymentStatus},
		{Path: "payment", Value: doc.Payment},
		{Path: "shippingMeta", Value: doc.ShippingMeta},
		{Path: "statusHistory", Value: doc.StatusHistory},
		{Path: "cancellation", Value: doc.Cancellation},
		{Path: "refund", Value: doc.Refund},
		{Path: "stockDeducted", Value: doc.StockDeducted},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}
}
