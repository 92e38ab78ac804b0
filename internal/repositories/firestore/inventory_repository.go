package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/repositories"
)

// InventoryRepository applies stock mutations to product documents inside a Firestore transaction. The
// transaction's read set makes concurrent reservations on one product serialize: the loser retries and
// re-checks availability against the committed counters.
type InventoryRepository struct {
	provider *pfirestore.Provider
}

// NewInventoryRepository constructs a Firestore-backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	return &InventoryRepository{provider: provider}, nil
}

// Apply implements repositories.InventoryRepository.
func (r *InventoryRepository) Apply(ctx context.Context, mutations []repositories.StockMutation) ([]repositories.StockResult, error) {
	if len(mutations) == 0 {
		return nil, nil
	}
	var results []repositories.StockResult
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(mutations))
		for _, m := range mutations {
			ids = append(ids, m.Ref.ProductID)
		}
		refs := productRefs(client, ids)
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		products := make(map[string]domain.Product, len(snaps))
		for _, snap := range snaps {
			if !snap.Exists() {
				continue
			}
			var doc productDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
			}
			products[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
		}

		applied, touched, err := repositories.ApplyStockMutations(products, mutations)
		if err != nil {
			return err
		}
		for _, id := range touched {
			if err := tx.Update(client.Collection(productsCollection).Doc(id), stockUpdates(products[id])); err != nil {
				return err
			}
		}
		results = applied
		return nil
	})
	if err != nil {
		var invErr *repositories.InventoryError
		if errors.As(err, &invErr) {
			return nil, invErr
		}
		return nil, pfirestore.WrapError("inventory.apply", err)
	}
	return results, nil
}

// stockUpdates touches only the counter fields so concurrent catalog edits to other fields survive.
func stockUpdates(p domain.Product) []firestore.Update {
	updates := []firestore.Update{
		{Path: "stock", Value: p.Stock},
		{Path: "reservedStock", Value: p.ReservedStock},
		{Path: "soldCount", Value: p.SoldCount},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	}
	if p.HasVariants() {
		updates = append(updates, firestore.Update{Path: "variants", Value: newProductDocument(p).Variants})
	}
	return updates
}
