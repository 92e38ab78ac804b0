package firestore

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
)

// ProductRepository reads catalog products, variants embedded.
type ProductRepository struct {
	products collection
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	products, err := newCollection(provider, productsCollection)
	if err != nil {
		return nil, err
	}
	return &ProductRepository{products: products}, nil
}

// Get loads one product.
func (r *ProductRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	found, err := r.GetMany(ctx, []string{productID})
	if err != nil {
		return domain.Product{}, err
	}
	return found[strings.TrimSpace(productID)], nil
}

// GetMany loads every product in one round trip. A missing id fails the whole read.
func (r *ProductRepository) GetMany(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	client, err := r.products.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	refs := productRefs(client, productIDs)
	snaps, err := getAll(ctx, client, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.getMany", err)
	}
	return decodeProducts(snaps)
}

func productRefs(client *firestore.Client, productIDs []string) []*firestore.DocumentRef {
	seen := make(map[string]struct{}, len(productIDs))
	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, client.Collection(productsCollection).Doc(id))
	}
	return refs
}

func decodeProducts(snaps []*firestore.DocumentSnapshot) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			return nil, pfirestore.NotFoundError("products.getMany", fmt.Errorf("product %s not found", snap.Ref.ID))
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		out[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
	}
	return out, nil
}

// Save writes a product. It is used for catalog seeding and tests; stock changes go through Apply.
func (r *ProductRepository) Save(ctx context.Context, product domain.Product) error {
	ref, err := r.products.doc(ctx, product.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, newProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.save", err)
	}
	return nil
}
