package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
)

type cartLineDocument struct {
	ProductID string `firestore:"productId"`
	VariantID string `firestore:"variantId,omitempty"`
	Quantity  int    `firestore:"quantity"`
}

type cartDocument struct {
	Lines     []cartLineDocument `firestore:"lines"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// CartRepository stores one cart document per user, keyed by user id.
type CartRepository struct {
	carts collection
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	carts, err := newCollection(provider, cartsCollection)
	if err != nil {
		return nil, err
	}
	return &CartRepository{carts: carts}, nil
}

// Get returns the user's cart. A missing document is an empty cart.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	ref, err := r.carts.doc(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	snap, err := get(ctx, ref)
	if err != nil {
		wrapped := pfirestore.WrapError("carts.get", err)
		if isNotFound(wrapped) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, wrapped
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", userID, err)
	}
	cart := domain.Cart{UserID: userID, UpdatedAt: doc.UpdatedAt}
	for _, line := range doc.Lines {
		cart.Lines = append(cart.Lines, domain.CartLine(line))
	}
	return cart, nil
}

// Clear empties the cart, inside the bound transaction when there is one.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	ref, err := r.carts.doc(ctx, strings.TrimSpace(userID))
	if err != nil {
		return err
	}
	doc := cartDocument{Lines: []cartLineDocument{}, UpdatedAt: time.Now().UTC()}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Set(ref, doc)
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("carts.clear", err)
	}
	return nil
}

// Save replaces the cart lines.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	ref, err := r.carts.doc(ctx, strings.TrimSpace(cart.UserID))
	if err != nil {
		return err
	}
	doc := cartDocument{UpdatedAt: cart.UpdatedAt}
	for _, line := range cart.Lines {
		doc.Lines = append(doc.Lines, cartLineDocument(line))
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return pfirestore.WrapError("carts.save", err)
	}
	return nil
}
