// Package firestore implements the repositories contracts on Cloud Firestore. Every read and write joins
// the transaction bound to ctx when one is present.
package firestore

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
)

const (
	productsCollection  = "products"
	ordersCollection    = "orders"
	cartsCollection     = "carts"
	usersCollection     = "users"
	addressesCollection = "addresses"
	countersCollection  = "counters"
	paymentsCollection  = "payments"
)

type collection struct {
	provider *pfirestore.Provider
	path     string
}

func newCollection(provider *pfirestore.Provider, path string) (collection, error) {
	if provider == nil {
		return collection{}, errors.New("firestore repository requires provider")
	}
	return collection{provider: provider, path: path}, nil
}

func (c collection) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.path).Doc(id), nil
}

// get reads through the bound transaction when there is one.
func get(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Get(ref)
	}
	return ref.Get(ctx)
}

func getAll(ctx context.Context, client *firestore.Client, refs []*firestore.DocumentRef) ([]*firestore.DocumentSnapshot, error) {
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.GetAll(refs)
	}
	return client.GetAll(ctx, refs)
}

func isNotFound(err error) bool {
	var repoErr *pfirestore.Error
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
