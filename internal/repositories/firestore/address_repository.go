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

// AddressRepository reads address-book entries stored under users/{uid}/addresses.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

func (r *AddressRepository) ref(ctx context.Context, userID, addressID string) (*firestore.DocumentRef, error) {
	userID = strings.TrimSpace(userID)
	addressID = strings.TrimSpace(addressID)
	if userID == "" || addressID == "" {
		return nil, pfirestore.NotFoundError("addresses.get", errors.New("user id and address id are required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(usersCollection).Doc(userID).Collection(addressesCollection).Doc(addressID), nil
}

// Get returns one address of the user. Addresses of other users are indistinguishable from missing ones.
func (r *AddressRepository) Get(ctx context.Context, userID, addressID string) (domain.Address, error) {
	ref, err := r.ref(ctx, userID, addressID)
	if err != nil {
		return domain.Address{}, err
	}
	snap, err := get(ctx, ref)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	var doc addressDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", addressID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// Save upserts an address.
func (r *AddressRepository) Save(ctx context.Context, userID string, address domain.Address) error {
	ref, err := r.ref(ctx, userID, address.ID)
	if err != nil {
		return err
	}
	if _, err := ref.Set(ctx, newAddressDocument(address)); err != nil {
		return pfirestore.WrapError("addresses.save", err)
	}
	return nil
}
