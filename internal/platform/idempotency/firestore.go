package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore shares entries across instances through a Firestore collection. Claims run in a
// transaction so exactly one request acquires a key.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a FirestoreStore. An empty collection uses "idempotencyKeys".
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}
}

type firestoreEntry struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	State       string              `firestore:"state"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func toFirestoreEntry(e Entry) firestoreEntry {
	return firestoreEntry{
		Key:         e.Key,
		Fingerprint: e.Fingerprint,
		State:       string(e.State),
		Status:      e.Status,
		Header:      e.Header,
		Body:        e.Body,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

func (d firestoreEntry) entry() Entry {
	return Entry{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		State:       State(d.State),
		Status:      d.Status,
		Header:      d.Header,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

// read returns the stored entry or ok=false when the document is absent.
func read(tx *firestore.Transaction, ref *firestore.DocumentRef) (Entry, bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		wrapped := pfirestore.WrapError("idempotency.get", err)
		if repoErr, ok := wrapped.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return Entry{}, false, nil
		}
		return Entry{}, false, wrapped
	}
	var doc firestoreEntry
	if err := snap.DataTo(&doc); err != nil {
		return Entry{}, false, pfirestore.WrapError("idempotency.decode", err)
	}
	return doc.entry(), true, nil
}

// Claim implements Store.
func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, Entry, error) {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return ClaimInFlight, Entry{}, err
	}
	var (
		claim  Claim
		result Entry
	)
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, ok, err := read(tx, ref)
		if err != nil {
			return err
		}
		if ok && !existing.expired(now) {
			result = existing
			claim, err = classify(existing, fingerprint)
			return err
		}
		result = newEntry(key, fingerprint, now.UTC(), ttl)
		claim = ClaimAcquired
		return tx.Set(ref, toFirestoreEntry(result))
	})
	return claim, result, err
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, ok, err := read(tx, ref)
		if err != nil {
			return err
		}
		if ok && existing.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if !ok {
			existing = Entry{Key: key, Fingerprint: fingerprint}
		}
		return tx.Set(ref, toFirestoreEntry(completeEntry(existing, resp, now.UTC(), ttl)))
	})
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

// Purge implements Store by deleting up to limit expired documents in one batch.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := client.Collection(s.collection).Where("expiresAt", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.purge", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	batch := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := batch.Delete(doc.Ref); err != nil {
			batch.End()
			return 0, pfirestore.WrapError("idempotency.purge", err)
		}
	}
	batch.End()
	return len(docs), nil
}
