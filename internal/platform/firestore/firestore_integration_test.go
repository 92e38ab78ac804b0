//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/hanko-field/orderengine/internal/platform/config"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
	"github.com/hanko-field/orderengine/internal/platform/firestore/firestoretest"
)

type counterDoc struct {
	Count int `firestore:"count"`
}

func TestUnitOfWorkBindsTransactionToContext(t *testing.T) {
	endpoint := firestoretest.Endpoint(t)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    "test-project",
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("expected firestore client, got error: %v", err)
	}
	ref := client.Collection("uow_samples").Doc("counter")
	if _, err := ref.Set(ctx, counterDoc{Count: 1}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	uow, err := pfirestore.NewUnitOfWork(provider)
	if err != nil {
		t.Fatalf("NewUnitOfWork: %v", err)
	}

	err = uow.RunInTx(ctx, func(ctx context.Context) error {
		tx, ok := pfirestore.TxFromContext(ctx)
		if !ok {
			return errors.New("transaction missing from context")
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc counterDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		// nested calls join the outer transaction
		return uow.RunInTx(ctx, func(inner context.Context) error {
			innerTx, _ := pfirestore.TxFromContext(inner)
			if innerTx != tx {
				return errors.New("nested call opened a new transaction")
			}
			return innerTx.Set(ref, counterDoc{Count: doc.Count + 1})
		})
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		t.Fatalf("get after transaction failed: %v", err)
	}
	var doc counterDoc
	if err := snap.DataTo(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Count != 2 {
		t.Fatalf("expected count=2, got %d", doc.Count)
	}

	rollback := errors.New("rollback")
	err = uow.RunInTx(ctx, func(ctx context.Context) error {
		tx, _ := pfirestore.TxFromContext(ctx)
		if err := tx.Set(ref, counterDoc{Count: 99}); err != nil {
			return err
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("expected rollback error, got %v", err)
	}
	snap, err = ref.Get(ctx)
	if err != nil {
		t.Fatalf("get after rollback failed: %v", err)
	}
	if err := snap.DataTo(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Count != 2 {
		t.Fatalf("expected rollback to keep count=2, got %d", doc.Count)
	}

	if _, err := client.Collection("uow_samples").Doc("missing").Get(ctx); err == nil {
		t.Fatalf("expected not found error")
	} else if wrapped := pfirestore.WrapError("get", err); !isNotFound(wrapped) {
		t.Fatalf("expected not found classification, got %v", wrapped)
	}

	cancelCtx, cancelTxn := context.WithCancel(context.Background())
	cancelTxn()
	if err := provider.RunTransaction(cancelCtx, func(ctx context.Context, tx *firestore.Transaction) error {
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled error, got %v", err)
	}
}

func isNotFound(err error) bool {
	type classifier interface{ IsNotFound() bool }
	var cls classifier
	return errors.As(err, &cls) && cls.IsNotFound()
}
