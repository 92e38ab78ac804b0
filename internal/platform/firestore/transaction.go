package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc is a transaction body. Firestore replays it on contention, so it must rebuild all state from reads
// made through tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes transactions opened by a Provider or UnitOfWork.
type TxOption func(*txSettings)

type txSettings struct {
	maxAttempts int
	budget      time.Duration
}

func newTxSettings(opts []TxOption) txSettings {
	s := txSettings{maxAttempts: 5, budget: 15 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// WithTxAttempts caps how often Firestore replays a contended transaction. Stock reservations under load
// may need more than the default five.
func WithTxAttempts(n int) TxOption {
	return func(s *txSettings) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithTxTimeout bounds the whole transaction including replays. A shorter caller deadline wins.
func WithTxTimeout(d time.Duration) TxOption {
	return func(s *txSettings) {
		if d > 0 {
			s.budget = d
		}
	}
}

type txKey struct{}

// ContextWithTx binds tx to ctx. Repositories read and write through a bound transaction.
func ContextWithTx(ctx context.Context, tx *firestore.Transaction) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the transaction bound to ctx.
func TxFromContext(ctx context.Context) (*firestore.Transaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(*firestore.Transaction)
	return tx, ok && tx != nil
}

// run opens a transaction on client unless ctx already carries one, in which case fn joins it.
func run(ctx context.Context, client *firestore.Client, fn TxFunc, s txSettings) error {
	if fn == nil {
		return nil
	}
	if tx, ok := TxFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	if client == nil {
		return WrapError("transaction", errors.New("client is nil"))
	}
	if dl, ok := ctx.Deadline(); !ok || time.Until(dl) > s.budget {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.budget)
		defer cancel()
	}
	err := client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(ContextWithTx(ctx, tx), tx)
	}, firestore.MaxAttempts(s.maxAttempts))
	return WrapError("transaction", err)
}

// UnitOfWork is the Firestore repositories.UnitOfWork: every RunInTx is one transaction, and nested calls
// join the outer one.
type UnitOfWork struct {
	provider *Provider
	settings txSettings
}

// NewUnitOfWork returns a UnitOfWork backed by provider.
func NewUnitOfWork(provider *Provider, opts ...TxOption) (*UnitOfWork, error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	return &UnitOfWork{provider: provider, settings: newTxSettings(opts)}, nil
}

// RunInTx runs fn in a transaction. Any error returned by fn aborts it.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	body := func(ctx context.Context, _ *firestore.Transaction) error { return fn(ctx) }
	if _, ok := TxFromContext(ctx); ok {
		return run(ctx, nil, body, u.settings)
	}
	client, err := u.provider.Client(ctx)
	if err != nil {
		return err
	}
	return run(ctx, client, body, u.settings)
}
