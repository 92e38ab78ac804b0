package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
	pfirestore "github.com/hanko-field/orderengine/internal/platform/firestore"
)

type paymentClaimDocument struct {
	Gateway          string    `firestore:"gateway"`
	GatewayPaymentID string    `firestore:"gatewayPaymentId"`
	OrderID          string    `firestore:"orderId"`
	Amount           float64   `firestore:"amount"`
	ClaimedAt        time.Time `firestore:"claimedAt"`
}

// PaymentClaimRepository keeps one document per captured payment in the payments collection.
type PaymentClaimRepository struct {
	payments collection
}

// NewPaymentClaimRepository constructs a Firestore-backed payment claim repository.
func NewPaymentClaimRepository(provider *pfirestore.Provider) (*PaymentClaimRepository, error) {
	payments, err := newCollection(provider, paymentsCollection)
	if err != nil {
		return nil, err
	}
	return &PaymentClaimRepository{payments: payments}, nil
}

// Claim creates payments/{gateway:paymentId}. It does not read, so it can follow the stock writes of a
// checkout transaction; a taken id aborts the commit with AlreadyExists, which surfaces as a conflict.
func (r *PaymentClaimRepository) Claim(ctx context.Context, claim domain.PaymentClaim) error {
	if strings.TrimSpace(claim.GatewayPaymentID) == "" {
		return errors.New("gateway payment id is required")
	}
	ref, err := r.payments.doc(ctx, claim.Key())
	if err != nil {
		return err
	}
	doc := paymentClaimDocument{
		Gateway:          claim.Gateway,
		GatewayPaymentID: claim.GatewayPaymentID,
		OrderID:          claim.OrderID,
		Amount:           domain.MoneyToFloat(claim.Amount),
		ClaimedAt:        claim.ClaimedAt,
	}
	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		return tx.Create(ref, doc)
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("payments.claim", err)
	}
	return nil
}
