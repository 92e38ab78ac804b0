package services

import (
	"context"
	"errors"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const (
	eventInventoryReserve = "inventory.reserve"
	eventInventoryRelease = "inventory.release"
	eventInventoryRestore = "inventory.restore"
	eventInventoryDeduct  = "inventory.deduct"
)

// InventoryService turns order lines into stock mutations. Every call is one batch applied inside the
// caller's transaction: it applies entirely or not at all.
type InventoryService struct {
	repo   repositories.InventoryRepository
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires the inventory repository.
func NewInventoryService(repo repositories.InventoryRepository, logger func(context.Context, string, map[string]any)) (*InventoryService, error) {
	if repo == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &InventoryService{repo: repo, logger: logger}, nil
}

// Reserve holds stock for every line. It fails with ErrInsufficientStock naming the first short unit.
func (s *InventoryService) Reserve(ctx context.Context, items []domain.OrderItem) ([]repositories.StockResult, error) {
	return s.apply(ctx, eventInventoryReserve, repositories.StockOpReserve, items)
}

// Release drops the holds of an order that never reached fulfillment.
func (s *InventoryService) Release(ctx context.Context, items []domain.OrderItem) ([]repositories.StockResult, error) {
	return s.apply(ctx, eventInventoryRelease, repositories.StockOpRelease, items)
}

// Restore puts physically deducted stock back on the shelf.
func (s *InventoryService) Restore(ctx context.Context, items []domain.OrderItem) ([]repositories.StockResult, error) {
	return s.apply(ctx, eventInventoryRestore, repositories.StockOpRestore, items)
}

// Deduct converts holds into a physical deduction when fulfillment starts.
func (s *InventoryService) Deduct(ctx context.Context, items []domain.OrderItem) ([]repositories.StockResult, error) {
	return s.apply(ctx, eventInventoryDeduct, repositories.StockOpDeduct, items)
}

func (s *InventoryService) apply(ctx context.Context, event string, op repositories.StockOp, items []domain.OrderItem) ([]repositories.StockResult, error) {
	if len(items) == 0 {
		return nil, newError(ErrValidation, "no lines to %s", op)
	}
	mutations := make([]repositories.StockMutation, 0, len(items))
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, newError(ErrValidation, "quantity for %s must be positive", item.StockRef())
		}
		mutations = append(mutations, repositories.StockMutation{Ref: item.StockRef(), Op: op, Quantity: item.Quantity})
	}

	results, err := s.repo.Apply(ctx, mutations)
	if err != nil {
		return nil, mapRepositoryError(err, "inventory")
	}

	for _, res := range results {
		s.logger(ctx, event, map[string]any{
			"productId":     res.Ref.ProductID,
			"variantId":     res.Ref.VariantID,
			"stock":         res.After.Stock,
			"reservedStock": res.After.ReservedStock,
			"soldCount":     res.After.SoldCount,
			"netAvailable":  res.After.NetAvailable(),
			"previousNet":   res.Before.NetAvailable(),
		})
	}
	return results, nil
}

// adjustments summarises the compensating change per line for the cancellation block.
func adjustments(items []domain.OrderItem, op repositories.StockOp) []domain.StockAdjustment {
	out := make([]domain.StockAdjustment, 0, len(items))
	for _, item := range items {
		adj := domain.StockAdjustment{ProductID: item.ProductID, VariantID: item.VariantID}
		switch op {
		case repositories.StockOpRelease:
			adj.Released = item.Quantity
		case repositories.StockOpRestore:
			adj.Restored = item.Quantity
		}
		out = append(out, adj)
	}
	return out
}
