package repositories

import (
	"strings"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

// ApplyStockMutations applies a batch to products in place and returns the before/after counters of every
// touched unit in first-touch order. products must hold every referenced product; on error it is left in
// an undefined state and the caller must discard it. Backends run this inside their transaction and persist
// the touched products only when it succeeds.
func ApplyStockMutations(products map[string]domain.Product, mutations []StockMutation) ([]StockResult, []string, error) {
	var (
		order   []domain.StockRef
		results = make(map[domain.StockRef]*StockResult)
		touched []string
		seen    = make(map[string]struct{})
	)

	for _, m := range mutations {
		if m.Quantity <= 0 || strings.TrimSpace(m.Ref.ProductID) == "" {
			return nil, nil, stockError(InventoryErrorInvalidMutation, m.Ref, "invalid %s of %d for %q", m.Op, m.Quantity, m.Ref)
		}
		product, ok := products[m.Ref.ProductID]
		if !ok {
			return nil, nil, StockNotFoundError(m.Ref)
		}
		level, variantIdx, err := stockLevel(product, m.Ref)
		if err != nil {
			return nil, nil, err
		}

		if _, ok := results[m.Ref]; !ok {
			order = append(order, m.Ref)
			results[m.Ref] = &StockResult{Ref: m.Ref, Before: level}
		}
		if _, ok := seen[m.Ref.ProductID]; !ok {
			seen[m.Ref.ProductID] = struct{}{}
			touched = append(touched, m.Ref.ProductID)
		}

		next, err := mutate(product, level, m)
		if err != nil {
			return nil, nil, err
		}
		products[m.Ref.ProductID] = withLevel(product, variantIdx, next)
		results[m.Ref].After = next
	}

	out := make([]StockResult, 0, len(order))
	for _, ref := range order {
		res := *results[ref]
		if err := checkLevel(ref, res.After); err != nil {
			return nil, nil, err
		}
		out = append(out, res)
	}
	return out, touched, nil
}

func stockLevel(product domain.Product, ref domain.StockRef) (StockLevel, int, error) {
	if !product.HasVariants() {
		if ref.VariantID != "" {
			return StockLevel{}, -1, StockNotFoundError(ref)
		}
		return StockLevel{Stock: product.Stock, ReservedStock: product.ReservedStock, SoldCount: product.SoldCount}, -1, nil
	}
	for i, v := range product.Variants {
		if v.ID == ref.VariantID {
			return StockLevel{Stock: v.Stock, ReservedStock: v.ReservedStock, SoldCount: v.SoldCount}, i, nil
		}
	}
	return StockLevel{}, -1, StockNotFoundError(ref)
}

func withLevel(product domain.Product, variantIdx int, level StockLevel) domain.Product {
	if variantIdx < 0 {
		product.Stock, product.ReservedStock, product.SoldCount = level.Stock, level.ReservedStock, level.SoldCount
		return product
	}
	variants := append([]domain.Variant(nil), product.Variants...)
	variants[variantIdx].Stock = level.Stock
	variants[variantIdx].ReservedStock = level.ReservedStock
	variants[variantIdx].SoldCount = level.SoldCount
	product.Variants = variants
	return product
}

func mutate(product domain.Product, level StockLevel, m StockMutation) (StockLevel, error) {
	qty := m.Quantity
	switch m.Op {
	case StockOpReserve:
		if product.Blacklisted {
			return level, stockError(InventoryErrorUnavailable, m.Ref, "product %s is not available for sale", product.ID)
		}
		if level.NetAvailable() < qty {
			return level, InsufficientStockError(m.Ref, qty, level.NetAvailable())
		}
		level.ReservedStock += qty
	case StockOpRelease:
		level.ReservedStock = max(level.ReservedStock-qty, 0)
	case StockOpRestore:
		level.Stock += qty
		level.SoldCount = max(level.SoldCount-qty, 0)
	case StockOpDeduct:
		if level.ReservedStock < qty || level.Stock < qty {
			return level, stockError(InventoryErrorInvariant, m.Ref, "cannot deduct %d from %s: stock %d, reserved %d", qty, m.Ref, level.Stock, level.ReservedStock)
		}
		level.ReservedStock -= qty
		level.Stock -= qty
		level.SoldCount += qty
	default:
		return level, stockError(InventoryErrorInvalidMutation, m.Ref, "unknown stock operation %q", m.Op)
	}
	return level, nil
}

func checkLevel(ref domain.StockRef, level StockLevel) error {
	if level.Stock < 0 || level.ReservedStock < 0 || level.SoldCount < 0 || level.NetAvailable() < 0 {
		return stockError(InventoryErrorInvariant, ref, "counters of %s violate invariants: %+v", ref, level)
	}
	return nil
}
