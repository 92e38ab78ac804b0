package services

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories"
)

const fallbackUnitWeightKg = 0.5

// Calculation is the priced, stock-checked form of a checkout.
type Calculation struct {
	Items    []domain.OrderItem
	Summary  CalculationSummary
	FromCart bool
}

// OrderCalculator resolves variants, snapshots line items and prices them. Reads join the caller's
// transaction when ctx carries one.
type OrderCalculator struct {
	products        repositories.ProductRepository
	carts           repositories.CartRepository
	defaultWeightKg float64
}

// NewOrderCalculator constructs a calculator. defaultWeightKg applies to items without a weight.
func NewOrderCalculator(products repositories.ProductRepository, carts repositories.CartRepository, defaultWeightKg float64) (*OrderCalculator, error) {
	if products == nil {
		return nil, errors.New("order calculator: product repository is required")
	}
	if carts == nil {
		return nil, errors.New("order calculator: cart repository is required")
	}
	if defaultWeightKg <= 0 {
		defaultWeightKg = fallbackUnitWeightKg
	}
	return &OrderCalculator{products: products, carts: carts, defaultWeightKg: defaultWeightKg}, nil
}

type requestedLine struct {
	productID string
	variantID string
	color     string
	size      string
	quantity  int
}

// Calculate prices a buy-now selection, or the user's cart when sel is nil.
func (c *OrderCalculator) Calculate(ctx context.Context, userID string, sel *Selection) (Calculation, error) {
	lines, fromCart, err := c.requestedLines(ctx, userID, sel)
	if err != nil {
		return Calculation{}, err
	}

	ids := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.productID]; ok {
			continue
		}
		seen[line.productID] = struct{}{}
		ids = append(ids, line.productID)
	}
	products, err := c.products.GetMany(ctx, ids)
	if err != nil {
		return Calculation{}, mapRepositoryError(err, "product")
	}

	calc := Calculation{FromCart: fromCart, Items: make([]domain.OrderItem, 0, len(lines))}
	requested := make(map[domain.StockRef]int, len(lines))
	available := make(map[domain.StockRef]int, len(lines))
	for _, line := range lines {
		product, ok := products[line.productID]
		if !ok {
			return Calculation{}, newError(ErrNotFound, "product %s not found", line.productID).with("productId", line.productID)
		}
		item, net, err := c.priceLine(product, line)
		if err != nil {
			return Calculation{}, err
		}
		ref := item.StockRef()
		requested[ref] += item.Quantity
		available[ref] = net
		calc.Items = append(calc.Items, item)
	}

	for _, item := range calc.Items {
		ref := item.StockRef()
		if requested[ref] > available[ref] {
			avail := max(available[ref], 0)
			return Calculation{}, newError(ErrInsufficientStock, "insufficient stock for %s", ref).
				with("productId", ref.ProductID).
				with("variantId", ref.VariantID).
				with("requested", requested[ref]).
				with("available", avail)
		}
	}

	calc.Summary = summarise(calc.Items)
	return calc, nil
}

func (c *OrderCalculator) requestedLines(ctx context.Context, userID string, sel *Selection) ([]requestedLine, bool, error) {
	if sel != nil {
		line := requestedLine{
			productID: strings.TrimSpace(sel.ProductID),
			variantID: strings.TrimSpace(sel.VariantID),
			color:     strings.TrimSpace(sel.Color),
			size:      strings.TrimSpace(sel.Size),
			quantity:  sel.Quantity,
		}
		if line.productID == "" {
			return nil, false, newError(ErrValidation, "productId is required")
		}
		if line.quantity <= 0 {
			return nil, false, newError(ErrValidation, "quantity must be positive").with("productId", line.productID)
		}
		return []requestedLine{line}, false, nil
	}

	cart, err := c.carts.Get(ctx, userID)
	if err != nil {
		return nil, true, mapRepositoryError(err, "cart")
	}
	if len(cart.Lines) == 0 {
		return nil, true, newError(ErrValidation, "cart is empty")
	}
	lines := make([]requestedLine, 0, len(cart.Lines))
	for _, cl := range cart.Lines {
		line := requestedLine{
			productID: strings.TrimSpace(cl.ProductID),
			variantID: strings.TrimSpace(cl.VariantID),
			quantity:  cl.Quantity,
		}
		if line.productID == "" || line.quantity <= 0 {
			return nil, true, newError(ErrValidation, "cart line for %q is invalid", cl.ProductID)
		}
		lines = append(lines, line)
	}
	return lines, true, nil
}

// priceLine resolves the variant of one line and snapshots it. It returns the net available quantity.
func (c *OrderCalculator) priceLine(product domain.Product, line requestedLine) (domain.OrderItem, int, error) {
	if product.Blacklisted {
		return domain.OrderItem{}, 0, newError(ErrUnavailable, "product %s is unavailable", product.ID).with("productId", product.ID)
	}

	item := domain.OrderItem{
		ProductID: product.ID,
		Name:      product.Name,
		Image:     product.Image,
		SKU:       product.SKU,
		Quantity:  line.quantity,
	}
	mrp, selling := product.Price, product.SellingPrice
	unitWeight := product.WeightKg
	net := product.NetAvailable()

	if product.HasVariants() {
		variant, ok := resolveVariant(product, line)
		if !ok {
			if line.variantID != "" {
				return domain.OrderItem{}, 0, newError(ErrNotFound, "variant %s not found", line.variantID).
					with("productId", product.ID).
					with("variantId", line.variantID)
			}
			return domain.OrderItem{}, 0, newError(ErrVariantRequired, "product %s requires a variant", product.ID).with("productId", product.ID)
		}
		item.VariantID = variant.ID
		item.Color = variant.Color
		item.Size = variant.Size
		if variant.SKU != "" {
			item.SKU = variant.SKU
		}
		if variant.Image != "" {
			item.Image = variant.Image
		}
		if variant.Price.IsPositive() || variant.SellingPrice.IsPositive() {
			mrp, selling = variant.Price, variant.SellingPrice
		}
		if variant.WeightKg > 0 {
			unitWeight = variant.WeightKg
		}
		net = variant.NetAvailable()
	}
	if unitWeight <= 0 {
		unitWeight = c.defaultWeightKg
	}

	item.UnitPrice = domain.Round2(mrp)
	item.UnitSellingPrice = domain.Round2(selling)
	item.UnitDiscount = domain.Round2(domain.MaxZero(item.UnitPrice.Sub(item.UnitSellingPrice)))
	item.DiscountPercent = decimal.Zero
	if item.UnitPrice.IsPositive() {
		item.DiscountPercent = domain.Round2(item.UnitDiscount.Div(item.UnitPrice).Mul(decimal.NewFromInt(100)))
	}
	item.LineSubtotal = domain.Round2(item.UnitSellingPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	item.LineWeightKg = roundWeight(unitWeight * float64(item.Quantity))
	return item, net, nil
}

func resolveVariant(product domain.Product, line requestedLine) (domain.Variant, bool) {
	if line.variantID != "" {
		return product.Variant(line.variantID)
	}
	return product.MatchVariant(line.color, line.size)
}

func summarise(items []domain.OrderItem) CalculationSummary {
	summary := CalculationSummary{Subtotal: decimal.Zero, MRPTotal: decimal.Zero, Discount: decimal.Zero}
	var weight float64
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))
		summary.Subtotal = summary.Subtotal.Add(item.LineSubtotal)
		summary.MRPTotal = summary.MRPTotal.Add(domain.Round2(item.UnitPrice.Mul(qty)))
		summary.Discount = summary.Discount.Add(domain.Round2(item.UnitDiscount.Mul(qty)))
		weight += item.LineWeightKg
		summary.ItemCount++
		summary.TotalQuantity += item.Quantity
	}
	summary.Subtotal = domain.Round2(summary.Subtotal)
	summary.MRPTotal = domain.Round2(summary.MRPTotal)
	summary.Discount = domain.Round2(summary.Discount)
	summary.TotalWeightKg = roundWeight(weight)
	return summary
}

// priceOrder assembles the pricing breakdown. Discount is the MRP saving already reflected in the
// selling-price subtotal, so the total is subtotal + shipping + tax.
func priceOrder(summary CalculationSummary, shipping decimal.Decimal, taxRate decimal.Decimal) domain.Pricing {
	tax := domain.Round2(summary.Subtotal.Mul(taxRate))
	shipping = domain.Round2(shipping)
	return domain.Pricing{
		MRPTotal:       summary.MRPTotal,
		Subtotal:       summary.Subtotal,
		Discount:       summary.Discount,
		ShippingCharge: shipping,
		TaxAmount:      tax,
		TotalAmount:    domain.Round2(summary.Subtotal.Add(shipping).Add(tax)),
	}
}

func roundWeight(kg float64) float64 {
	return decimal.NewFromFloat(kg).Round(3).InexactFloat64()
}
