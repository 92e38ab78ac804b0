package services

import (
	"context"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/hanko-field/orderengine/internal/domain"
	"github.com/hanko-field/orderengine/internal/repositories/memory"
)

func newCalculator(t *testing.T) (*OrderCalculator, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	seedCatalog(store)
	calc, err := NewOrderCalculator(store.Products(), store.Carts(), 0.5)
	require.NoError(t, err)
	return calc, store
}

func TestCalculatorResolvesVariantByAttributes(t *testing.T) {
	calc, _ := newCalculator(t)

	res, err := calc.Calculate(context.Background(), "u1", &Selection{ProductID: "kurta", Color: "blue", Size: "l", Quantity: 2})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	item := res.Items[0]
	assert.Equal(t, "blue-l", item.VariantID)
	assert.Equal(t, "KRT-BLU-L", item.SKU)
	assert.Equal(t, "kurta.jpg", item.Image)
	assert.True(t, item.DiscountPercent.Equal(decimal.RequireFromString("10.1")))
	assert.Equal(t, 0.9, item.LineWeightKg)
	assert.False(t, res.FromCart)

	assert.True(t, res.Summary.Subtotal.Equal(decimal.RequireFromString("1798")))
	assert.True(t, res.Summary.MRPTotal.Equal(decimal.RequireFromString("2000")))
	assert.True(t, res.Summary.Discount.Equal(decimal.RequireFromString("202")))
	assert.Equal(t, 2, res.Summary.TotalQuantity)
}

func TestCalculatorErrors(t *testing.T) {
	calc, _ := newCalculator(t)
	ctx := context.Background()

	cases := []struct {
		name string
		sel  *Selection
		kind error
	}{
		{name: "missing product id", sel: &Selection{Quantity: 1}, kind: ErrValidation},
		{name: "zero quantity", sel: &Selection{ProductID: "scarf"}, kind: ErrValidation},
		{name: "unknown product", sel: &Selection{ProductID: "nope", Quantity: 1}, kind: ErrNotFound},
		{name: "unknown variant", sel: &Selection{ProductID: "kurta", VariantID: "green-s", Quantity: 1}, kind: ErrNotFound},
		{name: "ambiguous variant", sel: &Selection{ProductID: "kurta", Size: "xl", Quantity: 1}, kind: ErrVariantRequired},
		{name: "blacklisted", sel: &Selection{ProductID: "recalled", Quantity: 1}, kind: ErrUnavailable},
		{name: "over stock", sel: &Selection{ProductID: "kurta", VariantID: "blue-l", Quantity: 6}, kind: ErrInsufficientStock},
		{name: "empty cart", sel: nil, kind: ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := calc.Calculate(ctx, "u1", tc.sel)
			kindOf(t, err, tc.kind)
		})
	}
}

func TestCalculatorSumsRepeatedCartLines(t *testing.T) {
	calc, store := newCalculator(t)
	store.PutCart(domain.Cart{UserID: "u1", Lines: []domain.CartLine{
		{ProductID: "kurta", VariantID: "blue-l", Quantity: 3},
		{ProductID: "kurta", VariantID: "blue-l", Quantity: 3},
	}})

	_, err := calc.Calculate(context.Background(), "u1", nil)
	svcErr := kindOf(t, err, ErrInsufficientStock)
	assert.Equal(t, 6, svcErr.Details["requested"])
	assert.Equal(t, 5, svcErr.Details["available"])
}

func TestCalculatorDefaultsMissingWeight(t *testing.T) {
	calc, _ := newCalculator(t)
	res, err := calc.Calculate(context.Background(), "u1", &Selection{ProductID: "scarf", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, 0.5, res.Summary.TotalWeightKg)
	assert.True(t, res.Items[0].UnitDiscount.IsZero())
}

func TestPriceOrderTotalIsSumOfParts(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	calc, _ := newCalculator(t)
	rates := []decimal.Decimal{decimal.Zero, decimal.RequireFromString("0.05"), decimal.RequireFromString("0.18")}

	for i := 0; i < 500; i++ {
		mrp := decimal.New(int64(rng.Intn(500000)+1), -2)
		selling := decimal.New(rng.Int63n(mrp.Mul(decimal.NewFromInt(100)).IntPart()+1), -2)
		product := domain.Product{ID: "p", Name: "P", Price: mrp, SellingPrice: selling, Stock: 1000}
		item, _, err := calc.priceLine(product, requestedLine{productID: "p", quantity: rng.Intn(9) + 1})
		require.NoError(t, err)

		shipping := decimal.New(int64(rng.Intn(20000)), -2)
		rate := rates[rng.Intn(len(rates))]
		summary := summarise([]domain.OrderItem{item})
		pricing := priceOrder(summary, shipping, rate)

		want := domain.Round2(pricing.Subtotal.Add(pricing.ShippingCharge).Add(pricing.TaxAmount))
		require.True(t, pricing.TotalAmount.Equal(want), "total %s != %s", pricing.TotalAmount, want)
		require.True(t, pricing.Subtotal.Add(pricing.Discount).Equal(pricing.MRPTotal), "subtotal %s + discount %s != mrp %s", pricing.Subtotal, pricing.Discount, pricing.MRPTotal)
		require.False(t, pricing.Discount.IsNegative())
		require.True(t, pricing.TaxAmount.Equal(domain.Round2(pricing.TaxAmount)))
	}
}
