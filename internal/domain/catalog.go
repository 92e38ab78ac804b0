package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog projection the order engine reads. Stock counters on the product itself
// are only used when the product has no variants.
type Product struct {
	ID            string
	Name          string
	Image         string
	SKU           string
	Price         decimal.Decimal
	SellingPrice  decimal.Decimal
	WeightKg      float64
	Dimensions    Dimensions
	Blacklisted   bool
	Stock         int
	ReservedStock int
	SoldCount     int
	Variants      []Variant
	UpdatedAt     time.Time
}

// Variant is a color/size combination of a product and the unit of stock tracking.
type Variant struct {
	ID            string
	Color         string
	Size          string
	SKU           string
	Image         string
	Price         decimal.Decimal
	SellingPrice  decimal.Decimal
	WeightKg      float64
	Dimensions    Dimensions
	Stock         int
	ReservedStock int
	SoldCount     int
}

// Dimensions captures parcel dimensions in centimetres.
type Dimensions struct {
	LengthCm float64
	WidthCm  float64
	HeightCm float64
}

// NetAvailable returns the sellable quantity of the variant.
func (v Variant) NetAvailable() int {
	return v.Stock - v.ReservedStock
}

// HasVariants reports whether stock is tracked per variant.
func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// NetAvailable returns the sellable quantity of a variant-less product.
func (p Product) NetAvailable() int {
	return p.Stock - p.ReservedStock
}

// Variant finds a variant by id.
func (p Product) Variant(id string) (Variant, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Variant{}, false
	}
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}

// MatchVariant finds the single variant matching the provided color and size. Empty attributes match anything.
func (p Product) MatchVariant(color, size string) (Variant, bool) {
	color = strings.TrimSpace(color)
	size = strings.TrimSpace(size)
	if color == "" && size == "" {
		if len(p.Variants) == 1 {
			return p.Variants[0], true
		}
		return Variant{}, false
	}
	var (
		found Variant
		count int
	)
	for _, v := range p.Variants {
		if color != "" && !strings.EqualFold(v.Color, color) {
			continue
		}
		if size != "" && !strings.EqualFold(v.Size, size) {
			continue
		}
		found = v
		count++
	}
	if count != 1 {
		return Variant{}, false
	}
	return found, true
}

// StockRef identifies a stock-tracking unit. VariantID is empty for variant-less products.
type StockRef struct {
	ProductID string
	VariantID string
}

// String renders the reference for logs and error details.
func (r StockRef) String() string {
	if r.VariantID == "" {
		return r.ProductID
	}
	return r.ProductID + "/" + r.VariantID
}
