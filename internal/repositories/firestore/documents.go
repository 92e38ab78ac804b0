package firestore

import (
	"time"

	domain "github.com/hanko-field/orderengine/internal/domain"
)

type dimensionsDocument struct {
	LengthCm float64 `firestore:"lengthCm"`
	WidthCm  float64 `firestore:"widthCm"`
	HeightCm float64 `firestore:"heightCm"`
}

type variantDocument struct {
	ID            string             `firestore:"id"`
	Color         string             `firestore:"color,omitempty"`
	Size          string             `firestore:"size,omitempty"`
	SKU           string             `firestore:"sku,omitempty"`
	Image         string             `firestore:"image,omitempty"`
	Price         float64            `firestore:"price"`
	SellingPrice  float64            `firestore:"sellingPrice"`
	WeightKg      float64            `firestore:"weight"`
	Dimensions    dimensionsDocument `firestore:"dimensions"`
	Stock         int                `firestore:"stock"`
	ReservedStock int                `firestore:"reservedStock"`
	SoldCount     int                `firestore:"soldCount"`
}

type productDocument struct {
	Name          string             `firestore:"name"`
	Image         string             `firestore:"image,omitempty"`
	SKU           string             `firestore:"sku,omitempty"`
	Price         float64            `firestore:"price"`
	SellingPrice  float64            `firestore:"sellingPrice"`
	WeightKg      float64            `firestore:"weight"`
	Dimensions    dimensionsDocument `firestore:"dimensions"`
	Blacklisted   bool               `firestore:"blacklisted"`
	Stock         int                `firestore:"stock"`
	ReservedStock int                `firestore:"reservedStock"`
	SoldCount     int                `firestore:"soldCount"`
	Variants      []variantDocument  `firestore:"variants"`
	UpdatedAt     time.Time          `firestore:"updatedAt"`
}

func newProductDocument(p domain.Product) productDocument {
	doc := productDocument{
		Name:          p.Name,
		Image:         p.Image,
		SKU:           p.SKU,
		Price:         domain.MoneyToFloat(p.Price),
		SellingPrice:  domain.MoneyToFloat(p.SellingPrice),
		WeightKg:      p.WeightKg,
		Dimensions:    dimensionsDocument(p.Dimensions),
		Blacklisted:   p.Blacklisted,
		Stock:         p.Stock,
		ReservedStock: p.ReservedStock,
		SoldCount:     p.SoldCount,
		UpdatedAt:     p.UpdatedAt,
	}
	for _, v := range p.Variants {
		doc.Variants = append(doc.Variants, variantDocument{
			ID:            v.ID,
			Color:         v.Color,
			Size:          v.Size,
			SKU:           v.SKU,
			Image:         v.Image,
			Price:         domain.MoneyToFloat(v.Price),
			SellingPrice:  domain.MoneyToFloat(v.SellingPrice),
			WeightKg:      v.WeightKg,
			Dimensions:    dimensionsDocument(v.Dimensions),
			Stock:         v.Stock,
			ReservedStock: v.ReservedStock,
			SoldCount:     v.SoldCount,
		})
	}
	return doc
}

func (d productDocument) toDomain(id string) domain.Product {
	p := domain.Product{
		ID:            id,
		Name:          d.Name,
		Image:         d.Image,
		SKU:           d.SKU,
		Price:         domain.MoneyFromFloat(d.Price),
		SellingPrice:  domain.MoneyFromFloat(d.SellingPrice),
		WeightKg:      d.WeightKg,
		Dimensions:    domain.Dimensions(d.Dimensions),
		Blacklisted:   d.Blacklisted,
		Stock:         d.Stock,
		ReservedStock: d.ReservedStock,
		SoldCount:     d.SoldCount,
		UpdatedAt:     d.UpdatedAt,
	}
	for _, v := range d.Variants {
		p.Variants = append(p.Variants, domain.Variant{
			ID:            v.ID,
			Color:         v.Color,
			Size:          v.Size,
			SKU:           v.SKU,
			Image:         v.Image,
			Price:         domain.MoneyFromFloat(v.Price),
			SellingPrice:  domain.MoneyFromFloat(v.SellingPrice),
			WeightKg:      v.WeightKg,
			Dimensions:    domain.Dimensions(v.Dimensions),
			Stock:         v.Stock,
			ReservedStock: v.ReservedStock,
			SoldCount:     v.SoldCount,
		})
	}
	return p
}

type addressDocument struct {
	Recipient string    `firestore:"recipient"`
	Line1     string    `firestore:"line1"`
	Line2     string    `firestore:"line2,omitempty"`
	City      string    `firestore:"city"`
	State     string    `firestore:"state"`
	Pincode   string    `firestore:"pincode"`
	Country   string    `firestore:"country"`
	Phone     string    `firestore:"phone,omitempty"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newAddressDocument(a domain.Address) addressDocument {
	return addressDocument{
		Recipient: a.Recipient,
		Line1:     a.Line1,
		Line2:     a.Line2,
		City:      a.City,
		State:     a.State,
		Pincode:   a.Pincode,
		Country:   a.Country,
		Phone:     a.Phone,
		UpdatedAt: a.UpdatedAt,
	}
}

func (d addressDocument) toDomain(id string) domain.Address {
	return domain.Address{
		ID:        id,
		Recipient: d.Recipient,
		Line1:     d.Line1,
		Line2:     d.Line2,
		City:      d.City,
		State:     d.State,
		Pincode:   d.Pincode,
		Country:   d.Country,
		Phone:     d.Phone,
		UpdatedAt: d.UpdatedAt,
	}
}
