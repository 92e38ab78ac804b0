package domain

import "time"

// Address is an address-book record. Orders embed a copy of it, never a reference.
type Address struct {
	ID        string
	Recipient string
	Line1     string
	Line2     string
	City      string
	State     string
	Pincode   string
	Country   string
	Phone     string
	UpdatedAt time.Time
}

// Cart is the persisted per-user cart the engine consumes on cart checkout.
type Cart struct {
	UserID    string
	Lines     []CartLine
	UpdatedAt time.Time
}

// CartLine is one cart entry.
type CartLine struct {
	ProductID string
	VariantID string
	Quantity  int
}
