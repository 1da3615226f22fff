package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart aggregates the stored shopping cart state for a customer. Exactly one cart exists per
// customer identifier; every write replaces the previous record.
type Cart struct {
	CustomerID     string
	Items          []CartItem
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	Currency       string
	ShippingMethod string
	ShippingCost   decimal.Decimal
	UpdatedAt      time.Time
}

// CartItem stores a single product entry within a cart.
type CartItem struct {
	ProductID   string
	SKU         string
	Title       string
	Quantity    int
	UnitPrice   decimal.Decimal
	Currency    string
	Category    ProductCategory
	TaxCategory TaxCategory
}

// Clone returns a deep copy of the cart so callers can mutate items freely.
func (c Cart) Clone() Cart {
	out := c
	if c.Items != nil {
		out.Items = make([]CartItem, len(c.Items))
		copy(out.Items, c.Items)
	}
	return out
}
