package repositories

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
)

// CartRecord is the persisted shape of a cart shared by the Redis and Firestore stores.
// Money is stored as fixed two-decimal strings so no backend introduces float drift.
type CartRecord struct {
	CustomerID     string           `json:"customerId" firestore:"customerId"`
	Items          []CartItemRecord `json:"items" firestore:"items"`
	Subtotal       string           `json:"subtotal" firestore:"subtotal"`
	TaxAmount      string           `json:"taxAmount" firestore:"taxAmount"`
	Total          string           `json:"total" firestore:"total"`
	Currency       string           `json:"currency" firestore:"currency"`
	ShippingMethod string           `json:"shippingMethod,omitempty" firestore:"shippingMethod,omitempty"`
	ShippingCost   string           `json:"shippingCost" firestore:"shippingCost"`
	UpdatedAt      time.Time        `json:"updatedAt" firestore:"updatedAt"`
}

// CartItemRecord is the persisted shape of a single cart line.
type CartItemRecord struct {
	ProductID   string `json:"productId" firestore:"productId"`
	SKU         string `json:"sku,omitempty" firestore:"sku,omitempty"`
	Title       string `json:"title,omitempty" firestore:"title,omitempty"`
	Quantity    int    `json:"quantity" firestore:"quantity"`
	UnitPrice   string `json:"unitPrice" firestore:"unitPrice"`
	Currency    string `json:"currency,omitempty" firestore:"currency,omitempty"`
	Category    string `json:"category" firestore:"category"`
	TaxCategory string `json:"taxCategory" firestore:"taxCategory"`
}

// EncodeCart converts a domain cart into its persisted record.
func EncodeCart(cart domain.Cart) CartRecord {
	record := CartRecord{
		CustomerID:     strings.TrimSpace(cart.CustomerID),
		Items:          make([]CartItemRecord, 0, len(cart.Items)),
		Subtotal:       cart.Subtotal.StringFixed(2),
		TaxAmount:      cart.TaxAmount.StringFixed(2),
		Total:          cart.Total.StringFixed(2),
		Currency:       cart.Currency,
		ShippingMethod: cart.ShippingMethod,
		ShippingCost:   cart.ShippingCost.StringFixed(2),
		UpdatedAt:      cart.UpdatedAt.UTC(),
	}
	for _, item := range cart.Items {
		record.Items = append(record.Items, CartItemRecord{
			ProductID:   item.ProductID,
			SKU:         item.SKU,
			Title:       item.Title,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice.String(),
			Currency:    item.Currency,
			Category:    string(item.Category),
			TaxCategory: string(item.TaxCategory),
		})
	}
	return record
}

// DecodeCart converts a persisted record back into a domain cart.
func DecodeCart(record CartRecord) (domain.Cart, error) {
	cart := domain.Cart{
		CustomerID:     record.CustomerID,
		Items:          make([]domain.CartItem, 0, len(record.Items)),
		Currency:       record.Currency,
		ShippingMethod: record.ShippingMethod,
		UpdatedAt:      record.UpdatedAt.UTC(),
	}

	var err error
	if cart.Subtotal, err = parseMoney("subtotal", record.Subtotal); err != nil {
		return domain.Cart{}, err
	}
	if cart.TaxAmount, err = parseMoney("taxAmount", record.TaxAmount); err != nil {
		return domain.Cart{}, err
	}
	if cart.Total, err = parseMoney("total", record.Total); err != nil {
		return domain.Cart{}, err
	}
	if cart.ShippingCost, err = parseMoney("shippingCost", record.ShippingCost); err != nil {
		return domain.Cart{}, err
	}

	for i, item := range record.Items {
		price, err := parseMoney(fmt.Sprintf("items[%d].unitPrice", i), item.UnitPrice)
		if err != nil {
			return domain.Cart{}, err
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID:   item.ProductID,
			SKU:         item.SKU,
			Title:       item.Title,
			Quantity:    item.Quantity,
			UnitPrice:   price,
			Currency:    item.Currency,
			Category:    domain.ProductCategory(item.Category),
			TaxCategory: domain.TaxCategory(item.TaxCategory),
		})
	}
	return cart, nil
}

func parseMoney(field, value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("cart record: invalid %s %q: %w", field, value, err)
	}
	return d, nil
}
