package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
)

const defaultCartCurrency = "INR"

// CartAssemblerDeps wires the collaborators used to build cart records.
type CartAssemblerDeps struct {
	Calculator      *TaxCalculator
	DefaultCurrency string
	Clock           func() time.Time
}

// CartAssembler turns raw item lists into fully priced cart records. It performs no I/O.
type CartAssembler struct {
	calculator *TaxCalculator
	currency   string
	now        func() time.Time
}

// NewCartAssembler constructs a CartAssembler, defaulting the currency to INR.
func NewCartAssembler(deps CartAssemblerDeps) *CartAssembler {
	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = defaultCartCurrency
	}
	calculator := deps.Calculator
	if calculator == nil {
		calculator = NewTaxCalculator(nil)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &CartAssembler{
		calculator: calculator,
		currency:   currency,
		now:        func() time.Time { return clock().UTC() },
	}
}

// AssembleCart validates the command, fills item defaults and computes the totals. Shipping is added after tax.
func (a *CartAssembler) AssembleCart(ctx context.Context, cmd AssembleCartCommand) (Cart, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return Cart{}, fmt.Errorf("%w: customer id is required", ErrCartInvalidInput)
	}
	if err := validateShippingCost(cmd.ShippingCost); err != nil {
		return Cart{}, err
	}

	items := make([]CartItem, 0, len(cmd.Items))
	for idx, item := range cmd.Items {
		normalised, err := a.normaliseItem(item)
		if err != nil {
			return Cart{}, fmt.Errorf("%w: item %d: %s", ErrCartInvalidInput, idx, err.Error())
		}
		items = append(items, normalised)
	}

	cart := Cart{
		CustomerID:     customerID,
		Items:          items,
		Currency:       a.cartCurrency(items),
		ShippingMethod: strings.TrimSpace(cmd.ShippingMethod),
		ShippingCost:   cmd.ShippingCost,
	}
	return a.price(ctx, cart), nil
}

// ApplyShipping recomputes the breakdown of an existing cart and applies the new shipping selection.
func (a *CartAssembler) ApplyShipping(ctx context.Context, cart Cart, method string, cost decimal.Decimal) (Cart, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return Cart{}, fmt.Errorf("%w: shipping method is required", ErrCartInvalidInput)
	}
	if err := validateShippingCost(cost); err != nil {
		return Cart{}, err
	}

	updated := cart.Clone()
	updated.ShippingMethod = method
	updated.ShippingCost = cost
	if strings.TrimSpace(updated.Currency) == "" {
		updated.Currency = a.cartCurrency(updated.Items)
	}
	return a.price(ctx, updated), nil
}

// Breakdown recomputes the pre-shipping figures for the cart's current items.
func (a *CartAssembler) Breakdown(ctx context.Context, cart Cart) TaxBreakdown {
	return a.calculator.Aggregate(ctx, cart.Items)
}

func (a *CartAssembler) price(ctx context.Context, cart Cart) Cart {
	breakdown := a.calculator.Aggregate(ctx, cart.Items)
	cart.Subtotal = breakdown.Subtotal
	cart.TaxAmount = breakdown.TaxAmount
	cart.Total = breakdown.Total.Add(cart.ShippingCost)
	cart.UpdatedAt = a.now()
	return cart
}

var (
	errNegativeQuantity    = errors.New("quantity cannot be negative")
	errNegativeUnitPrice   = errors.New("unit price cannot be negative")
	errUnitPriceOutOfRange = errors.New("unit price out of range")
)

const (
	// MaxAmountIntegerDigits bounds the whole part of any submitted amount (below 10^13).
	MaxAmountIntegerDigits = 13
	// MaxAmountDecimalPlaces bounds the fractional precision of any submitted amount.
	MaxAmountDecimalPlaces = 4
)

// AmountInRange reports whether d fits the accepted monetary range. It inspects the coefficient and
// exponent only, so amounts such as 1e5000000 are rejected without being expanded.
func AmountInRange(d decimal.Decimal) bool {
	exp := int(d.Exponent())
	if exp < -MaxAmountDecimalPlaces || exp > MaxAmountIntegerDigits {
		return false
	}
	return d.NumDigits()+exp <= MaxAmountIntegerDigits
}

func validateShippingCost(cost decimal.Decimal) error {
	if cost.IsNegative() {
		return fmt.Errorf("%w: shipping cost cannot be negative", ErrCartInvalidInput)
	}
	if !AmountInRange(cost) {
		return fmt.Errorf("%w: shipping cost out of range", ErrCartInvalidInput)
	}
	return nil
}

func (a *CartAssembler) normaliseItem(item CartItem) (CartItem, error) {
	if item.Quantity < 0 {
		return CartItem{}, errNegativeQuantity
	}
	if item.UnitPrice.IsNegative() {
		return CartItem{}, errNegativeUnitPrice
	}
	if !AmountInRange(item.UnitPrice) {
		return CartItem{}, errUnitPriceOutOfRange
	}
	item.ProductID = strings.TrimSpace(item.ProductID)
	item.SKU = strings.TrimSpace(item.SKU)
	item.Title = strings.TrimSpace(item.Title)
	if item.Category == "" {
		item.Category = domain.ProductCategoryGeneral
	}
	if item.TaxCategory == "" {
		item.TaxCategory = ClassifyProductCategory(item.Category)
	}
	item.Currency = strings.ToUpper(strings.TrimSpace(item.Currency))
	if item.Currency == "" {
		item.Currency = a.currency
	}
	return item, nil
}

func (a *CartAssembler) cartCurrency(items []CartItem) string {
	for _, item := range items {
		if currency := strings.ToUpper(strings.TrimSpace(item.Currency)); currency != "" {
			return currency
		}
	}
	return a.currency
}
