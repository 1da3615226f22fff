package services

import (
	"context"

	"github.com/shopspring/decimal"
)

var oneHundred = decimal.NewFromInt(100)

// Round2 rounds to two decimal places with ties moving away from zero. The rounding operates on the decimal
// representation so values such as 0.005 always round up.
func Round2(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

// ResolveTaxCategory returns the explicit tax category of the item or classifies its product category.
func ResolveTaxCategory(item CartItem) TaxCategory {
	if item.TaxCategory != "" {
		return item.TaxCategory
	}
	return ClassifyProductCategory(item.Category)
}

// ComputeLine derives the unrounded subtotal and tax for a single item.
func ComputeLine(item CartItem) LineTax {
	category := ResolveTaxCategory(item)
	rate := TaxRateFor(category)
	subtotal := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))

	tax := decimal.Zero
	if rate.Rate.IsPositive() {
		tax = subtotal.Mul(rate.Rate).Div(oneHundred)
	}
	return LineTax{
		Subtotal:    subtotal,
		Tax:         tax,
		TaxCategory: rate.Category,
		Rate:        rate.Rate,
	}
}

// TaxCalculator aggregates line results into cart level figures.
type TaxCalculator struct {
	logger func(context.Context, string, map[string]any)
}

// NewTaxCalculator constructs a calculator. The logger receives one debug event per line and may be nil.
func NewTaxCalculator(logger func(context.Context, string, map[string]any)) *TaxCalculator {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &TaxCalculator{logger: logger}
}

// Aggregate sums the line subtotals and taxes, rounding each sum once. The total is rebuilt from the two
// rounded components so that Total == Round2(Subtotal + TaxAmount) always holds.
func (c *TaxCalculator) Aggregate(ctx context.Context, items []CartItem) TaxBreakdown {
	if len(items) == 0 {
		return TaxBreakdown{Subtotal: decimal.Zero, TaxAmount: decimal.Zero, Total: decimal.Zero}
	}

	subtotal := decimal.Zero
	tax := decimal.Zero
	for idx, item := range items {
		line := ComputeLine(item)
		subtotal = subtotal.Add(line.Subtotal)
		tax = tax.Add(line.Tax)
		if c != nil {
			c.logger(ctx, "cart.tax.line", map[string]any{
				"index":       idx,
				"productId":   item.ProductID,
				"title":       item.Title,
				"category":    string(item.Category),
				"taxCategory": string(line.TaxCategory),
				"rate":        line.Rate.String(),
				"subtotal":    line.Subtotal.String(),
				"tax":         line.Tax.String(),
			})
		}
	}

	roundedSubtotal := Round2(subtotal)
	roundedTax := Round2(tax)
	return TaxBreakdown{
		Subtotal:  roundedSubtotal,
		TaxAmount: roundedTax,
		Total:     Round2(roundedSubtotal.Add(roundedTax)),
	}
}

// AggregateTax is the logger-free form of TaxCalculator.Aggregate.
func AggregateTax(items []CartItem) TaxBreakdown {
	return (*TaxCalculator)(nil).Aggregate(context.Background(), items)
}
