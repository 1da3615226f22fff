package domain

import "github.com/shopspring/decimal"

// TaxBreakdown captures the aggregated monetary results of taxing a set of items. Total excludes shipping.
type TaxBreakdown struct {
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// LineTax stores the unrounded per-item outputs of the line calculator.
type LineTax struct {
	Subtotal    decimal.Decimal
	Tax         decimal.Decimal
	TaxCategory TaxCategory
	Rate        decimal.Decimal
}

// TaxRate describes a single entry of the tax rate table. Rate is expressed in percentage points.
type TaxRate struct {
	Category TaxCategory
	Rate     decimal.Decimal
	Label    string
}
