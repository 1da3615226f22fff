package services

import (
	"sort"

	"github.com/shopspring/decimal"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
)

// taxRateTable is never mutated after package initialisation.
var taxRateTable = map[TaxCategory]TaxRate{
	domain.TaxCategoryExempt:     {Category: domain.TaxCategoryExempt, Rate: decimal.Zero, Label: "Exempt"},
	domain.TaxCategoryReducedLow: {Category: domain.TaxCategoryReducedLow, Rate: decimal.NewFromInt(5), Label: "5% GST"},
	domain.TaxCategoryReducedMid: {Category: domain.TaxCategoryReducedMid, Rate: decimal.NewFromInt(12), Label: "12% GST"},
	domain.TaxCategoryStandard:   {Category: domain.TaxCategoryStandard, Rate: decimal.NewFromInt(18), Label: "18% GST"},
	domain.TaxCategoryHigh:       {Category: domain.TaxCategoryHigh, Rate: decimal.NewFromInt(28), Label: "28% GST"},
}

var productTaxCategories = map[ProductCategory]TaxCategory{
	domain.ProductCategoryMedicine: domain.TaxCategoryReducedLow,
	domain.ProductCategoryMedical:  domain.TaxCategoryReducedLow,
	domain.ProductCategoryFood:     domain.TaxCategoryReducedLow,
	domain.ProductCategoryGrocery:  domain.TaxCategoryReducedLow,

	domain.ProductCategoryProcessedFood: domain.TaxCategoryReducedMid,
	domain.ProductCategoryService:       domain.TaxCategoryReducedMid,

	domain.ProductCategoryShoes:       domain.TaxCategoryStandard,
	domain.ProductCategoryElectronics: domain.TaxCategoryStandard,
	domain.ProductCategoryMobiles:     domain.TaxCategoryStandard,
	domain.ProductCategoryAppliances:  domain.TaxCategoryStandard,
	domain.ProductCategoryFashion:     domain.TaxCategoryStandard,
	domain.ProductCategoryToys:        domain.TaxCategoryStandard,
	domain.ProductCategoryGeneral:     domain.TaxCategoryStandard,

	domain.ProductCategoryLuxury:     domain.TaxCategoryHigh,
	domain.ProductCategoryPremium:    domain.TaxCategoryHigh,
	domain.ProductCategoryAutomobile: domain.TaxCategoryHigh,
	domain.ProductCategoryCar:        domain.TaxCategoryHigh,
	domain.ProductCategoryTobacco:    domain.TaxCategoryHigh,
}

// ClassifyProductCategory maps a product category to its tax category. Empty input is treated as
// general merchandise and anything unrecognised falls back to the standard rate.
func ClassifyProductCategory(category ProductCategory) TaxCategory {
	if category == "" {
		category = domain.ProductCategoryGeneral
	}
	if taxCategory, ok := productTaxCategories[category]; ok {
		return taxCategory
	}
	return domain.TaxCategoryStandard
}

// TaxRateFor returns the table entry for the tax category, resolving unknown values to the standard rate.
func TaxRateFor(category TaxCategory) TaxRate {
	if rate, ok := taxRateTable[category]; ok {
		return rate
	}
	return taxRateTable[domain.TaxCategoryStandard]
}

// TaxRates returns the full rate table ordered from the lowest to the highest rate.
func TaxRates() []TaxRate {
	categories := domain.TaxCategories()
	rates := make([]TaxRate, 0, len(categories))
	for _, category := range categories {
		rates = append(rates, taxRateTable[category])
	}
	return rates
}

// ProductCategoriesFor lists the product categories classified into the given tax category, sorted by name.
func ProductCategoriesFor(category TaxCategory) []ProductCategory {
	var members []ProductCategory
	for product, taxCategory := range productTaxCategories {
		if taxCategory == category {
			members = append(members, product)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return members
}
