package domain

import "strings"

// ProductCategory classifies what kind of product a cart item is. Unknown values are kept verbatim.
type ProductCategory string

const (
	ProductCategoryMedicine      ProductCategory = "medicine"
	ProductCategoryMedical       ProductCategory = "medical"
	ProductCategoryFood          ProductCategory = "food"
	ProductCategoryGrocery       ProductCategory = "grocery"
	ProductCategoryProcessedFood ProductCategory = "processed-food"
	ProductCategoryService       ProductCategory = "service"
	ProductCategoryShoes         ProductCategory = "shoes"
	ProductCategoryElectronics   ProductCategory = "electronics"
	ProductCategoryMobiles       ProductCategory = "mobiles"
	ProductCategoryAppliances    ProductCategory = "appliances"
	ProductCategoryFashion       ProductCategory = "fashion"
	ProductCategoryToys          ProductCategory = "toys"
	ProductCategoryAutomobile    ProductCategory = "automobile"
	ProductCategoryCar           ProductCategory = "car"
	ProductCategoryLuxury        ProductCategory = "luxury"
	ProductCategoryPremium       ProductCategory = "premium"
	ProductCategoryTobacco       ProductCategory = "tobacco"
	ProductCategoryGeneral       ProductCategory = "general"
)

var productCategoryNames = map[ProductCategory]string{
	ProductCategoryMedicine:      "Medicine",
	ProductCategoryMedical:       "Medical",
	ProductCategoryFood:          "Food",
	ProductCategoryGrocery:       "Grocery",
	ProductCategoryProcessedFood: "Processed Food",
	ProductCategoryService:       "Service",
	ProductCategoryShoes:         "Shoes",
	ProductCategoryElectronics:   "Electronics",
	ProductCategoryMobiles:       "Mobiles",
	ProductCategoryAppliances:    "Appliances",
	ProductCategoryFashion:       "Fashion",
	ProductCategoryToys:          "Toys",
	ProductCategoryAutomobile:    "Automobile",
	ProductCategoryCar:           "Car",
	ProductCategoryLuxury:        "Luxury",
	ProductCategoryPremium:       "Premium",
	ProductCategoryTobacco:       "Tobacco",
	ProductCategoryGeneral:       "General",
}

// ParseProductCategory normalises free-form category input. Case and the separator style
// ("PROCESSED_FOOD", "processed food") are ignored; unrecognised input is returned lowercased.
func ParseProductCategory(value string) ProductCategory {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return ""
	}
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	return ProductCategory(normalized)
}

// Known reports whether the category is one of the enumerated values.
func (c ProductCategory) Known() bool {
	_, ok := productCategoryNames[c]
	return ok
}

// DisplayName returns a human friendly label for the category.
func (c ProductCategory) DisplayName() string {
	if name, ok := productCategoryNames[c]; ok {
		return name
	}
	return string(c)
}

// TaxCategory selects the applicable tax rate for an item.
type TaxCategory string

const (
	TaxCategoryExempt     TaxCategory = "exempt"
	TaxCategoryReducedLow TaxCategory = "reduced-low"
	TaxCategoryReducedMid TaxCategory = "reduced-mid"
	TaxCategoryStandard   TaxCategory = "standard"
	TaxCategoryHigh       TaxCategory = "high"
)

// TaxCategories lists every tax category in ascending rate order.
func TaxCategories() []TaxCategory {
	return []TaxCategory{
		TaxCategoryExempt,
		TaxCategoryReducedLow,
		TaxCategoryReducedMid,
		TaxCategoryStandard,
		TaxCategoryHigh,
	}
}

var gstAliases = map[string]TaxCategory{
	"exempt": TaxCategoryExempt,
	"gst-5":  TaxCategoryReducedLow,
	"gst-12": TaxCategoryReducedMid,
	"gst-18": TaxCategoryStandard,
	"gst-28": TaxCategoryHigh,
}

// ParseTaxCategory accepts both the canonical names and the GST slab names ("GST_5", "GST_18").
// It returns false when the input does not name a tax category.
func ParseTaxCategory(value string) (TaxCategory, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "", false
	}
	normalized = strings.NewReplacer("_", "-", " ", "-").Replace(normalized)
	if alias, ok := gstAliases[normalized]; ok {
		return alias, true
	}
	for _, category := range TaxCategories() {
		if TaxCategory(normalized) == category {
			return category, true
		}
	}
	return "", false
}
