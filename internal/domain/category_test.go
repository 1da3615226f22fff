package domain

import "testing"

func TestParseProductCategory(t *testing.T) {
	tests := map[string]ProductCategory{
		"":                 "",
		"  MEDICINE ":      ProductCategoryMedicine,
		"PROCESSED_FOOD":   ProductCategoryProcessedFood,
		"processed food":   ProductCategoryProcessedFood,
		"Luxury":           ProductCategoryLuxury,
		"Garden Furniture": ProductCategory("garden-furniture"),
	}
	for input, want := range tests {
		if got := ParseProductCategory(input); got != want {
			t.Errorf("ParseProductCategory(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestProductCategoryDisplayName(t *testing.T) {
	if got := ProductCategoryProcessedFood.DisplayName(); got != "Processed Food" {
		t.Fatalf("unexpected display name %q", got)
	}
	unknown := ProductCategory("garden-furniture")
	if unknown.Known() || unknown.DisplayName() != "garden-furniture" {
		t.Fatalf("unknown categories should echo their value")
	}
	if !ProductCategoryGeneral.Known() {
		t.Fatalf("general must be a known category")
	}
}

func TestParseTaxCategory(t *testing.T) {
	tests := []struct {
		input string
		want  TaxCategory
		ok    bool
	}{
		{input: "GST_5", want: TaxCategoryReducedLow, ok: true},
		{input: "gst 28", want: TaxCategoryHigh, ok: true},
		{input: "Exempt", want: TaxCategoryExempt, ok: true},
		{input: "REDUCED_MID", want: TaxCategoryReducedMid, ok: true},
		{input: "standard", want: TaxCategoryStandard, ok: true},
		{input: "luxury-tax"},
		{input: "  "},
	}
	for _, tc := range tests {
		got, ok := ParseTaxCategory(tc.input)
		if ok != tc.ok || got != tc.want {
			t.Errorf("ParseTaxCategory(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestTaxCategoriesOrder(t *testing.T) {
	got := TaxCategories()
	if len(got) != 5 || got[0] != TaxCategoryExempt || got[4] != TaxCategoryHigh {
		t.Fatalf("unexpected order %v", got)
	}
}
