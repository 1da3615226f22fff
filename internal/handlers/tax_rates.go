package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/httpx"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/services"
)

// TaxRateHandlers publishes the fixed tax rate table.
type TaxRateHandlers struct{}

// NewTaxRateHandlers constructs the tax rate handlers.
func NewTaxRateHandlers() *TaxRateHandlers {
	return &TaxRateHandlers{}
}

// Routes wires GET / onto the provided router.
func (h *TaxRateHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listTaxRates)
}

type taxRatePayload struct {
	Category          string   `json:"category"`
	Rate              string   `json:"rate"`
	Label             string   `json:"label"`
	ProductCategories []string `json:"productCategories"`
}

func (h *TaxRateHandlers) listTaxRates(w http.ResponseWriter, _ *http.Request) {
	rates := services.TaxRates()
	payload := struct {
		TaxRates []taxRatePayload `json:"taxRates"`
	}{TaxRates: make([]taxRatePayload, 0, len(rates))}

	for _, rate := range rates {
		members := services.ProductCategoriesFor(rate.Category)
		entry := taxRatePayload{
			Category:          string(rate.Category),
			Rate:              rate.Rate.String(),
			Label:             rate.Label,
			ProductCategories: make([]string, 0, len(members)),
		}
		for _, member := range members {
			entry.ProductCategories = append(entry.ProductCategories, string(member))
		}
		payload.TaxRates = append(payload.TaxRates, entry)
	}

	w.Header().Set("Cache-Control", "public, max-age=300")
	httpx.WriteJSON(w, http.StatusOK, payload)
}
