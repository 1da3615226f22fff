package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/httpx"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/observability"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/services"
)

const customerIDParam = "customerId"

// CartHandlers exposes cart assembly, shipping updates and store reads over HTTP.
type CartHandlers struct {
	carts services.CartService
}

// NewCartHandlers constructs cart handlers backed by the cart service.
func NewCartHandlers(carts services.CartService) *CartHandlers {
	return &CartHandlers{carts: carts}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCarts)
	r.Post("/", h.assembleCart)
	r.Route("/{"+customerIDParam+"}", func(r chi.Router) {
		r.Use(observability.CustomerContextMiddleware(customerIDParam))
		r.Get("/", h.getCart)
		r.Delete("/", h.deleteCart)
		r.Get("/tax-breakdown", h.taxBreakdown)
		r.Put("/shipping", h.updateShipping)
	})
}

func (h *CartHandlers) listCarts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	carts, err := h.carts.ListCarts(ctx)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	payload := cartListResponse{Carts: make([]cartPayload, 0, len(carts))}
	for _, cart := range carts {
		payload.Carts = append(payload.Carts, buildCartPayload(cart))
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *CartHandlers) assembleCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req assembleCartRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.AssembleCartCommand{
		CustomerID:     req.CustomerID,
		Items:          make([]services.CartItem, 0, len(req.Items)),
		ShippingMethod: req.ShippingMethod,
		ShippingCost:   req.ShippingCost.Decimal,
	}
	for _, item := range req.Items {
		cmd.Items = append(cmd.Items, item.toDomain())
	}

	cart, err := h.carts.AssembleCart(ctx, cmd)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cart, err := h.carts.GetCart(ctx, chi.URLParam(r, customerIDParam))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	setNoStore(w)
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) deleteCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.carts.DeleteCart(ctx, chi.URLParam(r, customerIDParam)); err != nil {
		writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) taxBreakdown(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := strings.TrimSpace(chi.URLParam(r, customerIDParam))
	breakdown, err := h.carts.TaxBreakdown(ctx, customerID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, taxBreakdownPayload{
		CustomerID: customerID,
		Subtotal:   newMoney(breakdown.Subtotal),
		TaxAmount:  newMoney(breakdown.TaxAmount),
		Total:      newMoney(breakdown.Total),
	})
}

func (h *CartHandlers) updateShipping(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateShippingRequest
	if err := decodeStrict(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateShippingMethod(ctx, services.UpdateShippingCommand{
		CustomerID:     chi.URLParam(r, customerIDParam),
		ShippingMethod: req.ShippingMethod,
		ShippingCost:   req.ShippingCost.Decimal,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	setNoStore(w)
	httpx.WriteJSON(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", validationMessage(err), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_store_unavailable", "cart store is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("cart_store_unavailable", "cart store did not respond in time", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to process cart", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, errBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}

// validationMessage strips the sentinel prefix so clients see only the detail.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := services.ErrCartInvalidInput.Error() + ": "
	if trimmed := strings.TrimPrefix(msg, prefix); trimmed != "" {
		return trimmed
	}
	return msg
}

func setNoStore(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
}

type assembleCartRequest struct {
	CustomerID     string            `json:"customerId"`
	Items          []cartItemRequest `json:"items"`
	ShippingMethod string            `json:"shippingMethod"`
	ShippingCost   money             `json:"shippingCost"`
}

type cartItemRequest struct {
	ProductID   string    `json:"productId"`
	SKU         string    `json:"sku"`
	Title       string    `json:"title"`
	Quantity    int       `json:"quantity"`
	UnitPrice   unitPrice `json:"unitPrice"`
	Currency    string    `json:"currency"`
	Category    string    `json:"category"`
	TaxCategory string    `json:"taxCategory"`
}

func (r cartItemRequest) toDomain() services.CartItem {
	item := services.CartItem{
		ProductID: strings.TrimSpace(r.ProductID),
		SKU:       strings.TrimSpace(r.SKU),
		Title:     strings.TrimSpace(r.Title),
		Quantity:  r.Quantity,
		UnitPrice: r.UnitPrice.Decimal,
		Currency:  r.Currency,
		Category:  domain.ParseProductCategory(r.Category),
	}
	if raw := strings.TrimSpace(r.TaxCategory); raw != "" {
		if category, ok := domain.ParseTaxCategory(raw); ok {
			item.TaxCategory = category
		} else {
			// unknown categories fall back to the standard rate in the calculator
			item.TaxCategory = domain.TaxCategory(strings.ToLower(raw))
		}
	}
	return item
}

type updateShippingRequest struct {
	ShippingMethod string `json:"shippingMethod"`
	ShippingCost   money  `json:"shippingCost"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartListResponse struct {
	Carts []cartPayload `json:"carts"`
}

type cartPayload struct {
	CustomerID     string            `json:"customerId"`
	Items          []cartItemPayload `json:"items"`
	ItemsCount     int               `json:"itemsCount"`
	Subtotal       money             `json:"subtotal"`
	TaxAmount      money             `json:"taxAmount"`
	Total          money             `json:"total"`
	Currency       string            `json:"currency"`
	ShippingMethod string            `json:"shippingMethod,omitempty"`
	ShippingCost   money             `json:"shippingCost"`
	UpdatedAt      string            `json:"updatedAt,omitempty"`
}

type cartItemPayload struct {
	ProductID     string    `json:"productId"`
	SKU           string    `json:"sku,omitempty"`
	Title         string    `json:"title,omitempty"`
	Quantity      int       `json:"quantity"`
	UnitPrice     unitPrice `json:"unitPrice"`
	Currency      string    `json:"currency,omitempty"`
	Category      string    `json:"category"`
	CategoryName  string    `json:"categoryName"`
	TaxCategory   string    `json:"taxCategory"`
	TaxLabel      string    `json:"taxLabel"`
	LineSubtotal  money     `json:"lineSubtotal"`
	LineTaxAmount money     `json:"lineTaxAmount"`
}

type taxBreakdownPayload struct {
	CustomerID string `json:"customerId"`
	Subtotal   money  `json:"subtotal"`
	TaxAmount  money  `json:"taxAmount"`
	Total      money  `json:"total"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		CustomerID:     cart.CustomerID,
		Items:          make([]cartItemPayload, 0, len(cart.Items)),
		ItemsCount:     len(cart.Items),
		Subtotal:       newMoney(cart.Subtotal),
		TaxAmount:      newMoney(cart.TaxAmount),
		Total:          newMoney(cart.Total),
		Currency:       cart.Currency,
		ShippingMethod: cart.ShippingMethod,
		ShippingCost:   newMoney(cart.ShippingCost),
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = cart.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	for _, item := range cart.Items {
		line := services.ComputeLine(item)
		payload.Items = append(payload.Items, cartItemPayload{
			ProductID:     item.ProductID,
			SKU:           item.SKU,
			Title:         item.Title,
			Quantity:      item.Quantity,
			UnitPrice:     unitPrice{newMoney(item.UnitPrice)},
			Currency:      item.Currency,
			Category:      string(item.Category),
			CategoryName:  item.Category.DisplayName(),
			TaxCategory:   string(line.TaxCategory),
			TaxLabel:      services.TaxRateFor(line.TaxCategory).Label,
			LineSubtotal:  newMoney(services.Round2(line.Subtotal)),
			LineTaxAmount: newMoney(services.Round2(line.Tax)),
		})
	}
	return payload
}
