package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart            = domain.Cart
	CartItem        = domain.CartItem
	TaxBreakdown    = domain.TaxBreakdown
	LineTax         = domain.LineTax
	TaxRate         = domain.TaxRate
	ProductCategory = domain.ProductCategory
	TaxCategory     = domain.TaxCategory
)

// CartService exposes cart assembly, shipping updates and read access backed by the cart store.
type CartService interface {
	AssembleCart(ctx context.Context, cmd AssembleCartCommand) (Cart, error)
	UpdateShippingMethod(ctx context.Context, cmd UpdateShippingCommand) (Cart, error)
	GetCart(ctx context.Context, customerID string) (Cart, error)
	ListCarts(ctx context.Context) ([]Cart, error)
	DeleteCart(ctx context.Context, customerID string) error
	TaxBreakdown(ctx context.Context, customerID string) (TaxBreakdown, error)
}

// AssembleCartCommand carries the full replacement contents of a customer's cart.
type AssembleCartCommand struct {
	CustomerID     string
	Items          []CartItem
	ShippingMethod string
	ShippingCost   decimal.Decimal
}

// UpdateShippingCommand changes the shipping selection of an existing cart.
type UpdateShippingCommand struct {
	CustomerID     string
	ShippingMethod string
	ShippingCost   decimal.Decimal
}

// CartEventType enumerates the notifications emitted after cart mutations.
type CartEventType string

const (
	CartEventUpdated CartEventType = "cart.updated"
	CartEventDeleted CartEventType = "cart.deleted"
)

// CartEvent is the payload published after a cart has been written or removed.
type CartEvent struct {
	ID         string          `json:"id"`
	Type       CartEventType   `json:"type"`
	CustomerID string          `json:"customerId"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TaxAmount  decimal.Decimal `json:"taxAmount"`
	Total      decimal.Decimal `json:"total"`
	Currency   string          `json:"currency,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// CartEventPublisher delivers cart events to downstream consumers.
type CartEventPublisher interface {
	PublishCartEvent(ctx context.Context, event CartEvent) (string, error)
}
