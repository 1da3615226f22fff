package repositories

import (
	"context"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
)

// CartRepository persists one cart document per customer. Saves replace the stored record wholesale.
type CartRepository interface {
	// SaveCart writes the cart and returns it once the store has acknowledged the write.
	SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	// GetCart returns a RepositoryError with IsNotFound when no cart exists for the customer.
	GetCart(ctx context.Context, customerID string) (domain.Cart, error)
	ListCarts(ctx context.Context) ([]domain.Cart, error)
	// DeleteCart returns a RepositoryError with IsNotFound when there was nothing to delete.
	DeleteCart(ctx context.Context, customerID string) error
	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error
}

// HealthRepository aggregates dependency checks for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}
