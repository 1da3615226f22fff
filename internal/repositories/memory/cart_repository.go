package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
)

// CartRepository keeps carts in process memory. It backs local development and tests.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartRepository constructs an empty in-memory cart repository.
func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]domain.Cart)}
}

func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	customerID := strings.TrimSpace(cart.CustomerID)
	if customerID == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}
	cart.CustomerID = customerID

	r.mu.Lock()
	r.carts[customerID] = cart.Clone()
	r.mu.Unlock()
	return cart.Clone(), nil
}

func (r *CartRepository) GetCart(ctx context.Context, customerID string) (domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return domain.Cart{}, err
	}
	r.mu.RLock()
	cart, ok := r.carts[strings.TrimSpace(customerID)]
	r.mu.RUnlock()
	if !ok {
		return domain.Cart{}, notFound("get", customerID)
	}
	return cart.Clone(), nil
}

func (r *CartRepository) ListCarts(ctx context.Context) ([]domain.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	carts := make([]domain.Cart, 0, len(r.carts))
	for _, cart := range r.carts {
		carts = append(carts, cart.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(carts, func(i, j int) bool { return carts[i].CustomerID < carts[j].CustomerID })
	return carts, nil
}

func (r *CartRepository) DeleteCart(ctx context.Context, customerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	customerID = strings.TrimSpace(customerID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[customerID]; !ok {
		return notFound("delete", customerID)
	}
	delete(r.carts, customerID)
	return nil
}

// Ping always succeeds.
func (r *CartRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

type storeError struct {
	op         string
	customerID string
}

func notFound(op, customerID string) error {
	return &storeError{op: op, customerID: customerID}
}

func (e *storeError) Error() string {
	return fmt.Sprintf("memory %s: cart %q not found", e.op, e.customerID)
}

func (e *storeError) IsNotFound() bool    { return true }
func (e *storeError) IsConflict() bool    { return false }
func (e *storeError) IsUnavailable() bool { return false }
