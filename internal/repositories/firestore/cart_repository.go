package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
	pfirestore "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/firestore"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories"
)

const defaultCartCollection = "carts"

// CartRepository persists one cart document per customer, keyed by customer id, with items embedded.
type CartRepository struct {
	base *pfirestore.BaseRepository[repositories.CartRecord]
}

// NewCartRepository constructs a Firestore-backed cart repository. An empty collection defaults to "carts".
func NewCartRepository(provider *pfirestore.Provider, collection string) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	if strings.TrimSpace(collection) == "" {
		collection = defaultCartCollection
	}
	return &CartRepository{
		base: pfirestore.NewBaseRepository[repositories.CartRecord](provider, collection, nil),
	}, nil
}

// SaveCart replaces the customer's cart document.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	customerID := strings.TrimSpace(cart.CustomerID)
	if customerID == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}
	cart.CustomerID = customerID

	if _, err := r.base.Set(ctx, customerID, repositories.EncodeCart(cart)); err != nil {
		return domain.Cart{}, err
	}
	return cart.Clone(), nil
}

func (r *CartRepository) GetCart(ctx context.Context, customerID string) (domain.Cart, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeDocument(doc)
}

func (r *CartRepository) ListCarts(ctx context.Context) ([]domain.Cart, error) {
	docs, err := r.base.List(ctx)
	if err != nil {
		return nil, err
	}
	carts := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		cart, err := decodeDocument(doc)
		if err != nil {
			return nil, err
		}
		carts = append(carts, cart)
	}
	return carts, nil
}

func (r *CartRepository) DeleteCart(ctx context.Context, customerID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(customerID))
}

func (r *CartRepository) Ping(ctx context.Context) error {
	return r.base.Ping(ctx)
}

func decodeDocument(doc pfirestore.Document[repositories.CartRecord]) (domain.Cart, error) {
	cart, err := repositories.DecodeCart(doc.Data)
	if err != nil {
		return domain.Cart{}, err
	}
	if cart.CustomerID == "" {
		cart.CustomerID = doc.ID
	}
	return cart, nil
}
