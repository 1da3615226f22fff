package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
	predis "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/redis"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories"
)

const (
	defaultKeyPrefix = "cart:"
	scanBatchSize    = 200
)

// CartRepository stores one JSON document per customer under "<prefix><customerID>".
type CartRepository struct {
	client redis.UniversalClient
	prefix string
}

// NewCartRepository constructs a Redis-backed cart repository. An empty prefix defaults to "cart:".
func NewCartRepository(client redis.UniversalClient, prefix string) (*CartRepository, error) {
	if client == nil {
		return nil, errors.New("cart repository requires redis client")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	return &CartRepository{client: client, prefix: prefix}, nil
}

// SaveCart writes the cart without expiry, replacing any previous document.
func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	customerID := strings.TrimSpace(cart.CustomerID)
	if customerID == "" {
		return domain.Cart{}, errors.New("cart repository: customer id is required")
	}
	cart.CustomerID = customerID

	payload, err := json.Marshal(repositories.EncodeCart(cart))
	if err != nil {
		return domain.Cart{}, fmt.Errorf("cart repository: encode %s: %w", customerID, err)
	}
	if err := r.client.Set(ctx, r.key(customerID), payload, 0).Err(); err != nil {
		return domain.Cart{}, predis.WrapError("set", err)
	}
	return cart.Clone(), nil
}

// GetCart loads the cart for the customer.
func (r *CartRepository) GetCart(ctx context.Context, customerID string) (domain.Cart, error) {
	key := r.key(strings.TrimSpace(customerID))
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return domain.Cart{}, predis.WrapError("get", err)
	}
	return decode(key, data)
}

// ListCarts scans every key under the prefix and loads the documents in batches.
func (r *CartRepository) ListCarts(ctx context.Context) ([]domain.Cart, error) {
	pattern := escapeGlob(r.prefix) + "*"
	carts := make([]domain.Cart, 0)

	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, predis.WrapError("scan", err)
		}
		if len(keys) > 0 {
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, predis.WrapError("mget", err)
			}
			for i, value := range values {
				raw, ok := value.(string)
				if !ok {
					// deleted between SCAN and MGET
					continue
				}
				cart, err := decode(keys[i], []byte(raw))
				if err != nil {
					return nil, err
				}
				carts = append(carts, cart)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(carts, func(i, j int) bool { return carts[i].CustomerID < carts[j].CustomerID })
	return dedupe(carts), nil
}

// DeleteCart removes the cart document, reporting not found when no key was deleted.
func (r *CartRepository) DeleteCart(ctx context.Context, customerID string) error {
	key := r.key(strings.TrimSpace(customerID))
	removed, err := r.client.Del(ctx, key).Result()
	if err != nil {
		return predis.WrapError("del", err)
	}
	if removed == 0 {
		return predis.NotFound("del", key)
	}
	return nil
}

// Ping verifies the Redis server is reachable.
func (r *CartRepository) Ping(ctx context.Context) error {
	return predis.Ping(ctx, r.client)
}

func (r *CartRepository) key(customerID string) string {
	return r.prefix + customerID
}

func decode(key string, data []byte) (domain.Cart, error) {
	var record repositories.CartRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.Cart{}, fmt.Errorf("cart repository: decode %s: %w", key, err)
	}
	cart, err := repositories.DecodeCart(record)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("cart repository: decode %s: %w", key, err)
	}
	return cart, nil
}

// SCAN may return a key more than once across iterations.
func dedupe(sorted []domain.Cart) []domain.Cart {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, cart := range sorted[1:] {
		if cart.CustomerID == out[len(out)-1].CustomerID {
			continue
		}
		out = append(out, cart)
	}
	return out
}

func escapeGlob(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
