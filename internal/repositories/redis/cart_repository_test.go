package redis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories"
)

func newTestRepository(t *testing.T) (*CartRepository, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo, err := NewCartRepository(client, "")
	if err != nil {
		t.Fatalf("NewCartRepository: %v", err)
	}
	return repo, server
}

func sampleCart(customerID string) domain.Cart {
	return domain.Cart{
		CustomerID: customerID,
		Items: []domain.CartItem{{
			ProductID:   "sku-1",
			Title:       "Running shoes",
			Quantity:    3,
			UnitPrice:   decimal.RequireFromString("50"),
			Currency:    "INR",
			Category:    domain.ProductCategoryShoes,
			TaxCategory: domain.TaxCategoryStandard,
		}},
		Subtotal:       decimal.RequireFromString("150"),
		TaxAmount:      decimal.RequireFromString("27"),
		Total:          decimal.RequireFromString("177"),
		Currency:       "INR",
		ShippingMethod: "standard",
		ShippingCost:   decimal.Zero,
		UpdatedAt:      time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestCartRepositorySaveAndGet(t *testing.T) {
	repo, server := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.SaveCart(ctx, sampleCart("cust-1")); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	if !server.Exists("cart:cust-1") {
		t.Fatalf("expected key cart:cust-1 to exist, keys=%v", server.Keys())
	}
	if ttl := server.TTL("cart:cust-1"); ttl != 0 {
		t.Fatalf("expected no expiry, got %s", ttl)
	}

	got, err := repo.GetCart(ctx, "cust-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if !got.Total.Equal(decimal.RequireFromString("177")) || !got.TaxAmount.Equal(decimal.RequireFromString("27")) {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if len(got.Items) != 1 || got.Items[0].Quantity != 3 || got.Items[0].TaxCategory != domain.TaxCategoryStandard {
		t.Fatalf("unexpected items: %+v", got.Items)
	}
	if !got.UpdatedAt.Equal(time.Date(2025, 8, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected updatedAt %s", got.UpdatedAt)
	}
}

func TestCartRepositoryStoresMoneyAsStrings(t *testing.T) {
	repo, server := newTestRepository(t)

	if _, err := repo.SaveCart(context.Background(), sampleCart("cust-1")); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	raw, err := server.Get("cart:cust-1")
	if err != nil {
		t.Fatalf("miniredis get: %v", err)
	}
	for _, fragment := range []string{`"total":"177.00"`, `"taxAmount":"27.00"`, `"customerId":"cust-1"`} {
		if !strings.Contains(raw, fragment) {
			t.Fatalf("expected %s in stored document %s", fragment, raw)
		}
	}
}

func TestCartRepositorySaveReplaces(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	first := sampleCart("cust-1")
	if _, err := repo.SaveCart(ctx, first); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	second := sampleCart("cust-1")
	second.ShippingCost = decimal.RequireFromString("99")
	second.Total = decimal.RequireFromString("276")
	if _, err := repo.SaveCart(ctx, second); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}

	got, err := repo.GetCart(ctx, "cust-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if !got.Total.Equal(decimal.RequireFromString("276")) || !got.ShippingCost.Equal(decimal.RequireFromString("99")) {
		t.Fatalf("expected replaced cart, got %+v", got)
	}
}

func TestCartRepositoryGetMissing(t *testing.T) {
	repo, _ := newTestRepository(t)

	_, err := repo.GetCart(context.Background(), "ghost")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCartRepositoryListCarts(t *testing.T) {
	repo, server := newTestRepository(t)
	ctx := context.Background()

	for _, id := range []string{"cust-3", "cust-1", "cust-2"} {
		if _, err := repo.SaveCart(ctx, sampleCart(id)); err != nil {
			t.Fatalf("SaveCart(%s): %v", id, err)
		}
	}
	if err := server.Set("session:other", "ignored"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	carts, err := repo.ListCarts(ctx)
	if err != nil {
		t.Fatalf("ListCarts: %v", err)
	}
	if len(carts) != 3 {
		t.Fatalf("expected 3 carts, got %d", len(carts))
	}
	for i, want := range []string{"cust-1", "cust-2", "cust-3"} {
		if carts[i].CustomerID != want {
			t.Fatalf("expected %s at %d, got %s", want, i, carts[i].CustomerID)
		}
	}
}

func TestCartRepositoryListEmpty(t *testing.T) {
	repo, _ := newTestRepository(t)

	carts, err := repo.ListCarts(context.Background())
	if err != nil {
		t.Fatalf("ListCarts: %v", err)
	}
	if carts == nil || len(carts) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", carts)
	}
}

func TestCartRepositoryDelete(t *testing.T) {
	repo, server := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.SaveCart(ctx, sampleCart("cust-1")); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	if err := repo.DeleteCart(ctx, "cust-1"); err != nil {
		t.Fatalf("DeleteCart: %v", err)
	}
	if server.Exists("cart:cust-1") {
		t.Fatalf("expected key removed")
	}

	err := repo.DeleteCart(ctx, "cust-1")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestCartRepositoryUnavailable(t *testing.T) {
	repo, server := newTestRepository(t)
	server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := repo.GetCart(ctx, "cust-1")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsUnavailable() {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if err := repo.Ping(ctx); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestCartRepositoryCustomPrefix(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo, err := NewCartRepository(client, "kc:cart:")
	if err != nil {
		t.Fatalf("NewCartRepository: %v", err)
	}
	if _, err := repo.SaveCart(context.Background(), sampleCart("cust-9")); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}
	if !server.Exists("kc:cart:cust-9") {
		t.Fatalf("expected prefixed key, got %v", server.Keys())
	}
}
