package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories"
)

var _ repositories.CartRepository = (*CartRepository)(nil)

func TestCartRepositoryRoundTrip(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()

	cart := domain.Cart{
		CustomerID: "cust-1",
		Items:      []domain.CartItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
		Total:      decimal.NewFromInt(10),
	}
	if _, err := repo.SaveCart(ctx, cart); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}

	cart.Items[0].Quantity = 99

	got, err := repo.GetCart(ctx, "cust-1")
	if err != nil {
		t.Fatalf("GetCart: %v", err)
	}
	if got.Items[0].Quantity != 1 {
		t.Fatalf("stored cart should not alias caller items, got quantity %d", got.Items[0].Quantity)
	}

	got.Items[0].Quantity = 50
	again, _ := repo.GetCart(ctx, "cust-1")
	if again.Items[0].Quantity != 1 {
		t.Fatalf("returned cart should not alias stored items")
	}
}

func TestCartRepositoryNotFound(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()

	_, err := repo.GetCart(ctx, "missing")
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := repo.DeleteCart(ctx, "missing"); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestCartRepositoryListSortedAndDelete(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()
	for _, id := range []string{"b", "c", "a"} {
		if _, err := repo.SaveCart(ctx, domain.Cart{CustomerID: id}); err != nil {
			t.Fatalf("SaveCart: %v", err)
		}
	}
	if err := repo.DeleteCart(ctx, "c"); err != nil {
		t.Fatalf("DeleteCart: %v", err)
	}

	carts, err := repo.ListCarts(ctx)
	if err != nil {
		t.Fatalf("ListCarts: %v", err)
	}
	if len(carts) != 2 || carts[0].CustomerID != "a" || carts[1].CustomerID != "b" {
		t.Fatalf("unexpected carts %+v", carts)
	}
}

func TestCartRepositoryHonoursCancelledContext(t *testing.T) {
	repo := NewCartRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := repo.SaveCart(ctx, domain.Cart{CustomerID: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := repo.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ping to report cancellation, got %v", err)
	}
}

func TestCartRepositoryConcurrentWrites(t *testing.T) {
	repo := NewCartRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = repo.SaveCart(ctx, domain.Cart{CustomerID: "shared", Total: decimal.NewFromInt(int64(n))})
		}(i)
	}
	wg.Wait()

	carts, err := repo.ListCarts(ctx)
	if err != nil {
		t.Fatalf("ListCarts: %v", err)
	}
	if len(carts) != 1 {
		t.Fatalf("expected a single cart per customer, got %d", len(carts))
	}
}
