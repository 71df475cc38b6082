package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
	"github.com/vladislavdragonenkov/shop-orders/internal/storage/memory"
)

func newOrder(userID string, createdAt time.Time) domain.Order {
	return domain.Order{
		UserID: userID,
		Items: []domain.OrderItem{
			{ProductID: "p-1", Quantity: 2, Price: decimal.NewFromInt(10)},
		},
		SubTotal:      decimal.NewFromInt(20),
		IVA:           decimal.Zero,
		Total:         decimal.NewFromInt(20),
		TotalProducts: 2,
		PaymentMethod: domain.PickupPayment{Name: "Alice"},
		Status:        domain.OrderStatusReceived,
		CreatedAt:     createdAt,
	}
}

func TestOrderStore_CreateFind(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()

	created, err := store.Create(ctx, newOrder("user-1", time.Now().UTC()))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}

	stored, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if stored.UserID != "user-1" || len(stored.Items) != 1 {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	stored.Items[0].Quantity = 99
	again, _ := store.FindByID(ctx, created.ID)
	if again.Items[0].Quantity != 2 {
		t.Fatal("store must return copies of items")
	}

	if _, err := store.FindByID(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStore_FindAllNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	older, _ := store.Create(ctx, newOrder("user-1", base))
	newer, _ := store.Create(ctx, newOrder("user-1", base.Add(time.Minute)))
	other, _ := store.Create(ctx, newOrder("user-2", base.Add(2*time.Minute)))
	sameTime, _ := store.Create(ctx, newOrder("user-1", base.Add(time.Minute)))

	all, err := store.FindAll(ctx, domain.OrderFilter{})
	if err != nil {
		t.Fatalf("find all failed: %v", err)
	}
	want := []string{other.ID, sameTime.ID, newer.ID, older.ID}
	for i, id := range want {
		if all[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, all[i].ID, id)
		}
	}

	mine, _ := store.FindAll(ctx, domain.OrderFilter{UserID: "user-1", Limit: 2})
	if len(mine) != 2 || mine[0].ID != sameTime.ID {
		t.Fatalf("unexpected user listing: %+v", mine)
	}

	none, err := store.FindAll(ctx, domain.OrderFilter{UserID: "nobody"})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list without error, got %d, %v", len(none), err)
	}
}

func TestOrderStore_UpdateStatusReturnsPrevious(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	created, _ := store.Create(ctx, newOrder("user-1", time.Now().UTC()))

	updated, previous, err := store.UpdateStatus(ctx, created.ID, domain.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if previous != domain.OrderStatusReceived || updated.Status != domain.OrderStatusCancelled {
		t.Fatalf("unexpected transition %s -> %s", previous, updated.Status)
	}

	if _, _, err := store.UpdateStatus(ctx, "missing", domain.OrderStatusCancelled); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderStore_UpdateStatusCheckRejectsUnderLock(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	created, _ := store.Create(ctx, newOrder("user-1", time.Now().UTC()))
	if _, _, err := store.UpdateStatus(ctx, created.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	var seen domain.OrderStatus
	_, previous, err := store.UpdateStatus(ctx, created.ID, domain.OrderStatusDelivered, func(current domain.OrderStatus) error {
		seen = current
		return domain.ErrInvalidState
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if seen != domain.OrderStatusCancelled || previous != domain.OrderStatusCancelled {
		t.Fatalf("check must see stored status, got seen=%s previous=%s", seen, previous)
	}

	stored, err := store.FindByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if stored.Status != domain.OrderStatusCancelled {
		t.Fatalf("rejected update must not change status, got %s", stored.Status)
	}
}

func TestOrderStore_ConcurrentCancelSeesPreviousOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	created, _ := store.Create(ctx, newOrder("user-1", time.Now().UTC()))

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		transitions int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, previous, err := store.UpdateStatus(ctx, created.ID, domain.OrderStatusCancelled)
			if err == nil && previous != domain.OrderStatusCancelled {
				mu.Lock()
				transitions++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if transitions != 1 {
		t.Fatalf("expected exactly one transition into cancelled, got %d", transitions)
	}
}

func TestOrderStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := memory.NewOrderStore()
	created, _ := store.Create(ctx, newOrder("user-1", time.Now().UTC()))

	if err := store.DeleteByID(ctx, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := store.DeleteByID(ctx, created.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}
}
