package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
	"github.com/vladislavdragonenkov/shop-orders/internal/metrics"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shop-orders/internal/storage/memory"
)

type fixture struct {
	products *memory.ProductStore
	orders   domain.OrderStore
	timeline domain.TimelineRepository
	outbox   *memory.OutboxRepository
	engine   *lifecycle.Engine
}

func newFixture(t *testing.T, products domain.ProductStore, opts ...lifecycle.Option) fixture {
	t.Helper()

	catalog := memory.NewProductStore(
		domain.Product{ID: "P1", Name: "Keyboard", Price: decimal.NewFromInt(10), Image: "kb.png", Quantity: 10},
		domain.Product{ID: "P2", Name: "Mouse", Price: decimal.NewFromInt(5), Image: "mouse.png", Quantity: 3},
	)
	if products == nil {
		products = catalog
	}

	f := fixture{
		products: catalog,
		orders:   memory.NewOrderStore(),
		timeline: memory.NewTimelineRepository(),
		outbox:   memory.NewOutboxRepository(),
	}
	base := []lifecycle.Option{
		lifecycle.WithTimeline(f.timeline),
		lifecycle.WithOutbox(f.outbox),
		lifecycle.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
		lifecycle.WithLogger(log.New().WithField("test", t.Name())),
	}
	f.engine = lifecycle.NewEngine(products, f.orders, append(base, opts...)...)
	return f
}

func draft(items ...domain.OrderItem) domain.OrderDraft {
	sub := decimal.Zero
	for _, item := range items {
		sub = sub.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return domain.OrderDraft{
		Items:         items,
		SubTotal:      sub,
		IVA:           decimal.Zero,
		Total:         sub,
		TotalProducts: domain.CountProducts(items),
		PaymentMethod: domain.PickupPayment{Name: "Alice"},
	}
}

func item(productID string, qty int) domain.OrderItem {
	return domain.OrderItem{ProductID: productID, Quantity: qty, Price: decimal.NewFromInt(10)}
}

func stockOf(t *testing.T, products domain.ProductStore, id string) int {
	t.Helper()
	product, err := products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return product.Quantity
}

func TestCreateOrderDecrementsStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	order, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 2), item("P2", 1)))
	require.NoError(t, err)

	require.NotEmpty(t, order.ID)
	require.Equal(t, domain.OrderStatusReceived, order.Status)
	require.Equal(t, "user-1", order.UserID)
	require.Equal(t, 3, order.TotalProducts)
	require.False(t, order.CreatedAt.IsZero())

	require.Equal(t, 8, stockOf(t, f.products, "P1"))
	require.Equal(t, 2, stockOf(t, f.products, "P2"))

	events, err := f.engine.Timeline(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, domain.TimelineOrderCreated, events[0].Type)

	pending := f.outbox.AllPending()
	require.Len(t, pending, 1)
	require.Equal(t, domain.EventOrderCreated, pending[0].EventType)
	require.Contains(t, string(pending[0].Payload), `"order_id":"`+order.ID+`"`)
}

func TestCreateOrderChecksAllItemsBeforeMutation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 2), item("P2", 4)))

	var stockErr *domain.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, "P2", stockErr.ProductID)
	require.Equal(t, "Mouse", stockErr.ProductName)
	require.Equal(t, 4, stockErr.Requested)
	require.Equal(t, 3, stockErr.Available)

	require.Equal(t, 10, stockOf(t, f.products, "P1"))
	require.Equal(t, 3, stockOf(t, f.products, "P2"))

	orders, err := f.engine.GetAllOrders(ctx)
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestCreateOrderUnknownProduct(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.CreateOrder(context.Background(), "user-1", draft(item("P1", 1), item("nope", 1)))
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.Contains(t, err.Error(), "nope")
	require.Equal(t, 10, stockOf(t, f.products, "P1"))
}

func TestCreateOrderSumsRepeatedProducts(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.CreateOrder(context.Background(), "user-1", draft(item("P2", 2), item("P2", 2)))
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.Equal(t, 3, stockOf(t, f.products, "P2"))
}

func TestCreateOrderRequiresUser(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.CreateOrder(context.Background(), "", draft(item("P1", 1)))
	require.ErrorIs(t, err, domain.ErrValidation)
}

// flakyProducts пропускает проверку остатков, но отказывает в изменении для выбранного товара.
type flakyProducts struct {
	domain.ProductStore
	failFor string
}

func (s *flakyProducts) IncrementQuantity(ctx context.Context, id string, delta int) error {
	if id == s.failFor {
		return errors.New("connection reset")
	}
	return s.ProductStore.IncrementQuantity(ctx, id, delta)
}

func TestCreateOrderPartialFulfillment(t *testing.T) {
	ctx := context.Background()
	catalog := memory.NewProductStore(
		domain.Product{ID: "P1", Name: "Keyboard", Quantity: 10},
		domain.Product{ID: "P2", Name: "Mouse", Quantity: 3},
	)
	f := newFixture(t, &flakyProducts{ProductStore: catalog, failFor: "P2"})

	order, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 2), item("P2", 1)))

	var perr *domain.PartialFulfillmentError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, domain.StockOpReserve, perr.Op)
	require.Equal(t, []string{"P2"}, perr.ProductIDs())
	require.Equal(t, order.ID, perr.OrderID)

	// Заказ не откатывается, успешное списание остаётся.
	stored, err := f.engine.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusReceived, stored.Status)
	require.Equal(t, 8, stockOf(t, catalog, "P1"))
	require.Equal(t, 3, stockOf(t, catalog, "P2"))

	var types []string
	for _, msg := range f.outbox.AllPending() {
		types = append(types, msg.EventType)
	}
	require.Equal(t, []string{domain.EventOrderCreated, domain.EventStockAdjustmentFailed}, types)
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		fulfilled int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P2", 1)))
			if err == nil {
				mu.Lock()
				fulfilled++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, fulfilled)
	require.Equal(t, 0, stockOf(t, f.products, "P2"))
}

func TestUpdateOrderStatusValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.engine.UpdateOrderStatus(ctx, "missing", "shipped")
	require.ErrorIs(t, err, domain.ErrInvalidStatus)

	_, err = f.engine.UpdateOrderStatus(ctx, "missing", "confirmed")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCancelRestoresStockOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	order, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 2), item("P2", 1)))
	require.NoError(t, err)

	cancelled, err := f.engine.UpdateOrderStatus(ctx, order.ID, "cancelled")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, 10, stockOf(t, f.products, "P1"))
	require.Equal(t, 3, stockOf(t, f.products, "P2"))

	_, err = f.engine.UpdateOrderStatus(ctx, order.ID, "cancelled")
	require.NoError(t, err)
	require.Equal(t, 10, stockOf(t, f.products, "P1"))

	events, err := f.engine.Timeline(ctx, order.ID)
	require.NoError(t, err)
	restored := 0
	for _, event := range events {
		if event.Type == domain.TimelineStockRestored {
			restored++
		}
	}
	require.Equal(t, 1, restored)
}

func TestConcurrentCancelRestoresOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	order, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 4)))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.engine.UpdateOrderStatus(ctx, order.ID, "cancelled")
		}()
	}
	wg.Wait()

	require.Equal(t, 10, stockOf(t, f.products, "P1"))
}

func TestPermissiveTransitionsRestockOnEveryEntryIntoCancelled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	order, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 2)))
	require.NoError(t, err)

	for _, status := range []string{"cancelled", "received", "cancelled"} {
		_, err := f.engine.UpdateOrderStatus(ctx, order.ID, status)
		require.NoError(t, err)
	}

	// Повторный выход из cancelled не списывает товар, поэтому второй возврат увеличивает остаток.
	require.Equal(t, 12, stockOf(t, f.products, "P1"))
}

func TestStrictTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, lifecycle.WithStrictTransitions())

	order, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 1)))
	require.NoError(t, err)

	_, err = f.engine.UpdateOrderStatus(ctx, order.ID, "confirmed")
	require.NoError(t, err)
	_, err = f.engine.UpdateOrderStatus(ctx, order.ID, "cancelled")
	require.NoError(t, err)

	_, err = f.engine.UpdateOrderStatus(ctx, order.ID, "delivered")
	require.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.engine.UpdateOrderStatus(ctx, order.ID, "received")
	require.ErrorIs(t, err, domain.ErrInvalidState)

	stored, err := f.engine.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, stored.Status)
	require.Equal(t, 10, stockOf(t, f.products, "P1"))
}

func TestStrictTransitions_ConcurrentCancelAndDeliver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, lifecycle.WithStrictTransitions())

	delivered := 0
	for i := 0; i < 5; i++ {
		order, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 1)))
		require.NoError(t, err)

		var (
			wg   sync.WaitGroup
			errs [2]error
		)
		targets := []string{"cancelled", "delivered"}
		for j, target := range targets {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[j] = f.engine.UpdateOrderStatus(ctx, order.ID, target)
			}()
		}
		wg.Wait()

		// cancelled и delivered недостижимы друг из друга: проходит ровно один переход.
		failed := 0
		for j, err := range errs {
			if err != nil {
				require.ErrorIs(t, err, domain.ErrInvalidState)
				failed++
				continue
			}
			if targets[j] == "delivered" {
				delivered++
			}
		}
		require.Equal(t, 1, failed)
	}
	require.Equal(t, 10-delivered, stockOf(t, f.products, "P1"))
}

func TestListingsNewestFirstWithProducts(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, nil, lifecycle.WithClock(func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}))

	first, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 1)))
	require.NoError(t, err)
	second, err := f.engine.CreateOrder(ctx, "user-2", draft(item("P2", 1)))
	require.NoError(t, err)
	third, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 1), item("P2", 1)))
	require.NoError(t, err)

	all, err := f.engine.GetAllOrders(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{third.ID, second.ID, first.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	mine, err := f.engine.GetUserOrders(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, third.ID, mine[0].ID)

	snapshot := mine[0].Items[0].Product
	require.NotNil(t, snapshot)
	require.Equal(t, "Keyboard", snapshot.Name)
	require.Equal(t, "kb.png", snapshot.Image)
	require.Equal(t, 8, snapshot.Quantity)

	none, err := f.engine.GetUserOrders(ctx, "user-without-orders")
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)
}

func TestGetOrderByIDNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.GetOrderByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestDeleteOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	order, err := f.engine.CreateOrder(ctx, "user-1", draft(item("P1", 1)))
	require.NoError(t, err)

	_, err = f.engine.DeleteOrder(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrInvalidState)
	require.ErrorIs(t, err, domain.ErrOrderNotCancelled)

	_, err = f.engine.UpdateOrderStatus(ctx, order.ID, "cancelled")
	require.NoError(t, err)

	deleted, err := f.engine.DeleteOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, order.ID, deleted.ID)
	require.Equal(t, domain.OrderStatusCancelled, deleted.Status)

	_, err = f.engine.GetOrderByID(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = f.engine.DeleteOrder(ctx, order.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	events, err := f.engine.Timeline(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TimelineOrderDeleted, events[len(events)-1].Type)
}

func TestTimelineUnknownOrder(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.Timeline(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
