// Package lifecycle — единственное место, где меняются заказы и остатки товаров.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
	"github.com/vladislavdragonenkov/shop-orders/internal/metrics"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/inventory"
)

// Service описывает операции над заказами, доступные транспортам.
type Service interface {
	CreateOrder(ctx context.Context, userID string, draft domain.OrderDraft) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, status string) (domain.Order, error)
	GetAllOrders(ctx context.Context) ([]domain.Order, error)
	GetUserOrders(ctx context.Context, userID string) ([]domain.Order, error)
	GetOrderByID(ctx context.Context, orderID string) (domain.Order, error)
	DeleteOrder(ctx context.Context, orderID string) (domain.Order, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
}

// Engine реализует Service поверх ProductStore и OrderStore.
// Проверка остатков, создание заказа и списание выполняются отдельными шагами без общей транзакции.
type Engine struct {
	products domain.ProductStore
	orders   domain.OrderStore
	adjuster *inventory.Adjuster
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
	strict   bool
	now      func() time.Time
}

// Option настраивает Engine.
type Option func(*Engine)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics подключает метрики; без них движок метрики не пишет.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTimeline подключает историю заказов.
func WithTimeline(repo domain.TimelineRepository) Option {
	return func(e *Engine) { e.timeline = repo }
}

// WithOutbox подключает transactional outbox для событий заказа.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(e *Engine) { e.outbox = repo }
}

// WithAdjuster заменяет стандартный Adjuster.
func WithAdjuster(adjuster *inventory.Adjuster) Option {
	return func(e *Engine) {
		if adjuster != nil {
			e.adjuster = adjuster
		}
	}
}

// WithStrictTransitions включает граф переходов domain.OrderStatus.CanTransitionTo.
func WithStrictTransitions() Option {
	return func(e *Engine) { e.strict = true }
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine создаёт движок жизненного цикла заказов.
func NewEngine(products domain.ProductStore, orders domain.OrderStore, opts ...Option) *Engine {
	e := &Engine{
		products: products,
		orders:   orders,
		logger:   log.WithField("component", "order-lifecycle"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.adjuster == nil {
		e.adjuster = inventory.NewAdjuster(products, inventory.WithLogger(e.logger))
	}
	return e
}

// CreateOrder проверяет остатки по всем позициям, сохраняет заказ в статусе received и списывает товары.
// Если часть списаний не прошла, заказ возвращается вместе с *domain.PartialFulfillmentError.
func (e *Engine) CreateOrder(ctx context.Context, userID string, draft domain.OrderDraft) (domain.Order, error) {
	defer e.observe("create", e.now())

	if userID == "" {
		return domain.Order{}, &domain.ValidationError{Messages: []string{domain.ErrUserRequired.Error()}}
	}

	if err := e.checkAvailability(ctx, draft.Items); err != nil {
		e.recordRejected(err)
		return domain.Order{}, err
	}

	order := domain.NewOrder(userID, draft, e.now())
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return domain.Order{}, &domain.ValidationError{Messages: msgs}
	}

	created, err := e.orders.Create(ctx, order)
	if err != nil {
		e.recordRejected(err)
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordOrderCreated()
	}
	e.emit(ctx, created, domain.EventOrderCreated, domain.TimelineOrderCreated, "")

	if failures := e.adjuster.Apply(ctx, created.StockDeltas(-1)); len(failures) > 0 {
		return created, e.partial(ctx, created, domain.StockOpReserve, failures)
	}

	e.logger.WithFields(log.Fields{
		"order_id": created.ID,
		"user_id":  userID,
		"items":    len(created.Items),
	}).Info("order created")

	return created, nil
}

// checkAvailability проверяет все позиции до любых изменений. Количества одного товара суммируются.
func (e *Engine) checkAvailability(ctx context.Context, items []domain.OrderItem) error {
	required := make(map[string]int, len(items))
	sequence := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := required[item.ProductID]; !seen {
			sequence = append(sequence, item.ProductID)
		}
		required[item.ProductID] += item.Quantity
	}

	for _, id := range sequence {
		product, err := e.products.FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("check stock: %w", err)
		}
		if need := required[id]; product.Quantity < need {
			return &domain.InsufficientStockError{
				ProductID:   id,
				ProductName: product.Name,
				Requested:   need,
				Available:   product.Quantity,
			}
		}
	}
	return nil
}

// UpdateOrderStatus устанавливает статус. При переходе в cancelled из другого статуса
// остатки возвращаются ровно один раз: решение принимается по предыдущему статусу из хранилища.
func (e *Engine) UpdateOrderStatus(ctx context.Context, orderID, rawStatus string) (domain.Order, error) {
	defer e.observe("update_status", e.now())

	status, err := domain.ParseOrderStatus(rawStatus)
	if err != nil {
		return domain.Order{}, err
	}

	var checks []domain.StatusCheck
	if e.strict {
		checks = append(checks, func(current domain.OrderStatus) error {
			if !current.CanTransitionTo(status) {
				return fmt.Errorf("%w: cannot move order from %s to %s", domain.ErrInvalidState, current, status)
			}
			return nil
		})
	}

	updated, previous, err := e.orders.UpdateStatus(ctx, orderID, status, checks...)
	if err != nil {
		return domain.Order{}, fmt.Errorf("update status: %w", err)
	}
	if e.metrics != nil {
		e.metrics.RecordStatusChange(string(status))
	}
	e.emit(ctx, updated, domain.EventOrderStatusChanged, domain.TimelineOrderStatusChanged,
		fmt.Sprintf("%s -> %s", previous, status))

	if status == domain.OrderStatusCancelled && previous != domain.OrderStatusCancelled {
		if failures := e.adjuster.Apply(ctx, updated.StockDeltas(1)); len(failures) > 0 {
			return updated, e.partial(ctx, updated, domain.StockOpRestock, failures)
		}
		if e.metrics != nil {
			e.metrics.RecordStockRestored()
		}
		e.appendTimeline(ctx, updated.ID, domain.TimelineStockRestored, "")
	}

	e.logger.WithFields(log.Fields{
		"order_id": orderID,
		"from":     previous,
		"to":       status,
	}).Info("order status updated")

	return updated, nil
}

// GetAllOrders возвращает все заказы, новые первыми, с данными товаров.
func (e *Engine) GetAllOrders(ctx context.Context) ([]domain.Order, error) {
	return e.list(ctx, domain.OrderFilter{})
}

// GetUserOrders возвращает заказы пользователя. Отсутствие заказов — пустой список, не ошибка.
func (e *Engine) GetUserOrders(ctx context.Context, userID string) ([]domain.Order, error) {
	if userID == "" {
		return []domain.Order{}, nil
	}
	return e.list(ctx, domain.OrderFilter{UserID: userID})
}

func (e *Engine) list(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	defer e.observe("list", e.now())

	orders, err := e.orders.FindAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	if err := e.expand(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrderByID возвращает заказ с данными товаров.
func (e *Engine) GetOrderByID(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order: %w", err)
	}
	orders := []domain.Order{order}
	if err := e.expand(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// DeleteOrder удаляет только отменённый заказ и возвращает его состояние до удаления.
func (e *Engine) DeleteOrder(ctx context.Context, orderID string) (domain.Order, error) {
	defer e.observe("delete", e.now())

	order, err := e.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order: %w", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		return domain.Order{}, domain.ErrOrderNotCancelled
	}
	if err := e.orders.DeleteByID(ctx, orderID); err != nil {
		return domain.Order{}, fmt.Errorf("delete order: %w", err)
	}

	if e.metrics != nil {
		e.metrics.RecordOrderDeleted()
	}
	e.emit(ctx, order, domain.EventOrderDeleted, domain.TimelineOrderDeleted, "")
	e.logger.WithField("order_id", orderID).Info("order deleted")

	return order, nil
}

// Timeline возвращает историю заказа. История удалённого заказа остаётся доступной.
func (e *Engine) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var events []domain.TimelineEvent
	if e.timeline != nil {
		var err error
		events, err = e.timeline.List(ctx, orderID)
		if err != nil {
			return nil, fmt.Errorf("load timeline: %w", err)
		}
	}
	if len(events) == 0 {
		if _, err := e.orders.FindByID(ctx, orderID); err != nil {
			return nil, fmt.Errorf("load order: %w", err)
		}
		return []domain.TimelineEvent{}, nil
	}
	return events, nil
}

// expand подставляет в позиции текущие данные товаров одним запросом к каталогу.
// Позиции удалённых из каталога товаров остаются без Product.
func (e *Engine) expand(ctx context.Context, orders []domain.Order) error {
	seen := make(map[string]struct{})
	var ids []string
	for _, order := range orders {
		for _, item := range order.Items {
			if _, ok := seen[item.ProductID]; ok {
				continue
			}
			seen[item.ProductID] = struct{}{}
			ids = append(ids, item.ProductID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	products, err := e.products.FindByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("load products: %w", err)
	}
	for i := range orders {
		for j := range orders[i].Items {
			if product, ok := products[orders[i].Items[j].ProductID]; ok {
				orders[i].Items[j].Product = product.Snapshot()
			}
		}
	}
	return nil
}

func (e *Engine) partial(ctx context.Context, order domain.Order, op domain.StockOp, failures []domain.StockFailure) error {
	perr := &domain.PartialFulfillmentError{OrderID: order.ID, Op: op, Failures: failures}

	e.logger.WithError(perr).WithFields(log.Fields{
		"order_id": order.ID,
		"op":       op,
		"failed":   len(failures),
	}).Error("stock adjustment incomplete")

	if e.metrics != nil {
		e.metrics.RecordPartialFulfillment(string(op))
	}
	e.emitFailure(ctx, order, perr)
	return perr
}

func (e *Engine) recordRejected(err error) {
	if e.metrics == nil {
		return
	}
	switch {
	case errors.Is(err, domain.ErrProductNotFound):
		e.metrics.RecordOrderRejected("product_not_found")
	case errors.Is(err, domain.ErrInsufficientStock):
		e.metrics.RecordOrderRejected("insufficient_stock")
	default:
		e.metrics.RecordOrderRejected("storage")
	}
}

func (e *Engine) observe(operation string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordOperationDuration(operation, e.now().Sub(start))
	}
}

var _ Service = (*Engine)(nil)
