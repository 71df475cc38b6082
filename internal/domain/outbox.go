package domain

import "time"

// AggregateTypeOrder используется как тип агрегата для событий заказа.
const AggregateTypeOrder = "order"

// Типы событий заказа, публикуемых через outbox.
const (
	EventOrderCreated          = "OrderCreated"
	EventOrderStatusChanged    = "OrderStatusChanged"
	EventOrderDeleted          = "OrderDeleted"
	EventStockAdjustmentFailed = "StockAdjustmentFailed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
