package domain

import "time"

// TimelineEventType — тип события в истории заказа.
type TimelineEventType string

const (
	TimelineOrderCreated          TimelineEventType = "OrderCreated"
	TimelineOrderStatusChanged    TimelineEventType = "OrderStatusChanged"
	TimelineStockRestored         TimelineEventType = "StockRestored"
	TimelineStockAdjustmentFailed TimelineEventType = "StockAdjustmentFailed"
	TimelineOrderDeleted          TimelineEventType = "OrderDeleted"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     TimelineEventType
	Reason   string
	Occurred time.Time
}
