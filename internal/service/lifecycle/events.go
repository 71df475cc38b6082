package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

// OrderEventPayload кладётся в outbox как тело события заказа.
type OrderEventPayload struct {
	OrderID       string              `json:"order_id"`
	UserID        string              `json:"user_id"`
	Status        domain.OrderStatus  `json:"status"`
	Total         string              `json:"total"`
	TotalProducts int                 `json:"total_products"`
	PaymentMethod domain.PaymentKind  `json:"payment_method,omitempty"`
	Items         []OrderEventItem    `json:"items,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Failed        []StockFailureEvent `json:"failed,omitempty"`
	Ts            time.Time           `json:"ts"`
}

type OrderEventItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// StockFailureEvent описывает неудачное изменение остатка.
type StockFailureEvent struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Error     string `json:"error"`
}

func newPayload(order domain.Order, reason string, ts time.Time) OrderEventPayload {
	payload := OrderEventPayload{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Status:        order.Status,
		Total:         order.Total.String(),
		TotalProducts: order.TotalProducts,
		Reason:        reason,
		Ts:            ts,
	}
	if order.PaymentMethod != nil {
		payload.PaymentMethod = order.PaymentMethod.Kind()
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, OrderEventItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.String(),
		})
	}
	return payload
}

// emit пишет событие в outbox и timeline. Ошибки только логируются: операция уже применена.
func (e *Engine) emit(ctx context.Context, order domain.Order, eventType string, timelineType domain.TimelineEventType, reason string) {
	now := e.now()
	e.enqueue(ctx, order.ID, eventType, newPayload(order, reason, now))
	e.appendTimeline(ctx, order.ID, timelineType, reason)
}

func (e *Engine) emitFailure(ctx context.Context, order domain.Order, perr *domain.PartialFulfillmentError) {
	payload := newPayload(order, string(perr.Op), e.now())
	for _, failure := range perr.Failures {
		payload.Failed = append(payload.Failed, StockFailureEvent{
			ProductID: failure.ProductID,
			Delta:     failure.Delta,
			Error:     failure.Error(),
		})
	}
	e.enqueue(ctx, order.ID, domain.EventStockAdjustmentFailed, payload)
	e.appendTimeline(ctx, order.ID, domain.TimelineStockAdjustmentFailed, perr.Error())
}

func (e *Engine) enqueue(ctx context.Context, orderID, eventType string, payload OrderEventPayload) {
	if e.outbox == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("marshal event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   orderID,
		EventType:     eventType,
		Payload:       data,
	}
	if _, err := e.outbox.Enqueue(ctx, msg); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Error("enqueue event failed")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}
}

func (e *Engine) appendTimeline(ctx context.Context, orderID string, eventType domain.TimelineEventType, reason string) {
	if e.timeline == nil {
		return
	}

	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: e.now(),
	}
	if err := e.timeline.Append(ctx, event); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id": orderID,
			"event":    eventType,
		}).Warn("append timeline event failed")
		return
	}
	if e.metrics != nil {
		e.metrics.RecordTimelineEvent()
	}
}
