package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Topics для Kafka
const (
	TopicOrderEvents      = "shop.order.events"
	TopicDeadLetterQueue  = "shop.order.events.dlq" // Dead Letter Queue для failed messages
	TopicInventoryRestock = "shop.inventory.restock"
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
	HeaderEventType     = "x-event-type"
)

// ErrMalformedMessage — сообщение нельзя обработать ни при каком повторе.
var ErrMalformedMessage = errors.New("malformed message")

// OrderEvent задаёт конверт события заказа в topic shop.order.events.
type OrderEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// RestockMessage приходит из shop.inventory.restock и меняет остаток товара.
type RestockMessage struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason,omitempty"`
}

// DLQMessage хранит исходное сообщение и причину отказа.
type DLQMessage struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// ParseRestock разбирает и проверяет RestockMessage.
func ParseRestock(value []byte) (RestockMessage, error) {
	var msg RestockMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		return RestockMessage{}, fmt.Errorf("%w: unmarshal restock: %v", ErrMalformedMessage, err)
	}
	msg.ProductID = strings.TrimSpace(msg.ProductID)
	if msg.ProductID == "" {
		return RestockMessage{}, fmt.Errorf("%w: product_id is required", ErrMalformedMessage)
	}
	if msg.Delta == 0 {
		return RestockMessage{}, fmt.Errorf("%w: delta must not be zero", ErrMalformedMessage)
	}
	return msg, nil
}
