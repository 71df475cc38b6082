package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/shop-orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/outbox"
)

// Источник сообщения в DLQ.
const (
	kindAll      = "all"
	kindConsumer = "consumer"
	kindOutbox   = "outbox"
)

var (
	errSkipKind      = errors.New("filtered by kind")
	errSkipMalformed = errors.New("message was rejected as malformed")
)

type replayMessage struct {
	kind  string
	topic string
	key   string
	value []byte
}

// extractReplayMessage восстанавливает исходное сообщение из записи DLQ.
// Consumer DLQ хранит исходное значение целиком (kafka.DLQMessage).
// Outbox DLQ хранит конверт OrderEvent, внутри которого outbox.DeadLetter с исходным payload.
// ok=false означает, что запись не похожа ни на один из форматов.
func extractReplayMessage(msg *sarama.ConsumerMessage, cfg config) (replayMessage, bool, error) {
	var consumerLetter kafka.DLQMessage
	if err := json.Unmarshal(msg.Value, &consumerLetter); err == nil && consumerLetter.OriginalValue != "" {
		if !cfg.wants(kindConsumer) {
			return replayMessage{}, false, errSkipKind
		}
		// Повтор некорректного сообщения снова закончится в DLQ.
		if !cfg.includeMalformed && strings.Contains(consumerLetter.ErrorMessage, kafka.ErrMalformedMessage.Error()) {
			return replayMessage{}, false, errSkipMalformed
		}
		topic := strings.TrimSpace(consumerLetter.OriginalTopic)
		if topic == "" {
			topic = kafka.TopicInventoryRestock
		}
		return replayMessage{
			kind:  kindConsumer,
			topic: topic,
			key:   consumerLetter.OriginalKey,
			value: []byte(consumerLetter.OriginalValue),
		}, true, nil
	}

	var envelope kafka.OrderEvent
	if err := json.Unmarshal(msg.Value, &envelope); err != nil || len(envelope.Payload) == 0 {
		return replayMessage{}, false, nil
	}
	if !cfg.wants(kindOutbox) {
		return replayMessage{}, false, errSkipKind
	}

	var letter outbox.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return replayMessage{}, false, fmt.Errorf("decode outbox dead letter: %w", err)
	}
	if len(letter.Payload) == 0 {
		return replayMessage{}, false, errors.New("outbox dead letter does not contain original event payload")
	}

	replay := kafka.OrderEvent{
		ID:            firstNonEmpty(letter.OutboxID, envelope.ID),
		AggregateType: firstNonEmpty(letter.AggregateType, envelope.AggregateType),
		AggregateID:   firstNonEmpty(letter.AggregateID, envelope.AggregateID),
		EventType:     firstNonEmpty(letter.EventType, envelope.EventType),
		Payload:       letter.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	return replayMessage{
		kind:  kindOutbox,
		topic: cfg.targetTopic,
		key:   firstNonEmpty(replay.AggregateID, replay.ID),
		value: encoded,
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
