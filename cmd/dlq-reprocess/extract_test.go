package main

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop-orders/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/outbox"
)

func replayConfig() config {
	return config{
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicOrderEvents,
		kind:        kindAll,
		limit:       10,
		idleTimeout: 20 * time.Millisecond,
	}
}

func consumerLetter(t *testing.T, key, value, errMsg string) []byte {
	t.Helper()
	raw, err := json.Marshal(kafka.DLQMessage{
		OriginalTopic: kafka.TopicInventoryRestock,
		OriginalKey:   key,
		OriginalValue: value,
		ErrorMessage:  errMsg,
		RetryCount:    3,
	})
	require.NoError(t, err)
	return raw
}

func outboxLetter(t *testing.T, orderID string) []byte {
	t.Helper()
	letter, err := json.Marshal(outbox.DeadLetter{
		OutboxID:      "outbox-1",
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     "order.status_changed",
		Payload:       json.RawMessage(`{"status":"confirmed"}`),
		PublishError:  "timeout",
		Attempts:      3,
	})
	require.NoError(t, err)
	raw, err := json.Marshal(kafka.OrderEvent{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   orderID,
		EventType:     "order.status_changed",
		Payload:       letter,
	})
	require.NoError(t, err)
	return raw
}

func TestExtractReplayMessage_ConsumerLetter(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: consumerLetter(t, "P1", `{"product_id":"P1","delta":5}`, "temporary storage error")}

	got, ok, err := extractReplayMessage(msg, replayConfig())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kindConsumer, got.kind)
	assert.Equal(t, kafka.TopicInventoryRestock, got.topic)
	assert.Equal(t, "P1", got.key)
	assert.JSONEq(t, `{"product_id":"P1","delta":5}`, string(got.value))
}

func TestExtractReplayMessage_ConsumerLetterWithoutTopic(t *testing.T) {
	raw, err := json.Marshal(kafka.DLQMessage{OriginalKey: "P1", OriginalValue: `{"product_id":"P1","delta":1}`})
	require.NoError(t, err)

	got, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: raw}, replayConfig())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kafka.TopicInventoryRestock, got.topic)
}

func TestExtractReplayMessage_MalformedConsumerLetter(t *testing.T) {
	value := consumerLetter(t, "P1", `{"delta":0}`, kafka.ErrMalformedMessage.Error()+": product_id is required")
	msg := &sarama.ConsumerMessage{Value: value}

	_, ok, err := extractReplayMessage(msg, replayConfig())
	assert.False(t, ok)
	assert.True(t, errors.Is(err, errSkipMalformed))

	cfg := replayConfig()
	cfg.includeMalformed = true
	_, ok, err = extractReplayMessage(msg, cfg)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExtractReplayMessage_OutboxLetter(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: outboxLetter(t, "order-1")}

	got, ok, err := extractReplayMessage(msg, replayConfig())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, kindOutbox, got.kind)
	assert.Equal(t, kafka.TopicOrderEvents, got.topic)
	assert.Equal(t, "order-1", got.key)

	var replay kafka.OrderEvent
	require.NoError(t, json.Unmarshal(got.value, &replay))
	assert.Equal(t, "outbox-1", replay.ID)
	assert.Equal(t, "order.status_changed", replay.EventType)
	assert.JSONEq(t, `{"status":"confirmed"}`, string(replay.Payload))
	assert.False(t, replay.PublishedAt.IsZero())
}

func TestExtractReplayMessage_KindFilter(t *testing.T) {
	cfg := replayConfig()
	cfg.kind = kindOutbox
	_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: consumerLetter(t, "P1", `{}`, "")}, cfg)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, errSkipKind))

	cfg.kind = kindConsumer
	_, ok, err = extractReplayMessage(&sarama.ConsumerMessage{Value: outboxLetter(t, "order-1")}, cfg)
	assert.False(t, ok)
	assert.True(t, errors.Is(err, errSkipKind))
}

func TestExtractReplayMessage_OutboxLetterWithoutPayload(t *testing.T) {
	raw, err := json.Marshal(kafka.OrderEvent{
		ID:          "outbox-1",
		AggregateID: "order-1",
		Payload:     json.RawMessage(`{"outbox_id":"outbox-1","aggregate_id":"order-1"}`),
	})
	require.NoError(t, err)

	_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: raw}, replayConfig())
	require.Error(t, err)
	assert.False(t, ok)
}

func TestExtractReplayMessage_UnknownPayload(t *testing.T) {
	for _, value := range []string{`{"foo":"bar"}`, `not json`} {
		_, ok, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(value)}, replayConfig())
		require.NoError(t, err, value)
		assert.False(t, ok, value)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "x", firstNonEmpty("", "  ", "x", "y"))
	assert.Equal(t, "", firstNonEmpty("", " "))
}
