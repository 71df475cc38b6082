package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func TestNewOrderMetricsWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewOrderMetricsWithRegisterer(reg)

	if metrics.ordersCreated == nil || metrics.ordersRejected == nil || metrics.statusChanges == nil {
		t.Fatal("counters should not be nil")
	}
	if metrics.operationDuration == nil {
		t.Fatal("operationDuration histogram vec should not be nil")
	}

	// Повторная регистрация в том же реестре переиспользует существующие коллекторы.
	again := NewOrderMetricsWithRegisterer(reg)
	metrics.RecordOrderCreated()
	if got := counterValue(t, again.ordersCreated); got != 1 {
		t.Fatalf("expected shared counter value 1, got %v", got)
	}
}

func TestRecordLifecycleCounters(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOrderCreated()
	metrics.RecordOrderCreated()
	metrics.RecordOrderDeleted()
	metrics.RecordStockRestored()
	metrics.RecordTimelineEvent()
	metrics.RecordOutboxEvent()

	cases := []struct {
		name    string
		counter prometheus.Counter
		want    float64
	}{
		{"created", metrics.ordersCreated, 2},
		{"deleted", metrics.ordersDeleted, 1},
		{"restored", metrics.stockRestored, 1},
		{"timeline", metrics.timelineEvents, 1},
		{"outbox", metrics.outboxEvents, 1},
	}
	for _, tc := range cases {
		if got := counterValue(t, tc.counter); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRecordLabelledCounters(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOrderRejected("insufficient_stock")
	metrics.RecordOrderRejected("insufficient_stock")
	metrics.RecordStatusChange("cancelled")
	metrics.RecordPartialFulfillment("reserve")

	if got := counterValue(t, metrics.ordersRejected.WithLabelValues("insufficient_stock")); got != 2 {
		t.Errorf("expected 2 rejections, got %v", got)
	}
	if got := counterValue(t, metrics.statusChanges.WithLabelValues("cancelled")); got != 1 {
		t.Errorf("expected 1 status change, got %v", got)
	}
	if got := counterValue(t, metrics.partialFailures.WithLabelValues("reserve")); got != 1 {
		t.Errorf("expected 1 partial fulfillment, got %v", got)
	}
	if got := counterValue(t, metrics.partialFailures.WithLabelValues("restock")); got != 0 {
		t.Errorf("expected no restock failures, got %v", got)
	}
}

func TestRecordOperationDuration(t *testing.T) {
	metrics := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	metrics.RecordOperationDuration("create", 20*time.Millisecond)
	metrics.RecordOperationDuration("create", 40*time.Millisecond)

	observer, err := metrics.operationDuration.GetMetricWithLabelValues("create")
	if err != nil {
		t.Fatalf("failed to get histogram: %v", err)
	}
	metric := &dto.Metric{}
	if err := observer.(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.GetHistogram().GetSampleCount() != 2 {
		t.Errorf("expected 2 samples, got %d", metric.GetHistogram().GetSampleCount())
	}
	if sum := metric.GetHistogram().GetSampleSum(); sum < 0.059 || sum > 0.061 {
		t.Errorf("expected sum close to 0.06, got %v", sum)
	}
}
