package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

type restockCall struct {
	productID string
	delta     int
}

type fakeRestocker struct {
	calls []restockCall
	err   error
}

func (f *fakeRestocker) Restock(_ context.Context, productID string, delta int) error {
	f.calls = append(f.calls, restockCall{productID: productID, delta: delta})
	return f.err
}

func TestRestockHandler(t *testing.T) {
	restocker := &fakeRestocker{}
	handler := NewRestockHandler(restocker)

	err := handler(context.Background(), &sarama.ConsumerMessage{Value: []byte(`{"product_id":"P1","delta":4}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(restocker.calls) != 1 || restocker.calls[0] != (restockCall{productID: "P1", delta: 4}) {
		t.Fatalf("unexpected calls %+v", restocker.calls)
	}
}

func TestRestockHandlerErrors(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		err       error
		malformed bool
	}{
		{name: "bad json", value: `{`, malformed: true},
		{name: "unknown product", value: `{"product_id":"P9","delta":1}`, err: domain.NewProductNotFound("P9"), malformed: true},
		{name: "negative stock", value: `{"product_id":"P1","delta":-100}`, err: &domain.InsufficientStockError{ProductID: "P1", Requested: 100}, malformed: true},
		{name: "storage failure", value: `{"product_id":"P1","delta":1}`, err: domain.ErrStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRestockHandler(&fakeRestocker{err: tt.err})
			err := handler(context.Background(), &sarama.ConsumerMessage{Value: []byte(tt.value)})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrMalformedMessage); got != tt.malformed {
				t.Fatalf("malformed = %v, want %v (err: %v)", got, tt.malformed, err)
			}
		})
	}
}
