package orderview

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/shop-orders/internal/auth"
	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

func TestFromOrderCardIsMasked(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:     "o-1",
		UserID: "u-1",
		Items: []domain.OrderItem{{
			ProductID: "P1",
			Quantity:  2,
			Price:     decimal.RequireFromString("10.50"),
			Product:   &domain.ProductSnapshot{Name: "Keyboard", Price: decimal.RequireFromString("10.50"), Image: "kb.png", Quantity: 7},
		}},
		SubTotal:      decimal.RequireFromString("21"),
		IVA:           decimal.RequireFromString("3.36"),
		Total:         decimal.RequireFromString("24.36"),
		TotalProducts: 2,
		PaymentMethod: domain.CardPayment{
			Card:     domain.CardDetails{HolderName: "Alice Doe", Last4: "4242", Expiration: "12/29"},
			Shipping: domain.ShippingAddress{Name: "Alice", Address: "Main st. 1", Phone: "555 0100"},
		},
		Status:    domain.OrderStatusReceived,
		CreatedAt: created,
		UpdatedAt: created,
	}

	data, err := json.Marshal(FromOrder(order))
	require.NoError(t, err)
	require.JSONEq(t, `{
		"_id": "o-1",
		"user": "u-1",
		"items": [{
			"productId": "P1",
			"quantity": 2,
			"price": 10.5,
			"product": {"_id": "P1", "name": "Keyboard", "price": 10.5, "image": "kb.png", "quantity": 7}
		}],
		"subTotal": 21,
		"iva": 3.36,
		"total": 24.36,
		"totalProducts": 2,
		"paymentMethod": {
			"method": "card",
			"cardDetails": {"cardName": "Alice Doe", "cardNumber": "**** **** **** 4242", "expirationDate": "12/29"},
			"shippingAddress": {"name": "Alice", "address": "Main st. 1", "phone": "555 0100"}
		},
		"status": "received",
		"createdAt": "2026-03-01T10:00:00Z",
		"updatedAt": "2026-03-01T10:00:00Z"
	}`, string(data))
}

func TestFromOrderPickupWithoutSnapshot(t *testing.T) {
	view := FromOrder(domain.Order{
		ID:            "o-2",
		Items:         []domain.OrderItem{{ProductID: "P2", Quantity: 1, Price: decimal.NewFromInt(5)}},
		PaymentMethod: domain.PickupPayment{Name: "Bob"},
		Status:        domain.OrderStatusCancelled,
	})

	require.Nil(t, view.Items[0].Product)
	require.Equal(t, PaymentMethod{Method: "pickup", UserName: "Bob"}, view.PaymentMethod)
	require.Equal(t, "cancelled", view.Status)
}

func TestFromOrdersEmpty(t *testing.T) {
	data, err := json.Marshal(FromOrders(nil))
	require.NoError(t, err)
	require.Equal(t, "[]", string(data))
}

func TestFromTimeline(t *testing.T) {
	at := time.Now().UTC()
	views := FromTimeline([]domain.TimelineEvent{{OrderID: "o-1", Type: domain.TimelineOrderCreated, Occurred: at}})
	require.Equal(t, []TimelineEvent{{Type: "OrderCreated", Occurred: at}}, views)
}

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		first  string
	}{
		{"validation", &domain.ValidationError{Messages: []string{"a", "b"}}, http.StatusBadRequest, "a"},
		{"stock", &domain.InsufficientStockError{ProductID: "P1", ProductName: "Mouse", Requested: 2, Available: 1}, http.StatusBadRequest, "insufficient stock for product Mouse: requested 2, available 1"},
		{"product", domain.NewProductNotFound("P9"), http.StatusBadRequest, "product not found: P9"},
		{"status", domain.ErrInvalidStatus, http.StatusBadRequest, "invalid order status"},
		{"state", domain.ErrOrderNotCancelled, http.StatusBadRequest, "invalid order state: only cancelled orders can be deleted"},
		{"not found", fmt.Errorf("load: %w", domain.ErrOrderNotFound), http.StatusNotFound, "load: order not found"},
		{"missing token", auth.ErrMissingToken, http.StatusUnauthorized, "no token, authorization denied"},
		{"invalid token", fmt.Errorf("%w: expired", auth.ErrInvalidToken), http.StatusForbidden, "invalid token"},
		{"forbidden", auth.ErrForbidden, http.StatusForbidden, "admin role required"},
		{"hash mismatch", domain.ErrIdempotencyHashMismatch, http.StatusConflict, "idempotency key reused with different request"},
		{"in progress", domain.ErrIdempotencyInProgress, http.StatusConflict, "request with this idempotency key is still in progress"},
		{"storage", fmt.Errorf("insert: %w: %w", domain.ErrStorage, errors.New("conn refused")), http.StatusInternalServerError, "internal storage error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ErrorResponse(tt.err)
			require.Equal(t, tt.status, status)
			require.NotEmpty(t, body.Message)
			require.Equal(t, tt.first, body.Message[0])
			require.Nil(t, body.Order)
		})
	}
}

func TestPartialOrder(t *testing.T) {
	perr := &domain.PartialFulfillmentError{
		OrderID:  "o-1",
		Op:       domain.StockOpReserve,
		Failures: []domain.StockFailure{{ProductID: "P1", Delta: -1, Err: errors.New("store down")}},
	}

	status, body := PartialOrder(domain.Order{ID: "o-1", PaymentMethod: domain.PickupPayment{Name: "Bob"}}, perr)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Len(t, body.Message, 2)
	require.NotNil(t, body.Order)
	require.Equal(t, "o-1", body.Order.ID)
}
