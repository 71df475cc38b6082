package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusReceived — начальный статус, заказ принят и товары списаны со склада.
	OrderStatusReceived OrderStatus = "received"
	// OrderStatusConfirmed — заказ подтверждён магазином.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCancelled — заказ отменён, товары возвращены на склад.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusDelivered — заказ передан покупателю.
	OrderStatusDelivered OrderStatus = "delivered"
)

// TotalTolerance — допустимое расхождение между subTotal+iva и total.
var TotalTolerance = decimal.New(1, -2)

// ParseOrderStatus переводит внешнее строковое значение в OrderStatus.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusReceived, OrderStatusConfirmed, OrderStatusCancelled, OrderStatusDelivered:
		return true
	default:
		return false
	}
}

// Terminal сообщает, что из статуса нет переходов в строгом режиме.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusDelivered
}

// CanTransitionTo описывает строгий граф переходов.
// Повторная установка того же статуса разрешена всегда.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case OrderStatusReceived:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled || next == OrderStatusDelivered
	case OrderStatusConfirmed:
		return next == OrderStatusCancelled || next == OrderStatusDelivered
	default:
		return false
	}
}

// ProductSnapshot — отображаемые поля товара, подставляемые в позиции заказа при чтении.
type ProductSnapshot struct {
	Name     string
	Price    decimal.Decimal
	Image    string
	Quantity int
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ProductID string
	// Quantity — количество единиц товара, всегда >= 1.
	Quantity int
	// Price — цена за единицу на момент оформления.
	Price decimal.Decimal
	// Product заполняется только при чтении заказов.
	Product *ProductSnapshot
}

// OrderDraft получается из запроса после валидации.
type OrderDraft struct {
	Items         []OrderItem
	SubTotal      decimal.Decimal
	IVA           decimal.Decimal
	Total         decimal.Decimal
	TotalProducts int
	PaymentMethod PaymentMethod
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID            string
	UserID        string
	Items         []OrderItem
	SubTotal      decimal.Decimal
	IVA           decimal.Decimal
	Total         decimal.Decimal
	TotalProducts int
	PaymentMethod PaymentMethod
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	// UserID пустой означает все заказы.
	UserID string
	// Limit <= 0 означает без ограничения.
	Limit int
}

// NewOrder собирает заказ в статусе received из черновика.
func NewOrder(userID string, draft OrderDraft, now time.Time) Order {
	items := make([]OrderItem, len(draft.Items))
	copy(items, draft.Items)
	return Order{
		UserID:        userID,
		Items:         items,
		SubTotal:      draft.SubTotal,
		IVA:           draft.IVA,
		Total:         draft.Total,
		TotalProducts: draft.TotalProducts,
		PaymentMethod: draft.PaymentMethod,
		Status:        OrderStatusReceived,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CountProducts возвращает сумму количеств по всем позициям.
func CountProducts(items []OrderItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// TotalsMatch проверяет |subTotal + iva - total| <= 0.01.
func TotalsMatch(subTotal, iva, total decimal.Decimal) bool {
	return subTotal.Add(iva).Sub(total).Abs().LessThanOrEqual(TotalTolerance)
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}
	if o.SubTotal.IsNegative() || o.IVA.IsNegative() || o.Total.IsNegative() {
		errs = append(errs, ErrAmountNegative)
	}
	if !TotalsMatch(o.SubTotal, o.IVA, o.Total) {
		errs = append(errs, ErrAmountMismatch)
	}
	if CountProducts(o.Items) != o.TotalProducts {
		errs = append(errs, ErrTotalProductsMismatch)
	}
	if o.PaymentMethod == nil {
		errs = append(errs, ErrPaymentMethodRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}

	return errs
}

// StockDeltas возвращает изменения остатков для позиций заказа.
// sign = -1 для списания, +1 для возврата.
func (o *Order) StockDeltas(sign int) []StockDelta {
	deltas := make([]StockDelta, 0, len(o.Items))
	for _, item := range o.Items {
		deltas = append(deltas, StockDelta{ProductID: item.ProductID, Delta: sign * item.Quantity})
	}
	return deltas
}
