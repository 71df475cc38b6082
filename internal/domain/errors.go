package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего владельца заказа.
	ErrUserRequired = errors.New("user id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка пустого идентификатора товара в позиции.
	ErrItemProductRequired = errors.New("item product id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("order amounts must be non-negative")
	// Ошибка несоответствия subTotal + iva и total.
	ErrAmountMismatch = errors.New("order total does not match subtotal plus iva")
	// Ошибка несоответствия totalProducts и суммы количеств.
	ErrTotalProductsMismatch = errors.New("total products does not match items quantity")
	// Ошибка отсутствующего способа оплаты.
	ErrPaymentMethodRequired = errors.New("payment method is required")

	// ErrValidation — общий маркер для *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrOrderNotFound возвращается, если заказ не найден в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден; оборачивается с идентификатором.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — маркер для *InsufficientStockError.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidStatus — значение статуса вне перечисления.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidState — операция недопустима в текущем статусе заказа.
	ErrInvalidState = errors.New("invalid order state")
	// ErrOrderNotCancelled — удалить можно только отменённый заказ.
	ErrOrderNotCancelled = fmt.Errorf("%w: only cancelled orders can be deleted", ErrInvalidState)
	// ErrStorage — сбой хранилища; драйверные ошибки оборачиваются вместе с ним.
	ErrStorage = errors.New("storage error")
	// ErrPartialFulfillment — маркер для *PartialFulfillmentError.
	ErrPartialFulfillment = errors.New("partial fulfillment")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ValidationError собирает все нарушенные правила запроса.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return ErrValidation.Error() + ": " + strings.Join(e.Messages, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// InsufficientStockError сообщает, что остатка товара не хватает.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// StockOp — вид операции со складом, прерванной частично.
type StockOp string

const (
	StockOpReserve StockOp = "reserve"
	StockOpRestock StockOp = "restock"
)

// PartialFulfillmentError: заказ сохранён (или статус изменён), но часть складских
// изменений не применилась. Уже применённые изменения не откатываются.
type PartialFulfillmentError struct {
	OrderID  string
	Op       StockOp
	Failures []StockFailure
}

func (e *PartialFulfillmentError) Error() string {
	return fmt.Sprintf("partial fulfillment of order %s: %s failed for products %s",
		e.OrderID, e.Op, strings.Join(e.ProductIDs(), ", "))
}

func (e *PartialFulfillmentError) Is(target error) bool {
	return target == ErrPartialFulfillment
}

// ProductIDs возвращает идентификаторы товаров, по которым изменение не прошло.
func (e *PartialFulfillmentError) ProductIDs() []string {
	ids := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		ids = append(ids, failure.ProductID)
	}
	return ids
}

// Messages возвращает сообщения по каждой неудачной позиции.
func (e *PartialFulfillmentError) Messages() []string {
	msgs := make([]string, 0, len(e.Failures)+1)
	msgs = append(msgs, fmt.Sprintf("order %s was saved but stock %s did not complete", e.OrderID, e.Op))
	for _, failure := range e.Failures {
		msgs = append(msgs, failure.Error())
	}
	return msgs
}

// NewProductNotFound оборачивает ErrProductNotFound идентификатором товара.
func NewProductNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrProductNotFound, id)
}

// IsNotFound проверяет отсутствие заказа или товара.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrProductNotFound)
}
