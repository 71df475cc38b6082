package domain

import "strings"

// PaymentKind — дискриминатор способа оплаты.
type PaymentKind string

const (
	PaymentKindCard   PaymentKind = "card"
	PaymentKindPickup PaymentKind = "pickup"
)

// PaymentMethod — закрытое объединение CardPayment | PickupPayment.
// Реализации за пределами пакета невозможны.
type PaymentMethod interface {
	Kind() PaymentKind
	paymentMethod()
}

// CardDetails хранит только безопасную часть данных карты.
// Полный номер и CVV не сохраняются.
type CardDetails struct {
	HolderName string
	Last4      string
	Expiration string
}

// ShippingAddress используется только при оплате картой.
type ShippingAddress struct {
	Name    string
	Address string
	Phone   string
}

// CardPayment означает оплату картой с доставкой.
type CardPayment struct {
	Card     CardDetails
	Shipping ShippingAddress
}

func (CardPayment) Kind() PaymentKind { return PaymentKindCard }
func (CardPayment) paymentMethod()    {}

// PickupPayment означает самовывоз с оплатой при получении.
type PickupPayment struct {
	Name string
}

func (PickupPayment) Kind() PaymentKind { return PaymentKindPickup }
func (PickupPayment) paymentMethod()    {}

// MaskCardNumber оставляет последние четыре цифры номера.
func MaskCardNumber(number string) string {
	number = strings.TrimSpace(number)
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
