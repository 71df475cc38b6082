package validation

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// CreateOrderRequest — тело запроса на создание заказа в том виде, в каком его присылает клиент.
type CreateOrderRequest struct {
	Items         []ItemRequest         `json:"items"`
	PaymentMethod *PaymentMethodRequest `json:"paymentMethod"`
	SubTotal      TextNumber            `json:"subTotal"`
	IVA           TextNumber            `json:"iva"`
	Total         TextNumber            `json:"total"`
	TotalProducts TextNumber            `json:"totalProducts"`
}

// ItemRequest описывает позицию корзины.
type ItemRequest struct {
	ProductID string     `json:"productId" validate:"min_trimmed=1"`
	Quantity  TextNumber `json:"quantity"`
	Price     TextNumber `json:"price"`
}

// PaymentMethodRequest — способ оплаты; форма определяется полем method.
type PaymentMethodRequest struct {
	Method          string                  `json:"method"`
	CardDetails     *CardDetailsRequest     `json:"cardDetails,omitempty"`
	ShippingAddress *ShippingAddressRequest `json:"shippingAddress,omitempty"`
	UserName        string                  `json:"userName,omitempty"`
}

type CardDetailsRequest struct {
	CardName       string `json:"cardName" validate:"min_trimmed=3"`
	CardNumber     string `json:"cardNumber" validate:"card_number"`
	CCV            string `json:"ccv" validate:"card_ccv"`
	ExpirationDate string `json:"expirationDate" validate:"card_expiration"`
}

type ShippingAddressRequest struct {
	Name    string `json:"name" validate:"min_trimmed=3"`
	Address string `json:"address" validate:"min_trimmed=5"`
	Phone   string `json:"phone" validate:"phone"`
}

// PickupRequest проверяет поля варианта самовывоза.
type PickupRequest struct {
	UserName string `json:"userName" validate:"min_trimmed=3"`
}

// TextNumber хранит числовое поле как исходный текст.
// Принимает JSON-строку или JSON-число; разбор выполняется явно в ParseDecimal/ParseInt.
type TextNumber struct {
	Raw string
	Set bool
}

// Text создаёт TextNumber из строки.
func Text(raw string) TextNumber {
	return TextNumber{Raw: raw, Set: true}
}

func (n *TextNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = TextNumber{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = TextNumber{Raw: s, Set: true}
		return nil
	}
	// Числа и прочие литералы сохраняем как есть, отказ будет на этапе разбора.
	*n = TextNumber{Raw: string(data), Set: true}
	return nil
}

func (n TextNumber) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	return []byte(strconv.Quote(n.Raw)), nil
}
