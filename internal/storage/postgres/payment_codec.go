package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

// paymentDocument хранится в JSONB-колонке orders.payment.
type paymentDocument struct {
	Method   domain.PaymentKind `json:"method"`
	Card     *cardDocument      `json:"card,omitempty"`
	Shipping *shippingDocument  `json:"shipping,omitempty"`
	UserName string             `json:"user_name,omitempty"`
}

type cardDocument struct {
	HolderName string `json:"holder_name"`
	Last4      string `json:"last4"`
	Expiration string `json:"expiration"`
}

type shippingDocument struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

func encodePayment(method domain.PaymentMethod) (domain.PaymentKind, []byte, error) {
	var doc paymentDocument
	switch pm := method.(type) {
	case domain.CardPayment:
		doc = paymentDocument{
			Method: domain.PaymentKindCard,
			Card: &cardDocument{
				HolderName: pm.Card.HolderName,
				Last4:      pm.Card.Last4,
				Expiration: pm.Card.Expiration,
			},
			Shipping: &shippingDocument{
				Name:    pm.Shipping.Name,
				Address: pm.Shipping.Address,
				Phone:   pm.Shipping.Phone,
			},
		}
	case domain.PickupPayment:
		doc = paymentDocument{Method: domain.PaymentKindPickup, UserName: pm.Name}
	default:
		return "", nil, fmt.Errorf("%w: unsupported payment method %T", domain.ErrPaymentMethodRequired, method)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", nil, fmt.Errorf("marshal payment: %w", err)
	}
	return doc.Method, data, nil
}

func decodePayment(data []byte) (domain.PaymentMethod, error) {
	var doc paymentDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}

	switch doc.Method {
	case domain.PaymentKindCard:
		var pm domain.CardPayment
		if doc.Card != nil {
			pm.Card = domain.CardDetails{
				HolderName: doc.Card.HolderName,
				Last4:      doc.Card.Last4,
				Expiration: doc.Card.Expiration,
			}
		}
		if doc.Shipping != nil {
			pm.Shipping = domain.ShippingAddress{
				Name:    doc.Shipping.Name,
				Address: doc.Shipping.Address,
				Phone:   doc.Shipping.Phone,
			}
		}
		return pm, nil
	case domain.PaymentKindPickup:
		return domain.PickupPayment{Name: doc.UserName}, nil
	default:
		return nil, fmt.Errorf("unknown payment method %q", doc.Method)
	}
}
