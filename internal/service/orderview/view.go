// Package orderview описывает JSON-представление заказов и ошибок, общее для HTTP и gRPC.
package orderview

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

// Order отдаётся в ответах API.
type Order struct {
	ID            string        `json:"_id"`
	User          string        `json:"user"`
	Items         []Item        `json:"items"`
	SubTotal      json.Number   `json:"subTotal"`
	IVA           json.Number   `json:"iva"`
	Total         json.Number   `json:"total"`
	TotalProducts int           `json:"totalProducts"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	Status        string        `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Item — позиция заказа. Product заполнен в списках и при чтении по id.
type Item struct {
	ProductID string       `json:"productId"`
	Quantity  int          `json:"quantity"`
	Price     json.Number  `json:"price"`
	Product   *ProductInfo `json:"product,omitempty"`
}

type ProductInfo struct {
	ID       string      `json:"_id"`
	Name     string      `json:"name"`
	Price    json.Number `json:"price"`
	Image    string      `json:"image,omitempty"`
	Quantity int         `json:"quantity"`
}

// PaymentMethod — способ оплаты. Номер карты отдаётся только маской.
type PaymentMethod struct {
	Method          string           `json:"method"`
	CardDetails     *CardDetails     `json:"cardDetails,omitempty"`
	ShippingAddress *ShippingAddress `json:"shippingAddress,omitempty"`
	UserName        string           `json:"userName,omitempty"`
}

type CardDetails struct {
	CardName       string `json:"cardName"`
	CardNumber     string `json:"cardNumber"`
	ExpirationDate string `json:"expirationDate"`
}

type ShippingAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type TimelineEvent struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

// FromOrder строит представление заказа.
func FromOrder(order domain.Order) Order {
	items := make([]Item, 0, len(order.Items))
	for _, item := range order.Items {
		view := Item{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     number(item.Price),
		}
		if item.Product != nil {
			view.Product = &ProductInfo{
				ID:       item.ProductID,
				Name:     item.Product.Name,
				Price:    number(item.Product.Price),
				Image:    item.Product.Image,
				Quantity: item.Product.Quantity,
			}
		}
		items = append(items, view)
	}

	return Order{
		ID:            order.ID,
		User:          order.UserID,
		Items:         items,
		SubTotal:      number(order.SubTotal),
		IVA:           number(order.IVA),
		Total:         number(order.Total),
		TotalProducts: order.TotalProducts,
		PaymentMethod: fromPayment(order.PaymentMethod),
		Status:        string(order.Status),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

// FromOrders строит представление списка; пустой список остаётся пустым массивом.
func FromOrders(orders []domain.Order) []Order {
	views := make([]Order, 0, len(orders))
	for _, order := range orders {
		views = append(views, FromOrder(order))
	}
	return views
}

// FromTimeline строит представление истории заказа.
func FromTimeline(events []domain.TimelineEvent) []TimelineEvent {
	views := make([]TimelineEvent, 0, len(events))
	for _, event := range events {
		views = append(views, TimelineEvent{
			Type:     string(event.Type),
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return views
}

func fromPayment(method domain.PaymentMethod) PaymentMethod {
	switch pm := method.(type) {
	case domain.CardPayment:
		return PaymentMethod{
			Method: string(domain.PaymentKindCard),
			CardDetails: &CardDetails{
				CardName:       pm.Card.HolderName,
				CardNumber:     maskLast4(pm.Card.Last4),
				ExpirationDate: pm.Card.Expiration,
			},
			ShippingAddress: &ShippingAddress{
				Name:    pm.Shipping.Name,
				Address: pm.Shipping.Address,
				Phone:   pm.Shipping.Phone,
			},
		}
	case domain.PickupPayment:
		return PaymentMethod{Method: string(domain.PaymentKindPickup), UserName: pm.Name}
	default:
		return PaymentMethod{}
	}
}

func maskLast4(last4 string) string {
	if last4 == "" {
		return ""
	}
	return "**** **** **** " + last4
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
