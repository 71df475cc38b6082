// Package validation проверяет запрос на создание заказа и превращает его в domain.OrderDraft.
// Валидатор чистый: без ввода-вывода и логирования, создаётся один раз при старте.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

var (
	cardNumberPattern = regexp.MustCompile(`^\d{12,19}$`)
	ccvPattern        = regexp.MustCompile(`^\d{3,4}$`)
	expirationPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	phonePattern      = regexp.MustCompile(`^[\d\s+\-()]{7,20}$`)
)

// Validator проверяет запросы на создание заказа.
type Validator struct {
	fields *validator.Validate
}

// New собирает валидатор с правилами полей. Паника возможна только при ошибке регистрации правил.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	rules := map[string]validator.Func{
		"min_trimmed":     minTrimmed,
		"card_number":     matchTrimmed(cardNumberPattern),
		"card_ccv":        matchTrimmed(ccvPattern),
		"card_expiration": matchTrimmed(expirationPattern),
		"phone":           matchTrimmed(phonePattern),
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("validation: register %s: %v", tag, err))
		}
	}

	return &Validator{fields: v}
}

// Validate проверяет все правила и возвращает черновик заказа либо *domain.ValidationError
// со всеми нарушениями сразу.
func (v *Validator) Validate(req CreateOrderRequest) (domain.OrderDraft, error) {
	c := &collector{}

	items, itemsParsed := v.items(req.Items, c)
	payment := v.paymentMethod(req.PaymentMethod, c)

	subTotal, subOK := c.amount("subTotal", req.SubTotal)
	iva, ivaOK := c.amount("iva", req.IVA)
	total, totalOK := c.amount("total", req.Total)
	totalProducts, totalProductsOK := c.count("totalProducts", req.TotalProducts)

	if subOK && ivaOK && totalOK && !domain.TotalsMatch(subTotal, iva, total) {
		c.add(fmt.Sprintf("calculated total (%s) does not match provided total (%s)",
			subTotal.Add(iva).String(), total.String()))
	}
	if itemsParsed && totalProductsOK {
		if calculated := domain.CountProducts(items); calculated != totalProducts {
			c.add(fmt.Sprintf("calculated total products (%d) does not match provided value (%d)",
				calculated, totalProducts))
		}
	}

	if len(c.messages) > 0 {
		return domain.OrderDraft{}, &domain.ValidationError{Messages: c.messages}
	}

	return domain.OrderDraft{
		Items:         items,
		SubTotal:      subTotal,
		IVA:           iva,
		Total:         total,
		TotalProducts: totalProducts,
		PaymentMethod: payment,
	}, nil
}

func (v *Validator) items(raw []ItemRequest, c *collector) ([]domain.OrderItem, bool) {
	if len(raw) == 0 {
		c.add("order must contain at least one product")
		return nil, true
	}

	parsed := true
	items := make([]domain.OrderItem, 0, len(raw))
	for i, item := range raw {
		prefix := fmt.Sprintf("items[%d]", i)
		v.checkFields(prefix, item, c)

		qty, err := ParseInt(item.Quantity)
		switch {
		case err != nil:
			c.add(fieldMessage(prefix+".quantity", err))
			parsed = false
		case qty <= 0:
			c.add(prefix + ".quantity must be greater than 0")
		}

		price, err := ParseAmount(item.Price)
		switch {
		case err != nil:
			c.add(fieldMessage(prefix+".price", err))
		case price.IsNegative():
			c.add(prefix + ".price must be greater than or equal to 0")
		}

		items = append(items, domain.OrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  qty,
			Price:     price,
		})
	}
	return items, parsed
}

func (v *Validator) paymentMethod(raw *PaymentMethodRequest, c *collector) domain.PaymentMethod {
	if raw == nil {
		c.add("paymentMethod is required")
		return nil
	}

	switch domain.PaymentKind(raw.Method) {
	case domain.PaymentKindCard:
		card, shipping := raw.CardDetails, raw.ShippingAddress
		if card == nil {
			c.add("paymentMethod.cardDetails is required")
		} else {
			v.checkFields("paymentMethod.cardDetails", *card, c)
		}
		if shipping == nil {
			c.add("paymentMethod.shippingAddress is required")
		} else {
			v.checkFields("paymentMethod.shippingAddress", *shipping, c)
		}
		if card == nil || shipping == nil {
			return nil
		}
		return domain.CardPayment{
			Card: domain.CardDetails{
				HolderName: strings.TrimSpace(card.CardName),
				Last4:      domain.MaskCardNumber(card.CardNumber),
				Expiration: strings.TrimSpace(card.ExpirationDate),
			},
			Shipping: domain.ShippingAddress{
				Name:    strings.TrimSpace(shipping.Name),
				Address: strings.TrimSpace(shipping.Address),
				Phone:   strings.TrimSpace(shipping.Phone),
			},
		}
	case domain.PaymentKindPickup:
		pickup := PickupRequest{UserName: raw.UserName}
		v.checkFields("paymentMethod", pickup, c)
		return domain.PickupPayment{Name: strings.TrimSpace(pickup.UserName)}
	default:
		c.add("paymentMethod.method must be one of: card, pickup")
		return nil
	}
}

// checkFields прогоняет теги validate и переводит нарушения в сообщения с путём поля.
func (v *Validator) checkFields(prefix string, value any, c *collector) {
	err := v.fields.Struct(value)
	if err == nil {
		return
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		c.add(prefix + " is invalid")
		return
	}
	for _, fe := range fieldErrs {
		c.add(describe(prefix+"."+fe.Field(), fe))
	}
}

func describe(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "min_trimmed":
		if fe.Param() == "1" {
			return field + " is required"
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "card_number":
		return field + " must contain 12 to 19 digits"
	case "card_ccv":
		return field + " must contain 3 or 4 digits"
	case "card_expiration":
		return field + " must use the mm/yy format"
	case "phone":
		return field + " must be 7 to 20 digits, spaces or +-() characters"
	default:
		return field + " is invalid"
	}
}

func minTrimmed(fl validator.FieldLevel) bool {
	want, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(fl.Field().String())) >= want
}

func matchTrimmed(pattern *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return pattern.MatchString(strings.TrimSpace(fl.Field().String()))
	}
}

type collector struct {
	messages []string
}

func (c *collector) add(msg string) {
	c.messages = append(c.messages, msg)
}

func (c *collector) amount(field string, raw TextNumber) (decimal.Decimal, bool) {
	value, err := ParseAmount(raw)
	if err != nil {
		c.add(fieldMessage(field, err))
		return decimal.Zero, false
	}
	if value.IsNegative() {
		c.add(field + " must be greater than or equal to 0")
		return value, false
	}
	return value, true
}

func (c *collector) count(field string, raw TextNumber) (int, bool) {
	value, err := ParseInt(raw)
	if err != nil {
		c.add(fieldMessage(field, err))
		return 0, false
	}
	if value < 0 {
		c.add(field + " must be greater than or equal to 0")
		return value, false
	}
	return value, true
}
