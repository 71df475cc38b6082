package validation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseDecimal разбирает текстовое число. Пустые значения, NaN, Inf и нечисловой текст отклоняются.
func ParseDecimal(n TextNumber) (decimal.Decimal, error) {
	if !n.Set {
		return decimal.Zero, errMissing
	}
	raw := strings.TrimSpace(n.Raw)
	if raw == "" {
		return decimal.Zero, errMissing
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errNotANumber
	}
	return value, nil
}

// ParseAmount разбирает денежную сумму: не больше двух знаков после запятой.
func ParseAmount(n TextNumber) (decimal.Decimal, error) {
	value, err := ParseDecimal(n)
	if err != nil {
		return decimal.Zero, err
	}
	if value.Exponent() < -2 {
		return decimal.Zero, errTooPrecise
	}
	return value, nil
}

// ParseInt разбирает текстовое целое. Дробные значения отклоняются.
func ParseInt(n TextNumber) (int, error) {
	value, err := ParseDecimal(n)
	if err != nil {
		return 0, err
	}
	if !value.IsInteger() {
		return 0, errNotInteger
	}
	if value.GreaterThan(maxInt) || value.LessThan(maxInt.Neg()) {
		return 0, errOutOfRange
	}
	return int(value.IntPart()), nil
}

var maxInt = decimal.NewFromInt(1 << 31)

type parseError string

func (e parseError) Error() string { return string(e) }

const (
	errMissing    parseError = "is required"
	errNotANumber parseError = "must be a valid number"
	errNotInteger parseError = "must be an integer"
	errOutOfRange parseError = "is out of range"
	errTooPrecise parseError = "must have at most 2 decimal places"
)

func fieldMessage(field string, err error) string {
	return fmt.Sprintf("%s %s", field, err.Error())
}
