package orderview

import (
	"errors"
	"net/http"

	"github.com/vladislavdragonenkov/shop-orders/internal/auth"
	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
)

// ErrorBody сериализуется как {"message": [...]}.
// При частичном выполнении рядом отдаётся сохранённый заказ.
type ErrorBody struct {
	Message []string `json:"message"`
	Order   *Order   `json:"order,omitempty"`
}

// ErrorResponse сопоставляет ошибку домена с HTTP-статусом и телом ответа.
// Внутренние детали ошибок хранилища наружу не отдаются.
func ErrorResponse(err error) (int, ErrorBody) {
	var (
		validationErr *domain.ValidationError
		partialErr    *domain.PartialFulfillmentError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, ErrorBody{Message: validationErr.Messages}
	case errors.As(err, &partialErr):
		return http.StatusInternalServerError, ErrorBody{Message: partialErr.Messages()}
	case errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, messages(auth.ErrMissingToken)
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusForbidden, messages(auth.ErrInvalidToken)
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, messages(auth.ErrForbidden)
	case errors.Is(err, domain.ErrOrderNotFound):
		return http.StatusNotFound, messages(err)
	case errors.Is(err, domain.ErrIdempotencyHashMismatch),
		errors.Is(err, domain.ErrIdempotencyInProgress):
		return http.StatusConflict, messages(err)
	case errors.Is(err, domain.ErrStorage):
		return http.StatusInternalServerError, ErrorBody{Message: []string{"internal storage error"}}
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInsufficientStock),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest, messages(err)
	default:
		return http.StatusInternalServerError, ErrorBody{Message: []string{"internal server error"}}
	}
}

// PartialOrder возвращает ответ на частично выполненную операцию вместе с заказом.
func PartialOrder(order domain.Order, err error) (int, ErrorBody) {
	status, body := ErrorResponse(err)
	view := FromOrder(order)
	body.Order = &view
	return status, body
}

func messages(err error) ErrorBody {
	return ErrorBody{Message: []string{err.Error()}}
}
