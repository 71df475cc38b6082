package grpcsvc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/shop-orders/internal/auth"
	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/orderview"
)

// toStatus сопоставляет ошибку домена с gRPC-статусом. Сообщение берётся из того же
// представления, что и в HTTP API.
func toStatus(err error) *status.Status {
	if st, ok := status.FromError(err); ok {
		return st
	}
	_, body := orderview.ErrorResponse(err)
	message := strings.Join(body.Message, "; ")

	switch {
	case errors.Is(err, auth.ErrMissingToken):
		return status.New(codes.Unauthenticated, message)
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrForbidden):
		return status.New(codes.PermissionDenied, message)
	case errors.Is(err, domain.ErrOrderNotFound):
		return status.New(codes.NotFound, message)
	case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrInvalidState):
		return status.New(codes.FailedPrecondition, message)
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return status.New(codes.AlreadyExists, message)
	case errors.Is(err, domain.ErrIdempotencyInProgress):
		return status.New(codes.Aborted, message)
	case errors.Is(err, domain.ErrPartialFulfillment):
		return status.New(codes.Internal, message)
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return status.New(codes.InvalidArgument, message)
	default:
		return status.New(codes.Internal, message)
	}
}

// replyFromHTTP превращает ответ в HTTP-форме в gRPC-ответ или ошибку.
// Так повтор по idempotency-key отдаёт тот же результат, что и первый вызов.
func replyFromHTTP(code int, body []byte) (*structpb.Struct, error) {
	if code >= http.StatusOK && code < http.StatusMultipleChoices {
		return structFromJSON(body)
	}

	var payload orderview.ErrorBody
	message := "previous request failed"
	if err := json.Unmarshal(body, &payload); err == nil && len(payload.Message) > 0 {
		message = strings.Join(payload.Message, "; ")
	}
	st := status.New(codeFromHTTP(code, message), message)
	if payload.Order == nil {
		return nil, st.Err()
	}

	// Частично выполненная операция: сохранённый заказ уходит в details, как в теле HTTP-ответа.
	detail, err := structFromJSON(body)
	if err != nil {
		return nil, st.Err()
	}
	withOrder, err := st.WithDetails(detail)
	if err != nil {
		return nil, st.Err()
	}
	return nil, withOrder.Err()
}

// PartialOrderFromError достаёт заказ из details ошибки частичного выполнения.
func PartialOrderFromError(err error) (*structpb.Struct, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return nil, false
	}
	for _, d := range st.Details() {
		if detail, ok := d.(*structpb.Struct); ok {
			if order, ok := detail.GetFields()["order"]; ok && order.GetStructValue() != nil {
				return order.GetStructValue(), true
			}
		}
	}
	return nil, false
}

func codeFromHTTP(code int, message string) codes.Code {
	switch code {
	case http.StatusBadRequest:
		if strings.Contains(message, domain.ErrInsufficientStock.Error()) || strings.Contains(message, domain.ErrInvalidState.Error()) {
			return codes.FailedPrecondition
		}
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusConflict:
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}
