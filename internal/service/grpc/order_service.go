// Package grpcsvc реализует gRPC API заказов поверх lifecycle.Service.
package grpcsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/shop-orders/internal/auth"
	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/orderview"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/validation"
)

const (
	idempotencyKeyHeader = "idempotency-key"
	// Ключи gRPC не пересекаются с ключами HTTP того же пользователя:
	// префикс добавляется к владельцу ключа, а не к самому ключу.
	idempotencyScope = "grpc:"
	defaultTimeout   = 5 * time.Second
)

// Option настраивает OrderService.
type Option func(*OrderService)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *OrderService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIdempotency включает обработку metadata idempotency-key в CreateOrder.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(s *OrderService) { s.guard = guard }
}

// OrderService реализует OrderServiceServer.
type OrderService struct {
	svc       lifecycle.Service
	validator *validation.Validator
	guard     *idempotency.Guard
	logger    *log.Entry
	timeout   time.Duration
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(svc lifecycle.Service, validator *validation.Validator, opts ...Option) *OrderService {
	s := &OrderService{
		svc:       svc,
		validator: validator,
		logger:    log.WithField("component", "grpc-order-service"),
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder создаёт заказ. Тело запроса повторяет JSON-форму CreateOrderRequest.
func (s *OrderService) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	identity, err := identityOf(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body, err := json.Marshal(req.AsMap())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "request must be a JSON object")
	}

	key := readIdempotencyKey(ctx)
	if key == "" || s.guard == nil {
		code, payload, _ := s.createOrder(ctx, identity.UserID, body)
		return replyFromHTTP(code, payload)
	}

	owner := idempotencyScope + identity.UserID
	decision, err := s.guard.Begin(ctx, owner, key, body)
	if err != nil {
		return nil, toStatus(err).Err()
	}
	if decision.Replay {
		return replyFromHTTP(decision.Status, decision.Body)
	}

	code, payload, retryable := s.createOrder(ctx, identity.UserID, body)
	if err := s.guard.Finish(context.WithoutCancel(ctx), owner, key, code, payload, retryable); err != nil {
		s.logger.WithError(err).WithField("user_id", identity.UserID).Warn("failed to store idempotent response")
	}
	return replyFromHTTP(code, payload)
}

// createOrder возвращает ответ в HTTP-форме (статус и JSON), которую хранит Guard.
// retryable: заказ не сохранён из-за внутреннего сбоя, повтор выполнит запрос заново.
func (s *OrderService) createOrder(ctx context.Context, userID string, body []byte) (int, []byte, bool) {
	var req validation.CreateOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		code, payload := encode(http.StatusBadRequest, orderview.ErrorBody{Message: []string{"request must be a valid create order object"}})
		return code, payload, false
	}

	draft, err := s.validator.Validate(req)
	if err != nil {
		code, payload := encode(orderview.ErrorResponse(err))
		return code, payload, false
	}

	order, err := s.svc.CreateOrder(ctx, userID, draft)
	switch {
	case errors.Is(err, domain.ErrPartialFulfillment):
		code, payload := encode(orderview.PartialOrder(order, err))
		return code, payload, false
	case err != nil:
		code, payload := encode(orderview.ErrorResponse(err))
		return code, payload, code >= http.StatusInternalServerError
	default:
		code, payload := encode(http.StatusCreated, orderview.FromOrder(order))
		return code, payload, false
	}
}

// UpdateOrderStatus меняет статус заказа: {"id": "...", "status": "..."}. Только для администратора.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := adminOf(ctx); err != nil {
		return nil, err
	}
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.svc.UpdateOrderStatus(ctx, id, stringField(req, "status"))
	if errors.Is(err, domain.ErrPartialFulfillment) {
		s.logger.WithError(err).WithField("order_id", id).Error("UpdateOrderStatus partially applied")
		return replyFromHTTP(encode(orderview.PartialOrder(order, err)))
	}
	if err != nil {
		return nil, s.fail(err, "UpdateOrderStatus", id)
	}
	return toStruct(orderview.FromOrder(order))
}

// GetOrder возвращает заказ: {"id": "..."}. Пользователь видит только свои заказы.
func (s *OrderService) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	identity, err := identityOf(ctx)
	if err != nil {
		return nil, err
	}
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.svc.GetOrderByID(ctx, id)
	if err != nil {
		return nil, s.fail(err, "GetOrder", id)
	}
	if !identity.IsAdmin() && order.UserID != identity.UserID {
		return nil, toStatus(domain.ErrOrderNotFound).Err()
	}
	return toStruct(orderview.FromOrder(order))
}

// GetOrderTimeline возвращает историю заказа: {"events": [...]}. Только для администратора.
func (s *OrderService) GetOrderTimeline(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := adminOf(ctx); err != nil {
		return nil, err
	}
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	events, err := s.svc.Timeline(ctx, id)
	if err != nil {
		return nil, s.fail(err, "GetOrderTimeline", id)
	}
	return toStruct(map[string]any{"events": orderview.FromTimeline(events)})
}

// ListOrders возвращает все заказы: {"orders": [...]}. Только для администратора.
func (s *OrderService) ListOrders(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if _, err := adminOf(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	orders, err := s.svc.GetAllOrders(ctx)
	if err != nil {
		return nil, s.fail(err, "ListOrders", "")
	}
	return toStruct(map[string]any{"orders": orderview.FromOrders(orders)})
}

// ListUserOrders возвращает заказы вызывающего пользователя.
func (s *OrderService) ListUserOrders(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	identity, err := identityOf(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	orders, err := s.svc.GetUserOrders(ctx, identity.UserID)
	if err != nil {
		return nil, s.fail(err, "ListUserOrders", "")
	}
	return toStruct(map[string]any{"orders": orderview.FromOrders(orders)})
}

// DeleteOrder удаляет отменённый заказ и возвращает его последнее состояние.
func (s *OrderService) DeleteOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := adminOf(ctx); err != nil {
		return nil, err
	}
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.svc.DeleteOrder(ctx, id)
	if err != nil {
		return nil, s.fail(err, "DeleteOrder", id)
	}
	return toStruct(orderview.FromOrder(order))
}

func (s *OrderService) fail(err error, operation, orderID string) error {
	st := toStatus(err)
	if st.Code() == codes.Internal {
		s.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"order_id":  orderID,
		}).Error("order operation failed")
	}
	return st.Err()
}

func identityOf(ctx context.Context) (auth.Identity, error) {
	identity, ok := auth.FromContext(ctx)
	if !ok {
		return auth.Identity{}, toStatus(auth.ErrMissingToken).Err()
	}
	return identity, nil
}

func adminOf(ctx context.Context) (auth.Identity, error) {
	identity, err := identityOf(ctx)
	if err != nil {
		return auth.Identity{}, err
	}
	if !identity.IsAdmin() {
		return auth.Identity{}, toStatus(auth.ErrForbidden).Err()
	}
	return identity, nil
}

func readIdempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(idempotencyKeyHeader)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	value, ok := req.GetFields()[name]
	if !ok {
		return ""
	}
	return strings.TrimSpace(value.GetStringValue())
}

func requireString(req *structpb.Struct, name string) (string, error) {
	value := stringField(req, name)
	if value == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", name)
	}
	return value, nil
}

// toStruct переводит JSON-представление в google.protobuf.Struct.
func toStruct(view any) (*structpb.Struct, error) {
	data, err := json.Marshal(view)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return structFromJSON(data)
}

func structFromJSON(data []byte) (*structpb.Struct, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("failed to encode response: %v", err))
	}
	return out, nil
}

func encode(code int, payload any) (int, []byte) {
	data, err := json.Marshal(payload)
	if err != nil {
		return http.StatusInternalServerError, []byte(`{"message":["internal server error"]}`)
	}
	return code, data
}

var _ OrderServiceServer = (*OrderService)(nil)
