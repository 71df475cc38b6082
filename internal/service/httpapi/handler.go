package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/domain"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/orderview"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/validation"
)

const maxBodyBytes = 1 << 20

// Handler обслуживает маршруты /api/orders.
type Handler struct {
	svc       lifecycle.Service
	validator *validation.Validator
	guard     *idempotency.Guard
	logger    *log.Entry
	timeout   time.Duration
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func newHandler(svc lifecycle.Service, validator *validation.Validator, opts ...Option) *Handler {
	h := &Handler{
		svc:       svc,
		validator: validator,
		logger:    log.WithField("component", "http-api"),
		timeout:   defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateOrder обрабатывает POST /api/orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	identity, _ := identityFrom(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil {
		h.fail(c, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(body) > maxBodyBytes {
		h.fail(c, http.StatusRequestEntityTooLarge, "request body is too large")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	key := strings.TrimSpace(c.GetHeader(idempotencyKeyHd))
	if key == "" || h.guard == nil {
		status, payload, _ := h.createOrder(ctx, identity.UserID, body)
		c.Data(status, gin.MIMEJSON, payload)
		return
	}

	decision, err := h.guard.Begin(ctx, identity.UserID, key, body)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if decision.Replay {
		c.Header("Idempotent-Replayed", "true")
		c.Data(decision.Status, gin.MIMEJSON, decision.Body)
		return
	}

	status, payload, retryable := h.createOrder(ctx, identity.UserID, body)
	// Ответ сохраняется и при отменённом запросе клиента.
	if err := h.guard.Finish(context.WithoutCancel(ctx), identity.UserID, key, status, payload, retryable); err != nil {
		h.logger.WithError(err).WithField("user_id", identity.UserID).Warn("failed to store idempotent response")
	}
	c.Data(status, gin.MIMEJSON, payload)
}

// createOrder возвращает готовый статус и тело ответа, чтобы их можно было сохранить для повторов.
// retryable означает сбой, после которого заказ не сохранён и запрос можно выполнить заново.
func (h *Handler) createOrder(ctx context.Context, userID string, body []byte) (int, []byte, bool) {
	var req validation.CreateOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		status, payload := encode(http.StatusBadRequest, orderview.ErrorBody{Message: []string{"request body must be a valid JSON object"}})
		return status, payload, false
	}

	draft, err := h.validator.Validate(req)
	if err != nil {
		status, payload := encode(orderview.ErrorResponse(err))
		return status, payload, false
	}

	order, err := h.svc.CreateOrder(ctx, userID, draft)
	switch {
	case errors.Is(err, domain.ErrPartialFulfillment):
		h.logFailure(err, "create order", order.ID)
		status, payload := encode(orderview.PartialOrder(order, err))
		return status, payload, false
	case err != nil:
		h.logFailure(err, "create order", "")
		status, payload := encode(orderview.ErrorResponse(err))
		return status, payload, status >= http.StatusInternalServerError
	default:
		status, payload := encode(http.StatusCreated, orderview.FromOrder(order))
		return status, payload, false
	}
}

// GetUserOrders обрабатывает GET /api/orders/mine.
func (h *Handler) GetUserOrders(c *gin.Context) {
	identity, _ := identityFrom(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	orders, err := h.svc.GetUserOrders(ctx, identity.UserID)
	if err != nil {
		h.logFailure(err, "list user orders", "")
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderview.FromOrders(orders))
}

// GetAllOrders обрабатывает GET /api/orders.
func (h *Handler) GetAllOrders(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	orders, err := h.svc.GetAllOrders(ctx)
	if err != nil {
		h.logFailure(err, "list orders", "")
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderview.FromOrders(orders))
}

// GetOrderByID обрабатывает GET /api/orders/:id. Пользователь видит только свои заказы, администратор любые.
func (h *Handler) GetOrderByID(c *gin.Context) {
	identity, _ := identityFrom(c)
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	order, err := h.svc.GetOrderByID(ctx, id)
	if err != nil {
		h.logFailure(err, "get order", id)
		h.respondError(c, err)
		return
	}
	if !identity.IsAdmin() && order.UserID != identity.UserID {
		h.respondError(c, domain.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, orderview.FromOrder(order))
}

func (h *Handler) GetTimeline(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	events, err := h.svc.Timeline(ctx, id)
	if err != nil {
		h.logFailure(err, "get timeline", id)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderview.FromTimeline(events))
}

// UpdateOrderStatus обрабатывает PUT /api/orders/:id/status.
func (h *Handler) UpdateOrderStatus(c *gin.Context) {
	id := c.Param("id")

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "request body must be a valid JSON object")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	order, err := h.svc.UpdateOrderStatus(ctx, id, req.Status)
	if err != nil {
		h.logFailure(err, "update order status", id)
		if errors.Is(err, domain.ErrPartialFulfillment) {
			c.JSON(orderview.PartialOrder(order, err))
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderview.FromOrder(order))
}

// DeleteOrder обрабатывает DELETE /api/orders/:id и возвращает заказ в состоянии до удаления.
func (h *Handler) DeleteOrder(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	order, err := h.svc.DeleteOrder(ctx, id)
	if err != nil {
		h.logFailure(err, "delete order", id)
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderview.FromOrder(order))
}

func (h *Handler) respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(orderview.ErrorResponse(err))
}

func (h *Handler) fail(c *gin.Context, status int, message string) {
	c.JSON(status, orderview.ErrorBody{Message: []string{message}})
}

// logFailure пишет в журнал только неожиданные ошибки; отказы по бизнес-правилам видны в access log.
func (h *Handler) logFailure(err error, op, orderID string) {
	status, _ := orderview.ErrorResponse(err)
	if status < http.StatusInternalServerError {
		return
	}
	entry := h.logger.WithError(err).WithField("op", op)
	if orderID != "" {
		entry = entry.WithField("order_id", orderID)
	}
	entry.Error("order operation failed")
}

func encode(status int, payload any) (int, []byte) {
	data, err := json.Marshal(payload)
	if err != nil {
		return http.StatusInternalServerError, []byte(`{"message":["internal server error"]}`)
	}
	return status, data
}
