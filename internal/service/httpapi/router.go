// Package httpapi реализует HTTP API заказов на gin.
package httpapi

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/auth"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/idempotency"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/validation"
)

const defaultRequestTimeout = 5 * time.Second

// Option настраивает Handler.
type Option func(*Handler)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithIdempotency включает обработку заголовка Idempotency-Key при создании заказа.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(h *Handler) { h.guard = guard }
}

// WithRequestTimeout ограничивает время обработки одного запроса.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(h *Handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// NewRouter собирает gin.Engine со всеми маршрутами заказов.
func NewRouter(svc lifecycle.Service, validator *validation.Validator, verifier *auth.Verifier, opts ...Option) *gin.Engine {
	h := newHandler(svc, validator, opts...)

	r := gin.New()
	r.Use(gin.Recovery(), metricsMiddleware(), loggingMiddleware(h.logger))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"message": []string{"route not found"}})
	})

	api := r.Group("/api/orders", authenticate(verifier))
	{
		api.POST("", h.CreateOrder)
		api.GET("/mine", h.GetUserOrders)
		api.GET("/:id", h.GetOrderByID)

		admin := api.Group("", requireAdmin())
		admin.GET("", h.GetAllOrders)
		admin.GET("/:id/timeline", h.GetTimeline)
		admin.PUT("/:id/status", h.UpdateOrderStatus)
		admin.DELETE("/:id", h.DeleteOrder)
	}

	return r
}
