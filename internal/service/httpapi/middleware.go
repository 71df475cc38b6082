package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shop-orders/internal/auth"
	"github.com/vladislavdragonenkov/shop-orders/internal/service/orderview"
)

const (
	tokenCookie      = "token"
	identityCtxKey   = "identity"
	requestIDHeader  = "X-Request-Id"
	loggedBodyLimit  = 8 * 1024
	redactedValue    = "***redacted***"
	bearerPrefix     = "Bearer "
	unmatchedRoute   = "unmatched"
	idempotencyKeyHd = "Idempotency-Key"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shop_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// sensitiveFields не попадают в журнал запросов.
var sensitiveFields = map[string]struct{}{
	"cardnumber":    {},
	"ccv":           {},
	"token":         {},
	"password":      {},
	"authorization": {},
}

// metricsMiddleware считает запросы по шаблону маршрута, а не по фактическому пути.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// loggingMiddleware пишет одну строку на запрос. Тело JSON-запроса логируется с маскировкой
// чувствительных полей, обработчик получает исходное тело.
func loggingMiddleware(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = strconv.FormatInt(start.UnixNano(), 36)
		}
		c.Header(requestIDHeader, reqID)

		var (
			logged   string
			bodySize = -1
		)
		if c.Request.Body != nil && strings.Contains(c.ContentType(), "json") {
			body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
			_ = c.Request.Body.Close()
			if err == nil {
				c.Request.Body = io.NopCloser(bytes.NewReader(body))
				bodySize = len(body)
				// Маскируем всё тело целиком и только потом обрезаем: неразобранное тело не логируется.
				if redacted, ok := redactJSON(body); ok {
					logged = string(truncate(redacted, loggedBodyLimit))
				}
			}
		}

		c.Next()

		status := c.Writer.Status()
		fields := log.Fields{
			"request_id":  reqID,
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote":      c.ClientIP(),
		}
		if bodySize >= 0 {
			fields["body_bytes"] = bodySize
		}
		if logged != "" {
			fields["body"] = logged
		}
		if identity, ok := identityFrom(c); ok {
			fields["user_id"] = identity.UserID
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}

		entry := logger.WithFields(fields)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("http request")
		case status >= http.StatusBadRequest:
			entry.Warn("http request")
		default:
			entry.Info("http request")
		}
	}
}

// authenticate берёт токен из cookie token или заголовка Authorization: Bearer.
func authenticate(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := verifier.Parse(tokenFrom(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Set(identityCtxKey, identity)
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), identity))
		c.Next()
	}
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := identityFrom(c)
		if !ok || !identity.IsAdmin() {
			abortWithError(c, auth.ErrForbidden)
			return
		}
		c.Next()
	}
}

func tokenFrom(c *gin.Context) string {
	if cookie, err := c.Cookie(tokenCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimPrefix(header, bearerPrefix)
	}
	return ""
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(identityCtxKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

func abortWithError(c *gin.Context, err error) {
	status, body := orderview.ErrorResponse(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

// redactJSON возвращает false, если тело не разбирается как JSON.
func redactJSON(raw []byte) ([]byte, bool) {
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, false
	}
	out, err := json.Marshal(scrub(value))
	if err != nil {
		return nil, false
	}
	return out, true
}

func scrub(value any) any {
	switch v := value.(type) {
	case map[string]any:
		for key, inner := range v {
			if _, ok := sensitiveFields[strings.ToLower(key)]; ok {
				v[key] = redactedValue
				continue
			}
			v[key] = scrub(inner)
		}
		return v
	case []any:
		for i := range v {
			v[i] = scrub(v[i])
		}
		return v
	default:
		return v
	}
}

func truncate(body []byte, limit int) []byte {
	if len(body) <= limit {
		return body
	}
	return body[:limit]
}
