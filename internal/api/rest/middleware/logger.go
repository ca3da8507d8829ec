package middleware

import (
	"strconv"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/metrics"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader заголовок идентификатора запроса
const RequestIDHeader = "X-Request-ID"

// LoggerMiddleware создает middleware для логирования запросов и метрик HTTP
func LoggerMiddleware(log *logger.Logger, m *metrics.RegistryMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("requestID", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		latency := time.Since(startTime)
		statusCode := c.Writer.Status()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(statusCode), latency)

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.RequestURI,
			"status", statusCode,
			"latency", latency.String(),
			"clientIP", c.ClientIP(),
			"requestID", requestID,
		}
		switch {
		case statusCode >= 500:
			log.Errorw("Request completed", fields...)
		case statusCode >= 400:
			log.Warnw("Request completed", fields...)
		default:
			log.Infow("Request completed", fields...)
		}
	}
}
