package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/gin-gonic/gin"
)

const pingTimeout = 2 * time.Second

// Pinger проверка доступности хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck обработчик для проверки работоспособности сервиса
func HealthCheck(store Pinger, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), pingTimeout)
		defer cancel()

		status, code := "OK", http.StatusOK
		if err := store.Ping(ctx); err != nil {
			log.Warnw("Health check failed", "error", err)
			status, code = "UNAVAILABLE", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status": status,
			"time":   time.Now().Format(time.RFC3339),
		})
	}
}
