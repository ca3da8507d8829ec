package res

import (
	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorResponse представляет формат JSON-ответа для ошибок.
type ErrorResponse struct {
	Message    string                   `json:"message"`          // Сообщение об ошибке (для пользователя)
	StatusCode int                      `json:"statusCode"`       // HTTP-статус, дублируется в теле
	Errors     []domain.ValidationError `json:"errors,omitempty"` // Ошибки валидации по полям
}

// JSON отправляет JSON-ответ с заданным статусом.
func JSON(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// Message отправляет ответ вида {message, statusCode} с дополнительными полями.
func Message(c *gin.Context, status int, message string, fields gin.H) {
	body := gin.H{"message": message, "statusCode": status}
	for k, v := range fields {
		body[k] = v
	}
	c.JSON(status, body)
}

// Error отправляет JSON ответ ошибки и прерывает цепочку обработчиков.
func Error(c *gin.Context, status int, errResponse ErrorResponse, log *logger.Logger) {
	errResponse.StatusCode = status
	c.AbortWithStatusJSON(status, errResponse)

	if status >= 500 {
		log.Errorw("Error response", "status", status, "message", errResponse.Message, "path", c.FullPath())
		return
	}
	log.Debugw("Error response", "status", status, "message", errResponse.Message, "errors", errResponse.Errors)
}
