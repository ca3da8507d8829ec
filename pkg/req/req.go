package req

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/Dhoini/mailbox-registry/pkg/res"
	"github.com/gin-gonic/gin"
)

// Validatable тело запроса, которое умеет проверять себя
type Validatable interface {
	Validate() error
}

// Decode декодирует JSON из io.Reader в структуру типа T.
func Decode[T any](body io.Reader) (T, error) {
	var payload T
	if body == nil {
		return payload, errors.New("empty request body")
	}
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return payload, fmt.Errorf("decode body: %w", err)
	}
	return payload, nil
}

// HandleBody декодирует и валидирует тело запроса.
// При ошибке отправляет 400 и возвращает false.
func HandleBody[T Validatable](c *gin.Context, log *logger.Logger) (T, bool) {
	body, err := Decode[T](c.Request.Body)
	if err != nil {
		log.Debugw("Failed to decode request body", "error", err)
		res.Error(c, http.StatusBadRequest, res.ErrorResponse{Message: "malformed JSON body"}, log)
		return body, false
	}

	if err := body.Validate(); err != nil {
		var verrs domain.ValidationErrors
		if errors.As(err, &verrs) {
			res.Error(c, http.StatusBadRequest, res.ErrorResponse{Message: "validation failed", Errors: verrs}, log)
		} else {
			res.Error(c, http.StatusBadRequest, res.ErrorResponse{Message: err.Error()}, log)
		}
		return body, false
	}
	return body, true
}
