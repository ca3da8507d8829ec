package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/Dhoini/mailbox-registry/pkg/res"
	"github.com/gin-gonic/gin"
)

// statusClientClosedRequest клиент закрыл соединение до ответа
const statusClientClosedRequest = 499

// respondError переводит доменную ошибку в HTTP-ответ.
// PartialFailureError обрабатывается отдельно в обработчике attach.
func respondError(c *gin.Context, err error, log *logger.Logger) {
	var (
		verrs    domain.ValidationErrors
		notFound *domain.NotFoundError
		dup      *domain.DuplicateMailboxError
	)

	switch {
	case errors.As(err, &verrs):
		res.Error(c, http.StatusBadRequest, res.ErrorResponse{Message: "validation failed", Errors: verrs}, log)
	case errors.Is(err, domain.ErrInvalidIdentifier):
		res.Error(c, http.StatusBadRequest, res.ErrorResponse{Message: "invalid identifier"}, log)
	case errors.As(err, &notFound):
		res.Error(c, http.StatusNotFound, res.ErrorResponse{Message: notFound.Error()}, log)
	case errors.As(err, &dup):
		res.Error(c, http.StatusConflict, res.ErrorResponse{Message: dup.Error()}, log)
	case errors.Is(err, context.Canceled):
		log.Debugw("Request canceled by client", "path", c.FullPath())
		c.AbortWithStatus(statusClientClosedRequest)
	default:
		log.Errorw("Request failed", "error", err, "path", c.FullPath())
		res.Error(c, http.StatusInternalServerError, res.ErrorResponse{Message: "internal server error"}, log)
	}
}
