package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/mailbox-registry/internal/service"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/Dhoini/mailbox-registry/pkg/res"
	"github.com/gin-gonic/gin"
)

// SubscriptionService массовые операции над каноническими абонементами
type SubscriptionService interface {
	ClearSubscriptions(ctx context.Context) (int64, error)
}

// Reconciler запуск сверки по запросу
type Reconciler interface {
	Run(ctx context.Context) (service.Report, error)
}

// SubscriptionHandler обработчик для канонических абонементов
type SubscriptionHandler struct {
	service    SubscriptionService
	reconciler Reconciler
	log        *logger.Logger
}

// NewSubscriptionHandler создает новый обработчик абонементов
func NewSubscriptionHandler(service SubscriptionService, reconciler Reconciler, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service:    service,
		reconciler: reconciler,
		log:        log,
	}
}

// ClearSubscriptions удаляет все канонические абонементы
func (h *SubscriptionHandler) ClearSubscriptions(c *gin.Context) {
	n, err := h.service.ClearSubscriptions(c.Request.Context())
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	h.log.Infow("Subscriptions cleared", "deletedCount", n)
	res.JSON(c, http.StatusOK, gin.H{"statusCode": http.StatusOK, "deletedCount": n})
}

// Reconcile выполняет сверку и возвращает отчет
func (h *SubscriptionHandler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		respondError(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, report)
}
