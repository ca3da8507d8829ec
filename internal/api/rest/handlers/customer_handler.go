package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/Dhoini/mailbox-registry/pkg/req"
	"github.com/Dhoini/mailbox-registry/pkg/res"
	"github.com/gin-gonic/gin"
)

// CustomerService операции над клиентами, нужные обработчику
type CustomerService interface {
	ListCustomers(ctx context.Context, page domain.Page) (domain.CustomerPage, error)
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
	CreateCustomer(ctx context.Context, input domain.CustomerInput) (string, error)
	UpdateCustomer(ctx context.Context, id string, patch domain.CustomerPatch) (domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	AttachSubscription(ctx context.Context, customerID string, input domain.SubscriptionInput) (domain.Subscription, error)
}

// CustomerHandler обработчик для клиентов
type CustomerHandler struct {
	service CustomerService
	log     *logger.Logger
}

// NewCustomerHandler создает новый обработчик клиентов
func NewCustomerHandler(service CustomerService, log *logger.Logger) *CustomerHandler {
	return &CustomerHandler{
		service: service,
		log:     log,
	}
}

// GetCustomers возвращает страницу клиентов (?page=&pageSize=)
func (h *CustomerHandler) GetCustomers(c *gin.Context) {
	page, err := parsePage(c)
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	result, err := h.service.ListCustomers(c.Request.Context(), page)
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	res.Message(c, http.StatusOK, "customers found", gin.H{
		"totalCustomers": result.Total,
		"customers":      result.Customers,
	})
}

// GetCustomer возвращает клиента по ID
func (h *CustomerHandler) GetCustomer(c *gin.Context) {
	id := c.Param("id")

	customer, err := h.service.GetCustomer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	res.Message(c, http.StatusOK, "customer with id "+id+" found", gin.H{"customer": customer})
}

// CreateCustomer создает нового клиента
func (h *CustomerHandler) CreateCustomer(c *gin.Context) {
	input, ok := req.HandleBody[domain.CustomerInput](c, h.log)
	if !ok {
		return
	}

	id, err := h.service.CreateCustomer(c.Request.Context(), input)
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	res.Message(c, http.StatusCreated, "customer created", gin.H{"id": id})
}

// AttachSubscription добавляет абонемент клиенту
func (h *CustomerHandler) AttachSubscription(c *gin.Context) {
	input, ok := req.HandleBody[domain.SubscriptionInput](c, h.log)
	if !ok {
		return
	}

	sub, err := h.service.AttachSubscription(c.Request.Context(), c.Param("id"), input)
	var partial *domain.PartialFailureError
	switch {
	case errors.As(err, &partial):
		res.Message(c, http.StatusMultiStatus, "subscription created but not attached to the customer", gin.H{
			"partialFailure": true,
			"subscription":   partial.Subscription,
		})
	case err != nil:
		respondError(c, err, h.log)
	default:
		res.Message(c, http.StatusCreated, "subscription added", gin.H{"newSubscription": sub})
	}
}

// UpdateCustomer частично обновляет клиента
func (h *CustomerHandler) UpdateCustomer(c *gin.Context) {
	raw, err := req.Decode[map[string]any](c.Request.Body)
	if err != nil {
		res.Error(c, http.StatusBadRequest, res.ErrorResponse{Message: "malformed JSON body"}, h.log)
		return
	}

	patch, err := domain.ParseCustomerPatch(raw)
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	customer, err := h.service.UpdateCustomer(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		respondError(c, err, h.log)
		return
	}

	res.Message(c, http.StatusOK, "customer updated", gin.H{"customer": customer})
}

// DeleteCustomer удаляет клиента
func (h *CustomerHandler) DeleteCustomer(c *gin.Context) {
	if err := h.service.DeleteCustomer(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, h.log)
		return
	}

	res.Message(c, http.StatusOK, "customer deleted", nil)
}

func parsePage(c *gin.Context) (domain.Page, error) {
	var (
		page = domain.Page{Number: 1}
		errs domain.ValidationErrors
	)

	if v, ok := c.GetQuery("page"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			errs.Add("page", "must be a positive integer")
		}
		page.Number = n
	}
	if v, ok := c.GetQuery("pageSize"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			errs.Add("pageSize", "must be a positive integer")
		}
		page.Size = n
	}

	if errs.HasErrors() {
		return domain.Page{}, errs
	}
	return page, nil
}
