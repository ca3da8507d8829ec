// Package service бизнес-логика реестра: клиенты, абонементы и их согласованность.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/internal/events"
	"github.com/Dhoini/mailbox-registry/internal/metrics"
	"github.com/Dhoini/mailbox-registry/internal/repository"
	"github.com/Dhoini/mailbox-registry/internal/store"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const publishTimeout = 5 * time.Second

// Options параметры сервиса
type Options struct {
	DefaultPageSize     int64
	MaxPageSize         int64
	AttachMaxRetries    uint64
	AttachRetryInterval time.Duration
	AttachTimeout       time.Duration
}

// DefaultOptions значения по умолчанию
func DefaultOptions() Options {
	return Options{
		DefaultPageSize:     50,
		MaxPageSize:         500,
		AttachMaxRetries:    3,
		AttachRetryInterval: 100 * time.Millisecond,
		AttachTimeout:       5 * time.Second,
	}
}

// Deps зависимости сервиса. Transactor и Publisher необязательны.
type Deps struct {
	Customers     repository.CustomerRepository
	Subscriptions repository.SubscriptionRepository
	Transactor    store.Transactor
	Publisher     events.Publisher
	Metrics       *metrics.RegistryMetrics
}

// RegistryService операции над клиентами и их абонементами
type RegistryService struct {
	customers     repository.CustomerRepository
	subscriptions repository.SubscriptionRepository
	tx            store.Transactor
	publisher     events.Publisher
	metrics       *metrics.RegistryMetrics
	opts          Options
	log           *logger.Logger
}

// NewRegistryService создает сервис реестра
func NewRegistryService(deps Deps, opts Options, log *logger.Logger) *RegistryService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewRegistryMetrics(prometheus.NewRegistry())
	}
	return &RegistryService{
		customers:     deps.Customers,
		subscriptions: deps.Subscriptions,
		tx:            deps.Transactor,
		publisher:     publisher,
		metrics:       m,
		opts:          opts,
		log:           log,
	}
}

// ListCustomers возвращает страницу клиентов. Size == 0 означает размер по умолчанию,
// размер больше максимального урезается.
func (s *RegistryService) ListCustomers(ctx context.Context, page domain.Page) (domain.CustomerPage, error) {
	var errs domain.ValidationErrors
	if page.Number < 1 {
		errs.Add("page", "must be a positive integer")
	}
	if page.Size < 0 {
		errs.Add("pageSize", "must be a positive integer")
	}
	if errs.HasErrors() {
		return domain.CustomerPage{}, errs
	}

	switch {
	case page.Size == 0:
		page.Size = s.opts.DefaultPageSize
	case page.Size > s.opts.MaxPageSize:
		page.Size = s.opts.MaxPageSize
	}

	s.log.Debugw("Listing customers", "page", page.Number, "pageSize", page.Size)
	return s.customers.List(ctx, page)
}

// GetCustomer возвращает клиента со всеми копиями абонементов
func (s *RegistryService) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	return s.customers.GetByID(ctx, id)
}

// CreateCustomer создает клиента и возвращает его ID
func (s *RegistryService) CreateCustomer(ctx context.Context, input domain.CustomerInput) (string, error) {
	input = input.Normalize()
	if err := input.Validate(); err != nil {
		return "", err
	}

	id, err := s.customers.Create(ctx, input)
	if err != nil {
		return "", err
	}

	s.metrics.IncCustomerCreated()
	s.log.Infow("Customer created", "customerID", id, "mailbox", input.Mailbox)
	s.publish(ctx, events.Event{Type: events.CustomerCreated, CustomerID: id, Mailbox: input.Mailbox})
	return id, nil
}

// UpdateCustomer применяет частичное обновление
func (s *RegistryService) UpdateCustomer(ctx context.Context, id string, patch domain.CustomerPatch) (domain.Customer, error) {
	if patch.IsEmpty() {
		var errs domain.ValidationErrors
		errs.Add("body", "patch must contain at least one field")
		return domain.Customer{}, errs
	}

	customer, err := s.customers.Update(ctx, id, patch)
	if err != nil {
		return domain.Customer{}, err
	}
	s.log.Infow("Customer updated", "customerID", id)
	return customer, nil
}

// DeleteCustomer удаляет клиента; канонические абонементы остаются
func (s *RegistryService) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.customers.Delete(ctx, id); err != nil {
		return err
	}

	s.metrics.IncCustomerDeleted()
	s.log.Infow("Customer deleted", "customerID", id)
	s.publish(ctx, events.Event{Type: events.CustomerDeleted, CustomerID: id})
	return nil
}

// ClearSubscriptions удаляет все канонические абонементы.
// Копии в документах клиентов остаются как история.
func (s *RegistryService) ClearSubscriptions(ctx context.Context) (int64, error) {
	n, err := s.subscriptions.ClearAll(ctx)
	if err != nil {
		return 0, err
	}

	s.metrics.AddSubscriptionsCleared(n)
	s.publish(ctx, events.Event{Type: events.SubscriptionsCleared, Count: n})
	return n, nil
}

// AttachSubscription создает каноническую запись абонемента и добавляет ее копию клиенту.
//
// Без транзакций запись создается первой, затем копия добавляется с повторами.
// Если добавить копию не удалось, возвращается *domain.PartialFailureError с созданной записью;
// такую запись находит Reconciler.
func (s *RegistryService) AttachSubscription(ctx context.Context, customerID string, input domain.SubscriptionInput) (domain.Subscription, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveAttachDuration(time.Since(start)) }()

	if err := input.Validate(); err != nil {
		return domain.Subscription{}, err
	}

	if _, err := s.customers.GetByID(ctx, customerID); err != nil {
		s.metrics.IncAttachFailure("resolve")
		return domain.Subscription{}, err
	}

	if s.tx != nil {
		return s.attachInTransaction(ctx, customerID, input)
	}

	sub, err := s.subscriptions.Create(ctx, input)
	if err != nil {
		s.metrics.IncAttachFailure("create")
		return domain.Subscription{}, err
	}

	if err := s.appendCopy(ctx, customerID, sub); err != nil {
		s.metrics.IncAttachFailure("append")
		s.metrics.IncPartialFailure()
		s.log.Errorw("Subscription created but not attached to customer",
			"error", err, "customerID", customerID, "subscriptionID", sub.ID)
		s.publish(ctx, events.Event{Type: events.SubscriptionOrphaned, CustomerID: customerID, SubscriptionID: sub.ID})
		return sub, &domain.PartialFailureError{CustomerID: customerID, Subscription: sub, OriginalErr: err}
	}

	s.metrics.IncAttached(metrics.AttachModeRetry)
	s.log.Infow("Subscription attached", "customerID", customerID, "subscriptionID", sub.ID)
	s.publish(ctx, events.Event{Type: events.SubscriptionAttached, CustomerID: customerID, SubscriptionID: sub.ID})
	return sub, nil
}

// appendCopy добавляет копию с экспоненциальными повторами. Отмена запроса не прерывает
// добавление: запись уже создана, и копию нужно довести до конца.
func (s *RegistryService) appendCopy(ctx context.Context, customerID string, sub domain.Subscription) error {
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.AttachTimeout)
	defer cancel()

	attempt := 0
	operation := func() error {
		attempt++
		if attempt > 1 {
			s.metrics.IncAttachRetry()
		}

		err := s.customers.AppendSubscriptionCopy(appendCtx, customerID, sub.Copy())
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidIdentifier) {
			return backoff.Permanent(err)
		}
		s.log.Warnw("Failed to append subscription copy", "error", err, "attempt", attempt,
			"customerID", customerID, "subscriptionID", sub.ID)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.AttachRetryInterval
	bo.MaxElapsedTime = 0 // ограничено числом повторов и таймаутом
	bo.Reset()

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, s.opts.AttachMaxRetries), appendCtx))
}

func (s *RegistryService) attachInTransaction(ctx context.Context, customerID string, input domain.SubscriptionInput) (domain.Subscription, error) {
	var sub domain.Subscription
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		created, err := s.subscriptions.Create(txCtx, input)
		if err != nil {
			return err
		}
		if err := s.customers.AppendSubscriptionCopy(txCtx, customerID, created.Copy()); err != nil {
			return err
		}
		sub = created
		return nil
	})
	if err != nil {
		s.metrics.IncAttachFailure("transaction")
		s.log.Errorw("Attach transaction failed", "error", err, "customerID", customerID)
		return domain.Subscription{}, err
	}

	s.metrics.IncAttached(metrics.AttachModeTransaction)
	s.log.Infow("Subscription attached", "customerID", customerID, "subscriptionID", sub.ID, "transaction", true)
	s.publish(ctx, events.Event{Type: events.SubscriptionAttached, CustomerID: customerID, SubscriptionID: sub.ID})
	return sub, nil
}

// publish отправляет событие; ошибка публикации не влияет на результат операции
func (s *RegistryService) publish(ctx context.Context, event events.Event) {
	event.OccurredAt = time.Now().UTC()

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.log.Warnw("Failed to publish event", "error", err, "type", event.Type)
	}
}
