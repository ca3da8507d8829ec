package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/internal/store"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// CustomersCollection имя коллекции клиентов
	CustomersCollection = "customers"

	fieldFirstName     = "nome"
	fieldMailbox       = "nr_casella"
	fieldSubscriptions = "abbonamenti"
)

// CustomerRepository хранилище клиентов
type CustomerRepository interface {
	List(ctx context.Context, page domain.Page) (domain.CustomerPage, error)
	All(ctx context.Context) ([]domain.Customer, error)
	GetByID(ctx context.Context, id string) (domain.Customer, error)
	Create(ctx context.Context, input domain.CustomerInput) (string, error)
	Update(ctx context.Context, id string, patch domain.CustomerPatch) (domain.Customer, error)
	Delete(ctx context.Context, id string) error
	// AppendSubscriptionCopy атомарно добавляет копию абонемента; повтор той же копии ничего не меняет.
	AppendSubscriptionCopy(ctx context.Context, customerID string, subCopy domain.SubscriptionCopy) error
	EnsureIndexes(ctx context.Context) error
}

type customerDocument struct {
	ID            primitive.ObjectID         `bson:"_id,omitempty"`
	FirstName     string                     `bson:"nome"`
	LastName      string                     `bson:"cognome"`
	Phone         string                     `bson:"tel"`
	Email         string                     `bson:"email"`
	Mailbox       string                     `bson:"nr_casella"`
	CardNumber    string                     `bson:"nr_tessera"`
	CardPoints    string                     `bson:"pti_tessera"`
	Subscriptions []subscriptionCopyDocument `bson:"abbonamenti"`
	CreatedAt     time.Time                  `bson:"createdAt,omitempty"`
	UpdatedAt     time.Time                  `bson:"updatedAt,omitempty"`
}

// subscriptionCopyDocument порядок и набор полей фиксированы: $addToSet сравнивает элементы целиком
type subscriptionCopyDocument struct {
	ID     primitive.ObjectID `bson:"_id"`
	Serial string             `bson:"serie"`
	Note   string             `bson:"note"`
}

func (d customerDocument) toDomain() domain.Customer {
	subs := make([]domain.SubscriptionCopy, 0, len(d.Subscriptions))
	for _, s := range d.Subscriptions {
		subs = append(subs, s.toDomain())
	}
	return domain.Customer{
		ID:            d.ID.Hex(),
		FirstName:     d.FirstName,
		LastName:      d.LastName,
		Phone:         d.Phone,
		Email:         d.Email,
		Mailbox:       d.Mailbox,
		CardNumber:    d.CardNumber,
		CardPoints:    d.CardPoints,
		Subscriptions: subs,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func (d subscriptionCopyDocument) toDomain() domain.SubscriptionCopy {
	c := domain.SubscriptionCopy{Serial: d.Serial, Note: d.Note}
	if !d.ID.IsZero() {
		c.ID = d.ID.Hex()
	}
	return c
}

func decodeCustomer(raw bson.Raw) (domain.Customer, error) {
	var doc customerDocument
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return domain.Customer{}, fmt.Errorf("decode customer: %w", err)
	}
	return doc.toDomain(), nil
}

// CustomerDocumentRepository реализация CustomerRepository поверх store.Collection
type CustomerDocumentRepository struct {
	coll  store.Collection
	locks *keyedMutex
	log   *logger.Logger
}

// NewCustomerRepository создает репозиторий клиентов
func NewCustomerRepository(s store.Store, log *logger.Logger) *CustomerDocumentRepository {
	return &CustomerDocumentRepository{
		coll:  s.Collection(CustomersCollection, store.WithTimestamps()),
		locks: newKeyedMutex(),
		log:   log,
	}
}

// EnsureIndexes создает уникальный индекс по номеру ящика
func (r *CustomerDocumentRepository) EnsureIndexes(ctx context.Context) error {
	if err := r.coll.EnsureUniqueIndex(ctx, fieldMailbox); err != nil {
		r.log.Errorw("Failed to ensure mailbox index", "error", err)
		return mapStoreError(err, entityCustomer, "")
	}
	return nil
}

// List возвращает страницу клиентов, отсортированных по имени
func (r *CustomerDocumentRepository) List(ctx context.Context, page domain.Page) (domain.CustomerPage, error) {
	total, err := r.coll.Count(ctx, nil)
	if err != nil {
		r.log.Errorw("Failed to count customers", "error", err)
		return domain.CustomerPage{}, mapStoreError(err, entityCustomer, "")
	}

	offset, ok := page.Offset()
	if !ok || offset >= total {
		return domain.CustomerPage{Total: total, Customers: []domain.Customer{}}, nil
	}

	raws, err := r.coll.Find(ctx, nil, store.FindOptions{
		SortField: fieldFirstName,
		Skip:      offset,
		Limit:     page.Size,
	})
	if err != nil {
		r.log.Errorw("Failed to list customers", "error", err, "page", page.Number, "pageSize", page.Size)
		return domain.CustomerPage{}, mapStoreError(err, entityCustomer, "")
	}

	customers, err := decodeCustomers(raws)
	if err != nil {
		return domain.CustomerPage{}, err
	}
	return domain.CustomerPage{Total: total, Customers: customers}, nil
}

// All возвращает всех клиентов
func (r *CustomerDocumentRepository) All(ctx context.Context) ([]domain.Customer, error) {
	raws, err := r.coll.Find(ctx, nil, store.FindOptions{})
	if err != nil {
		r.log.Errorw("Failed to load customers", "error", err)
		return nil, mapStoreError(err, entityCustomer, "")
	}
	return decodeCustomers(raws)
}

// GetByID возвращает клиента по ID
func (r *CustomerDocumentRepository) GetByID(ctx context.Context, id string) (domain.Customer, error) {
	raw, err := r.coll.FindByID(ctx, id)
	if err != nil {
		return domain.Customer{}, mapStoreError(err, entityCustomer, id)
	}
	return decodeCustomer(raw)
}

// Create создает клиента; номер ящика должен быть свободен
func (r *CustomerDocumentRepository) Create(ctx context.Context, input domain.CustomerInput) (string, error) {
	unlock := r.locks.Lock(input.Mailbox)
	defer unlock()

	if err := r.checkMailboxFree(ctx, input.Mailbox, ""); err != nil {
		return "", err
	}

	doc := customerDocument{
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		Phone:         input.Phone,
		Email:         input.Email,
		Mailbox:       input.Mailbox,
		CardNumber:    input.CardNumber,
		CardPoints:    input.CardPoints,
		Subscriptions: []subscriptionCopyDocument{},
	}

	id, err := r.coll.Create(ctx, doc)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return "", domain.NewDuplicateMailboxError(input.Mailbox)
		}
		r.log.Errorw("Failed to create customer", "error", err, "mailbox", input.Mailbox)
		return "", mapStoreError(err, entityCustomer, "")
	}

	r.log.Debugw("Customer created", "customerID", id, "mailbox", input.Mailbox)
	return id, nil
}

// Update сливает заданные поля патча с документом клиента
func (r *CustomerDocumentRepository) Update(ctx context.Context, id string, patch domain.CustomerPatch) (domain.Customer, error) {
	if _, err := store.ParseID(id); err != nil {
		return domain.Customer{}, mapStoreError(err, entityCustomer, id)
	}

	if patch.Mailbox != nil {
		unlock := r.locks.Lock(*patch.Mailbox)
		defer unlock()

		if err := r.checkMailboxFree(ctx, *patch.Mailbox, id); err != nil {
			return domain.Customer{}, err
		}
	}

	raw, err := r.coll.UpdateByID(ctx, id, patchToBSON(patch))
	if err != nil {
		if errors.Is(err, store.ErrDuplicateKey) && patch.Mailbox != nil {
			return domain.Customer{}, domain.NewDuplicateMailboxError(*patch.Mailbox)
		}
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Errorw("Failed to update customer", "error", err, "customerID", id)
		}
		return domain.Customer{}, mapStoreError(err, entityCustomer, id)
	}
	return decodeCustomer(raw)
}

// Delete удаляет клиента. Канонические абонементы не затрагиваются.
func (r *CustomerDocumentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteByID(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrInvalidID) {
			r.log.Errorw("Failed to delete customer", "error", err, "customerID", id)
		}
		return mapStoreError(err, entityCustomer, id)
	}
	return nil
}

// AppendSubscriptionCopy добавляет копию абонемента в конец списка клиента
func (r *CustomerDocumentRepository) AppendSubscriptionCopy(ctx context.Context, customerID string, subCopy domain.SubscriptionCopy) error {
	subID, err := store.ParseID(subCopy.ID)
	if err != nil {
		return mapStoreError(err, entitySubscription, subCopy.ID)
	}

	doc := subscriptionCopyDocument{ID: subID, Serial: subCopy.Serial, Note: subCopy.Note}
	matched, err := r.coll.AppendToArray(ctx, store.ByID(customerID), fieldSubscriptions, doc)
	if err != nil {
		return mapStoreError(err, entityCustomer, customerID)
	}
	if !matched {
		return domain.NewNotFoundError(entityCustomer, customerID)
	}
	return nil
}

// checkMailboxFree проверяет, что ящик не занят другим клиентом (кроме selfID)
func (r *CustomerDocumentRepository) checkMailboxFree(ctx context.Context, mailbox, selfID string) error {
	raws, err := r.coll.Find(ctx, store.Filter{fieldMailbox: mailbox}, store.FindOptions{Limit: 2})
	if err != nil {
		r.log.Errorw("Failed to check mailbox", "error", err, "mailbox", mailbox)
		return mapStoreError(err, entityCustomer, "")
	}
	for _, raw := range raws {
		oid, ok := raw.Lookup(store.IDField).ObjectIDOK()
		if ok && oid.Hex() == selfID {
			continue
		}
		return domain.NewDuplicateMailboxError(mailbox)
	}
	return nil
}

func patchToBSON(p domain.CustomerPatch) bson.M {
	set := bson.M{}
	fields := map[string]*string{
		"nome":        p.FirstName,
		"cognome":     p.LastName,
		"tel":         p.Phone,
		"email":       p.Email,
		"nr_casella":  p.Mailbox,
		"nr_tessera":  p.CardNumber,
		"pti_tessera": p.CardPoints,
	}
	for name, value := range fields {
		if value != nil {
			set[name] = *value
		}
	}
	return set
}

func decodeCustomers(raws []bson.Raw) ([]domain.Customer, error) {
	customers := make([]domain.Customer, 0, len(raws))
	for _, raw := range raws {
		c, err := decodeCustomer(raw)
		if err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, nil
}
