package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/internal/store"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubscriptionsCollection имя коллекции канонических абонементов
const SubscriptionsCollection = "subscriptions"

// SubscriptionRepository хранилище канонических абонементов
type SubscriptionRepository interface {
	Create(ctx context.Context, input domain.SubscriptionInput) (domain.Subscription, error)
	All(ctx context.Context) ([]domain.Subscription, error)
	Delete(ctx context.Context, id string) error
	// ClearAll удаляет все канонические записи; копии у клиентов остаются.
	ClearAll(ctx context.Context) (int64, error)
}

type subscriptionDocument struct {
	ID     primitive.ObjectID `bson:"_id,omitempty"`
	Serial string             `bson:"serie"`
	Note   string             `bson:"note"`
}

func (d subscriptionDocument) toDomain() domain.Subscription {
	return domain.Subscription{ID: d.ID.Hex(), Serial: d.Serial, Note: d.Note}
}

// SubscriptionDocumentRepository реализация SubscriptionRepository поверх store.Collection
type SubscriptionDocumentRepository struct {
	coll store.Collection
	log  *logger.Logger
}

// NewSubscriptionRepository создает репозиторий абонементов
func NewSubscriptionRepository(s store.Store, log *logger.Logger) *SubscriptionDocumentRepository {
	return &SubscriptionDocumentRepository{
		coll: s.Collection(SubscriptionsCollection),
		log:  log,
	}
}

// Create сохраняет каноническую запись
func (r *SubscriptionDocumentRepository) Create(ctx context.Context, input domain.SubscriptionInput) (domain.Subscription, error) {
	id, err := r.coll.Create(ctx, subscriptionDocument{Serial: input.Serial, Note: input.Note})
	if err != nil {
		r.log.Errorw("Failed to create subscription", "error", err, "serie", input.Serial)
		return domain.Subscription{}, mapStoreError(err, entitySubscription, "")
	}
	return domain.Subscription{ID: id, Serial: input.Serial, Note: input.Note}, nil
}

// All возвращает все канонические записи
func (r *SubscriptionDocumentRepository) All(ctx context.Context) ([]domain.Subscription, error) {
	raws, err := r.coll.Find(ctx, nil, store.FindOptions{})
	if err != nil {
		r.log.Errorw("Failed to load subscriptions", "error", err)
		return nil, mapStoreError(err, entitySubscription, "")
	}

	subs := make([]domain.Subscription, 0, len(raws))
	for _, raw := range raws {
		var doc subscriptionDocument
		if err := bson.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		subs = append(subs, doc.toDomain())
	}
	return subs, nil
}

// Delete удаляет каноническую запись
func (r *SubscriptionDocumentRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteByID(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Errorw("Failed to delete subscription", "error", err, "subscriptionID", id)
		}
		return mapStoreError(err, entitySubscription, id)
	}
	return nil
}

// ClearAll удаляет все канонические записи и возвращает их количество
func (r *SubscriptionDocumentRepository) ClearAll(ctx context.Context) (int64, error) {
	n, err := r.coll.DeleteMany(ctx, nil)
	if err != nil {
		r.log.Errorw("Failed to clear subscriptions", "error", err)
		return 0, mapStoreError(err, entitySubscription, "")
	}
	r.log.Infow("Subscriptions cleared", "deletedCount", n)
	return n, nil
}
