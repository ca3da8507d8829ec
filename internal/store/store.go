// Package store описывает адаптер документного хранилища.
// Каждая операция атомарна в пределах одного документа; междокументной
// атомарности нет (кроме Transactor, если движок его поддерживает).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrNotFound документ не найден
	ErrNotFound = errors.New("document not found")

	// ErrInvalidID идентификатор не является ObjectID
	ErrInvalidID = errors.New("invalid document id")

	// ErrDuplicateKey нарушен уникальный индекс
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnavailable движок хранилища недоступен
	ErrUnavailable = errors.New("store unavailable")
)

const (
	// IDField имя поля идентификатора
	IDField = "_id"
	// CreatedAtField время создания (для коллекций с WithTimestamps)
	CreatedAtField = "createdAt"
	// UpdatedAtField время последнего изменения
	UpdatedAtField = "updatedAt"
)

// Filter условие равенства по полям верхнего уровня.
// Значение поля "_id" передается строкой (hex ObjectID).
type Filter map[string]any

// ByID фильтр по идентификатору
func ByID(id string) Filter {
	return Filter{IDField: id}
}

// FindOptions сортировка и пагинация для Find.
// Limit == 0 означает без ограничения.
type FindOptions struct {
	SortField string
	SortDesc  bool
	Skip      int64
	Limit     int64
}

// Collection операции над одной коллекцией документов.
type Collection interface {
	// Create вставляет документ и возвращает сгенерированный идентификатор.
	Create(ctx context.Context, doc any) (string, error)
	FindByID(ctx context.Context, id string) (bson.Raw, error)
	Find(ctx context.Context, filter Filter, opts FindOptions) ([]bson.Raw, error)
	Count(ctx context.Context, filter Filter) (int64, error)
	// UpdateByID сливает patch с документом ($set) и возвращает результат.
	UpdateByID(ctx context.Context, id string, patch bson.M) (bson.Raw, error)
	// AppendToArray добавляет value в массив field первого документа под filter,
	// если идентичного элемента там еще нет. Возвращает false, если документ не найден.
	AppendToArray(ctx context.Context, filter Filter, field string, value any) (bool, error)
	DeleteByID(ctx context.Context, id string) (bson.Raw, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
	// EnsureUniqueIndex создает уникальный индекс; нарушения дают ErrDuplicateKey.
	EnsureUniqueIndex(ctx context.Context, field string) error
}

// Store доступ к коллекциям и жизненный цикл соединения.
type Store interface {
	Collection(name string, opts ...CollectionOption) Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Transactor реализуется хранилищами с многодокументными транзакциями.
// fn получает контекст транзакции; все операции внутри фиксируются вместе.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CollectionConfig настройки коллекции
type CollectionConfig struct {
	Timestamps bool
}

// CollectionOption опция коллекции
type CollectionOption func(*CollectionConfig)

// WithTimestamps включает автоматические createdAt/updatedAt
func WithTimestamps() CollectionOption {
	return func(c *CollectionConfig) {
		c.Timestamps = true
	}
}

// ApplyOptions собирает конфигурацию коллекции
func ApplyOptions(opts ...CollectionOption) CollectionConfig {
	var cfg CollectionConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// ParseID разбирает hex-представление ObjectID
func ParseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return oid, nil
}

// PrepareInsert превращает doc в bson.M, назначает _id и метки времени.
func PrepareInsert(doc any, cfg CollectionConfig, now time.Time) (bson.M, primitive.ObjectID, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, primitive.NilObjectID, fmt.Errorf("marshal document: %w", err)
	}

	var m bson.M
	if err := bson.Unmarshal(data, &m); err != nil {
		return nil, primitive.NilObjectID, fmt.Errorf("unmarshal document: %w", err)
	}

	oid, ok := m[IDField].(primitive.ObjectID)
	if !ok || oid.IsZero() {
		oid = primitive.NewObjectID()
		m[IDField] = oid
	}

	if cfg.Timestamps {
		m[CreatedAtField] = primitive.NewDateTimeFromTime(now)
		m[UpdatedAtField] = primitive.NewDateTimeFromTime(now)
	}
	return m, oid, nil
}

// PreparePatch копирует patch, добавляя updatedAt и запрещая изменение _id.
func PreparePatch(patch bson.M, cfg CollectionConfig, now time.Time) bson.M {
	out := make(bson.M, len(patch)+1)
	for k, v := range patch {
		if k == IDField || k == CreatedAtField {
			continue
		}
		out[k] = v
	}
	if cfg.Timestamps {
		out[UpdatedAtField] = primitive.NewDateTimeFromTime(now)
	}
	return out
}

// Unavailable оборачивает ошибку движка в ErrUnavailable
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
