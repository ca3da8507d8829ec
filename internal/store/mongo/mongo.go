// Package mongo реализует store.Store поверх MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/store"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Store хранилище документов в MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logger.Logger
}

var _ store.Transactor = (*Store)(nil)

// NewConnection подключается к MongoDB и проверяет соединение
func NewConnection(ctx context.Context, uri, database string, timeout time.Duration, log *logger.Logger) (*Store, error) {
	log.Infow("Connecting to MongoDB", "database", database)

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(timeout).
		SetServerSelectionTimeout(timeout)

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongo: %w", err)
	}

	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("unable to ping mongo: %w", err)
	}

	log.Infow("Successfully connected to MongoDB", "database", database)
	return &Store{client: client, db: client.Database(database), log: log}, nil
}

// Collection возвращает коллекцию по имени
func (s *Store) Collection(name string, opts ...store.CollectionOption) store.Collection {
	return &collection{coll: s.db.Collection(name), cfg: store.ApplyOptions(opts...)}
}

// Ping проверяет доступность сервера
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return store.Unavailable("ping", err)
	}
	return nil
}

// Close закрывает соединение
func (s *Store) Close(ctx context.Context) error {
	s.log.Infow("Closing MongoDB connection")
	return s.client.Disconnect(ctx)
}

// WithTransaction выполняет fn в многодокументной транзакции.
// Требует replica set или sharded cluster.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return store.Unavailable("start session", err)
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

type collection struct {
	coll *mongo.Collection
	cfg  store.CollectionConfig
}

func (c *collection) Create(ctx context.Context, doc any) (string, error) {
	m, oid, err := store.PrepareInsert(doc, c.cfg, time.Now())
	if err != nil {
		return "", err
	}
	if _, err := c.coll.InsertOne(ctx, m); err != nil {
		return "", mapError("insert", err)
	}
	return oid.Hex(), nil
}

func (c *collection) FindByID(ctx context.Context, id string) (bson.Raw, error) {
	oid, err := store.ParseID(id)
	if err != nil {
		return nil, err
	}
	raw, err := c.coll.FindOne(ctx, bson.M{store.IDField: oid}).Raw()
	if err != nil {
		return nil, mapError("find by id", err)
	}
	return raw, nil
}

func (c *collection) Find(ctx context.Context, filter store.Filter, opts store.FindOptions) ([]bson.Raw, error) {
	f, err := toBSON(filter)
	if err != nil {
		return nil, err
	}

	findOpts := options.Find()
	if opts.SortField != "" {
		dir := 1
		if opts.SortDesc {
			dir = -1
		}
		findOpts.SetSort(bson.D{{Key: opts.SortField, Value: dir}, {Key: store.IDField, Value: 1}})
	}
	if opts.Skip > 0 {
		findOpts.SetSkip(opts.Skip)
	}
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cursor, err := c.coll.Find(ctx, f, findOpts)
	if err != nil {
		return nil, mapError("find", err)
	}
	defer cursor.Close(ctx)

	docs := make([]bson.Raw, 0)
	for cursor.Next(ctx) {
		docs = append(docs, append(bson.Raw(nil), cursor.Current...))
	}
	if err := cursor.Err(); err != nil {
		return nil, mapError("iterate cursor", err)
	}
	return docs, nil
}

func (c *collection) Count(ctx context.Context, filter store.Filter) (int64, error) {
	f, err := toBSON(filter)
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, f)
	if err != nil {
		return 0, mapError("count", err)
	}
	return n, nil
}

func (c *collection) UpdateByID(ctx context.Context, id string, patch bson.M) (bson.Raw, error) {
	oid, err := store.ParseID(id)
	if err != nil {
		return nil, err
	}
	set := store.PreparePatch(patch, c.cfg, time.Now())

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	raw, err := c.coll.FindOneAndUpdate(ctx, bson.M{store.IDField: oid}, bson.M{"$set": set}, opts).Raw()
	if err != nil {
		return nil, mapError("update by id", err)
	}
	return raw, nil
}

func (c *collection) AppendToArray(ctx context.Context, filter store.Filter, field string, value any) (bool, error) {
	f, err := toBSON(filter)
	if err != nil {
		return false, err
	}

	update := bson.M{"$addToSet": bson.M{field: value}}
	if c.cfg.Timestamps {
		update["$set"] = bson.M{store.UpdatedAtField: primitive.NewDateTimeFromTime(time.Now())}
	}

	res, err := c.coll.UpdateOne(ctx, f, update)
	if err != nil {
		return false, mapError("append to array", err)
	}
	return res.MatchedCount > 0, nil
}

func (c *collection) DeleteByID(ctx context.Context, id string) (bson.Raw, error) {
	oid, err := store.ParseID(id)
	if err != nil {
		return nil, err
	}
	raw, err := c.coll.FindOneAndDelete(ctx, bson.M{store.IDField: oid}).Raw()
	if err != nil {
		return nil, mapError("delete by id", err)
	}
	return raw, nil
}

func (c *collection) DeleteMany(ctx context.Context, filter store.Filter) (int64, error) {
	f, err := toBSON(filter)
	if err != nil {
		return 0, err
	}
	res, err := c.coll.DeleteMany(ctx, f)
	if err != nil {
		return 0, mapError("delete many", err)
	}
	return res.DeletedCount, nil
}

func (c *collection) EnsureUniqueIndex(ctx context.Context, field string) error {
	model := mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(true).SetName(field + "_unique"),
	}
	if _, err := c.coll.Indexes().CreateOne(ctx, model); err != nil {
		return mapError("create index", err)
	}
	return nil
}

func toBSON(filter store.Filter) (bson.M, error) {
	out := make(bson.M, len(filter))
	for k, v := range filter {
		if k == store.IDField {
			if s, ok := v.(string); ok {
				oid, err := store.ParseID(s)
				if err != nil {
					return nil, err
				}
				v = oid
			}
		}
		out[k] = v
	}
	return out, nil
}

func mapError(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s: %v", store.ErrDuplicateKey, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return store.Unavailable(op, err)
	}
}
