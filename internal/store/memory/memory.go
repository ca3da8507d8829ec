// Package memory реализует store.Store в памяти процесса.
// Документы хранятся как bson.Raw; все операции выполняются под одной блокировкой,
// поэтому каждая из них атомарна, как одиночная операция документной БД.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type collectionData struct {
	docs   map[primitive.ObjectID]bson.Raw
	order  []primitive.ObjectID
	unique map[string]struct{}
}

// Store хранилище документов в памяти
type Store struct {
	mutex       sync.RWMutex
	collections map[string]*collectionData
	closed      bool
	now         func() time.Time
}

// New создает пустое хранилище
func New() *Store {
	return &Store{
		collections: make(map[string]*collectionData),
		now:         time.Now,
	}
}

// Collection возвращает коллекцию по имени (создается лениво)
func (s *Store) Collection(name string, opts ...store.CollectionOption) store.Collection {
	return &collection{store: s, name: name, cfg: store.ApplyOptions(opts...)}
}

// Ping проверяет, что хранилище не закрыто
func (s *Store) Ping(ctx context.Context) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	if s.closed {
		return store.Unavailable("ping", fmt.Errorf("store closed"))
	}
	return nil
}

// Close закрывает хранилище; последующие операции вернут ErrUnavailable
func (s *Store) Close(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}

// data возвращает данные коллекции; вызывать под блокировкой записи
func (s *Store) data(name string) *collectionData {
	d, ok := s.collections[name]
	if !ok {
		d = &collectionData{
			docs:   make(map[primitive.ObjectID]bson.Raw),
			unique: make(map[string]struct{}),
		}
		s.collections[name] = d
	}
	return d
}

func (s *Store) checkOpen(op string) error {
	if s.closed {
		return store.Unavailable(op, fmt.Errorf("store closed"))
	}
	return nil
}

type collection struct {
	store *Store
	name  string
	cfg   store.CollectionConfig
}

func (c *collection) Create(ctx context.Context, doc any) (string, error) {
	m, oid, err := store.PrepareInsert(doc, c.cfg, c.store.now())
	if err != nil {
		return "", err
	}
	raw, err := bson.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	c.store.mutex.Lock()
	defer c.store.mutex.Unlock()
	if err := c.store.checkOpen("create"); err != nil {
		return "", err
	}

	data := c.store.data(c.name)
	if _, exists := data.docs[oid]; exists {
		return "", fmt.Errorf("%w: _id %s", store.ErrDuplicateKey, oid.Hex())
	}
	if err := data.checkUnique(oid, raw); err != nil {
		return "", err
	}

	data.docs[oid] = raw
	data.order = append(data.order, oid)
	return oid.Hex(), nil
}

func (c *collection) FindByID(ctx context.Context, id string) (bson.Raw, error) {
	oid, err := store.ParseID(id)
	if err != nil {
		return nil, err
	}

	c.store.mutex.RLock()
	defer c.store.mutex.RUnlock()
	if err := c.store.checkOpen("find by id"); err != nil {
		return nil, err
	}

	data, ok := c.store.collections[c.name]
	if !ok {
		return nil, store.ErrNotFound
	}
	raw, ok := data.docs[oid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clone(raw), nil
}

func (c *collection) Find(ctx context.Context, filter store.Filter, opts store.FindOptions) ([]bson.Raw, error) {
	c.store.mutex.RLock()
	defer c.store.mutex.RUnlock()
	if err := c.store.checkOpen("find"); err != nil {
		return nil, err
	}

	data, ok := c.store.collections[c.name]
	if !ok {
		return []bson.Raw{}, nil
	}

	matched, err := data.match(filter)
	if err != nil {
		return nil, err
	}

	if opts.SortField != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a := matched[i].Lookup(opts.SortField)
			b := matched[j].Lookup(opts.SortField)
			if opts.SortDesc {
				return less(b, a)
			}
			return less(a, b)
		})
	}

	if opts.Skip > 0 {
		if opts.Skip >= int64(len(matched)) {
			return []bson.Raw{}, nil
		}
		matched = matched[opts.Skip:]
	}
	if opts.Limit > 0 && opts.Limit < int64(len(matched)) {
		matched = matched[:opts.Limit]
	}

	out := make([]bson.Raw, len(matched))
	for i, raw := range matched {
		out[i] = clone(raw)
	}
	return out, nil
}

func (c *collection) Count(ctx context.Context, filter store.Filter) (int64, error) {
	c.store.mutex.RLock()
	defer c.store.mutex.RUnlock()
	if err := c.store.checkOpen("count"); err != nil {
		return 0, err
	}

	data, ok := c.store.collections[c.name]
	if !ok {
		return 0, nil
	}
	matched, err := data.match(filter)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (c *collection) UpdateByID(ctx context.Context, id string, patch bson.M) (bson.Raw, error) {
	oid, err := store.ParseID(id)
	if err != nil {
		return nil, err
	}
	set := store.PreparePatch(patch, c.cfg, c.store.now())

	c.store.mutex.Lock()
	defer c.store.mutex.Unlock()
	if err := c.store.checkOpen("update by id"); err != nil {
		return nil, err
	}

	data := c.store.data(c.name)
	raw, ok := data.docs[oid]
	if !ok {
		return nil, store.ErrNotFound
	}

	doc, err := elements(raw)
	if err != nil {
		return nil, err
	}
	for key, value := range set {
		rv, err := rawValue(value)
		if err != nil {
			return nil, fmt.Errorf("marshal field %s: %w", key, err)
		}
		doc = setField(doc, key, rv)
	}

	updated, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	if err := data.checkUnique(oid, updated); err != nil {
		return nil, err
	}

	data.docs[oid] = updated
	return clone(updated), nil
}

func (c *collection) AppendToArray(ctx context.Context, filter store.Filter, field string, value any) (bool, error) {
	elem, err := rawValue(value)
	if err != nil {
		return false, fmt.Errorf("marshal array element: %w", err)
	}
	var stamp bson.RawValue
	if c.cfg.Timestamps {
		if stamp, err = rawValue(primitive.NewDateTimeFromTime(c.store.now())); err != nil {
			return false, err
		}
	}

	c.store.mutex.Lock()
	defer c.store.mutex.Unlock()
	if err := c.store.checkOpen("append to array"); err != nil {
		return false, err
	}

	data := c.store.data(c.name)
	oid, raw, found, err := data.first(filter)
	if err != nil || !found {
		return false, err
	}

	var items []any
	if existing, lookupErr := raw.LookupErr(field); lookupErr == nil {
		arr, ok := existing.ArrayOK()
		if !ok {
			return false, fmt.Errorf("field %s is not an array", field)
		}
		values, err := arr.Values()
		if err != nil {
			return false, fmt.Errorf("read array %s: %w", field, err)
		}
		for _, v := range values {
			if v.Type == elem.Type && bytes.Equal(v.Value, elem.Value) {
				// элемент уже есть, документ не меняется
				return true, nil
			}
			items = append(items, v)
		}
	}
	items = append(items, elem)

	doc, err := elements(raw)
	if err != nil {
		return false, err
	}
	arr, err := rawValue(bson.A(items))
	if err != nil {
		return false, fmt.Errorf("marshal array %s: %w", field, err)
	}
	doc = setField(doc, field, arr)
	if c.cfg.Timestamps {
		doc = setField(doc, store.UpdatedAtField, stamp)
	}

	updated, err := bson.Marshal(doc)
	if err != nil {
		return false, fmt.Errorf("marshal document: %w", err)
	}
	data.docs[oid] = updated
	return true, nil
}

func (c *collection) DeleteByID(ctx context.Context, id string) (bson.Raw, error) {
	oid, err := store.ParseID(id)
	if err != nil {
		return nil, err
	}

	c.store.mutex.Lock()
	defer c.store.mutex.Unlock()
	if err := c.store.checkOpen("delete by id"); err != nil {
		return nil, err
	}

	data := c.store.data(c.name)
	raw, ok := data.docs[oid]
	if !ok {
		return nil, store.ErrNotFound
	}
	data.remove(oid)
	return raw, nil
}

func (c *collection) DeleteMany(ctx context.Context, filter store.Filter) (int64, error) {
	c.store.mutex.Lock()
	defer c.store.mutex.Unlock()
	if err := c.store.checkOpen("delete many"); err != nil {
		return 0, err
	}

	data := c.store.data(c.name)
	var victims []primitive.ObjectID
	for _, oid := range data.order {
		ok, err := matches(data.docs[oid], filter)
		if err != nil {
			return 0, err
		}
		if ok {
			victims = append(victims, oid)
		}
	}
	for _, oid := range victims {
		data.remove(oid)
	}
	return int64(len(victims)), nil
}

func (c *collection) EnsureUniqueIndex(ctx context.Context, field string) error {
	c.store.mutex.Lock()
	defer c.store.mutex.Unlock()
	if err := c.store.checkOpen("create index"); err != nil {
		return err
	}

	data := c.store.data(c.name)
	seen := make(map[string]primitive.ObjectID)
	for _, oid := range data.order {
		rv, err := data.docs[oid].LookupErr(field)
		if err != nil {
			continue
		}
		key := string(rv.Value)
		if other, dup := seen[key]; dup {
			return fmt.Errorf("%w: cannot build unique index on %s: %s and %s collide",
				store.ErrDuplicateKey, field, other.Hex(), oid.Hex())
		}
		seen[key] = oid
	}
	data.unique[field] = struct{}{}
	return nil
}

// checkUnique проверяет уникальные индексы для документа raw с идентификатором self
func (d *collectionData) checkUnique(self primitive.ObjectID, raw bson.Raw) error {
	for field := range d.unique {
		candidate, err := raw.LookupErr(field)
		if err != nil {
			continue
		}
		for _, oid := range d.order {
			if oid == self {
				continue
			}
			other, err := d.docs[oid].LookupErr(field)
			if err != nil {
				continue
			}
			if other.Type == candidate.Type && bytes.Equal(other.Value, candidate.Value) {
				return fmt.Errorf("%w: %s", store.ErrDuplicateKey, field)
			}
		}
	}
	return nil
}

func (d *collectionData) match(filter store.Filter) ([]bson.Raw, error) {
	out := make([]bson.Raw, 0, len(d.order))
	for _, oid := range d.order {
		raw := d.docs[oid]
		ok, err := matches(raw, filter)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, raw)
		}
	}
	return out, nil
}

func (d *collectionData) first(filter store.Filter) (primitive.ObjectID, bson.Raw, bool, error) {
	for _, oid := range d.order {
		raw := d.docs[oid]
		ok, err := matches(raw, filter)
		if err != nil {
			return primitive.NilObjectID, nil, false, err
		}
		if ok {
			return oid, raw, true, nil
		}
	}
	return primitive.NilObjectID, nil, false, nil
}

func (d *collectionData) remove(oid primitive.ObjectID) {
	delete(d.docs, oid)
	for i, id := range d.order {
		if id == oid {
			d.order = append(d.order[:i], d.order[i+1:]...)
			return
		}
	}
}

func matches(raw bson.Raw, filter store.Filter) (bool, error) {
	for key, want := range filter {
		if key == store.IDField {
			if s, ok := want.(string); ok {
				oid, err := store.ParseID(s)
				if err != nil {
					return false, err
				}
				want = oid
			}
		}
		expected, err := rawValue(want)
		if err != nil {
			return false, fmt.Errorf("marshal filter %s: %w", key, err)
		}
		got, err := raw.LookupErr(key)
		if err != nil {
			return false, nil
		}
		if got.Type != expected.Type || !bytes.Equal(got.Value, expected.Value) {
			return false, nil
		}
	}
	return true, nil
}

// less сравнивает значения для сортировки; отсутствующие поля идут первыми
func less(a, b bson.RawValue) bool {
	if a.Type == 0 || b.Type == 0 {
		return a.Type == 0 && b.Type != 0
	}
	as, aok := a.StringValueOK()
	bs, bok := b.StringValueOK()
	if aok && bok {
		return as < bs
	}
	if at, ok := a.DateTimeOK(); ok {
		if bt, ok := b.DateTimeOK(); ok {
			return at < bt
		}
	}
	return false
}

func rawValue(v any) (bson.RawValue, error) {
	if rv, ok := v.(bson.RawValue); ok {
		return rv, nil
	}
	t, data, err := bson.MarshalValue(v)
	if err != nil {
		return bson.RawValue{}, err
	}
	return bson.RawValue{Type: t, Value: data}, nil
}

// elements раскладывает документ на поля с сохранением порядка и байтов значений
func elements(raw bson.Raw) (bson.D, error) {
	elems, err := raw.Elements()
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc := make(bson.D, 0, len(elems)+1)
	for _, e := range elems {
		doc = append(doc, bson.E{Key: e.Key(), Value: e.Value()})
	}
	return doc, nil
}

func setField(doc bson.D, key string, value bson.RawValue) bson.D {
	for i := range doc {
		if doc[i].Key == key {
			doc[i].Value = value
			return doc
		}
	}
	return append(doc, bson.E{Key: key, Value: value})
}

func clone(raw bson.Raw) bson.Raw {
	return append(bson.Raw(nil), raw...)
}
