package mongo

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/store"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestToBSONConvertsID(t *testing.T) {
	oid := primitive.NewObjectID()

	f, err := toBSON(store.Filter{"_id": oid.Hex(), "nr_casella": "12"})
	require.NoError(t, err)
	assert.Equal(t, oid, f["_id"])
	assert.Equal(t, "12", f["nr_casella"])

	_, err = toBSON(store.ByID("zzz"))
	assert.ErrorIs(t, err, store.ErrInvalidID)
}

func TestMapError(t *testing.T) {
	assert.ErrorIs(t, mapError("find", mongo.ErrNoDocuments), store.ErrNotFound)
	assert.ErrorIs(t, mapError("insert", errors.New("connection reset")), store.ErrUnavailable)
	assert.ErrorIs(t, mapError("find", context.DeadlineExceeded), context.DeadlineExceeded)

	dup := mongo.WriteException{WriteErrors: mongo.WriteErrors{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, mapError("insert", dup), store.ErrDuplicateKey)
}

// newTestStore подключается к MongoDB из MONGO_TEST_URI; без нее тест пропускается
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	dbName := "registry_test_" + primitive.NewObjectID().Hex()
	s, err := NewConnection(ctx, uri, dbName, 5*time.Second, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(ctx)
		_ = s.Close(ctx)
	})
	return s
}

type box struct {
	Name  string   `bson:"name"`
	Box   string   `bson:"box"`
	Items []string `bson:"items"`
}

func TestMongoCollectionContract(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := s.Collection("people", store.WithTimestamps())
	require.NoError(t, c.EnsureUniqueIndex(ctx, "box"))

	id, err := c.Create(ctx, box{Name: "Bruno", Box: "1", Items: []string{}})
	require.NoError(t, err)
	_, err = c.Create(ctx, box{Name: "Anna", Box: "2", Items: []string{}})
	require.NoError(t, err)

	_, err = c.Create(ctx, box{Name: "Carla", Box: "1", Items: []string{}})
	assert.ErrorIs(t, err, store.ErrDuplicateKey)

	docs, err := c.Find(ctx, nil, store.FindOptions{SortField: "name", Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Anna", docs[0].Lookup("name").StringValue())

	ok, err := c.AppendToArray(ctx, store.ByID(id), "items", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.AppendToArray(ctx, store.ByID(id), "items", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	raw, err := c.UpdateByID(ctx, id, bson.M{"name": "Bruna"})
	require.NoError(t, err)
	var got box
	require.NoError(t, bson.Unmarshal(raw, &got))
	assert.Equal(t, box{Name: "Bruna", Box: "1", Items: []string{"a"}}, got)

	_, err = c.DeleteByID(ctx, id)
	require.NoError(t, err)
	_, err = c.FindByID(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := c.DeleteMany(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
