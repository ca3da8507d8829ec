package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "mongo", cfg.Store.Driver)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
	assert.Equal(t, int64(50), cfg.Pagination.DefaultPageSize)
	assert.Equal(t, int64(500), cfg.Pagination.MaxPageSize)
	assert.Equal(t, uint64(3), cfg.Attach.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, cfg.Attach.RetryInterval)
	assert.Equal(t, "report", cfg.Reconcile.Policy)
	assert.Equal(t, 5*time.Minute, cfg.Reconcile.GracePeriod)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CACHE_DRIVER", "redis")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PAGINATION_DEFAULT_PAGE_SIZE", "20")
	t.Setenv("ATTACH_RETRY_INTERVAL", "250ms")
	t.Setenv("ATTACH_TRANSACTIONS", "true")
	t.Setenv("RECONCILE_SCHEDULE", "")
	t.Setenv("RECONCILE_POLICY", "purge")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, int64(20), cfg.Pagination.DefaultPageSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Attach.RetryInterval)
	assert.True(t, cfg.Attach.Transactions)
	assert.Empty(t, cfg.Reconcile.Schedule)
	assert.Equal(t, "purge", cfg.Reconcile.Policy)
}

func TestLoadConfigEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MONGO_DATABASE=from_file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("MONGO_DATABASE") })

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from_file", cfg.Mongo.Database)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"STORE_DRIVER":             "postgres",
		"CACHE_DRIVER":             "memcached",
		"RECONCILE_POLICY":         "delete-everything",
		"PAGINATION_MAX_PAGE_SIZE": "10",
		"LOG_LEVEL":                "verbose",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := LoadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigPurgeGracePeriod(t *testing.T) {
	t.Setenv("RECONCILE_POLICY", "purge")
	t.Setenv("ATTACH_TIMEOUT", "5s")

	for _, grace := range []string{"0s", "1s", "5s"} {
		t.Setenv("RECONCILE_GRACE_PERIOD", grace)
		_, err := LoadConfig("")
		assert.Error(t, err, grace)
	}

	t.Setenv("RECONCILE_GRACE_PERIOD", "6s")
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, cfg.Reconcile.GracePeriod)

	// для report grace period не ограничен
	t.Setenv("RECONCILE_POLICY", "report")
	t.Setenv("RECONCILE_GRACE_PERIOD", "0s")
	_, err = LoadConfig("")
	assert.NoError(t, err)
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:1", "b:2", "c:3"}, splitBrokers([]string{"a:1,b:2", " c:3 ", ""}))
	assert.Empty(t, splitBrokers(nil))
}
