package app

import (
	"context"
	"testing"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/cache"
	"github.com/Dhoini/mailbox-registry/internal/config"
	"github.com/Dhoini/mailbox-registry/internal/events"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("APP_PORT", "0")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("CACHE_DRIVER", "memory")
	t.Setenv("ATTACH_TRANSACTIONS", "true")

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func TestAppRunStopsOnCancel(t *testing.T) {
	cfg := memoryConfig(t)

	a, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.IsType(t, events.Nop{}, a.publisher)
	assert.IsType(t, &cache.LRUCache{}, a.cache)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	assert.NoError(t, a.Run(ctx))
}

func TestAppRejectsInvalidSchedule(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Reconcile.Schedule = "every now and then"

	a, err := New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Error(t, a.Run(context.Background()))
}

func TestOpenCacheDrivers(t *testing.T) {
	cfg := memoryConfig(t)
	log := logger.NewNop()

	cfg.Cache.Driver = "none"
	c, err := openCache(cfg, log)
	require.NoError(t, err)
	assert.IsType(t, cache.Nop{}, c)

	cfg.Cache.Driver = "redis"
	cfg.Redis.Addr = "127.0.0.1:1"
	_, err = openCache(cfg, log)
	assert.Error(t, err)

	cfg.Cache.Driver = "memcached"
	_, err = openCache(cfg, log)
	assert.Error(t, err)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Store.Driver = "postgres"

	_, _, err := openStore(context.Background(), cfg, logger.NewNop())
	assert.Error(t, err)

	cfg.Store.Driver = "memory"
	s, tx, err := openStore(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, s)
	assert.Nil(t, tx)
}
