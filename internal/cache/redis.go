package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префикс ключей кеша ответов
	responseKeyPrefix = "registry:response:"
	// Префикс счетчиков поколений
	generationKeyPrefix = "registry:generation:"

	scanBatch = 100
)

// RedisCache реализует Cache поверх Redis
type RedisCache struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisCache подключается к Redis и проверяет соединение
func NewRedisCache(redisAddr, redisPassword string, redisDB int, log *logger.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return &RedisCache{
		client: client,
		log:    log,
	}, nil
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// Get получает ответ из кеша
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, responseKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		r.log.Errorw("Failed to get response from cache", "error", err, "key", key)
		return nil, false, fmt.Errorf("failed to get cached response: %w", err)
	}
	return data, true, nil
}

// Set кеширует ответ с TTL
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, responseKeyPrefix+key, value, ttl).Err(); err != nil {
		r.log.Errorw("Failed to cache response in Redis", "error", err, "key", key)
		return fmt.Errorf("failed to cache response: %w", err)
	}
	return nil
}

var errStaleGeneration = errors.New("cache generation changed")

// Generation читает счетчик поколения префикса (0, если его еще нет)
func (r *RedisCache) Generation(ctx context.Context, prefix string) (int64, error) {
	gen, err := r.client.Get(ctx, generationKeyPrefix+prefix).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// SetIfGeneration пишет ответ в MULTI/EXEC под WATCH на счетчик поколения
func (r *RedisCache) SetIfGeneration(ctx context.Context, prefix string, gen int64, key string, value []byte, ttl time.Duration) (bool, error) {
	genKey := generationKeyPrefix + prefix
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, responseKeyPrefix+key, value, ttl)
			return nil
		})
		return err
	}, genKey)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		r.log.Debugw("Skipped caching stale response", "key", key, "prefix", prefix)
		return false, nil
	default:
		r.log.Errorw("Failed to cache response in Redis", "error", err, "key", key)
		return false, fmt.Errorf("failed to cache response: %w", err)
	}
}

// InvalidatePrefix увеличивает поколение префикса и удаляет его ключи (SCAN + DEL)
func (r *RedisCache) InvalidatePrefix(ctx context.Context, prefix string) (int, error) {
	var (
		deleted int
		batch   []string
	)

	if err := r.client.Incr(ctx, generationKeyPrefix+prefix).Err(); err != nil {
		r.log.Errorw("Failed to bump cache generation", "error", err, "prefix", prefix)
		return 0, fmt.Errorf("failed to bump cache generation: %w", err)
	}

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		deleted += int(n)
		batch = batch[:0]
		return nil
	}

	iter := r.client.Scan(ctx, 0, responseKeyPrefix+prefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			if err := flush(); err != nil {
				r.log.Errorw("Failed to invalidate cache", "error", err, "prefix", prefix)
				return deleted, fmt.Errorf("failed to invalidate cache: %w", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		r.log.Errorw("Failed to scan cache keys", "error", err, "prefix", prefix)
		return deleted, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if err := flush(); err != nil {
		r.log.Errorw("Failed to invalidate cache", "error", err, "prefix", prefix)
		return deleted, fmt.Errorf("failed to invalidate cache: %w", err)
	}

	r.log.Debugw("Cache invalidated", "prefix", prefix, "keys", deleted)
	return deleted, nil
}
