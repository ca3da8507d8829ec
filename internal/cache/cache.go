// Package cache кеш HTTP-ответов на чтение с инвалидацией по префиксу ключа.
package cache

import (
	"context"
	"time"
)

// Cache хранилище закешированных ответов
type Cache interface {
	// Get возвращает значение и признак попадания
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Generation возвращает текущее поколение префикса.
	// Каждый InvalidatePrefix увеличивает его до удаления ключей.
	Generation(ctx context.Context, prefix string) (int64, error)
	// SetIfGeneration записывает значение, только если поколение префикса
	// все еще равно gen. false означает, что между чтением поколения и
	// записью префикс был инвалидирован.
	SetIfGeneration(ctx context.Context, prefix string, gen int64, key string, value []byte, ttl time.Duration) (bool, error)
	// InvalidatePrefix удаляет все ключи с префиксом и возвращает их количество
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
	Close() error
}

// Nop отключенный кеш: всегда промах
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) Generation(context.Context, string) (int64, error) { return 0, nil }
func (Nop) SetIfGeneration(context.Context, string, int64, string, []byte, time.Duration) (bool, error) {
	return false, nil
}
func (Nop) InvalidatePrefix(context.Context, string) (int, error) { return 0, nil }
func (Nop) Close() error { return nil }
