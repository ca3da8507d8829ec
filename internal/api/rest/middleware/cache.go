package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/cache"
	"github.com/Dhoini/mailbox-registry/internal/metrics"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/gin-gonic/gin"
)

// CacheHeader заголовок с результатом обращения к кешу (HIT/MISS)
const CacheHeader = "X-Cache"

// invalidateTimeout ограничивает инвалидацию, которая не зависит от отмены запроса
const invalidateTimeout = 5 * time.Second

// cachedResponse закешированный ответ
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// bodyRecorder копирует тело ответа в буфер
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// CacheConfig настройки кеша ответов
type CacheConfig struct {
	// Prefixes пути, GET-ответы которых кешируются
	Prefixes []string
	// Invalidate префиксы, сбрасываемые после изменения по пути-ключу.
	// Сбрасываемый префикс должен совпадать с элементом Prefixes,
	// иначе его поколение не защитит запись в кеш.
	Invalidate map[string][]string
	TTL        time.Duration
}

// CacheMiddleware кеширует успешные GET-ответы по пути с параметрами и сбрасывает
// кеш после любого изменяющего запроса.
func CacheMiddleware(store cache.Cache, cfg CacheConfig, m *metrics.RegistryMetrics, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		switch c.Request.Method {
		case http.MethodGet:
			prefix, ok := matchPrefix(path, cfg.Prefixes)
			if !ok {
				c.Next()
				return
			}
			serveCached(c, store, prefix, cfg.TTL, m, log)

		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			c.Next()
			invalidate(c.Request.Context(), store, path, cfg.Invalidate, log)

		default:
			c.Next()
		}
	}
}

// invalidate сбрасывает кеш после изменения. Изменение уже применено,
// поэтому отмена запроса клиентом не должна прерывать сброс.
func invalidate(reqCtx context.Context, store cache.Cache, path string, rules map[string][]string, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(reqCtx), invalidateTimeout)
	defer cancel()

	for prefix, targets := range rules {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		for _, target := range targets {
			n, err := store.InvalidatePrefix(ctx, target)
			if err != nil {
				log.Warnw("Failed to invalidate cache", "error", err, "prefix", target)
				continue
			}
			log.Debugw("Cache invalidated", "prefix", target, "keys", n)
		}
	}
}

func serveCached(c *gin.Context, store cache.Cache, prefix string, ttl time.Duration, m *metrics.RegistryMetrics, log *logger.Logger) {
	key := c.Request.URL.RequestURI()
	ctx := c.Request.Context()

	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		m.IncCacheRequest("error")
		log.Warnw("Cache read failed", "error", err, "key", key)
	}
	if ok {
		var cached cachedResponse
		if err := json.Unmarshal(raw, &cached); err == nil {
			m.IncCacheRequest("hit")
			c.Header(CacheHeader, "HIT")
			c.Data(cached.Status, cached.ContentType, cached.Body)
			c.Abort()
			return
		}
		log.Warnw("Corrupted cache entry", "key", key)
	}

	m.IncCacheRequest("miss")
	c.Header(CacheHeader, "MISS")

	// поколение читается до обработчика: если изменение успеет сбросить
	// префикс, пока строится ответ, запись будет отклонена
	gen, err := store.Generation(ctx, prefix)
	if err != nil {
		log.Warnw("Cache generation read failed", "error", err, "prefix", prefix)
		c.Next()
		return
	}

	rec := &bodyRecorder{ResponseWriter: c.Writer}
	c.Writer = rec
	c.Next()

	if rec.Status() != http.StatusOK {
		return
	}
	value, err := json.Marshal(cachedResponse{
		Status:      rec.Status(),
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.body.Bytes(),
	})
	if err != nil {
		return
	}
	stored, err := store.SetIfGeneration(ctx, prefix, gen, key, value, ttl)
	if err != nil {
		log.Warnw("Cache write failed", "error", err, "key", key)
		return
	}
	if !stored {
		log.Debugw("Response not cached, prefix invalidated meanwhile", "key", key)
	}
}

func matchPrefix(path string, prefixes []string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return p, true
		}
	}
	return "", false
}
