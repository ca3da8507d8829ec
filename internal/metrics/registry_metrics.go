// Package metrics метрики Prometheus сервиса реестра.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "registry"

// Режимы attach
const (
	AttachModeRetry       = "retry"
	AttachModeTransaction = "transaction"
)

// Виды сирот для reconciler
const (
	OrphanCanonical = "canonical"
	OrphanEmbedded  = "embedded"
)

// RegistryMetrics метрики реестра
type RegistryMetrics struct {
	customersCreated     prometheus.Counter
	customersDeleted     prometheus.Counter
	attached             *prometheus.CounterVec
	attachRetries        prometheus.Counter
	attachFailures       *prometheus.CounterVec
	partialFailures      prometheus.Counter
	attachDuration       prometheus.Histogram
	subscriptionsCleared prometheus.Counter
	orphans              *prometheus.GaugeVec
	orphansPurged        prometheus.Counter
	reconcileRuns        *prometheus.CounterVec
	cacheRequests        *prometheus.CounterVec
	httpRequests         *prometheus.CounterVec
	httpDuration         *prometheus.HistogramVec
}

// NewRegistry создает реестр Prometheus со стандартными коллекторами Go и процесса
func NewRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// NewRegistryMetrics регистрирует метрики в registry
func NewRegistryMetrics(registry prometheus.Registerer) *RegistryMetrics {
	factory := promauto.With(registry)

	return &RegistryMetrics{
		customersCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "customers_created_total",
			Help:      "The total number of created customers",
		}),
		customersDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "customers_deleted_total",
			Help:      "The total number of deleted customers",
		}),
		attached: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_attached_total",
			Help:      "The total number of subscriptions attached to customers",
		}, []string{"mode"}),
		attachRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attach_append_retries_total",
			Help:      "The total number of retried embedded-copy appends",
		}),
		attachFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attach_failures_total",
			Help:      "The total number of failed attach operations by stage",
		}, []string{"stage"}),
		partialFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attach_partial_failures_total",
			Help:      "The total number of attaches that left an orphaned canonical subscription",
		}),
		attachDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attach_duration_seconds",
			Help:      "Attach operation latency",
			Buckets:   prometheus.DefBuckets,
		}),
		subscriptionsCleared: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriptions_cleared_total",
			Help:      "The total number of canonical subscriptions removed by clear-all",
		}),
		orphans: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "orphans",
			Help:      "Orphans found by the last reconciliation run",
		}, []string{"kind"}),
		orphansPurged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orphans_purged_total",
			Help:      "The total number of canonical orphans deleted by the reconciler",
		}),
		reconcileRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "The total number of reconciliation runs by result",
		}, []string{"result"}),
		cacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Response cache lookups by result",
		}, []string{"result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "The total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// IncCustomerCreated увеличивает счетчик созданных клиентов
func (m *RegistryMetrics) IncCustomerCreated() {
	m.customersCreated.Inc()
}

// IncCustomerDeleted увеличивает счетчик удаленных клиентов
func (m *RegistryMetrics) IncCustomerDeleted() {
	m.customersDeleted.Inc()
}

// IncAttached увеличивает счетчик успешных attach
func (m *RegistryMetrics) IncAttached(mode string) {
	m.attached.WithLabelValues(mode).Inc()
}

// IncAttachRetry увеличивает счетчик повторов добавления копии
func (m *RegistryMetrics) IncAttachRetry() {
	m.attachRetries.Inc()
}

// IncAttachFailure stage: resolve, create, append, transaction
func (m *RegistryMetrics) IncAttachFailure(stage string) {
	m.attachFailures.WithLabelValues(stage).Inc()
}

// IncPartialFailure увеличивает счетчик частичных отказов
func (m *RegistryMetrics) IncPartialFailure() {
	m.partialFailures.Inc()
}

// ObserveAttachDuration записывает длительность attach
func (m *RegistryMetrics) ObserveAttachDuration(d time.Duration) {
	m.attachDuration.Observe(d.Seconds())
}

// AddSubscriptionsCleared добавляет количество удаленных записей
func (m *RegistryMetrics) AddSubscriptionsCleared(n int64) {
	m.subscriptionsCleared.Add(float64(n))
}

// SetOrphans записывает результат последней сверки
func (m *RegistryMetrics) SetOrphans(kind string, n int) {
	m.orphans.WithLabelValues(kind).Set(float64(n))
}

// AddOrphansPurged добавляет количество удаленных сирот
func (m *RegistryMetrics) AddOrphansPurged(n int) {
	m.orphansPurged.Add(float64(n))
}

// IncReconcileRun result: ok, error
func (m *RegistryMetrics) IncReconcileRun(result string) {
	m.reconcileRuns.WithLabelValues(result).Inc()
}

// IncCacheRequest result: hit, miss, error
func (m *RegistryMetrics) IncCacheRequest(result string) {
	m.cacheRequests.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest записывает запрос и его длительность
func (m *RegistryMetrics) ObserveHTTPRequest(method, route, status string, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
