package rest

import (
	"time"

	"github.com/Dhoini/mailbox-registry/internal/api/rest/handlers"
	"github.com/Dhoini/mailbox-registry/internal/api/rest/middleware"
	"github.com/Dhoini/mailbox-registry/internal/cache"
	"github.com/Dhoini/mailbox-registry/internal/metrics"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	customersPath     = "/customers"
	subscriptionsPath = "/subscriptions"
)

// Deps зависимости маршрутизатора
type Deps struct {
	Customers     handlers.CustomerService
	Subscriptions handlers.SubscriptionService
	Reconciler    handlers.Reconciler
	Store         handlers.Pinger
	Cache         cache.Cache
	CacheTTL      time.Duration
	Registry      *prometheus.Registry
	Metrics       *metrics.RegistryMetrics
}

// SetupRouter настраивает маршрутизатор Gin с маршрутами и middleware
func SetupRouter(deps Deps, log *logger.Logger) *gin.Engine {
	r := gin.New()

	responseCache := deps.Cache
	if responseCache == nil {
		responseCache = cache.Nop{}
	}
	if deps.Registry == nil {
		deps.Registry = metrics.NewRegistry()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewRegistryMetrics(deps.Registry)
	}

	// Подключение middleware
	r.Use(middleware.LoggerMiddleware(log, deps.Metrics))
	r.Use(gin.Recovery())
	r.Use(middleware.CacheMiddleware(responseCache, middleware.CacheConfig{
		Prefixes: []string{customersPath},
		Invalidate: map[string][]string{
			customersPath:     {customersPath},
			subscriptionsPath: {subscriptionsPath},
		},
		TTL: deps.CacheTTL,
	}, deps.Metrics, log))

	r.GET("/health", handlers.HealthCheck(deps.Store, log))
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	customerHandler := handlers.NewCustomerHandler(deps.Customers, log)
	subscriptionHandler := handlers.NewSubscriptionHandler(deps.Subscriptions, deps.Reconciler, log)

	customers := r.Group(customersPath)
	{
		customers.GET("", customerHandler.GetCustomers)
		customers.POST("", customerHandler.CreateCustomer)
		customers.GET("/:id", customerHandler.GetCustomer)
		customers.POST("/:id", customerHandler.AttachSubscription)
		customers.PATCH("/:id", customerHandler.UpdateCustomer)
		customers.DELETE("/:id", customerHandler.DeleteCustomer)
	}

	r.DELETE(subscriptionsPath, subscriptionHandler.ClearSubscriptions)
	r.GET("/reconciliation", subscriptionHandler.Reconcile)

	return r
}
