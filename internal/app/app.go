// Package app собирает компоненты сервиса и управляет их жизненным циклом.
package app

import (
	"context"
	"fmt"

	"github.com/Dhoini/mailbox-registry/internal/api/rest"
	"github.com/Dhoini/mailbox-registry/internal/cache"
	"github.com/Dhoini/mailbox-registry/internal/config"
	"github.com/Dhoini/mailbox-registry/internal/events"
	"github.com/Dhoini/mailbox-registry/internal/kafka"
	"github.com/Dhoini/mailbox-registry/internal/metrics"
	"github.com/Dhoini/mailbox-registry/internal/repository"
	"github.com/Dhoini/mailbox-registry/internal/service"
	"github.com/Dhoini/mailbox-registry/internal/store"
	"github.com/Dhoini/mailbox-registry/internal/store/memory"
	"github.com/Dhoini/mailbox-registry/internal/store/mongo"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	cfg        *config.Config
	log        *logger.Logger
	store      store.Store
	cache      cache.Cache
	publisher  events.Publisher
	reconciler *service.Reconciler
	server     *rest.Server
}

// New создает и инициализирует новый экземпляр приложения.
// При ошибке уже открытые ресурсы закрываются.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log}
	ready := false
	defer func() {
		if !ready {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	var (
		tx  store.Transactor
		err error
	)
	a.store, tx, err = openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a.cache, err = openCache(cfg, log)
	if err != nil {
		return nil, err
	}

	a.publisher, err = openPublisher(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	customers := repository.NewCustomerRepository(a.store, log.Named("customers"))
	if err = customers.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	subscriptions := repository.NewSubscriptionRepository(a.store, log.Named("subscriptions"))

	registry := metrics.NewRegistry()
	m := metrics.NewRegistryMetrics(registry)

	deps := service.Deps{
		Customers:     customers,
		Subscriptions: subscriptions,
		Transactor:    tx,
		Publisher:     a.publisher,
		Metrics:       m,
	}
	svc := service.NewRegistryService(deps, service.Options{
		DefaultPageSize:     cfg.Pagination.DefaultPageSize,
		MaxPageSize:         cfg.Pagination.MaxPageSize,
		AttachMaxRetries:    cfg.Attach.MaxRetries,
		AttachRetryInterval: cfg.Attach.RetryInterval,
		AttachTimeout:       cfg.Attach.Timeout,
	}, log.Named("registry"))

	a.reconciler = service.NewReconciler(deps, service.Policy(cfg.Reconcile.Policy),
		cfg.Reconcile.GracePeriod, log.Named("reconciler"))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := rest.SetupRouter(rest.Deps{
		Customers:     svc,
		Subscriptions: svc,
		Reconciler:    a.reconciler,
		Store:         a.store,
		Cache:         a.cache,
		CacheTTL:      cfg.Cache.TTL,
		Registry:      registry,
		Metrics:       m,
	}, log.Named("http"))
	a.server = rest.NewServer(router, cfg, log)

	ready = true
	return a, nil
}

// Run запускает HTTP сервер и сверку по расписанию; блокируется до отмены ctx
func (a *App) Run(ctx context.Context) error {
	if err := a.reconciler.Start(a.cfg.Reconcile.Schedule); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.server.Start)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.Server.ShutdownTimeout)
		defer cancel()

		a.reconciler.Stop(shutdownCtx)
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// Close освобождает внешние ресурсы
func (a *App) Close(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warnw("Failed to close event publisher", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warnw("Failed to close cache", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			a.log.Warnw("Failed to close store", "error", err)
		}
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (store.Store, store.Transactor, error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Warnw("Using in-memory store, data is lost on restart")
		if cfg.Attach.Transactions {
			log.Warnw("In-memory store has no transactions, ATTACH_TRANSACTIONS ignored")
		}
		return memory.New(), nil, nil
	case "mongo":
		s, err := mongo.NewConnection(ctx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout, log.Named("mongo"))
		if err != nil {
			return nil, nil, err
		}
		if cfg.Attach.Transactions {
			return s, s, nil
		}
		return s, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func openCache(cfg *config.Config, log *logger.Logger) (cache.Cache, error) {
	switch cfg.Cache.Driver {
	case "redis":
		c, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, log.Named("cache"))
		if err != nil {
			return nil, err
		}
		return c, nil
	case "memory":
		c, err := cache.NewLRUCache(cfg.Cache.Size)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "none", "":
		return cache.Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

// openPublisher возвращает продюсер Kafka или Nop, если брокеры не заданы
func openPublisher(ctx context.Context, cfg *config.Config, log *logger.Logger) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		log.Infow("Kafka brokers are not configured, domain events disabled")
		return events.Nop{}, nil
	}

	if err := kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, log); err != nil {
		// топик может создаваться брокером автоматически
		log.Warnw("Failed to ensure kafka topic", "error", err, "topic", cfg.Kafka.Topic)
	}

	p, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, log.Named("kafka"))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return p, nil
}
