package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dhoini/mailbox-registry/internal/domain"
	"github.com/Dhoini/mailbox-registry/internal/events"
	"github.com/Dhoini/mailbox-registry/internal/metrics"
	"github.com/Dhoini/mailbox-registry/internal/repository"
	"github.com/Dhoini/mailbox-registry/internal/store"
	"github.com/Dhoini/mailbox-registry/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Policy что делать с найденными каноническими сиротами
type Policy string

const (
	// PolicyReport только сообщать
	PolicyReport Policy = "report"
	// PolicyPurge удалять канонических сирот
	PolicyPurge Policy = "purge"
)

const purgeConcurrency = 4

// EmbeddedOrphan копия абонемента без канонической записи
type EmbeddedOrphan struct {
	CustomerID   string                  `json:"customerId"`
	Subscription domain.SubscriptionCopy `json:"subscription"`
}

// Report результат сверки
type Report struct {
	StartedAt        time.Time        `json:"startedAt"`
	Policy           Policy           `json:"policy"`
	CanonicalOrphans []string         `json:"canonicalOrphans"`
	EmbeddedOrphans  []EmbeddedOrphan `json:"embeddedOrphans"`
	Purged           int              `json:"purged"`
}

// Reconciler ищет рассогласования между каноническими записями и копиями у клиентов
type Reconciler struct {
	customers     repository.CustomerRepository
	subscriptions repository.SubscriptionRepository
	publisher     events.Publisher
	metrics       *metrics.RegistryMetrics
	policy        Policy
	gracePeriod   time.Duration
	now           func() time.Time
	log           *logger.Logger

	runMu sync.Mutex
	cron  *cron.Cron
}

// NewReconciler создает сверщик. gracePeriod защищает записи, чей attach еще не завершен.
func NewReconciler(deps Deps, policy Policy, gracePeriod time.Duration, log *logger.Logger) *Reconciler {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewRegistryMetrics(prometheus.NewRegistry())
	}
	if policy == "" {
		policy = PolicyReport
	}
	return &Reconciler{
		customers:     deps.Customers,
		subscriptions: deps.Subscriptions,
		publisher:     publisher,
		metrics:       m,
		policy:        policy,
		gracePeriod:   gracePeriod,
		now:           time.Now,
		log:           log,
	}
}

// Run выполняет одну сверку. Параллельные вызовы выполняются по очереди.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	report, err := r.run(ctx)
	if err != nil {
		r.metrics.IncReconcileRun("error")
		r.log.Errorw("Reconciliation failed", "error", err)
		return Report{}, err
	}
	r.metrics.IncReconcileRun("ok")
	return report, nil
}

func (r *Reconciler) run(ctx context.Context) (Report, error) {
	report := Report{
		StartedAt:        r.now().UTC(),
		Policy:           r.policy,
		CanonicalOrphans: []string{},
		EmbeddedOrphans:  []EmbeddedOrphan{},
	}

	// Клиенты читаются раньше канонических записей: копия всегда появляется после своей записи,
	// поэтому новая копия не может оказаться без записи в этом снимке.
	customers, err := r.customers.All(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load customers: %w", err)
	}
	canonical, err := r.subscriptions.All(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("load subscriptions: %w", err)
	}

	known := make(map[string]struct{}, len(canonical))
	for _, sub := range canonical {
		known[sub.ID] = struct{}{}
	}

	referenced := make(map[string]struct{})
	for _, c := range customers {
		for _, cp := range c.Subscriptions {
			if cp.ID != "" {
				referenced[cp.ID] = struct{}{}
			}
			if _, ok := known[cp.ID]; !ok {
				report.EmbeddedOrphans = append(report.EmbeddedOrphans, EmbeddedOrphan{CustomerID: c.ID, Subscription: cp})
			}
		}
	}

	cutoff := report.StartedAt.Add(-r.gracePeriod)
	for _, sub := range canonical {
		if _, ok := referenced[sub.ID]; ok {
			continue
		}
		oid, err := store.ParseID(sub.ID)
		if err != nil || oid.Timestamp().After(cutoff) {
			continue
		}
		report.CanonicalOrphans = append(report.CanonicalOrphans, sub.ID)
	}

	r.metrics.SetOrphans(metrics.OrphanCanonical, len(report.CanonicalOrphans))
	r.metrics.SetOrphans(metrics.OrphanEmbedded, len(report.EmbeddedOrphans))

	for _, id := range report.CanonicalOrphans {
		r.log.Warnw("Canonical subscription is not attached to any customer", "subscriptionID", id)
		if err := r.publisher.Publish(ctx, events.Event{
			Type:           events.SubscriptionOrphaned,
			SubscriptionID: id,
			OccurredAt:     report.StartedAt,
		}); err != nil {
			r.log.Warnw("Failed to publish event", "error", err, "type", events.SubscriptionOrphaned)
		}
	}

	if r.policy == PolicyPurge && len(report.CanonicalOrphans) > 0 {
		purged, err := r.purge(ctx, report.CanonicalOrphans)
		report.Purged = purged
		r.metrics.AddOrphansPurged(purged)
		if err != nil {
			return Report{}, fmt.Errorf("purge orphans: %w", err)
		}
	}

	r.log.Infow("Reconciliation finished",
		"policy", r.policy,
		"canonicalOrphans", len(report.CanonicalOrphans),
		"embeddedOrphans", len(report.EmbeddedOrphans),
		"purged", report.Purged)
	return report, nil
}

func (r *Reconciler) purge(ctx context.Context, ids []string) (int, error) {
	var (
		mu     sync.Mutex
		purged int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(purgeConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := r.subscriptions.Delete(gctx, id)
			if errors.Is(err, domain.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			mu.Lock()
			purged++
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return purged, err
}

// Start запускает сверку по расписанию cron. Пустое расписание отключает планировщик.
func (r *Reconciler) Start(schedule string) error {
	if schedule == "" {
		r.log.Infow("Reconciliation schedule is empty, scheduler disabled")
		return nil
	}

	cl := cronLogger{log: r.log}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cl)), cron.WithLogger(cl))
	if _, err := c.AddFunc(schedule, func() {
		if _, err := r.Run(context.Background()); err != nil {
			r.log.Errorw("Scheduled reconciliation failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}

	r.cron = c
	c.Start()
	r.log.Infow("Reconciliation scheduler started", "schedule", schedule, "policy", r.policy)
	return nil
}

// Stop останавливает планировщик и ждет завершения текущей сверки
func (r *Reconciler) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}
	select {
	case <-r.cron.Stop().Done():
		r.log.Infow("Reconciliation scheduler stopped")
	case <-ctx.Done():
		r.log.Warnw("Reconciliation scheduler stop timed out")
	}
}

// cronLogger адаптер логгера для robfig/cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, append(keysAndValues, "error", err)...)
}
