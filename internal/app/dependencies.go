package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-kasir/internal/analytics"
	"github.com/noah-isme/backend-kasir/internal/audit"
	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/checkout"
	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/idempotency"
	"github.com/noah-isme/backend-kasir/internal/ledger"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/notify"
	"github.com/noah-isme/backend-kasir/internal/ratelimit"
	"github.com/noah-isme/backend-kasir/internal/redemption"
	"github.com/noah-isme/backend-kasir/internal/resilience"
	"github.com/noah-isme/backend-kasir/internal/rules"
)

// Dependencies are the process-wide handles shared by the binaries.
type Dependencies struct {
	Config *config.Config
	Rules  rules.Rules
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stores Stores
	// Tasks receives tier notifications; nil keeps them in the event store only.
	Tasks  notify.Enqueuer
	Logger *zerolog.Logger
	Now    func() time.Time
}

// LoadRules reads the rules file, falling back to the built-in café rules.
func LoadRules(path string) (rules.Rules, error) {
	if path == "" {
		return rules.Default(), nil
	}
	r, err := rules.Load(path)
	if err != nil {
		return rules.Rules{}, fmt.Errorf("load rules %s: %w", path, err)
	}
	return r, nil
}

// NewStores picks the store driver from config.
func NewStores(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, logger *zerolog.Logger) (Stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		seed, err := DemoSeed()
		if err != nil {
			return Stores{}, err
		}
		return MemoryStores(seed)
	case config.DriverPostgres:
		if pool == nil {
			return Stores{}, fmt.Errorf("store driver %s needs a database pool", cfg.StoreDriver)
		}
		return PostgresStores(pool, rdb, cfg.CatalogCacheTTL, logger), nil
	default:
		return Stores{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Locker is the distributed lock used by the committer and the worker.
func (d Dependencies) Locker() *lock.Locker {
	return &lock.Locker{
		R:            d.Redis,
		RetryBackoff: d.Config.LockRetryBackoff,
		MaxWait:      d.Config.CommitTimeout,
	}
}

// EventBus persists domain events and hands tier changes to the task queue.
func (d Dependencies) EventBus() *events.Bus {
	bus := &events.Bus{Store: d.Stores.Events}
	if d.Tasks != nil {
		bus.Notifiers = append(bus.Notifiers, notify.TaskNotifier{Client: d.Tasks})
	}
	return bus
}

// Committer assembles the sale settlement pipeline.
func (d Dependencies) Committer() *checkout.Committer {
	return &checkout.Committer{
		Inventory: d.Stores.Inventory,
		Ledger:    d.Stores.Ledger,
		Sales:     d.Stores.Sales,
		History:   d.Stores.History,
		Tiers:     d.Rules.Tiers,
		Accrual:   d.Rules.Accrual,
		Locker:    d.Locker(),
		LockTTL:   d.Config.LockTTL,
		CommitLog: idempotency.Store{R: d.Redis, TTL: d.Config.IdempotencyTTL},
		Events:    d.EventBus(),
		Timeout:   d.Config.CommitTimeout,
		Now:       d.Now,
		Logger:    d.Logger,
	}
}

// CheckoutService wires sessions, pricing and redemption around the committer.
func (d Dependencies) CheckoutService() *checkout.Service {
	return &checkout.Service{
		Sessions: checkout.RedisSessions{R: d.Redis, TTL: d.Config.SessionTTL},
		Catalog:  d.Stores.Catalog,
		Ledger:   d.Stores.Ledger,
		Engine:   d.Rules.Engine(),
		Redemptions: redemption.Manager{
			Policy:   d.Rules.Redemption,
			Balances: ledger.BalanceReader{Ledger: d.Stores.Ledger},
			Now:      d.Now,
		},
		Committer: d.Committer(),
		Now:       d.Now,
		Logger:    d.Logger,
	}
}

// CheckoutHandler exposes the service with the per-employee commit limit.
func (d Dependencies) CheckoutHandler() *checkout.Handler {
	return &checkout.Handler{
		Svc:         d.CheckoutService(),
		CommitLimit: d.CommitLimit(),
	}
}

// AuditMiddleware records every mutating request an employee makes.
func (d Dependencies) AuditMiddleware() func(http.Handler) http.Handler {
	recorder := audit.HTTPRecorder{
		Service: &audit.Service{
			Store:        d.Stores.Audit,
			Enabled:      d.Config.AuditEnabled,
			SamplingRate: d.Config.AuditSamplingRate,
			Now:          d.Now,
		},
		OnError: func(err error) {
			if d.Logger != nil {
				d.Logger.Warn().Err(err).Msg("audit record failed")
			}
		},
	}
	return recorder.Middleware(audit.HTTPConfig{
		ResourceIDParam: "id",
		Methods:         []string{http.MethodPost, http.MethodPut, http.MethodDelete},
	})
}

// AuditHandler lists the caller's audit trail.
func (d Dependencies) AuditHandler() audit.Handler {
	return audit.Handler{Store: d.Stores.Audit}
}

// CatalogHandler serves the menu to the register.
func (d Dependencies) CatalogHandler() *catalog.Handler {
	return &catalog.Handler{Catalog: d.Stores.Catalog, Lister: d.Stores.Menu}
}

// ReportHandler serves employee sales reports from the employee history.
func (d Dependencies) ReportHandler() *analytics.Handler {
	return &analytics.Handler{Svc: &analytics.Service{
		History: d.Stores.Reports,
		R:       d.Redis,
		TTL:     d.Config.ReportCacheTTL,
		Now:     d.Now,
	}}
}

// CommitLimit bounds how many commits one employee may attempt per window.
func (d Dependencies) CommitLimit() func(http.Handler) http.Handler {
	return ratelimit.Handler{
		Limiter: ratelimit.Sliding{
			Client: d.Redis,
			Prefix: "kasir:commit-rate:",
			Window: d.Config.CommitRateWindow,
			Max:    d.Config.CommitRateMax,
		},
		OnError: d.limiterError("commit"),
	}.Middleware
}

// NewLimiterStore wires the shared rate limiter store backed by Redis.
func NewLimiterStore(rdb *redis.Client) (limiter.Store, error) {
	return ratelimit.NewRedisStore(rdb)
}

// APILimit is the fixed window limit applied to the whole API.
func (d Dependencies) APILimit(store limiter.Store) (func(http.Handler) http.Handler, error) {
	fixed, err := ratelimit.NewFixed(store, d.Config.RateLimit)
	if err != nil {
		return nil, err
	}
	return ratelimit.Handler{Limiter: fixed, OnError: d.limiterError("api")}.Middleware, nil
}

func (d Dependencies) limiterError(scope string) func(error) {
	return func(err error) {
		if d.Logger != nil {
			d.Logger.Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
		}
	}
}

// TierDelivery posts tier changes to the configured webhook. Without one the
// worker only logs them.
func TierDelivery(cfg *config.Config, logger *zerolog.Logger) notify.DeliverFunc {
	if cfg.NotifyWebhookURL == "" {
		return nil
	}
	breaker := resilience.NewBreaker("tier-webhook", cfg.BreakerMinRequests, cfg.BreakerFailureRatio, cfg.BreakerOpenFor)
	if logger != nil {
		breaker.WithLogger(logger)
	}
	hook := notify.Webhook{
		URL:    cfg.NotifyWebhookURL,
		Secret: cfg.NotifyWebhookSecret,
		Client: resilience.Client{
			HTTP:        notify.HTTPClient(cfg.NotifyTimeout),
			Breaker:     breaker,
			MaxAttempts: cfg.NotifyMaxAttempts,
		},
	}
	return hook.Deliver
}
