package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/app"
	"github.com/noah-isme/backend-kasir/internal/checkout"
	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/config"
	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/ratelimit"
	"github.com/noah-isme/backend-kasir/internal/rules"
)

type recordingTasks struct {
	tasks []*asynq.Task
}

func (r *recordingTasks) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		StoreDriver:      config.DriverMemory,
		CommitTimeout:    2 * time.Second,
		LockTTL:          5 * time.Second,
		LockRetryBackoff: 5 * time.Millisecond,
		IdempotencyTTL:   time.Hour,
		SessionTTL:       time.Hour,
		RateLimit:        "100-M",
		CommitRateMax:    5,
		CommitRateWindow: time.Minute,
	}
}

func newDeps(t *testing.T) (app.Dependencies, *recordingTasks) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := testConfig()
	stores, err := app.NewStores(cfg, nil, rdb, nil)
	require.NoError(t, err)
	tasks := &recordingTasks{}
	sunday := time.Date(2024, 6, 2, 17, 0, 0, 0, time.UTC)
	return app.Dependencies{
		Config: cfg,
		Rules:  rules.Default(),
		Redis:  rdb,
		Stores: stores,
		Tasks:  tasks,
		Now:    func() time.Time { return sunday },
	}, tasks
}

func TestCheckoutWiringQueuesTierChange(t *testing.T) {
	deps, tasks := newDeps(t)
	svc := deps.CheckoutService()
	ctx := context.Background()

	sess, err := svc.Open(ctx, "emp-1")
	require.NoError(t, err)
	_, err = svc.SetLines(ctx, "emp-1", sess.ID, []checkout.LineInput{{ItemID: "52", Quantity: 1}})
	require.NoError(t, err)
	customer := "cli-001"
	_, err = svc.SetContext(ctx, "emp-1", sess.ID, checkout.ContextInput{CustomerID: &customer})
	require.NoError(t, err)

	sale, err := svc.Commit(ctx, "emp-1", sess.ID, checkout.CommitInput{CommitID: "wire-1", PaymentMethod: "card"})
	require.NoError(t, err)
	require.Equal(t, "cli-001", sale.CustomerID)

	acct, err := deps.Stores.Ledger.Get(ctx, "cli-001")
	require.NoError(t, err)
	require.Greater(t, acct.PointBalance, int64(320))

	require.Len(t, tasks.tasks, 1)
	var change events.TierChanged
	require.NoError(t, json.Unmarshal(tasks.tasks[0].Payload(), &change))
	require.Equal(t, "cli-001", change.CustomerID)
	require.Equal(t, "Bronce", change.OldTier)
	require.NotEqual(t, "Bronce", change.NewTier)

	stock, err := deps.Stores.Inventory.StockOf(ctx, "52")
	require.NoError(t, err)
	require.Equal(t, int64(49), stock)

	report, err := deps.ReportHandler().Svc.Sales(ctx, "emp-1", sale.Timestamp.Add(-time.Hour), sale.Timestamp.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, report.SaleCount)
	require.Equal(t, sale.Total, report.Gross)
}

func TestNewStoresRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.StoreDriver = "sqlite"
	_, err := app.NewStores(cfg, nil, nil, nil)
	require.Error(t, err)

	cfg.StoreDriver = config.DriverPostgres
	_, err = app.NewStores(cfg, nil, nil, nil)
	require.Error(t, err)
}

func TestAPILimitParsesRate(t *testing.T) {
	deps, _ := newDeps(t)
	mw, err := deps.APILimit(ratelimit.NewMemoryStore())
	require.NoError(t, err)
	require.NotNil(t, mw)

	deps.Config.RateLimit = "lots"
	_, err = deps.APILimit(ratelimit.NewMemoryStore())
	require.Error(t, err)
}

func TestTierDeliveryNeedsWebhook(t *testing.T) {
	cfg := testConfig()
	require.Nil(t, app.TierDelivery(cfg, nil))
	cfg.NotifyWebhookURL = "https://messaging.test/hooks/tier"
	require.NotNil(t, app.TierDelivery(cfg, nil))
}

func TestLoadRulesDefault(t *testing.T) {
	r, err := app.LoadRules("")
	require.NoError(t, err)
	require.NotEmpty(t, r.Tiers.Tiers())

	_, err = app.LoadRules("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestAuditMiddlewareRecordsMutations(t *testing.T) {
	deps, _ := newDeps(t)
	deps.Config.AuditEnabled = true

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(common.WithEmployeeID(req.Context(), "emp-1")))
		})
	})
	r.Use(deps.AuditMiddleware())
	r.Post("/checkouts", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusCreated) })
	deps.AuditHandler().Routes(r)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/checkouts", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/audit", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "POST /checkouts")
}
