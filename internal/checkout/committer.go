package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-kasir/internal/events"
	"github.com/noah-isme/backend-kasir/internal/idempotency"
	"github.com/noah-isme/backend-kasir/internal/inventory"
	"github.com/noah-isme/backend-kasir/internal/ledger"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/loyalty"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/redemption"
	"github.com/noah-isme/backend-kasir/internal/sales"
)

// Payment methods accepted at commit.
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
)

// Locker serializes commits on shared resources.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, ttl time.Duration, fn func(context.Context) error) error
}

// CommitLog remembers commit ids so a retried commit replays instead of
// running twice.
type CommitLog interface {
	Begin(ctx context.Context, commitID string) ([]byte, error)
	Complete(ctx context.Context, commitID string, result []byte) error
	Abort(ctx context.Context, commitID string) error
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// CommitRequest is everything the committer needs to settle one sale.
type CommitRequest struct {
	CommitID       string
	EmployeeID     string
	CustomerID     string
	Cart           Cart
	Quote          pricing.Quote
	PaymentMethod  string
	AmountTendered int64
	Redemption     *redemption.Request
}

// Committer performs the all-or-nothing settlement of a sale: stock
// decrement, point accrual, redemption debit and the sale record.
type Committer struct {
	Inventory inventory.Store
	Ledger    ledger.Ledger
	Sales     sales.Store
	History   sales.History
	Tiers     loyalty.Table
	Accrual   loyalty.AccrualPolicy
	Locker    Locker
	LockTTL   time.Duration
	CommitLog CommitLog
	Events    Emitter
	Timeout   time.Duration
	Now       func() time.Time
	Logger    *zerolog.Logger
}

type settlement struct {
	sale     sales.Sale
	replayed bool
	oldTier  string
	newTier  string
	balance  int64
}

// Commit settles the request. Validation, stock and redemption failures leave
// every store untouched. Store failures after the first mutation are
// compensated before a PersistenceError is returned. Once validation passes
// the caller's cancellation is ignored and the commit is bounded by Timeout
// instead. Repeating a commit id returns the original sale.
func (c *Committer) Commit(ctx context.Context, req CommitRequest) (sales.Sale, error) {
	start := time.Now()
	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if err := c.validate(req); err != nil {
		obs.ObserveCommit("rejected", time.Since(start))
		return sales.Sale{}, err
	}
	if c.Inventory == nil || c.Sales == nil || c.Locker == nil || (req.CustomerID != "" && c.Ledger == nil) {
		return sales.Sale{}, errors.New("checkout: committer not configured")
	}
	if strings.TrimSpace(req.CommitID) == "" {
		req.CommitID = uuid.NewString()
	}

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
	defer cancel()
	work, span := otel.Tracer("checkout").Start(work, "checkout.commit", trace.WithAttributes(
		attribute.String("checkout.commit_id", req.CommitID),
		attribute.Int("checkout.lines", len(req.Cart.Lines)),
		attribute.Bool("checkout.customer", req.CustomerID != ""),
		attribute.Bool("checkout.redemption", req.Redemption != nil),
	))
	defer span.End()

	logger := c.logger().With().
		Str("commit_id", req.CommitID).
		Str("employee_id", req.EmployeeID).
		Str("customer_id", req.CustomerID).
		Logger()

	if prior, ok, err := c.begin(work, req.CommitID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.ObserveCommit(resultLabel(err), time.Since(start))
		return sales.Sale{}, err
	} else if ok {
		logger.Info().Str("sale_id", prior.ID).Msg("commit replayed")
		span.SetAttributes(attribute.Bool("checkout.replayed", true))
		obs.ObserveCommit("replayed", time.Since(start))
		return prior, nil
	}

	out, err := c.settle(work, req, &logger)
	if err != nil {
		if releasable(err) {
			if abortErr := c.abort(ctx, req.CommitID); abortErr != nil {
				logger.Warn().Err(abortErr).Msg("release commit id")
			}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		obs.ObserveCommit(resultLabel(err), time.Since(start))
		logger.Warn().Err(err).Msg("commit failed")
		return sales.Sale{}, err
	}

	c.complete(work, out.sale, &logger)
	if out.replayed {
		obs.ObserveCommit("replayed", time.Since(start))
		return out.sale, nil
	}
	c.afterCommit(work, out, &logger)

	span.SetAttributes(attribute.String("checkout.sale_id", out.sale.ID))
	obs.ObserveCommit("success", time.Since(start))
	obs.AddPointsAccrued(out.sale.PointsAccrued)
	logger.Info().
		Str("sale_id", out.sale.ID).
		Int64("total", out.sale.Total).
		Str("discount_source", out.sale.DiscountSource).
		Int64("points_accrued", out.sale.PointsAccrued).
		Dur("elapsed", time.Since(start)).
		Msg("sale committed")
	return out.sale, nil
}

func (c *Committer) validate(req CommitRequest) error {
	if strings.TrimSpace(req.EmployeeID) == "" {
		return &ValidationError{Field: "employeeId", Reason: "employee is required"}
	}
	if req.Cart.Empty() {
		return &ValidationError{Field: "lines", Reason: "cart is empty"}
	}
	for i, l := range req.Cart.Lines {
		if l.Quantity <= 0 {
			return &ValidationError{Field: "quantity", Line: i + 1, ItemID: l.ItemID, Reason: "quantity must be greater than zero"}
		}
		if l.LineTotal != l.UnitPrice*int64(l.Quantity) {
			return &ValidationError{Field: "lineTotal", Line: i + 1, ItemID: l.ItemID, Reason: "line total must equal unit price times quantity"}
		}
	}
	switch req.PaymentMethod {
	case PaymentCash, PaymentCard, PaymentTransfer:
	case "":
		return &ValidationError{Field: "paymentMethod", Reason: "payment method is required"}
	default:
		return &ValidationError{Field: "paymentMethod", Reason: fmt.Sprintf("unsupported payment method %q", req.PaymentMethod)}
	}
	q := req.Quote
	if q.Subtotal != req.Cart.Subtotal() {
		return &ValidationError{Field: "quote", Reason: "quote does not match the cart"}
	}
	if q.Total < 0 || q.Total > q.Subtotal {
		return &ValidationError{Field: "quote", Reason: "quote total is out of range"}
	}
	if req.AmountTendered < 0 {
		return &ValidationError{Field: "amountTendered", Reason: "amount tendered cannot be negative"}
	}
	if req.PaymentMethod == PaymentCash && req.AmountTendered < q.Total {
		return &ValidationError{Field: "amountTendered", Reason: fmt.Sprintf("amount tendered %d is below the total %d", req.AmountTendered, q.Total)}
	}
	if q.Source == pricing.SourceRedemption && req.Redemption == nil {
		return &ValidationError{Field: "quote", Reason: "quote applies a redemption that is not active"}
	}
	if red := req.Redemption; red != nil {
		if req.CustomerID == "" {
			return &redemption.Error{Reason: redemption.ReasonNoCustomer, Requested: red.Points}
		}
		if red.CustomerID != req.CustomerID {
			return &ValidationError{Field: "redemption", Reason: "redemption belongs to another customer"}
		}
		if red.State != redemption.StateActive || red.Points <= 0 {
			return &ValidationError{Field: "redemption", Reason: "redemption is not active"}
		}
	}
	return nil
}

// begin claims the commit id. ok reports a replay of an earlier commit.
func (c *Committer) begin(ctx context.Context, commitID string) (sales.Sale, bool, error) {
	claimed := false
	if c.CommitLog != nil {
		prior, err := c.CommitLog.Begin(ctx, commitID)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			return sales.Sale{}, false, &ConcurrencyError{Resource: "commit:" + commitID, Err: err}
		case err != nil:
			return sales.Sale{}, false, fmt.Errorf("checkout: claim commit id: %w", err)
		case prior != nil:
			var sale sales.Sale
			if jsonErr := json.Unmarshal(prior, &sale); jsonErr == nil && sale.ID != "" {
				return sale, true, nil
			}
		default:
			claimed = true
		}
	}
	existing, err := c.Sales.FindByCommitID(ctx, commitID)
	switch {
	case err == nil:
		c.complete(ctx, existing, c.logger())
		return existing, true, nil
	case errors.Is(err, sales.ErrNotFound):
		return sales.Sale{}, false, nil
	default:
		if claimed {
			_ = c.abort(ctx, commitID)
		}
		return sales.Sale{}, false, fmt.Errorf("checkout: look up commit id: %w", err)
	}
}

func (c *Committer) settle(ctx context.Context, req CommitRequest, logger *zerolog.Logger) (settlement, error) {
	var out settlement
	err := c.Locker.WithLocks(ctx, lockKeys(req), c.lockTTL(), func(ctx context.Context) error {
		var err error
		out, err = c.apply(ctx, req, logger)
		return err
	})
	var acq *lock.AcquireError
	if errors.As(err, &acq) {
		return settlement{}, &ConcurrencyError{Resource: acq.Key, Err: err}
	}
	return out, err
}

// lockKeys orders stock slots by item id, then the customer ledger.
func lockKeys(req CommitRequest) []string {
	stock := make([]string, 0, len(req.Cart.Lines))
	for _, l := range req.Cart.Lines {
		stock = append(stock, "lock:stock:"+l.ItemID)
	}
	keys := lock.SortedKeys(stock)
	if req.CustomerID != "" {
		keys = append(keys, "lock:customer:"+req.CustomerID)
	}
	return keys
}

// apply runs under every lock of the commit.
func (c *Committer) apply(ctx context.Context, req CommitRequest, logger *zerolog.Logger) (settlement, error) {
	var shortfalls []StockShortfall
	for i, l := range req.Cart.Lines {
		available, err := c.Inventory.StockOf(ctx, l.ItemID)
		if err != nil {
			return settlement{}, fmt.Errorf("checkout: read stock %s: %w", l.ItemID, err)
		}
		if available < int64(l.Quantity) {
			shortfalls = append(shortfalls, StockShortfall{Line: i + 1, ItemID: l.ItemID, Requested: int64(l.Quantity), Available: available})
		}
	}
	if len(shortfalls) > 0 {
		return settlement{}, &StockError{Lines: shortfalls}
	}

	var account ledger.Account
	if req.CustomerID != "" {
		var err error
		account, err = c.Ledger.Get(ctx, req.CustomerID)
		if errors.Is(err, ledger.ErrNotFound) {
			return settlement{}, &ValidationError{Field: "customerId", Reason: "unknown customer"}
		}
		if err != nil {
			return settlement{}, fmt.Errorf("checkout: read customer %s: %w", req.CustomerID, err)
		}
		if red := req.Redemption; red != nil && red.Points > account.PointBalance {
			return settlement{}, &redemption.Error{Reason: redemption.ReasonInsufficientPoint, Requested: red.Points, Balance: account.PointBalance}
		}
	}

	s := &saga{logger: logger}
	fail := func(step string, err error) (settlement, error) {
		comp, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
		defer cancel()
		return settlement{}, &PersistenceError{Step: step, Err: err, Compensated: s.rollback(comp)}
	}

	for i, l := range req.Cart.Lines {
		itemID, qty := l.ItemID, int64(l.Quantity)
		err := s.run(ctx, funcStep{
			name:       "decrement_stock",
			resource:   itemID,
			execute:    func(ctx context.Context) error { return c.Inventory.Decrement(ctx, itemID, qty) },
			compensate: func(ctx context.Context) error { return c.Inventory.Increment(ctx, itemID, qty) },
		})
		if errors.Is(err, inventory.ErrInsufficientStock) {
			// stock moved outside the lock protocol
			comp, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
			s.rollback(comp)
			available, _ := c.Inventory.StockOf(comp, itemID)
			cancel()
			return settlement{}, &StockError{Lines: []StockShortfall{{Line: i + 1, ItemID: itemID, Requested: qty, Available: available}}}
		}
		if err != nil {
			return fail("decrement_stock", err)
		}
	}

	total := req.Quote.Total
	oldTier := c.Tiers.Lookup(account.PointBalance)
	var accrued, redeemed int64
	if req.CustomerID != "" {
		customerID := req.CustomerID
		accrued = c.Accrual.Accrue(total, account.IsVIP, oldTier)
		if accrued > 0 {
			points := accrued
			if err := s.run(ctx, funcStep{
				name:       "credit_points",
				resource:   customerID,
				execute:    func(ctx context.Context) error { return c.Ledger.Credit(ctx, customerID, points) },
				compensate: func(ctx context.Context) error { return c.Ledger.Debit(ctx, customerID, points) },
			}); err != nil {
				return fail("credit_points", err)
			}
		}
		if red := req.Redemption; red != nil {
			redeemed = red.Points
			if err := s.run(ctx, funcStep{
				name:       "consume_redemption",
				resource:   customerID,
				execute:    func(ctx context.Context) error { return c.Ledger.Debit(ctx, customerID, redeemed) },
				compensate: func(ctx context.Context) error { return c.Ledger.Credit(ctx, customerID, redeemed) },
			}); err != nil {
				return fail("consume_redemption", err)
			}
		}
	}

	tendered, change := req.AmountTendered, int64(0)
	if req.PaymentMethod == PaymentCash {
		change = tendered - total
		if change < 0 {
			change = 0
		}
	} else {
		tendered = total
	}

	sale := sales.Sale{
		ID:             uuid.NewString(),
		CommitID:       req.CommitID,
		Timestamp:      c.now(),
		CustomerID:     req.CustomerID,
		EmployeeID:     req.EmployeeID,
		Lines:          req.Cart.saleLines(),
		Subtotal:       req.Quote.Subtotal,
		DiscountAmount: req.Quote.Discount,
		DiscountSource: string(req.Quote.Source),
		Total:          total,
		PaymentMethod:  req.PaymentMethod,
		AmountTendered: tendered,
		ChangeDue:      change,
		PointsAccrued:  accrued,
	}
	if red := req.Redemption; red != nil {
		sale.RedemptionConsumed = &sales.Redemption{RequestID: red.ID, Points: red.Points, Discount: red.Discount}
	}

	id, err := c.Sales.Append(ctx, sale)
	if errors.Is(err, sales.ErrDuplicateCommit) {
		logger.Info().Msg("commit id already settled by another attempt")
		comp, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
		defer cancel()
		compensated := s.rollback(comp)
		existing, findErr := c.Sales.FindByCommitID(comp, req.CommitID)
		if findErr != nil || !compensated {
			return settlement{}, &PersistenceError{Step: "append_sale", Err: errors.Join(err, findErr), Compensated: compensated}
		}
		return settlement{sale: existing, replayed: true}, nil
	}
	if err != nil {
		// the insert may have landed before the error reached us
		comp, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
		stored, findErr := c.Sales.FindByCommitID(comp, req.CommitID)
		cancel()
		switch {
		case errors.Is(findErr, sales.ErrNotFound):
			return fail("append_sale", err)
		case findErr != nil:
			// outcome unknown; keep every mutation and the commit id claimed
			return settlement{}, &PersistenceError{Step: "append_sale", Err: errors.Join(err, findErr), Compensated: false}
		}
		logger.Warn().Err(err).Str("sale_id", stored.ID).Msg("sale stored despite append error")
		sale = stored
	} else {
		sale.ID = id
	}

	final := account.PointBalance + accrued - redeemed
	return settlement{
		sale:    sale,
		oldTier: oldTier.Name,
		newTier: c.Tiers.Lookup(final).Name,
		balance: final,
	}, nil
}

// afterCommit runs the best-effort follow-ups of a persisted sale. Their
// failures are logged and never undo the sale.
func (c *Committer) afterCommit(ctx context.Context, out settlement, logger *zerolog.Logger) {
	sale := out.sale
	if c.History != nil {
		if err := c.History.Record(ctx, sale.EmployeeID, sales.SummaryOf(sale)); err != nil {
			logger.Error().Err(err).Str("sale_id", sale.ID).Msg("record employee history")
		}
	}
	if c.Events == nil {
		return
	}
	if _, err := c.Events.Emit(ctx, events.TopicSaleCommitted, sale.ID, sales.SummaryOf(sale)); err != nil {
		logger.Warn().Err(err).Str("sale_id", sale.ID).Msg("emit sale event")
	}
	if sale.CustomerID == "" || out.oldTier == out.newTier {
		return
	}
	change := events.TierChanged{CustomerID: sale.CustomerID, OldTier: out.oldTier, NewTier: out.newTier, Balance: out.balance}
	if _, err := c.Events.Emit(ctx, events.TopicLoyaltyTierChange, sale.CustomerID, change); err != nil {
		logger.Warn().Err(err).Msg("emit tier change")
		return
	}
	logger.Info().Str("old_tier", out.oldTier).Str("new_tier", out.newTier).Msg("loyalty tier changed")
}

func (c *Committer) complete(ctx context.Context, sale sales.Sale, logger *zerolog.Logger) {
	if c.CommitLog == nil {
		return
	}
	raw, err := json.Marshal(sale)
	if err == nil {
		err = c.CommitLog.Complete(context.WithoutCancel(ctx), sale.CommitID, raw)
	}
	if err != nil {
		logger.Warn().Err(err).Str("sale_id", sale.ID).Msg("store commit result")
	}
}

func (c *Committer) abort(ctx context.Context, commitID string) error {
	if c.CommitLog == nil {
		return nil
	}
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	return c.CommitLog.Abort(abortCtx, commitID)
}

// releasable reports whether a failed commit left shared state as it found
// it, so the same commit id may be tried again.
func releasable(err error) bool {
	var persist *PersistenceError
	if errors.As(err, &persist) {
		return persist.Compensated
	}
	return true
}

func resultLabel(err error) string {
	var (
		val    *ValidationError
		stock  *StockError
		red    *redemption.Error
		conc   *ConcurrencyError
		persis *PersistenceError
	)
	switch {
	case errors.As(err, &val), errors.As(err, &stock), errors.As(err, &red):
		return "rejected"
	case errors.As(err, &conc):
		return "conflict"
	case errors.As(err, &persis):
		return "compensated"
	default:
		return "failed"
	}
}

func (c *Committer) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 5 * time.Second
	}
	return c.Timeout
}

func (c *Committer) lockTTL() time.Duration {
	ttl := c.LockTTL
	if min := 2 * c.timeout(); ttl < min {
		ttl = min
	}
	return ttl
}

func (c *Committer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Committer) logger() *zerolog.Logger {
	return obs.OrNop(c.Logger)
}
