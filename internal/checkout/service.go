package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/ledger"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/redemption"
	"github.com/noah-isme/backend-kasir/internal/sales"
)

// ContextInput changes the customer or user type of a session. Nil fields
// are left as they are; an empty string clears them.
type ContextInput struct {
	CustomerID *string `json:"customerId"`
	UserType   *string `json:"userType"`
}

// CommitInput carries the payment details of a commit.
type CommitInput struct {
	CommitID       string `json:"-"`
	PaymentMethod  string `json:"paymentMethod" validate:"required,oneof=cash card transfer"`
	AmountTendered int64  `json:"amountTendered" validate:"gte=0"`
}

// Service drives checkout sessions from an empty cart to a committed sale.
type Service struct {
	Sessions    SessionStore
	Catalog     catalog.Catalog
	Ledger      ledger.Ledger
	Engine      pricing.Engine
	Redemptions redemption.Manager
	Committer   *Committer
	Now         func() time.Time
	Logger      *zerolog.Logger
}

// Open starts an empty session owned by the employee.
func (s *Service) Open(ctx context.Context, employeeID string) (Session, error) {
	if s == nil || s.Sessions == nil {
		return Session{}, errors.New("checkout service not configured")
	}
	if strings.TrimSpace(employeeID) == "" {
		return Session{}, &ValidationError{Field: "employeeId", Reason: "employee is required"}
	}
	now := s.now()
	sess := Session{
		ID:         uuid.NewString(),
		EmployeeID: employeeID,
		Cart:       Cart{Lines: []Line{}},
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("checkout: save session: %w", err)
	}
	return sess, nil
}

// Get returns the session if the employee owns it.
func (s *Service) Get(ctx context.Context, employeeID, id string) (Session, error) {
	if s == nil || s.Sessions == nil {
		return Session{}, errors.New("checkout service not configured")
	}
	sess, err := s.Sessions.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.EmployeeID != employeeID {
		return Session{}, ErrForbidden
	}
	return sess, nil
}

func (s *Service) editable(ctx context.Context, employeeID, id string) (Session, error) {
	sess, err := s.Get(ctx, employeeID, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != StatusOpen {
		return Session{}, ErrSessionClosed
	}
	return sess, nil
}

func (s *Service) save(ctx context.Context, sess Session) (Session, error) {
	sess.UpdatedAt = s.now()
	if err := s.Sessions.Save(ctx, sess); err != nil {
		return Session{}, fmt.Errorf("checkout: save session: %w", err)
	}
	return sess, nil
}

// SetLines replaces the cart. Editing the cart drops any redemption.
func (s *Service) SetLines(ctx context.Context, employeeID, id string, lines []LineInput) (Session, error) {
	return withSession(s, ctx, id, func(ctx context.Context) (Session, error) {
		sess, err := s.editable(ctx, employeeID, id)
		if err != nil {
			return Session{}, err
		}
		cart, err := BuildCart(ctx, s.Catalog, lines)
		if err != nil {
			return Session{}, err
		}
		sess.Cart = cart
		sess.Redemption.Cancel()
		return s.save(ctx, sess)
	})
}

// SetContext selects the customer and user type. Changing the customer drops
// any redemption.
func (s *Service) SetContext(ctx context.Context, employeeID, id string, in ContextInput) (Session, error) {
	return withSession(s, ctx, id, func(ctx context.Context) (Session, error) {
		sess, err := s.editable(ctx, employeeID, id)
		if err != nil {
			return Session{}, err
		}
		if in.UserType != nil {
			ut, err := pricing.ParseUserType(*in.UserType)
			if err != nil {
				return Session{}, &ValidationError{Field: "userType", Reason: err.Error()}
			}
			sess.UserType = ut
		}
		if in.CustomerID != nil {
			customerID := strings.TrimSpace(*in.CustomerID)
			if customerID != "" {
				if s.Ledger == nil {
					return Session{}, errors.New("checkout: ledger not configured")
				}
				if _, err := s.Ledger.Get(ctx, customerID); err != nil {
					if errors.Is(err, ledger.ErrNotFound) {
						return Session{}, &ValidationError{Field: "customerId", Reason: "unknown customer"}
					}
					return Session{}, fmt.Errorf("checkout: read customer: %w", err)
				}
			}
			if customerID != sess.CustomerID {
				sess.Redemption.Cancel()
			}
			sess.CustomerID = customerID
		}
		return s.save(ctx, sess)
	})
}

// Quote prices the session as it stands. The customer balance is a snapshot
// and may be stale by commit time.
func (s *Service) Quote(ctx context.Context, employeeID, id string) (pricing.Quote, error) {
	sess, err := s.Get(ctx, employeeID, id)
	if err != nil {
		return pricing.Quote{}, err
	}
	q, err := s.quote(ctx, sess)
	if err != nil {
		return pricing.Quote{}, err
	}
	obs.CountDiscountSource(string(q.Source))
	return q, nil
}

func (s *Service) quote(ctx context.Context, sess Session) (pricing.Quote, error) {
	pc := pricing.Context{Now: s.now(), UserType: sess.UserType}
	if sess.CustomerID != "" {
		if s.Ledger == nil {
			return pricing.Quote{}, errors.New("checkout: ledger not configured")
		}
		acct, err := s.Ledger.Get(ctx, sess.CustomerID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return pricing.Quote{}, &ValidationError{Field: "customerId", Reason: "unknown customer"}
			}
			return pricing.Quote{}, fmt.Errorf("checkout: read customer: %w", err)
		}
		pc.Customer = &pricing.Customer{ID: acct.CustomerID, PointBalance: acct.PointBalance}
	}
	if red, ok := sess.Redemption.Active(); ok {
		amount := red.Discount
		pc.Redemption = &amount
	}
	return s.Engine.Compute(sess.Cart.Items(), pc), nil
}

// PreviewRedemption validates the points against the customer's balance and
// stages the request. It does not affect pricing until applied.
func (s *Service) PreviewRedemption(ctx context.Context, employeeID, id string, points int64) (redemption.Request, error) {
	return withSession(s, ctx, id, func(ctx context.Context) (redemption.Request, error) {
		sess, err := s.editable(ctx, employeeID, id)
		if err != nil {
			return redemption.Request{}, err
		}
		req, err := s.Redemptions.Preview(ctx, sess.CustomerID, points)
		if err != nil {
			return redemption.Request{}, err
		}
		if err := sess.Redemption.Stage(req); err != nil {
			return redemption.Request{}, err
		}
		if _, err := s.save(ctx, sess); err != nil {
			return redemption.Request{}, err
		}
		return req, nil
	})
}

// ApplyRedemption makes the staged request a discount candidate.
func (s *Service) ApplyRedemption(ctx context.Context, employeeID, id string) (redemption.Request, error) {
	return withSession(s, ctx, id, func(ctx context.Context) (redemption.Request, error) {
		sess, err := s.editable(ctx, employeeID, id)
		if err != nil {
			return redemption.Request{}, err
		}
		req, err := sess.Redemption.Activate()
		if err != nil {
			return redemption.Request{}, err
		}
		if _, err := s.save(ctx, sess); err != nil {
			return redemption.Request{}, err
		}
		return req, nil
	})
}

// CancelRedemption drops the staged or active request. It is idempotent.
func (s *Service) CancelRedemption(ctx context.Context, employeeID, id string) (Session, error) {
	return withSession(s, ctx, id, func(ctx context.Context) (Session, error) {
		sess, err := s.editable(ctx, employeeID, id)
		if err != nil {
			return Session{}, err
		}
		sess.Redemption.Cancel()
		return s.save(ctx, sess)
	})
}

// Abandon discards the session without touching stock, points or sales.
func (s *Service) Abandon(ctx context.Context, employeeID, id string) error {
	_, err := withSession(s, ctx, id, func(ctx context.Context) (struct{}, error) {
		sess, err := s.Get(ctx, employeeID, id)
		if err != nil {
			return struct{}{}, err
		}
		if sess.Status != StatusOpen {
			return struct{}{}, ErrSessionClosed
		}
		return struct{}{}, s.Sessions.Delete(ctx, id)
	})
	return err
}

// Commit prices the session one last time and settles it. A session that
// already committed under the same commit id returns its sale again. The
// session lock is held for the whole commit, so a session settles once.
func (s *Service) Commit(ctx context.Context, employeeID, id string, in CommitInput) (sales.Sale, error) {
	if s == nil || s.Committer == nil {
		return sales.Sale{}, errors.New("checkout service not configured")
	}
	return withSession(s, ctx, id, func(ctx context.Context) (sales.Sale, error) {
		return s.commit(ctx, employeeID, id, in)
	})
}

func (s *Service) commit(ctx context.Context, employeeID, id string, in CommitInput) (sales.Sale, error) {
	sess, err := s.Get(ctx, employeeID, id)
	if err != nil {
		return sales.Sale{}, err
	}
	commitID := strings.TrimSpace(in.CommitID)
	if sess.Status == StatusCommitted {
		if commitID == "" || commitID != sess.CommitID {
			return sales.Sale{}, ErrSessionClosed
		}
	}
	if commitID == "" {
		commitID = sess.CommitID
	}
	if commitID == "" {
		commitID = uuid.NewString()
	}

	q, err := s.quote(ctx, sess)
	if err != nil {
		return sales.Sale{}, err
	}
	req := CommitRequest{
		CommitID:       commitID,
		EmployeeID:     employeeID,
		CustomerID:     sess.CustomerID,
		Cart:           sess.Cart,
		Quote:          q,
		PaymentMethod:  in.PaymentMethod,
		AmountTendered: in.AmountTendered,
	}
	if red, ok := sess.Redemption.Active(); ok {
		req.Redemption = &red
	}
	sale, err := s.Committer.Commit(ctx, req)
	if err != nil {
		var persist *PersistenceError
		if errors.As(err, &persist) && !persist.Compensated {
			// the commit id stays claimed; retries must reuse it
			sess.CommitID = commitID
			if _, saveErr := s.save(context.WithoutCancel(ctx), sess); saveErr != nil {
				s.logger().Warn().Err(saveErr).Str("session_id", sess.ID).Msg("remember commit id")
			}
		}
		return sales.Sale{}, err
	}
	obs.CountDiscountSource(sale.DiscountSource)

	if sess.Status == StatusOpen {
		if _, ok := sess.Redemption.Active(); ok {
			if _, err := sess.Redemption.Consume(); err != nil {
				s.logger().Warn().Err(err).Str("session_id", sess.ID).Msg("consume redemption")
			}
		}
		sess.Status = StatusCommitted
		sess.CommitID = sale.CommitID
		sess.SaleID = sale.ID
		if _, err := s.save(context.WithoutCancel(ctx), sess); err != nil {
			s.logger().Warn().Err(err).Str("session_id", sess.ID).Msg("close committed session")
		}
	}
	return sale, nil
}

// withSession runs fn while holding the session's lock. Every change to a
// session goes through it, so fn always sees the latest stored state.
func withSession[T any](s *Service, ctx context.Context, id string, fn func(context.Context) (T, error)) (T, error) {
	if s == nil || s.Committer == nil || s.Committer.Locker == nil {
		return fn(ctx)
	}
	var out T
	err := s.Committer.Locker.WithLocks(ctx, []string{sessionLockKey(id)}, s.Committer.lockTTL()+s.Committer.timeout(), func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	var (
		conc *ConcurrencyError
		acq  *lock.AcquireError
	)
	if !errors.As(err, &conc) && errors.As(err, &acq) {
		return out, &ConcurrencyError{Resource: acq.Key, Err: err}
	}
	return out, err
}

func sessionLockKey(id string) string { return "lock:session:" + id }

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) logger() *zerolog.Logger {
	return obs.OrNop(s.Logger)
}
