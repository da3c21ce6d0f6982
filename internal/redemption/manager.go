package redemption

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State tracks a request through None → Previewed → Active → Consumed|Cancelled.
type State string

const (
	StatePreviewed State = "previewed"
	StateActive    State = "active"
	StateConsumed  State = "consumed"
	StateCancelled State = "cancelled"
)

// Reason explains why a redemption was rejected.
type Reason string

const (
	ReasonBelowMinimum      Reason = "below_minimum"
	ReasonInsufficientPoint Reason = "insufficient_points"
	ReasonNoCustomer        Reason = "customer_required"
)

// Error is returned when a redemption request cannot be honoured.
type Error struct {
	Reason    Reason
	Requested int64
	Balance   int64
	Minimum   int64
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonBelowMinimum:
		return fmt.Sprintf("redemption: %d points requested, minimum is %d", e.Requested, e.Minimum)
	case ReasonInsufficientPoint:
		return fmt.Sprintf("redemption: %d points requested, balance is %d", e.Requested, e.Balance)
	case ReasonNoCustomer:
		return "redemption: a customer must be selected"
	default:
		return "redemption: rejected"
	}
}

// IsError reports whether err is a redemption rejection.
func IsError(err error) bool {
	var target *Error
	return errors.As(err, &target)
}

// ErrInvalidTransition is returned when the request is not in a state that allows the operation.
var ErrInvalidTransition = errors.New("redemption: invalid state transition")

// Policy sets the conversion from points to a cash discount.
type Policy struct {
	MinimumPoints  int64
	DiscountPer100 int64
}

// DefaultPolicy returns the 50 point minimum and 1000 per 100 points conversion.
func DefaultPolicy() Policy {
	return Policy{MinimumPoints: 50, DiscountPer100: 1000}
}

// DiscountFor converts points into a discount. Points beyond the last full hundred add nothing.
func (p Policy) DiscountFor(points int64) int64 {
	if points <= 0 {
		return 0
	}
	return (points / 100) * p.DiscountPer100
}

// Validate checks the request against the minimum and the customer's balance.
func (p Policy) Validate(points, balance int64) error {
	if points < p.MinimumPoints {
		return &Error{Reason: ReasonBelowMinimum, Requested: points, Balance: balance, Minimum: p.MinimumPoints}
	}
	if points > balance {
		return &Error{Reason: ReasonInsufficientPoint, Requested: points, Balance: balance, Minimum: p.MinimumPoints}
	}
	return nil
}

// Request is a point-to-cash redemption attached to one checkout.
type Request struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"customerId"`
	Points     int64     `json:"pointsRequested"`
	Discount   int64     `json:"discountAmount"`
	State      State     `json:"state"`
	CreatedAt  time.Time `json:"createdAt"`
}

// BalanceReader exposes the customer's current point balance.
type BalanceReader interface {
	PointBalance(ctx context.Context, customerID string) (int64, error)
}

// Manager validates and prices redemption requests.
type Manager struct {
	Policy   Policy
	Balances BalanceReader
	Now      func() time.Time
}

// Preview validates the request against the customer's balance and returns a Previewed request.
func (m Manager) Preview(ctx context.Context, customerID string, points int64) (Request, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return Request{}, &Error{Reason: ReasonNoCustomer, Requested: points}
	}
	if m.Balances == nil {
		return Request{}, errors.New("redemption manager not configured")
	}
	balance, err := m.Balances.PointBalance(ctx, customerID)
	if err != nil {
		return Request{}, err
	}
	if err := m.Policy.Validate(points, balance); err != nil {
		return Request{}, err
	}
	return Request{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Points:     points,
		Discount:   m.Policy.DiscountFor(points),
		State:      StatePreviewed,
		CreatedAt:  m.now(),
	}, nil
}

func (m Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
