package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/idempotency"
	"github.com/noah-isme/backend-kasir/internal/redemption"
)

var (
	// ErrSessionNotFound is returned for unknown or expired checkout sessions.
	ErrSessionNotFound = errors.New("checkout: session not found")
	// ErrSessionClosed is returned when a committed session is edited.
	ErrSessionClosed = errors.New("checkout: session already committed")
	// ErrForbidden is returned when a cashier touches another cashier's session.
	ErrForbidden = errors.New("checkout: session belongs to another employee")
)

// ValidationError reports malformed or incomplete checkout input. Line is the
// 1-based cart line it refers to, or 0 when it is not line specific.
type ValidationError struct {
	Field  string
	Line   int
	ItemID string
	Reason string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("checkout: invalid ")
	b.WriteString(e.Field)
	if e.Line > 0 {
		fmt.Fprintf(&b, " on line %d", e.Line)
	}
	if e.ItemID != "" {
		fmt.Fprintf(&b, " (item %s)", e.ItemID)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

// StockShortfall describes one under-stocked cart line.
type StockShortfall struct {
	Line      int    `json:"line"`
	ItemID    string `json:"itemId"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

// StockError lists every line that cannot be served.
type StockError struct {
	Lines []StockShortfall
}

func (e *StockError) Error() string {
	ids := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		ids = append(ids, l.ItemID)
	}
	return "checkout: insufficient stock for " + strings.Join(ids, ", ")
}

// ConcurrencyError is retryable: another commit held a resource past the wait bound.
type ConcurrencyError struct {
	Resource string
	Err      error
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("checkout: %s is busy: %v", e.Resource, e.Err)
}

func (e *ConcurrencyError) Unwrap() error { return e.Err }

// PersistenceError is a store failure after shared state was tentatively
// mutated. Compensated reports whether every mutation was reverted.
type PersistenceError struct {
	Step        string
	Err         error
	Compensated bool
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("checkout: %s failed: %v", e.Step, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ToAppError maps checkout failures onto the HTTP error envelope.
func ToAppError(err error) *common.AppError {
	var (
		appErr  *common.AppError
		valErr  *ValidationError
		stock   *StockError
		redErr  *redemption.Error
		conc    *ConcurrencyError
		persist *PersistenceError
	)
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &valErr):
		details := map[string]any{"field": valErr.Field, "reason": valErr.Reason}
		if valErr.Line > 0 {
			details["line"] = valErr.Line
		}
		if valErr.ItemID != "" {
			details["itemId"] = valErr.ItemID
		}
		return common.NewAppError("VALIDATION_FAILED", valErr.Error(), http.StatusUnprocessableEntity, err).WithDetails(details)
	case errors.As(err, &stock):
		return common.NewAppError("INSUFFICIENT_STOCK", stock.Error(), http.StatusConflict, err).
			WithDetails(map[string]any{"lines": stock.Lines})
	case errors.As(err, &redErr):
		return common.NewAppError("REDEMPTION_REJECTED", redErr.Error(), http.StatusUnprocessableEntity, err).
			WithDetails(map[string]any{
				"field":     "points",
				"reason":    redErr.Reason,
				"requested": redErr.Requested,
				"balance":   redErr.Balance,
				"minimum":   redErr.Minimum,
			})
	case errors.Is(err, redemption.ErrInvalidTransition):
		return common.NewAppError("INVALID_REDEMPTION_STATE", "no redemption in a state that allows this operation", http.StatusConflict, err).
			WithDetails(map[string]any{"field": "redemption"})
	case errors.As(err, &conc):
		return common.NewAppError("CONCURRENT_COMMIT", conc.Error(), http.StatusConflict, err).
			WithDetails(map[string]any{"resource": conc.Resource, "retryable": true})
	case errors.Is(err, idempotency.ErrInFlight):
		return common.NewAppError("CONCURRENT_COMMIT", "a commit with this idempotency key is in progress", http.StatusConflict, err).
			WithDetails(map[string]any{"field": "Idempotency-Key", "retryable": true})
	case errors.As(err, &persist):
		return common.NewAppError("PERSISTENCE_FAILED", "sale could not be recorded", http.StatusServiceUnavailable, err).
			WithDetails(map[string]any{"step": persist.Step, "compensated": persist.Compensated, "retryable": persist.Compensated})
	case errors.Is(err, ErrSessionNotFound):
		return common.NewAppError("NOT_FOUND", "checkout session not found", http.StatusNotFound, err).
			WithDetails(map[string]any{"field": "id"})
	case errors.Is(err, ErrSessionClosed):
		return common.NewAppError("SESSION_CLOSED", "checkout session already committed", http.StatusConflict, err).
			WithDetails(map[string]any{"field": "id"})
	case errors.Is(err, ErrForbidden):
		return common.NewAppError("FORBIDDEN", "checkout session belongs to another employee", http.StatusForbidden, err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError("TIMEOUT", "operation timed out", http.StatusGatewayTimeout, err)
	default:
		return common.NewAppError("INTERNAL", "internal error", http.StatusInternalServerError, err)
	}
}
