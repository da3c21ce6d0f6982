package sales

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no sale matches the lookup.
	ErrNotFound = errors.New("sales: sale not found")
	// ErrDuplicateCommit is returned when a sale with the same commit id already exists.
	ErrDuplicateCommit = errors.New("sales: commit id already persisted")
)

// Line is an immutable copy of a cart line on the sale.
type Line struct {
	ItemID    string `json:"itemId"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	LineTotal int64  `json:"lineTotal"`
}

// Redemption records the points consumed by the sale.
type Redemption struct {
	RequestID string `json:"requestId"`
	Points    int64  `json:"pointsRequested"`
	Discount  int64  `json:"discountAmount"`
}

// Sale is created only by a successful commit and never changes afterwards.
type Sale struct {
	ID                 string      `json:"id"`
	CommitID           string      `json:"commitId,omitempty"`
	Timestamp          time.Time   `json:"timestamp"`
	CustomerID         string      `json:"customerId,omitempty"`
	EmployeeID         string      `json:"employeeId"`
	Lines              []Line      `json:"lines"`
	Subtotal           int64       `json:"subtotal"`
	DiscountAmount     int64       `json:"discountAmount"`
	DiscountSource     string      `json:"discountSource"`
	Total              int64       `json:"total"`
	PaymentMethod      string      `json:"paymentMethod"`
	AmountTendered     int64       `json:"amountTendered"`
	ChangeDue          int64       `json:"changeDue"`
	PointsAccrued      int64       `json:"pointsAccrued"`
	RedemptionConsumed *Redemption `json:"redemptionConsumed,omitempty"`
}

// Summary is what an employee's sale history keeps.
type Summary struct {
	SaleID    string    `json:"saleId"`
	Total     int64     `json:"total"`
	Timestamp time.Time `json:"timestamp"`
}

// SummaryOf builds the history entry for a sale.
func SummaryOf(s Sale) Summary {
	return Summary{SaleID: s.ID, Total: s.Total, Timestamp: s.Timestamp}
}

// Store persists sales.
type Store interface {
	Append(ctx context.Context, s Sale) (string, error)
	FindByCommitID(ctx context.Context, commitID string) (Sale, error)
}

// History keeps the per-employee sale log.
type History interface {
	Record(ctx context.Context, employeeID string, summary Summary) error
}

// HistoryReader lists an employee's sales in [from, to), oldest first.
type HistoryReader interface {
	Range(ctx context.Context, employeeID string, from, to time.Time) ([]Summary, error)
}

// Memory implements Store in process.
type Memory struct {
	mu       sync.RWMutex
	sales    map[string]Sale
	byCommit map[string]string
}

// NewMemory returns an empty sale store.
func NewMemory() *Memory {
	return &Memory{sales: make(map[string]Sale), byCommit: make(map[string]string)}
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, s Sale) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.CommitID != "" {
		if _, ok := m.byCommit[s.CommitID]; ok {
			return "", ErrDuplicateCommit
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Lines = append([]Line(nil), s.Lines...)
	m.sales[s.ID] = s
	if s.CommitID != "" {
		m.byCommit[s.CommitID] = s.ID
	}
	return s.ID, nil
}

// FindByCommitID implements Store.
func (m *Memory) FindByCommitID(_ context.Context, commitID string) (Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byCommit[commitID]
	if !ok {
		return Sale{}, ErrNotFound
	}
	return m.sales[id], nil
}

// All returns every stored sale ordered by timestamp.
func (m *Memory) All() []Sale {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sale, 0, len(m.sales))
	for _, s := range m.sales {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// MemoryHistory implements History in process.
type MemoryHistory struct {
	mu      sync.Mutex
	entries map[string][]Summary
}

// NewMemoryHistory returns an empty history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{entries: make(map[string][]Summary)}
}

// Record implements History.
func (h *MemoryHistory) Record(_ context.Context, employeeID string, summary Summary) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[employeeID] = append(h.entries[employeeID], summary)
	return nil
}

// For returns the recorded summaries for an employee.
func (h *MemoryHistory) For(employeeID string) []Summary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Summary(nil), h.entries[employeeID]...)
}

// Range implements HistoryReader.
func (h *MemoryHistory) Range(_ context.Context, employeeID string, from, to time.Time) ([]Summary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Summary
	for _, s := range h.entries[employeeID] {
		if s.Timestamp.Before(from) || !s.Timestamp.Before(to) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}
