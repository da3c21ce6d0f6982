package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kasir/internal/sales"
)

// SalesReport aggregates one employee's committed sales over a time range.
type SalesReport struct {
	EmployeeID    string          `json:"employeeId"`
	From          time.Time       `json:"from"`
	To            time.Time       `json:"to"`
	SaleCount     int             `json:"saleCount"`
	Gross         int64           `json:"gross"`
	AverageTicket int64           `json:"averageTicket"`
	Largest       int64           `json:"largest"`
	Sales         []sales.Summary `json:"sales"`
}

// Service builds sales reports from the employee history, caching closed ranges.
type Service struct {
	History      sales.HistoryReader
	R            *redis.Client
	TTL          time.Duration
	DefaultHours int
	Now          func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// Sales returns the report for employeeID between from (inclusive) and to (exclusive).
// Only ranges that have already ended are cached.
func (s *Service) Sales(ctx context.Context, employeeID string, from, to time.Time) (SalesReport, error) {
	if s == nil || s.History == nil {
		return SalesReport{}, fmt.Errorf("analytics service not configured")
	}
	from, to = from.UTC(), to.UTC()
	closed := !to.After(s.now())
	key := cacheKey("kasir", "sales", employeeID, from.Unix(), to.Unix())
	if closed {
		if report, ok := s.fromCache(ctx, key); ok {
			return report, nil
		}
	}
	entries, err := s.History.Range(ctx, employeeID, from, to)
	if err != nil {
		return SalesReport{}, err
	}
	report := Summarize(employeeID, from, to, entries)
	if closed {
		s.store(ctx, key, report)
	}
	return report, nil
}

// Summarize folds history entries into a report. The average ticket is floored.
func Summarize(employeeID string, from, to time.Time, entries []sales.Summary) SalesReport {
	report := SalesReport{EmployeeID: employeeID, From: from, To: to, Sales: entries}
	if report.Sales == nil {
		report.Sales = []sales.Summary{}
	}
	for _, e := range entries {
		report.SaleCount++
		report.Gross += e.Total
		if e.Total > report.Largest {
			report.Largest = e.Total
		}
	}
	if report.SaleCount > 0 {
		report.AverageTicket = report.Gross / int64(report.SaleCount)
	}
	return report
}

func (s *Service) fromCache(ctx context.Context, key string) (SalesReport, bool) {
	if s.R == nil || s.TTL <= 0 {
		return SalesReport{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return SalesReport{}, false
	}
	var report SalesReport
	if err := json.Unmarshal(data, &report); err != nil {
		return SalesReport{}, false
	}
	return report, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
