package sales

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-kasir/internal/db"
)

// Postgres implements Store on the sales table.
type Postgres struct {
	DB db.DBTX
}

// Append implements Store. A commit id that already exists yields ErrDuplicateCommit.
func (p Postgres) Append(ctx context.Context, s Sale) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	lines, err := json.Marshal(s.Lines)
	if err != nil {
		return "", fmt.Errorf("encode sale lines: %w", err)
	}
	var redeemed int64
	if s.RedemptionConsumed != nil {
		redeemed = s.RedemptionConsumed.Points
	}
	const q = `INSERT INTO sales (id, commit_id, occurred_at, customer_id, employee_id, lines, subtotal,
    discount_amount, discount_source, total, payment_method, amount_tendered, change_due,
    points_accrued, points_redeemed)
VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	_, err = p.DB.Exec(ctx, q, s.ID, s.CommitID, s.Timestamp, s.CustomerID, s.EmployeeID, lines, s.Subtotal,
		s.DiscountAmount, s.DiscountSource, s.Total, s.PaymentMethod, s.AmountTendered, s.ChangeDue,
		s.PointsAccrued, redeemed)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return "", ErrDuplicateCommit
		}
		return "", err
	}
	return s.ID, nil
}

// FindByCommitID implements Store.
func (p Postgres) FindByCommitID(ctx context.Context, commitID string) (Sale, error) {
	const q = `SELECT id::text, COALESCE(commit_id, ''), occurred_at, COALESCE(customer_id, ''), employee_id, lines,
    subtotal, discount_amount, discount_source, total, payment_method, amount_tendered, change_due,
    points_accrued, points_redeemed
FROM sales WHERE commit_id = $1`
	var (
		s        Sale
		lines    []byte
		redeemed int64
	)
	err := p.DB.QueryRow(ctx, q, commitID).Scan(&s.ID, &s.CommitID, &s.Timestamp, &s.CustomerID, &s.EmployeeID,
		&lines, &s.Subtotal, &s.DiscountAmount, &s.DiscountSource, &s.Total, &s.PaymentMethod,
		&s.AmountTendered, &s.ChangeDue, &s.PointsAccrued, &redeemed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrNotFound
		}
		return Sale{}, err
	}
	if err := json.Unmarshal(lines, &s.Lines); err != nil {
		return Sale{}, fmt.Errorf("decode sale lines: %w", err)
	}
	if redeemed > 0 {
		s.RedemptionConsumed = &Redemption{Points: redeemed}
	}
	return s, nil
}

// PostgresHistory implements History on the employee_sales table.
type PostgresHistory struct {
	DB db.DBTX
}

// Record implements History. Recording the same sale twice is a no-op.
func (h PostgresHistory) Record(ctx context.Context, employeeID string, summary Summary) error {
	const q = `INSERT INTO employee_sales (employee_id, sale_id, total, occurred_at)
VALUES ($1, $2::uuid, $3, $4) ON CONFLICT (employee_id, sale_id) DO NOTHING`
	_, err := h.DB.Exec(ctx, q, employeeID, summary.SaleID, summary.Total, summary.Timestamp)
	return err
}

// Range implements HistoryReader.
func (h PostgresHistory) Range(ctx context.Context, employeeID string, from, to time.Time) ([]Summary, error) {
	const q = `SELECT sale_id::text, total, occurred_at FROM employee_sales
WHERE employee_id = $1 AND occurred_at >= $2 AND occurred_at < $3
ORDER BY occurred_at, sale_id`
	rows, err := h.DB.Query(ctx, q, employeeID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.SaleID, &s.Total, &s.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
