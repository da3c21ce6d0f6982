package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-kasir/internal/db"
)

var (
	// ErrNotFound is returned for unknown customers.
	ErrNotFound = errors.New("ledger: customer not found")
	// ErrInsufficientBalance is returned when a debit exceeds the point balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient point balance")
	// ErrInvalidPoints rejects non-positive point movements.
	ErrInvalidPoints = errors.New("ledger: points must be positive")
)

// Account is a customer's loyalty state.
type Account struct {
	CustomerID     string `json:"customerId"`
	Name           string `json:"name,omitempty"`
	PointBalance   int64  `json:"pointBalance"`
	IsVIP          bool   `json:"isVip"`
	TotalPurchases int64  `json:"totalPurchases"`
}

// Ledger owns customer point balances.
type Ledger interface {
	Get(ctx context.Context, customerID string) (Account, error)
	Credit(ctx context.Context, customerID string, points int64) error
	Debit(ctx context.Context, customerID string, points int64) error
}

// BalanceReader adapts a Ledger to the redemption manager.
type BalanceReader struct {
	Ledger Ledger
}

// PointBalance returns the customer's current balance.
func (b BalanceReader) PointBalance(ctx context.Context, customerID string) (int64, error) {
	acct, err := b.Ledger.Get(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return acct.PointBalance, nil
}

// Memory is an in-process Ledger.
type Memory struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemory seeds the ledger with accounts keyed by CustomerID.
func NewMemory(accounts ...Account) *Memory {
	m := &Memory{accounts: make(map[string]Account, len(accounts))}
	for _, a := range accounts {
		m.accounts[a.CustomerID] = a
	}
	return m
}

// Get implements Ledger.
func (m *Memory) Get(_ context.Context, customerID string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[strings.TrimSpace(customerID)]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

// Credit implements Ledger.
func (m *Memory) Credit(_ context.Context, customerID string, points int64) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[customerID]
	if !ok {
		return ErrNotFound
	}
	a.PointBalance += points
	m.accounts[customerID] = a
	return nil
}

// Debit implements Ledger.
func (m *Memory) Debit(_ context.Context, customerID string, points int64) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[customerID]
	if !ok {
		return ErrNotFound
	}
	if a.PointBalance < points {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientBalance, customerID, a.PointBalance, points)
	}
	a.PointBalance -= points
	m.accounts[customerID] = a
	return nil
}

// Postgres implements Ledger on the customers table.
type Postgres struct {
	DB db.DBTX
}

// Get implements Ledger.
func (p Postgres) Get(ctx context.Context, customerID string) (Account, error) {
	const q = `SELECT id, name, point_balance, is_vip, total_purchases FROM customers WHERE id = $1`
	var a Account
	err := p.DB.QueryRow(ctx, q, strings.TrimSpace(customerID)).Scan(&a.CustomerID, &a.Name, &a.PointBalance, &a.IsVIP, &a.TotalPurchases)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// Credit implements Ledger.
func (p Postgres) Credit(ctx context.Context, customerID string, points int64) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	tag, err := p.DB.Exec(ctx, `UPDATE customers SET point_balance = point_balance + $2 WHERE id = $1`, customerID, points)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Debit implements Ledger.
func (p Postgres) Debit(ctx context.Context, customerID string, points int64) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	tag, err := p.DB.Exec(ctx, `UPDATE customers SET point_balance = point_balance - $2 WHERE id = $1 AND point_balance >= $2`, customerID, points)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := p.Get(ctx, customerID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %s", ErrInsufficientBalance, customerID)
	}
	return nil
}

// Upsert creates or replaces a customer account.
func (p Postgres) Upsert(ctx context.Context, a Account) error {
	const q = `INSERT INTO customers (id, name, point_balance, is_vip, total_purchases)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, point_balance = EXCLUDED.point_balance,
    is_vip = EXCLUDED.is_vip, total_purchases = EXCLUDED.total_purchases`
	_, err := p.DB.Exec(ctx, q, a.CustomerID, a.Name, a.PointBalance, a.IsVIP, a.TotalPurchases)
	return err
}
