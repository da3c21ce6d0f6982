package inventory

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
	// ErrInsufficientStock is returned when a decrement would take stock below zero.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity rejects non-positive adjustments.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
)

// Store owns per-item stock counts. Unknown items have zero stock.
type Store interface {
	StockOf(ctx context.Context, itemID string) (int64, error)
	Decrement(ctx context.Context, itemID string, qty int64) error
	Increment(ctx context.Context, itemID string, qty int64) error
}

// Memory implements Store with in-memory storage.
type Memory struct {
	mu     sync.RWMutex
	stocks map[string]int64
}

// NewMemory creates an in-memory store seeded with the given counts.
func NewMemory(seed map[string]int64) *Memory {
	m := &Memory{stocks: make(map[string]int64, len(seed))}
	for id, qty := range seed {
		m.stocks[id] = qty
	}
	return m
}

// StockOf implements Store.
func (m *Memory) StockOf(_ context.Context, itemID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stocks[itemID], nil
}

// Decrement implements Store.
func (m *Memory) Decrement(_ context.Context, itemID string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stocks[itemID] < qty {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientStock, itemID, m.stocks[itemID], qty)
	}
	m.stocks[itemID] -= qty
	return nil
}

// Increment implements Store.
func (m *Memory) Increment(_ context.Context, itemID string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks[itemID] += qty
	return nil
}

// Snapshot returns a copy of all stock counts.
func (m *Memory) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.stocks))
	for id, qty := range m.stocks {
		out[id] = qty
	}
	return out
}

// Postgres implements Store on the stock table.
type Postgres struct {
	DB db.DBTX
}

// StockOf implements Store.
func (p Postgres) StockOf(ctx context.Context, itemID string) (int64, error) {
	var qty int64
	err := p.DB.QueryRow(ctx, `SELECT quantity FROM stock WHERE item_id = $1`, strings.TrimSpace(itemID)).Scan(&qty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return qty, nil
}

// Decrement implements Store. The guard in the WHERE clause keeps stock non-negative
// without a prior read.
func (p Postgres) Decrement(ctx context.Context, itemID string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	tag, err := p.DB.Exec(ctx, `UPDATE stock SET quantity = quantity - $2 WHERE item_id = $1 AND quantity >= $2`, itemID, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrInsufficientStock, itemID)
	}
	return nil
}

// Increment implements Store.
func (p Postgres) Increment(ctx context.Context, itemID string, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	_, err := p.DB.Exec(ctx, `INSERT INTO stock (item_id, quantity) VALUES ($1, $2)
ON CONFLICT (item_id) DO UPDATE SET quantity = stock.quantity + EXCLUDED.quantity`, itemID, qty)
	return err
}

// Set overwrites the on-hand quantity, creating the row when missing.
func (p Postgres) Set(ctx context.Context, itemID string, qty int64) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	_, err := p.DB.Exec(ctx, `INSERT INTO stock (item_id, quantity) VALUES ($1, $2)
ON CONFLICT (item_id) DO UPDATE SET quantity = EXCLUDED.quantity`, itemID, qty)
	return err
}
