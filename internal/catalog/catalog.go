package catalog

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// ComboCategory is the category reported for bundled items.
const ComboCategory = "Combos"

var (
	// ErrNotFound is returned when an item id is not in the catalog.
	ErrNotFound = errors.New("catalog: item not found")
	// ErrInvalidCombo indicates a combo that is not cheaper than its parts.
	ErrInvalidCombo = errors.New("catalog: combo price must be below its normal price")
)

// Product is immutable reference data for a single sellable item.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	UnitPrice   int64  `json:"unitPrice"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// Combo bundles several products at a fixed discounted price.
type Combo struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Price            int64    `json:"price"`
	NormalPrice      int64    `json:"normalPrice"`
	DiscountPercent  int      `json:"discountPercent"`
	MemberProductIDs []string `json:"memberProductIds"`
}

// NewCombo validates price < normalPrice and derives the rounded discount percentage.
func NewCombo(id, name string, price, normalPrice int64, members []string) (Combo, error) {
	if price <= 0 || normalPrice <= 0 || price >= normalPrice {
		return Combo{}, fmt.Errorf("%w: %s (%d >= %d)", ErrInvalidCombo, id, price, normalPrice)
	}
	pct := math.Round(float64(normalPrice-price) / float64(normalPrice) * 100)
	return Combo{
		ID:               id,
		Name:             name,
		Price:            price,
		NormalPrice:      normalPrice,
		DiscountPercent:  int(pct),
		MemberProductIDs: append([]string(nil), members...),
	}, nil
}

// Entry is what checkout needs to price an item.
type Entry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	UnitPrice   int64  `json:"unitPrice"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

func (p Product) entry() Entry {
	return Entry{ID: p.ID, Name: p.Name, UnitPrice: p.UnitPrice, Category: p.Category, Subcategory: p.Subcategory}
}

func (c Combo) entry() Entry {
	return Entry{ID: c.ID, Name: c.Name, UnitPrice: c.Price, Category: ComboCategory}
}

// Catalog resolves item identifiers to their pricing attributes.
type Catalog interface {
	Lookup(ctx context.Context, itemID string) (Entry, error)
}

// Lister enumerates the menu, optionally narrowed to one category.
type Lister interface {
	List(ctx context.Context, category string) ([]Entry, error)
}

// Memory is an in-process catalog.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemory builds a catalog from products and combos. Combo members must exist.
func NewMemory(products []Product, combos []Combo) (*Memory, error) {
	m := &Memory{entries: make(map[string]Entry, len(products)+len(combos))}
	for _, p := range products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, errors.New("catalog: product id is required")
		}
		if p.UnitPrice < 0 {
			return nil, fmt.Errorf("catalog: product %s has a negative price", id)
		}
		m.entries[id] = p.entry()
	}
	for _, c := range combos {
		if c.Price >= c.NormalPrice {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCombo, c.ID)
		}
		for _, member := range c.MemberProductIDs {
			if _, ok := m.entries[member]; !ok {
				return nil, fmt.Errorf("catalog: combo %s references unknown product %s", c.ID, member)
			}
		}
		m.entries[c.ID] = c.entry()
	}
	return m, nil
}

// Lookup implements Catalog.
func (m *Memory) Lookup(_ context.Context, itemID string) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[strings.TrimSpace(itemID)]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// List implements Lister. Entries are ordered by category, then name.
func (m *Memory) List(_ context.Context, category string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		if category != "" && !strings.EqualFold(e.Category, category) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
