package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/backend-kasir/internal/catalog"
	"github.com/noah-isme/backend-kasir/internal/pricing"
	"github.com/noah-isme/backend-kasir/internal/sales"
)

// LineInput is one requested cart line.
type LineInput struct {
	ItemID   string `json:"itemId" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

// Line is a priced cart line resolved against the catalog.
type Line struct {
	ItemID      string `json:"itemId"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unitPrice"`
	LineTotal   int64  `json:"lineTotal"`
}

// Cart is the ordered list of lines of one checkout.
type Cart struct {
	Lines []Line `json:"lines"`
}

// Subtotal sums the line totals.
func (c Cart) Subtotal() int64 {
	var total int64
	for _, l := range c.Lines {
		total += l.LineTotal
	}
	return total
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool { return len(c.Lines) == 0 }

// Items converts the cart for the pricing engine.
func (c Cart) Items() []pricing.Item {
	items := make([]pricing.Item, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, pricing.Item{
			ItemID:      l.ItemID,
			Category:    l.Category,
			Subcategory: l.Subcategory,
			Qty:         l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	return items
}

func (c Cart) saleLines() []sales.Line {
	out := make([]sales.Line, 0, len(c.Lines))
	for _, l := range c.Lines {
		out = append(out, sales.Line{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		})
	}
	return out
}

// BuildCart resolves the inputs against the catalog. Repeated item ids are
// merged into the first occurrence. Unknown ids and non-positive quantities
// fail with a ValidationError naming the line.
func BuildCart(ctx context.Context, cat catalog.Catalog, inputs []LineInput) (Cart, error) {
	if cat == nil {
		return Cart{}, errors.New("checkout: catalog not configured")
	}
	cart := Cart{Lines: make([]Line, 0, len(inputs))}
	index := make(map[string]int, len(inputs))
	for i, in := range inputs {
		lineNo := i + 1
		itemID := strings.TrimSpace(in.ItemID)
		if itemID == "" {
			return Cart{}, &ValidationError{Field: "itemId", Line: lineNo, Reason: "item id is required"}
		}
		if in.Quantity <= 0 {
			return Cart{}, &ValidationError{Field: "quantity", Line: lineNo, ItemID: itemID, Reason: "quantity must be greater than zero"}
		}
		if pos, ok := index[itemID]; ok {
			l := &cart.Lines[pos]
			l.Quantity += in.Quantity
			l.LineTotal = l.UnitPrice * int64(l.Quantity)
			continue
		}
		entry, err := cat.Lookup(ctx, itemID)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return Cart{}, &ValidationError{Field: "itemId", Line: lineNo, ItemID: itemID, Reason: "unknown item"}
			}
			return Cart{}, fmt.Errorf("checkout: catalog lookup %s: %w", itemID, err)
		}
		index[itemID] = len(cart.Lines)
		cart.Lines = append(cart.Lines, Line{
			ItemID:      entry.ID,
			Name:        entry.Name,
			Category:    entry.Category,
			Subcategory: entry.Subcategory,
			Quantity:    in.Quantity,
			UnitPrice:   entry.UnitPrice,
			LineTotal:   entry.UnitPrice * int64(in.Quantity),
		})
	}
	return cart, nil
}
