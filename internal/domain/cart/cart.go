package cart

import (
	"context"

	"github.com/shopspring/decimal"
)

// Line is a single cart entry. UnitPrice is snapshotted when the line is
// first created and is never refreshed by later adds, so the price shown
// while editing the cart stays stable even if the catalog price changes
// mid-session.
type Line struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Cart holds the lines of one session's cart in insertion order.
type Cart struct {
	Lines []Line `json:"lines"`
}

// Find returns a pointer to the line for the given product, or nil.
func (c *Cart) Find(productID string) *Line {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

// Delete removes the line for the given product, preserving order.
// It reports whether a line was removed.
func (c *Cart) Delete(productID string) bool {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return true
		}
	}
	return false
}

// TotalPrice returns the sum of quantity times snapshot price over all lines.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// IsEmpty reports whether the cart holds no units at all. Lines clamped to
// zero quantity count as empty.
func (c *Cart) IsEmpty() bool {
	for _, l := range c.Lines {
		if l.Quantity > 0 {
			return false
		}
	}
	return true
}

// Store persists carts keyed by an explicit session identifier. The caller
// supplies the identifier on every call; there is no ambient session state.
// Concurrent requests within one session are expected to be serialized by
// the surrounding session handling.
type Store interface {
	// Get returns the session's cart. A missing cart is returned as an
	// empty one, not an error.
	Get(ctx context.Context, sessionID string) (*Cart, error)
	Save(ctx context.Context, sessionID string, c *Cart) error
	Clear(ctx context.Context, sessionID string) error
}
