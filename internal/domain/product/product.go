package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. The catalog is
// owned by another subsystem; this core reads prices and stock, and mutates
// stock only inside order reconciliation transactions.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Stock    int
	Category string
	ImageURL string
}

// Repository defines the catalog operations the checkout core depends on.
// Stock mutations never go through this interface; they happen inside the
// order repository's reconciliation transactions.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
