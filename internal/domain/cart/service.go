package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/digishop/internal/domain/product"
)

// Item is a cart line joined with live product data for display. LineTotal
// is computed from the snapshot price, not the live one.
type Item struct {
	Product   product.Product
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Service implements cart operations on top of a session-keyed Store and the
// product catalog.
type Service struct {
	store    Store
	products product.Repository
}

// NewService creates a cart Service.
func NewService(store Store, products product.Repository) *Service {
	return &Service{store: store, products: products}
}

// Add puts qty units of a product into the session's cart. When override is
// false the quantity is added to the current one; when true it replaces it.
// The resulting quantity is clamped to the product's current available
// stock. The clamp is advisory only: the authoritative check happens again
// when the payment is verified.
func (s *Service) Add(ctx context.Context, sessionID, productID string, qty int, override bool) (*Cart, error) {
	if qty < 0 {
		return nil, errors.New("quantity must not be negative")
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}

	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	line := c.Find(productID)

	requested := qty
	if !override && line != nil {
		requested += line.Quantity
	}
	if requested > p.Stock {
		requested = p.Stock
	}

	if line == nil {
		c.Lines = append(c.Lines, Line{
			ProductID: productID,
			Quantity:  requested,
			UnitPrice: p.Price,
		})
	} else {
		// Keep the original price snapshot on repeat adds.
		line.Quantity = requested
	}

	if err := s.store.Save(ctx, sessionID, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// Remove deletes the product's line from the session's cart.
func (s *Service) Remove(ctx context.Context, sessionID, productID string) (*Cart, error) {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.Delete(productID) {
		if err := s.store.Save(ctx, sessionID, c); err != nil {
			return nil, errors.Wrap(err, "save cart")
		}
	}
	return c, nil
}

// Items returns the session's cart lines joined against live product data in
// a single batch. Display fields (name, image) come from the catalog; prices
// and totals come from the stored snapshots.
func (s *Service) Items(ctx context.Context, sessionID string) ([]Item, error) {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if len(c.Lines) == 0 {
		return nil, nil
	}

	ids := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, 0, len(c.Lines))
	for _, l := range c.Lines {
		p, ok := byID[l.ProductID]
		if !ok {
			// Product removed from the catalog since it was added;
			// skip the line for display purposes.
			continue
		}
		items = append(items, Item{
			Product:   p,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
		})
	}
	return items, nil
}

// Get returns the raw cart for the session.
func (s *Service) Get(ctx context.Context, sessionID string) (*Cart, error) {
	return s.store.Get(ctx, sessionID)
}

// TotalPrice returns the session cart's total based on snapshot prices.
func (s *Service) TotalPrice(ctx context.Context, sessionID string) (decimal.Decimal, error) {
	c, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "get cart")
	}
	return c.TotalPrice(), nil
}

// Clear drops the session's cart entirely.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	return s.store.Clear(ctx, sessionID)
}
