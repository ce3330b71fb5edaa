package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/digishop/internal/domain/order"
	"github.com/xenking/digishop/internal/domain/stock"
)

const (
	insertOrderSQL = `INSERT INTO orders
		(id, buyer_id, recipient_name, address, phone, total_price, is_paid, status, transaction_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''))`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, unit_price, quantity)
		VALUES ($1, $2, $3, $4)`

	selectOrderSQL = `SELECT id, buyer_id, recipient_name, address, phone, total_price,
			is_paid, status, COALESCE(transaction_ref, ''), created_at, updated_at
		FROM orders WHERE id = $1`

	selectOrdersByBuyerSQL = `SELECT id, buyer_id, recipient_name, address, phone, total_price,
			is_paid, status, COALESCE(transaction_ref, ''), created_at, updated_at
		FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`

	// The reconciliation transactions read the previously persisted state
	// under an exclusive lock before planning any stock movement.
	selectOrderStateSQL = `SELECT status, is_paid FROM orders WHERE id = $1 FOR UPDATE`

	// Lines are read in product id order so product rows are always locked
	// in the same order across overlapping transactions.
	selectOrderLinesSQL = `SELECT product_id, unit_price, quantity
		FROM order_items WHERE order_id = $1 ORDER BY product_id`

	lockProductStockSQL = `SELECT stock FROM products WHERE id = $1 FOR UPDATE`
	decrementStockSQL   = `UPDATE products SET stock = stock - $2 WHERE id = $1`
	incrementStockSQL   = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	markPaidSQL = `UPDATE orders
		SET is_paid = TRUE, status = 'paid', transaction_ref = $2, updated_at = now()
		WHERE id = $1`

	updateStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. All
// status mutations run the stock reconciliation planned by the stock
// package inside the same transaction as the order write.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and all its lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.BuyerID, o.RecipientName, o.Address, o.Phone,
		o.TotalPrice, o.IsPaid, string(o.Status), o.TransactionRef,
	)
	if err != nil {
		return errors.Wrapf(err, "insert order %q", o.ID)
	}

	for _, l := range o.Lines {
		if _, err := tx.Exec(ctx, insertOrderItemSQL, o.ID, l.ProductID, l.UnitPrice, l.Quantity); err != nil {
			return errors.Wrapf(err, "insert order line %q/%q", o.ID, l.ProductID)
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// GetByID returns the order with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}

	lineRows, err := r.pool.Query(ctx, selectOrderLinesSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order lines %q", id)
	}
	o.Lines, err = pgx.CollectRows(lineRows, scanLine)
	if err != nil {
		return nil, errors.Wrapf(err, "scan order lines %q", id)
	}
	return &o, nil
}

// ListByBuyer returns the buyer's orders, newest first, without lines.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, selectOrdersByBuyerSQL, buyerID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for buyer %q", buyerID)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// MarkPaid records a verified payment. Idempotent: an already-paid order
// returns success without touching stock. Otherwise every product row
// referenced by the order's lines is locked in id order, availability is
// re-checked, stock is decremented and the order flipped to paid, all in
// one transaction.
func (r *OrderRepository) MarkPaid(ctx context.Context, id, transactionRef string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	st, err := lockOrderState(ctx, tx, id)
	if err != nil {
		return err
	}
	if st.isPaid {
		return nil
	}

	lines, err := loadLines(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := applyMovement(ctx, tx, lines, stock.Apply); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, markPaidSQL, id, transactionRef); err != nil {
		return errors.Wrapf(err, "mark order %q paid", id)
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

// UpdateStatus transitions the order, applying the stock movement planned
// from the freshly read previous status within the same transaction. A
// required decrement that would drive stock negative aborts the whole
// transaction with stock.InsufficientStockError: the status write is rolled
// back too.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	st, err := lockOrderState(ctx, tx, id)
	if err != nil {
		return err
	}

	if mv := stock.PlanTransition(st.status, status); mv != stock.None {
		lines, err := loadLines(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := applyMovement(ctx, tx, lines, mv); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, updateStatusSQL, id, string(status)); err != nil {
		return errors.Wrapf(err, "update order %q status", id)
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

// Delete removes the order and its lines, restoring stock first when the
// order still holds inventory at deletion time.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback(ctx)

	st, err := lockOrderState(ctx, tx, id)
	if err != nil {
		return err
	}

	if mv := stock.PlanDeletion(st.status, st.isPaid); mv != stock.None {
		lines, err := loadLines(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := applyMovement(ctx, tx, lines, mv); err != nil {
			return err
		}
	}

	// Lines go with the order via ON DELETE CASCADE.
	if _, err := tx.Exec(ctx, deleteOrderSQL, id); err != nil {
		return errors.Wrapf(err, "delete order %q", id)
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

type orderState struct {
	status order.Status
	isPaid bool
}

func lockOrderState(ctx context.Context, tx pgx.Tx, id string) (orderState, error) {
	var (
		st  orderState
		raw string
	)
	err := tx.QueryRow(ctx, selectOrderStateSQL, id).Scan(&raw, &st.isPaid)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return st, order.ErrNotFound
		}
		return st, errors.Wrapf(err, "lock order %q", id)
	}
	st.status = order.Status(raw)
	return st, nil
}

func loadLines(ctx context.Context, tx pgx.Tx, orderID string) ([]order.Line, error) {
	rows, err := tx.Query(ctx, selectOrderLinesSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "load lines for order %q", orderID)
	}
	return pgx.CollectRows(rows, scanLine)
}

// applyMovement executes a planned stock movement over the given lines.
// Lines arrive ordered by product id; each product row is locked before its
// counter is touched. Any shortfall aborts with InsufficientStockError and
// the caller's deferred rollback discards every partial change.
func applyMovement(ctx context.Context, tx pgx.Tx, lines []order.Line, mv stock.Movement) error {
	for _, l := range lines {
		var available int
		if err := tx.QueryRow(ctx, lockProductStockSQL, l.ProductID).Scan(&available); err != nil {
			return errors.Wrapf(err, "lock stock for product %q", l.ProductID)
		}

		switch mv {
		case stock.Apply:
			if available < l.Quantity {
				return &stock.InsufficientStockError{
					ProductID: l.ProductID,
					Available: available,
					Required:  l.Quantity,
				}
			}
			if _, err := tx.Exec(ctx, decrementStockSQL, l.ProductID, l.Quantity); err != nil {
				return errors.Wrapf(err, "decrement stock for product %q", l.ProductID)
			}
		case stock.Release:
			if _, err := tx.Exec(ctx, incrementStockSQL, l.ProductID, l.Quantity); err != nil {
				return errors.Wrapf(err, "increment stock for product %q", l.ProductID)
			}
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o   order.Order
		raw string
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.RecipientName, &o.Address, &o.Phone,
		&o.TotalPrice, &o.IsPaid, &raw, &o.TransactionRef,
		&o.CreatedAt, &o.UpdatedAt,
	)
	o.Status = order.Status(raw)
	return o, err
}

func scanLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(&l.ProductID, &l.UnitPrice, &l.Quantity)
	return l, err
}
