package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusReturned  Status = "returned"
)

// ParseStatus validates a status string from an external caller.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusPaid, StatusSent, StatusDelivered, StatusCancelled, StatusReturned:
		return st, nil
	default:
		return "", errors.Wrap(ErrInvalidStatus, s)
	}
}

var (
	// ErrNotFound is returned when an order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidStatus is returned for an unknown status value.
	ErrInvalidStatus = errors.New("invalid order status")
)

// Order is the durable record of a checkout attempt. Prices and quantities
// are snapshotted in its lines at creation time and never follow later
// catalog changes.
type Order struct {
	ID             string
	BuyerID        string
	RecipientName  string
	Address        string
	Phone          string
	TotalPrice     decimal.Decimal
	IsPaid         bool
	Status         Status
	TransactionRef string
	Lines          []Line
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Line is one order line. Immutable once created; owned by the order and
// deleted with it.
type Line struct {
	ProductID string
	UnitPrice decimal.Decimal
	Quantity  int
}

// Repository defines persistence for orders. The mutating operations run
// stock reconciliation inside the same transaction as the order write; see
// the stock package for the movement rules.
type Repository interface {
	// Create persists the order and all its lines atomically.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]Order, error)

	// MarkPaid records a verified payment: it locks the affected product
	// rows in id order, re-checks availability, decrements stock per line,
	// and sets is_paid, status=paid and the gateway reference in one
	// transaction. Calling it again for an already-paid order is a no-op
	// success; stock is decremented at most once per order.
	MarkPaid(ctx context.Context, id, transactionRef string) error

	// UpdateStatus transitions the order to a new status, applying the
	// stock movement planned from the previously persisted status inside
	// the same transaction.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// Delete reconciles stock for the order being removed (restoring it
	// when the order still holds inventory) and deletes the order and its
	// lines in one transaction.
	Delete(ctx context.Context, id string) error
}
