// Package stock plans the inventory movements that keep product stock
// consistent with the order lifecycle. Planning is pure; execution happens
// in the storage layer inside the same transaction as the status write,
// operating on the freshly read previous status rather than any cached
// copy. Every status edge that enters the inventory-holding set has a
// matching opposite edge, so repeated cancel/restore cycles are never lossy.
package stock

import (
	"fmt"

	"github.com/xenking/digishop/internal/domain/order"
)

// Movement is the inventory action required by a status change.
type Movement int

const (
	// None means stock is untouched.
	None Movement = iota
	// Apply decrements stock by each line's quantity.
	Apply
	// Release increments stock by each line's quantity.
	Release
)

func (m Movement) String() string {
	switch m {
	case Apply:
		return "apply"
	case Release:
		return "release"
	default:
		return "none"
	}
}

// InsufficientStockError reports that a required decrement would drive a
// product's stock negative. The surrounding transaction must be rolled back
// so no partial movement commits.
type InsufficientStockError struct {
	ProductID string
	Available int
	Required  int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: have %d, need %d",
		e.ProductID, e.Available, e.Required)
}

// Holds reports whether an order in the given status holds inventory, i.e.
// its lines have been decremented from product stock.
func Holds(s order.Status) bool {
	switch s {
	case order.StatusPaid, order.StatusSent, order.StatusDelivered:
		return true
	default:
		return false
	}
}

// PlanTransition returns the movement required when an order moves from the
// persisted old status to the new one. Transitions within the holding set
// (paid -> sent -> delivered) and within the non-holding set are no-ops.
func PlanTransition(old, new order.Status) Movement {
	switch {
	case !Holds(old) && Holds(new):
		return Apply
	case Holds(old) && !Holds(new):
		return Release
	default:
		return None
	}
}

// PlanDeletion returns the movement required when an order is deleted.
// Stock was decremented only if the payment actually went through, and a
// cancelled or returned order already had its stock restored when it left
// the holding set, so only a paid order still in a pre-restore status needs
// releasing.
func PlanDeletion(status order.Status, isPaid bool) Movement {
	if !isPaid {
		return None
	}
	switch status {
	case order.StatusCancelled, order.StatusReturned:
		return None
	default:
		return Release
	}
}
