package stock

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/digishop/internal/domain/order"
)

func TestHolds(t *testing.T) {
	holding := []order.Status{order.StatusPaid, order.StatusSent, order.StatusDelivered}
	for _, s := range holding {
		assert.True(t, Holds(s), "status %s should hold inventory", s)
	}

	nonHolding := []order.Status{order.StatusPending, order.StatusCancelled, order.StatusReturned}
	for _, s := range nonHolding {
		assert.False(t, Holds(s), "status %s should not hold inventory", s)
	}
}

func TestPlanTransition(t *testing.T) {
	tests := []struct {
		name string
		old  order.Status
		new  order.Status
		want Movement
	}{
		{"pending to paid applies", order.StatusPending, order.StatusPaid, Apply},
		{"pending to sent applies", order.StatusPending, order.StatusSent, Apply},
		{"cancelled to paid applies", order.StatusCancelled, order.StatusPaid, Apply},
		{"returned to delivered applies", order.StatusReturned, order.StatusDelivered, Apply},

		{"paid to cancelled releases", order.StatusPaid, order.StatusCancelled, Release},
		{"sent to cancelled releases", order.StatusSent, order.StatusCancelled, Release},
		{"delivered to returned releases", order.StatusDelivered, order.StatusReturned, Release},
		{"paid to pending releases", order.StatusPaid, order.StatusPending, Release},

		{"paid to sent is a no-op", order.StatusPaid, order.StatusSent, None},
		{"sent to delivered is a no-op", order.StatusSent, order.StatusDelivered, None},
		{"delivered to paid is a no-op", order.StatusDelivered, order.StatusPaid, None},
		{"pending to cancelled is a no-op", order.StatusPending, order.StatusCancelled, None},
		{"cancelled to returned is a no-op", order.StatusCancelled, order.StatusReturned, None},
		{"same status is a no-op", order.StatusPaid, order.StatusPaid, None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanTransition(tt.old, tt.new))
		})
	}
}

// Every transition into the holding set must be undone by the reverse
// transition, so repeated cancel/restore cycles never drift.
func TestPlanTransition_RoundTrip(t *testing.T) {
	all := []order.Status{
		order.StatusPending, order.StatusPaid, order.StatusSent,
		order.StatusDelivered, order.StatusCancelled, order.StatusReturned,
	}
	for _, a := range all {
		for _, b := range all {
			forward := PlanTransition(a, b)
			backward := PlanTransition(b, a)
			switch forward {
			case Apply:
				assert.Equal(t, Release, backward, "%s -> %s", a, b)
			case Release:
				assert.Equal(t, Apply, backward, "%s -> %s", a, b)
			case None:
				assert.Equal(t, None, backward, "%s -> %s", a, b)
			}
		}
	}
}

func TestPlanDeletion(t *testing.T) {
	tests := []struct {
		name   string
		status order.Status
		isPaid bool
		want   Movement
	}{
		{"unpaid pending", order.StatusPending, false, None},
		{"unpaid cancelled", order.StatusCancelled, false, None},
		{"paid holding", order.StatusPaid, true, Release},
		{"paid sent", order.StatusSent, true, Release},
		{"paid delivered", order.StatusDelivered, true, Release},
		{"paid then cancelled already released", order.StatusCancelled, true, None},
		{"paid then returned already released", order.StatusReturned, true, None},
		{"paid pending", order.StatusPending, true, Release},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlanDeletion(tt.status, tt.isPaid))
		})
	}
}

func TestInsufficientStockError_Message(t *testing.T) {
	err := &InsufficientStockError{ProductID: "p1", Available: 1, Required: 3}
	assert.Equal(t, "insufficient stock for product p1: have 1, need 3", err.Error())
}

func TestMovement_String(t *testing.T) {
	assert.Equal(t, "apply", Apply.String())
	assert.Equal(t, "release", Release.String())
	assert.Equal(t, "none", None.String())
}
