package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrEmptyCart is returned when checkout is attempted with no cart
	// lines; the caller should send the buyer back to the catalog.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPaymentCancelled is returned when the buyer aborted the payment at
	// the gateway. The order stays pending; the attempt is closed.
	ErrPaymentCancelled = errors.New("payment cancelled by buyer")
	// ErrNoPendingPayment is returned when a callback arrives for a session
	// with no stored payment attempt.
	ErrNoPendingPayment = errors.New("no pending payment for session")
	// ErrAlreadyPaid is returned when payment initiation is requested for
	// an order that is already paid.
	ErrAlreadyPaid = errors.New("order already paid")
)

// InitiationError reports a failed payment-request round trip. The order
// remains pending with stock untouched; re-submitting the checkout retries.
type InitiationError struct {
	Code string
}

func (e *InitiationError) Error() string {
	return fmt.Sprintf("payment initiation failed: %s", e.Code)
}

// VerificationError reports a failed gateway verify call. Verification is
// idempotent, so re-invoking it with the same authority is safe.
type VerificationError struct {
	Code string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("payment verification failed: %s", e.Code)
}
