// Package gateway defines the provider-neutral payment gateway contract the
// checkout flow depends on. Concrete adapters live in subpackages.
package gateway

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Well-known error codes produced by adapters for transport-level failures.
// Provider-specific numeric codes are passed through as-is.
const (
	CodeTimeout         = "timeout"
	CodeConnectionError = "connection_error"
	CodeInvalidResponse = "invalid_response"
)

// Error is a failed gateway operation. Code is either one of the transport
// codes above or the provider's own error code.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway error %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("gateway error %s", e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Initiation is a successfully created payment transaction. Authority is the
// provider's opaque correlation token; RedirectURL is where the buyer
// completes the payment.
type Initiation struct {
	Authority   string
	RedirectURL string
}

// Receipt is a successfully verified payment. AlreadyVerified is set when
// the provider reports the transaction was verified before; callers must
// treat that as success without repeating side effects.
type Receipt struct {
	RefID           string
	AlreadyVerified bool
}

// Contact carries optional buyer contact details attached to a payment
// request.
type Contact struct {
	Mobile string
	Email  string
}

// Client is a payment provider adapter. Both calls are bounded synchronous
// round trips; adapters must map timeouts, connection failures and malformed
// responses to *Error rather than failing in provider-specific ways.
type Client interface {
	RequestPayment(ctx context.Context, amount decimal.Decimal, description, callbackURL string, contact Contact) (*Initiation, error)
	VerifyPayment(ctx context.Context, amount decimal.Decimal, authority string) (*Receipt, error)
}
