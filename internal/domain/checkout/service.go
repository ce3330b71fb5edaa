// Package checkout orchestrates the purchase flow: cart to order, order to
// gateway, gateway callback to paid order with stock decremented.
package checkout

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/digishop/internal/domain/cart"
	"github.com/xenking/digishop/internal/domain/order"
	"github.com/xenking/digishop/internal/domain/stock"
	"github.com/xenking/digishop/internal/gateway"
)

// CallbackOK is the gateway's query flag for a completed payment; anything
// else means the buyer cancelled or the payment failed on the gateway side.
const CallbackOK = "OK"

// Attempt correlates a session with its in-flight gateway transaction.
type Attempt struct {
	OrderID   string `json:"order_id"`
	Authority string `json:"authority"`
}

// AttemptStore keeps at most one pending payment attempt per session. The
// stored attempt is cleared only after a committed outcome (success,
// buyer cancellation, or a definitive stock failure), never on transient
// errors, so a retried callback can resume verification.
type AttemptStore interface {
	Save(ctx context.Context, sessionID string, a Attempt) error
	// Load returns ErrNoPendingPayment when the session has no attempt.
	Load(ctx context.Context, sessionID string) (*Attempt, error)
	Clear(ctx context.Context, sessionID string) error
}

// CreateOrderRequest carries the buyer-supplied checkout fields.
type CreateOrderRequest struct {
	BuyerID       string
	RecipientName string
	Address       string
	Phone         string
}

// Service coordinates Cart -> Order -> Gateway -> Stock across the purchase
// flow.
type Service struct {
	carts       *cart.Service
	orders      order.Repository
	gateway     gateway.Client
	attempts    AttemptStore
	callbackURL string
}

// NewService creates a checkout Service. callbackURL is the absolute URL the
// gateway redirects the buyer to after payment.
func NewService(
	carts *cart.Service,
	orders order.Repository,
	gw gateway.Client,
	attempts AttemptStore,
	callbackURL string,
) *Service {
	return &Service{
		carts:       carts,
		orders:      orders,
		gateway:     gw,
		attempts:    attempts,
		callbackURL: callbackURL,
	}
}

// CreateOrder converts the session's cart into a pending order. The order
// and all its lines are persisted atomically with the cart's price
// snapshots, and the cart is cleared only after that commit, so a checkout
// can never lose cart contents without a corresponding order record.
func (s *Service) CreateOrder(ctx context.Context, sessionID string, req CreateOrderRequest) (*order.Order, error) {
	c, err := s.carts.Get(ctx, sessionID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	buyerID := req.BuyerID
	if buyerID == "" {
		buyerID = sessionID
	}

	o := &order.Order{
		ID:            uuid.New().String(),
		BuyerID:       buyerID,
		RecipientName: req.RecipientName,
		Address:       req.Address,
		Phone:         req.Phone,
		TotalPrice:    c.TotalPrice(),
		Status:        order.StatusPending,
	}
	for _, l := range c.Lines {
		if l.Quantity < 1 {
			continue
		}
		o.Lines = append(o.Lines, order.Line{
			ProductID: l.ProductID,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		})
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if err := s.carts.Clear(ctx, sessionID); err != nil {
		// The order is durable; a stale cart is an annoyance, not a loss.
		zctx.From(ctx).Warn("clear cart after order creation",
			zap.String("order_id", o.ID), zap.Error(err))
	}

	return o, nil
}

// InitiatePayment starts the gateway round trip for a pending order and
// returns the URL to redirect the buyer to. On gateway failure the order
// stays pending with stock untouched; the buyer retries by re-submitting.
func (s *Service) InitiatePayment(ctx context.Context, sessionID, orderID string) (string, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return "", errors.Wrap(err, "get order")
	}
	if o.IsPaid {
		return "", ErrAlreadyPaid
	}

	init, err := s.gateway.RequestPayment(ctx, o.TotalPrice,
		fmt.Sprintf("order %s", o.ID), s.callbackURL,
		gateway.Contact{Mobile: o.Phone},
	)
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			return "", &InitiationError{Code: gwErr.Code}
		}
		return "", errors.Wrap(err, "request payment")
	}

	if err := s.attempts.Save(ctx, sessionID, Attempt{
		OrderID:   o.ID,
		Authority: init.Authority,
	}); err != nil {
		return "", errors.Wrap(err, "save payment attempt")
	}

	return init.RedirectURL, nil
}

// VerifyPayment handles the gateway callback. It is idempotent: the gateway
// may deliver the callback more than once, and a repeated verify returns the
// provider's "verified before" code, which is treated as success without a
// second stock decrement (MarkPaid itself is also a no-op for a paid order).
func (s *Service) VerifyPayment(ctx context.Context, sessionID, authority, callbackStatus string) (*order.Order, error) {
	attempt, err := s.attempts.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if authority == "" {
		authority = attempt.Authority
	}

	o, err := s.orders.GetByID(ctx, attempt.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}

	if callbackStatus != CallbackOK {
		// Buyer-side cancellation is a definitive outcome for this attempt.
		if err := s.attempts.Clear(ctx, sessionID); err != nil {
			zctx.From(ctx).Warn("clear payment attempt", zap.Error(err))
		}
		return nil, ErrPaymentCancelled
	}

	receipt, err := s.gateway.VerifyPayment(ctx, o.TotalPrice, authority)
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) {
			// Retryable: keep the attempt so a repeated callback can resume.
			return nil, &VerificationError{Code: gwErr.Code}
		}
		return nil, errors.Wrap(err, "verify payment")
	}
	if receipt.AlreadyVerified {
		zctx.From(ctx).Info("gateway reports transaction verified before",
			zap.String("order_id", o.ID), zap.String("authority", authority))
	}

	if err := s.orders.MarkPaid(ctx, o.ID, receipt.RefID); err != nil {
		if isDefinitive(err) {
			// Amount is captured but stock ran out: surfaced for operator
			// reconciliation, the attempt is closed.
			if clearErr := s.attempts.Clear(ctx, sessionID); clearErr != nil {
				zctx.From(ctx).Warn("clear payment attempt", zap.Error(clearErr))
			}
		}
		return nil, err
	}

	if err := s.attempts.Clear(ctx, sessionID); err != nil {
		zctx.From(ctx).Warn("clear payment attempt", zap.Error(err))
	}

	paid, err := s.orders.GetByID(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "reload order")
	}
	return paid, nil
}

// isDefinitive reports whether a MarkPaid failure cannot be fixed by
// retrying the verify call with the same authority.
func isDefinitive(err error) bool {
	var insufficient *stock.InsufficientStockError
	return errors.As(err, &insufficient)
}
