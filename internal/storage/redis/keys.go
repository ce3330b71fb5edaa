package redis

import "time"

const (
	// Session cart: cart:{session_id} -> JSON cart lines.
	keyCart = "cart:%s"

	// Pending payment attempt: pay:attempt:{session_id} -> {"order_id","authority"}.
	keyPaymentAttempt = "pay:attempt:%s"
)

var (
	// Carts outlive a browsing session but not an abandoned one.
	ttlCart = 7 * 24 * time.Hour

	// The gateway authority is short-lived; keep the correlation a little
	// longer than the provider's payment window.
	ttlPaymentAttempt = time.Hour
)
