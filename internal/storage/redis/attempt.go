package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/digishop/internal/domain/checkout"
)

var _ checkout.AttemptStore = (*AttemptStore)(nil)

// AttemptStore keeps the session's in-flight gateway correlation data.
type AttemptStore struct {
	rdb *redis.Client
}

// NewAttemptStore creates an AttemptStore.
func NewAttemptStore(rdb *redis.Client) *AttemptStore {
	return &AttemptStore{rdb: rdb}
}

// Save stores the attempt, replacing any previous one for the session.
func (s *AttemptStore) Save(ctx context.Context, sessionID string, a checkout.Attempt) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return errors.Wrap(err, "encode attempt")
	}
	if err := s.rdb.Set(ctx, fmt.Sprintf(keyPaymentAttempt, sessionID), raw, ttlPaymentAttempt).Err(); err != nil {
		return errors.Wrap(err, "save attempt")
	}
	return nil
}

// Load returns the session's pending attempt, or
// checkout.ErrNoPendingPayment when none is stored.
func (s *AttemptStore) Load(ctx context.Context, sessionID string) (*checkout.Attempt, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(keyPaymentAttempt, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, checkout.ErrNoPendingPayment
		}
		return nil, errors.Wrap(err, "load attempt")
	}

	var a checkout.Attempt
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, errors.Wrap(err, "decode attempt")
	}
	return &a, nil
}

// Clear drops the session's pending attempt.
func (s *AttemptStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, fmt.Sprintf(keyPaymentAttempt, sessionID)).Err(); err != nil {
		return errors.Wrap(err, "clear attempt")
	}
	return nil
}
