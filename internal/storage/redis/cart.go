// Package redis holds the session-scoped stores: the cart and the pending
// payment attempt. Both are small JSON values with TTLs; the session id is
// always passed in explicitly by the caller.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/digishop/internal/domain/cart"
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store on a redis client.
type CartStore struct {
	rdb *redis.Client
}

// NewCartStore creates a CartStore.
func NewCartStore(rdb *redis.Client) *CartStore {
	return &CartStore{rdb: rdb}
}

// Get returns the session's cart; a missing key is an empty cart.
func (s *CartStore) Get(ctx context.Context, sessionID string) (*cart.Cart, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(keyCart, sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &cart.Cart{}, nil
		}
		return nil, errors.Wrap(err, "get cart")
	}

	var c cart.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, errors.Wrap(err, "decode cart")
	}
	return &c, nil
}

// Save stores the cart and refreshes its TTL.
func (s *CartStore) Save(ctx context.Context, sessionID string, c *cart.Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if err := s.rdb.Set(ctx, fmt.Sprintf(keyCart, sessionID), raw, ttlCart).Err(); err != nil {
		return errors.Wrap(err, "save cart")
	}
	return nil
}

// Clear drops the session's cart.
func (s *CartStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, fmt.Sprintf(keyCart, sessionID)).Err(); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
