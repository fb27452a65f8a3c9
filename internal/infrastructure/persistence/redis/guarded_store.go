package redis

import (
	"context"
	"time"

	"github.com/alem-hub/study-group-finder/pkg/circuitbreaker"
)

// GuardedStore routes every write through a circuit breaker. While the
// breaker is open writes fail with circuitbreaker.ErrCircuitOpen and never
// reach Redis.
type GuardedStore struct {
	store   Store
	breaker *circuitbreaker.CircuitBreaker
}

var _ Store = (*GuardedStore)(nil)

// NewGuardedStore wraps store.
func NewGuardedStore(store Store, breaker *circuitbreaker.CircuitBreaker) *GuardedStore {
	return &GuardedStore{store: store, breaker: breaker}
}

// Set implements Store.
func (g *GuardedStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.store.Set(ctx, key, value, ttl)
	})
}

// IncrBy implements Store.
func (g *GuardedStore) IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error) {
	var n int64
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		n, err = g.store.IncrBy(ctx, key, delta, ttl)
		return err
	})
	return n, err
}

// Publish implements Store.
func (g *GuardedStore) Publish(ctx context.Context, channel string, message any) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.store.Publish(ctx, channel, message)
	})
}

// Delete implements Store.
func (g *GuardedStore) Delete(ctx context.Context, keys ...string) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.store.Delete(ctx, keys...)
	})
}
