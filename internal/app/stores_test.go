package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/study-group-finder/config"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/study-group-finder/pkg/circuitbreaker"
)

func TestPoolOptions(t *testing.T) {
	opts := PoolOptions(config.DatabaseConfig{MaxConns: 12, ConnMaxIdleTime: time.Minute})

	assert.Equal(t, int32(12), opts.MaxConns)
	assert.Equal(t, postgres.DefaultPoolOptions().MinConns, opts.MinConns)
	assert.Equal(t, time.Minute, opts.MaxConnIdleTime)
	assert.Equal(t, time.Hour, opts.MaxConnLifetime)
}

func TestRedisConfig(t *testing.T) {
	rc := RedisConfig(config.RedisConfig{Host: "cache", Port: 6380, DB: 2, Password: "pw"})

	assert.Equal(t, "cache:6380", rc.Addr())
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, "pw", rc.Password)
	assert.Equal(t, redis.DefaultConfig().PoolSize, rc.PoolSize)
}

func TestRedisBreaker_CountsOnlyTransientErrors(t *testing.T) {
	var logs bytes.Buffer
	cb := RedisBreaker(config.RedisConfig{BreakerFailures: 2, BreakerCooldown: time.Minute}, NewLogger(&logs, "info", "text", false))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return redis.ErrCacheSerialization })
	}
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())

	for i := 0; i < 2; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return io.EOF })
	}
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())

	err := cb.Execute(ctx, func(context.Context) error { return nil })
	assert.True(t, errors.Is(err, circuitbreaker.ErrCircuitOpen))
	assert.Contains(t, logs.String(), "circuit breaker state changed")
}
