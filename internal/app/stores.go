package app

import (
	"log/slog"

	"github.com/alem-hub/study-group-finder/config"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/study-group-finder/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/study-group-finder/pkg/circuitbreaker"
)

// PoolOptions converts the database settings into pgx pool options.
func PoolOptions(c config.DatabaseConfig) postgres.PoolOptions {
	opts := postgres.DefaultPoolOptions()
	if c.MaxConns > 0 {
		opts.MaxConns = int32(c.MaxConns)
	}
	if c.MinConns > 0 {
		opts.MinConns = int32(c.MinConns)
	}
	if c.ConnMaxLifetime > 0 {
		opts.MaxConnLifetime = c.ConnMaxLifetime
	}
	if c.ConnMaxIdleTime > 0 {
		opts.MaxConnIdleTime = c.ConnMaxIdleTime
	}
	return opts
}

// RedisConfig converts the Redis settings into a client configuration.
func RedisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	if c.Host != "" {
		rc.Host = c.Host
	}
	if c.Port > 0 {
		rc.Port = c.Port
	}
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	if c.MinIdleConns > 0 {
		rc.MinIdleConns = c.MinIdleConns
	}
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		rc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		rc.WriteTimeout = c.WriteTimeout
	}
	return rc
}

// RedisBreaker builds the breaker guarding roster writes. Only transient
// Redis errors count as failures; one successful trial call closes it again.
func RedisBreaker(c config.RedisConfig, log *slog.Logger) *circuitbreaker.CircuitBreaker {
	if log == nil {
		log = slog.Default()
	}
	return circuitbreaker.New("redis",
		circuitbreaker.WithFailureThreshold(c.BreakerFailures),
		circuitbreaker.WithSuccessThreshold(1),
		circuitbreaker.WithTimeout(c.BreakerCooldown),
		circuitbreaker.WithIsFailure(redis.IsTransient),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
	)
}
