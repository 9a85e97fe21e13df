package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Anvoria/sessionly/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	redisDialTimeout = 5 * time.Second
	// revocation checks run on every authenticated request
	redisCommandTimeout = time.Second
)

// ErrRedisDisabled is returned by ConnectRedis when no host is configured
var ErrRedisDisabled = errors.New("redis is not configured")

// RedisClient backs the revocation list, the email cache and the janitor
// lock. It stays nil while Redis is disabled or unreachable.
var RedisClient *redis.Client

func redisOptions(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Address(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  redisDialTimeout,
		ReadTimeout:  redisCommandTimeout,
		WriteTimeout: redisCommandTimeout,
		PoolTimeout:  redisCommandTimeout,
		MaxRetries:   1,
	}
}

// ConnectRedis dials Redis and publishes the client as RedisClient once a
// ping succeeds. On failure the client is closed and RedisClient is unchanged.
func ConnectRedis(ctx context.Context, cfg *config.RedisConfig) error {
	if !cfg.Enabled() {
		return ErrRedisDisabled
	}

	client := redis.NewClient(redisOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address(), err)
	}

	RedisClient = client
	slog.Info("Redis connected", "address", cfg.Address(), "db", cfg.DB)
	return nil
}

// CloseRedis closes RedisClient and resets it to nil
func CloseRedis() error {
	if RedisClient == nil {
		return nil
	}
	err := RedisClient.Close()
	RedisClient = nil
	return err
}
