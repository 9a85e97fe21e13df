package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// UserEmailPrefix is the prefix for cached user email keys
	UserEmailPrefix = "user:email:"
	// UserEmailTTL is how long a cached email survives without invalidation
	UserEmailTTL = 10 * time.Minute
)

// EmailLookup resolves a user's email address
type EmailLookup interface {
	LookupEmail(ctx context.Context, userID string) (string, error)
}

// DirectoryCache is a read-through Redis cache in front of an EmailLookup.
// Lookup failures are never cached, so deleted users keep failing.
type DirectoryCache struct {
	client *redis.Client
	next   EmailLookup
}

// NewDirectoryCache wraps next with a Redis cache
func NewDirectoryCache(client *redis.Client, next EmailLookup) *DirectoryCache {
	return &DirectoryCache{client: client, next: next}
}

// LookupEmail returns the cached email for userID or asks the wrapped lookup
func (c *DirectoryCache) LookupEmail(ctx context.Context, userID string) (string, error) {
	key := UserEmailPrefix + userID

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, redis.Nil) {
		slog.Warn("User email cache read failed", "user_id", userID, "error", err)
	}

	email, err := c.next.LookupEmail(ctx, userID)
	if err != nil {
		return "", err
	}

	if err := c.client.Set(ctx, key, email, UserEmailTTL).Err(); err != nil {
		slog.Warn("Failed to store user email in Redis cache", "user_id", userID, "error", err)
	}
	return email, nil
}

// Invalidate drops the cached email for userID
func (c *DirectoryCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, UserEmailPrefix+userID).Err()
}
