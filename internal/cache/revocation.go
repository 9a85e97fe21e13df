package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevokedSessionPrefix is the key prefix for revoked session ids
const RevokedSessionPrefix = "session:revoked:"

// TokenRevocationCache remembers revoked session ids long enough for every
// access token minted for them to expire.
type TokenRevocationCache struct {
	client *redis.Client
}

// NewTokenRevocationCache creates a revocation cache backed by client
func NewTokenRevocationCache(client *redis.Client) *TokenRevocationCache {
	return &TokenRevocationCache{client: client}
}

// RevokeSession marks a single session as revoked for ttl
func (c *TokenRevocationCache) RevokeSession(ctx context.Context, sessionID string, ttl time.Duration) error {
	return c.RevokeSessions(ctx, []string{sessionID}, ttl)
}

// RevokeSessions marks every id as revoked in one round trip
func (c *TokenRevocationCache) RevokeSessions(ctx context.Context, sessionIDs []string, ttl time.Duration) error {
	if len(sessionIDs) == 0 {
		return nil
	}

	pipe := c.client.TxPipeline()
	for _, id := range sessionIDs {
		pipe.Set(ctx, RevokedSessionPrefix+id, "1", ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store revoked sessions: %w", err)
	}
	return nil
}

// IsSessionRevoked reports whether sessionID was revoked recently
func (c *TokenRevocationCache) IsSessionRevoked(ctx context.Context, sessionID string) (bool, error) {
	err := c.client.Get(ctx, RevokedSessionPrefix+sessionID).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check session revocation: %w", err)
	}
}
