package session

import (
	"context"
	"time"
)

// Store is the durable record of issued sessions.
//
// Rotate and Revoke are conditional: they only touch a session that belongs to
// userID and is not yet revoked, and report false when nothing matched. The
// bulk revokes return the ids they actually revoked.
type Store interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id, userID string) (*Session, error)
	Rotate(ctx context.Context, oldID, userID string, next *Session, at time.Time) (bool, error)
	Revoke(ctx context.Context, id, userID string, at time.Time) (bool, error)
	RevokeAll(ctx context.Context, userID string, at time.Time) ([]string, error)
	RevokeIDs(ctx context.Context, userID string, ids []string, at time.Time) ([]string, error)
	ListActive(ctx context.Context, userID string) ([]Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteRevokedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context, now, cutoff time.Time) (Stats, error)
}

// TokenSigner mints and verifies the token pair bound to a session
type TokenSigner interface {
	SignAccess(userID, email, sessionID string) (string, time.Time, error)
	SignRefresh(sessionID, userID string, expiresAt time.Time) (string, error)
	VerifyRefresh(raw string) (RefreshClaims, error)
}

// CredentialVerifier turns an email/password pair into a user id.
// It returns ErrInvalidCredentials when the pair does not match.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, email, password string) (string, error)
}

// Directory resolves the email carried in access tokens.
// It returns ErrUserNotFound for users that no longer exist.
type Directory interface {
	LookupEmail(ctx context.Context, userID string) (string, error)
}

// RevocationNotifier is told about every session id the manager revokes so
// access tokens bound to those sessions can be refused before they expire.
type RevocationNotifier interface {
	RevokeSessions(ctx context.Context, sessionIDs []string, ttl time.Duration) error
}
