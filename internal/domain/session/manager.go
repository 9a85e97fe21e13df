package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Anvoria/sessionly/internal/metrics"
	"github.com/google/uuid"
)

// Config tunes the session lifecycle
type Config struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	MaxActivePerUser int
	Retention        time.Duration
	StoreTimeout     time.Duration
}

func (c *Config) withDefaults() {
	if c.AccessTTL <= 0 {
		c.AccessTTL = 15 * time.Minute
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.MaxActivePerUser <= 0 {
		c.MaxActivePerUser = 5
	}
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
}

// Option configures optional Manager collaborators
type Option func(*Manager)

// WithDirectory makes the manager resolve emails for access tokens and
// refuse rotation for users the directory no longer knows.
func WithDirectory(d Directory) Option {
	return func(m *Manager) { m.directory = d }
}

// WithRevocationNotifier publishes revoked session ids
func WithRevocationNotifier(n RevocationNotifier) Option {
	return func(m *Manager) { m.revocations = n }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the refresh-token session lifecycle: login, rotation with
// reuse detection, logout, cap enforcement and cleanup.
type Manager struct {
	store       Store
	signer      TokenSigner
	directory   Directory
	revocations RevocationNotifier
	cfg         Config
	now         func() time.Time
}

// NewManager creates a Manager over store and signer
func NewManager(store Store, signer TokenSigner, cfg Config, opts ...Option) *Manager {
	cfg.withDefaults()
	m := &Manager{
		store:  store,
		signer: signer,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// Login opens a new session for an already authenticated user and mints its
// token pair. Cap enforcement runs afterwards and only logs on failure.
func (m *Manager) Login(ctx context.Context, userID string, meta ClientMeta) (*Issued, error) {
	email, err := m.lookupEmail(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := m.now()
	sess := m.newSession(userID, meta, now)

	if err := m.storeCall(ctx, "create", func(ctx context.Context) error {
		return m.store.Create(ctx, sess)
	}); err != nil {
		return nil, err
	}

	issued, err := m.mint(ctx, sess, email)
	if err != nil {
		return nil, err
	}
	metrics.SessionsIssued.Inc()

	if _, err := m.enforceCap(ctx, userID, sess.ID); err != nil {
		slog.Warn("Failed to enforce session cap", "user_id", userID, "error", err)
	}

	return issued, nil
}

// Rotate exchanges a refresh token for a new pair. A token whose session is
// unknown or already revoked is treated as stolen: every session of its user
// is revoked and ErrTokenReuseDetected is returned.
func (m *Manager) Rotate(ctx context.Context, rawRefresh string, meta ClientMeta) (*Issued, error) {
	claims, err := m.signer.VerifyRefresh(rawRefresh)
	if err != nil {
		slog.Debug("Refresh token verification failed", "error", err)
		metrics.Rotations.WithLabelValues(metrics.RotationInvalid).Inc()
		return nil, ErrInvalidToken
	}

	var current *Session
	err = m.storeCall(ctx, "get", func(ctx context.Context) error {
		var err error
		current, err = m.store.Get(ctx, claims.SessionID, claims.UserID)
		return err
	})
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return nil, m.reuseDetected(ctx, claims, "unknown session")
	case err != nil:
		metrics.Rotations.WithLabelValues(metrics.RotationError).Inc()
		return nil, err
	}

	if current.Revoked {
		return nil, m.reuseDetected(ctx, claims, "revoked session")
	}

	now := m.now()
	if current.Expired(now) {
		metrics.Rotations.WithLabelValues(metrics.RotationExpired).Inc()
		return nil, ErrTokenExpired
	}

	email, err := m.lookupEmail(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			metrics.Rotations.WithLabelValues(metrics.RotationInvalid).Inc()
			if _, rerr := m.revokeOne(ctx, current.ID, claims.UserID, "user_gone"); rerr != nil {
				slog.Error("Failed to revoke session of missing user",
					"session_id", current.ID, "user_id", claims.UserID, "error", rerr)
			}
			return nil, ErrInvalidToken
		}
		metrics.Rotations.WithLabelValues(metrics.RotationError).Inc()
		return nil, err
	}

	next := m.newSession(claims.UserID, meta, now)

	var rotated bool
	if err := m.storeCall(ctx, "rotate", func(ctx context.Context) error {
		var err error
		rotated, err = m.store.Rotate(ctx, current.ID, claims.UserID, next, now)
		return err
	}); err != nil {
		metrics.Rotations.WithLabelValues(metrics.RotationError).Inc()
		return nil, err
	}

	if !rotated {
		return nil, m.reuseDetected(ctx, claims, "concurrent rotation")
	}

	issued, err := m.mint(ctx, next, email)
	if err != nil {
		metrics.Rotations.WithLabelValues(metrics.RotationError).Inc()
		return nil, err
	}

	metrics.Rotations.WithLabelValues(metrics.RotationSuccess).Inc()
	slog.Debug("Session rotated", "user_id", claims.UserID, "old_session_id", current.ID, "session_id", next.ID)
	return issued, nil
}

// reuseDetected revokes every live session of the token's user
func (m *Manager) reuseDetected(ctx context.Context, claims RefreshClaims, reason string) error {
	metrics.Rotations.WithLabelValues(metrics.RotationReuse).Inc()

	ids, err := m.revokeAll(ctx, claims.UserID, "reuse")
	if err != nil {
		slog.Error("Failed to revoke sessions after token reuse",
			"user_id", claims.UserID, "session_id", claims.SessionID, "error", err)
		return err
	}

	slog.Warn("Refresh token reuse detected",
		"user_id", claims.UserID,
		"session_id", claims.SessionID,
		"reason", reason,
		"revoked", len(ids),
	)
	return ErrTokenReuseDetected
}

// Logout revokes the session behind rawRefresh. Invalid or unknown tokens are
// already logged out, so only storage failures are returned.
func (m *Manager) Logout(ctx context.Context, rawRefresh string) error {
	claims, err := m.signer.VerifyRefresh(rawRefresh)
	if err != nil {
		return nil
	}

	_, err = m.revokeOne(ctx, claims.SessionID, claims.UserID, "logout")
	return err
}

// LogoutAll revokes every live session of userID in one statement and
// returns how many were revoked.
func (m *Manager) LogoutAll(ctx context.Context, userID string) (int64, error) {
	ids, err := m.revokeAll(ctx, userID, "logout_all")
	if err != nil {
		return 0, err
	}
	return int64(len(ids)), nil
}

// RevokeByID revokes one session owned by userID. False means nothing was
// revoked: the id is malformed or unknown, already revoked, or owned by
// someone else.
func (m *Manager) RevokeByID(ctx context.Context, sessionID, userID string) (bool, error) {
	if uuid.Validate(sessionID) != nil {
		return false, nil
	}
	return m.revokeOne(ctx, sessionID, userID, "revoke")
}

// ActiveSessions lists the non-revoked sessions of userID, newest first
func (m *Manager) ActiveSessions(ctx context.Context, userID string) ([]Session, error) {
	var sessions []Session
	err := m.storeCall(ctx, "list_active", func(ctx context.Context) error {
		var err error
		sessions, err = m.store.ListActive(ctx, userID)
		return err
	})
	return sessions, err
}

// EnforceCap keeps the newest MaxActivePerUser sessions of userID and revokes
// the rest. Concurrent logins may briefly exceed the cap until the next pass.
func (m *Manager) EnforceCap(ctx context.Context, userID string) (int64, error) {
	return m.enforceCap(ctx, userID, "")
}

// enforceCap never revokes keepID, so a login cannot lose the session it
// just issued to another session created in the same instant.
func (m *Manager) enforceCap(ctx context.Context, userID, keepID string) (int64, error) {
	active, err := m.ActiveSessions(ctx, userID)
	if err != nil {
		return 0, err
	}
	if len(active) <= m.cfg.MaxActivePerUser {
		return 0, nil
	}

	kept := 0
	if keepID != "" && slices.ContainsFunc(active, func(s Session) bool { return s.ID == keepID }) {
		kept = 1
	}

	excess := make([]string, 0, len(active)-m.cfg.MaxActivePerUser)
	for _, s := range active {
		if s.ID == keepID {
			continue
		}
		if kept < m.cfg.MaxActivePerUser {
			kept++
			continue
		}
		excess = append(excess, s.ID)
	}

	now := m.now()
	var revoked []string
	if err := m.storeCall(ctx, "revoke_ids", func(ctx context.Context) error {
		var err error
		revoked, err = m.store.RevokeIDs(ctx, userID, excess, now)
		return err
	}); err != nil {
		return 0, err
	}

	m.publish(ctx, revoked, "cap")
	slog.Info("Session cap enforced", "user_id", userID, "revoked", len(revoked), "cap", m.cfg.MaxActivePerUser)
	return int64(len(revoked)), nil
}

// CleanupExpired deletes every session whose expiry has passed
func (m *Manager) CleanupExpired(ctx context.Context) (int64, error) {
	now := m.now()
	var n int64
	err := m.storeCall(ctx, "delete_expired", func(ctx context.Context) error {
		var err error
		n, err = m.store.DeleteExpired(ctx, now)
		return err
	})
	return n, err
}

// CleanupObsolete runs the expired sweep and then deletes revoked sessions
// last used before the retention window.
func (m *Manager) CleanupObsolete(ctx context.Context) (CleanupResult, error) {
	now := m.now()
	result := CleanupResult{Timestamp: now}

	expired, err := m.CleanupExpired(ctx)
	if err != nil {
		return result, err
	}
	result.Expired = expired

	cutoff := now.Add(-m.cfg.Retention)
	err = m.storeCall(ctx, "delete_revoked", func(ctx context.Context) error {
		var err error
		result.Revoked, err = m.store.DeleteRevokedBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return result, err
	}

	result.Total = result.Expired + result.Revoked
	return result, nil
}

// Stats counts sessions by state
func (m *Manager) Stats(ctx context.Context) (Stats, error) {
	now := m.now()
	var st Stats
	err := m.storeCall(ctx, "stats", func(ctx context.Context) error {
		var err error
		st, err = m.store.Stats(ctx, now, now.Add(-m.cfg.Retention))
		return err
	})
	return st, err
}

func (m *Manager) newSession(userID string, meta ClientMeta, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.RefreshTTL),
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	}
}

// mint signs the token pair for sess. If signing fails the freshly created
// session is revoked so no valid session is left without a token.
func (m *Manager) mint(ctx context.Context, sess *Session, email string) (*Issued, error) {
	access, accessExp, err := m.signer.SignAccess(sess.UserID, email, sess.ID)
	if err == nil {
		var refresh string
		refresh, err = m.signer.SignRefresh(sess.ID, sess.UserID, sess.ExpiresAt)
		if err == nil {
			return &Issued{
				SessionID:        sess.ID,
				UserID:           sess.UserID,
				AccessToken:      access,
				RefreshToken:     refresh,
				AccessExpiresAt:  accessExp,
				RefreshExpiresAt: sess.ExpiresAt,
			}, nil
		}
	}

	if _, rerr := m.revokeOne(ctx, sess.ID, sess.UserID, "mint_failed"); rerr != nil {
		slog.Error("Failed to revoke session after token signing failure",
			"session_id", sess.ID, "user_id", sess.UserID, "error", rerr)
	}
	return nil, fmt.Errorf("failed to sign tokens: %w", err)
}

func (m *Manager) revokeOne(ctx context.Context, sessionID, userID, reason string) (bool, error) {
	now := m.now()
	var ok bool
	if err := m.storeCall(ctx, "revoke", func(ctx context.Context) error {
		var err error
		ok, err = m.store.Revoke(ctx, sessionID, userID, now)
		return err
	}); err != nil {
		return false, err
	}

	if ok {
		m.publish(ctx, []string{sessionID}, reason)
	}
	return ok, nil
}

func (m *Manager) revokeAll(ctx context.Context, userID, reason string) ([]string, error) {
	now := m.now()
	var ids []string
	if err := m.storeCall(ctx, "revoke_all", func(ctx context.Context) error {
		var err error
		ids, err = m.store.RevokeAll(ctx, userID, now)
		return err
	}); err != nil {
		return nil, err
	}

	m.publish(ctx, ids, reason)
	return ids, nil
}

// publish records revoked ids and forwards them to the revocation notifier.
// Access tokens live at most AccessTTL, so entries never need to outlive it.
func (m *Manager) publish(ctx context.Context, ids []string, reason string) {
	if len(ids) == 0 {
		return
	}
	metrics.SessionsRevoked.WithLabelValues(reason).Add(float64(len(ids)))

	if m.revocations == nil {
		return
	}
	if err := m.revocations.RevokeSessions(ctx, ids, m.cfg.AccessTTL); err != nil {
		slog.Warn("Failed to publish session revocations", "count", len(ids), "reason", reason, "error", err)
	}
}

func (m *Manager) lookupEmail(ctx context.Context, userID string) (string, error) {
	if m.directory == nil {
		return "", nil
	}
	return m.directory.LookupEmail(ctx, userID)
}

// storeCall bounds fn by StoreTimeout and wraps any failure other than
// ErrSessionNotFound in a *StorageError.
func (m *Manager) storeCall(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.StoreTimeout)
	defer cancel()

	err := fn(ctx)
	if err == nil || errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
