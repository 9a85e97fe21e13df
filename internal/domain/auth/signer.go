package auth

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/Anvoria/sessionly/internal/domain/session"
)

const minRefreshSecretLen = 32

// Signer mints RS256 access tokens from the key store and HS256 refresh
// tokens from a server secret. It implements session.TokenSigner.
type Signer struct {
	keys       *KeyStore
	refreshKey jwk.Key
	issuer     string
	audience   []string
	accessTTL  time.Duration
	now        func() time.Time
}

// NewSigner signs access tokens with the active key of keys and refresh
// tokens with refreshSecret, which must be at least 32 bytes. An empty issuer
// omits the iss claim.
func NewSigner(keys *KeyStore, refreshSecret []byte, issuer string, audience []string, accessTTL time.Duration) (*Signer, error) {
	if len(refreshSecret) < minRefreshSecretLen {
		return nil, ErrWeakRefreshSecret
	}
	if _, err := keys.GetActiveKey(); err != nil {
		return nil, err
	}

	refreshKey, err := jwk.Import(refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to import refresh secret: %w", err)
	}

	return &Signer{
		keys:       keys,
		refreshKey: refreshKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		now:        time.Now,
	}, nil
}

// SignAccess issues an access token carrying the session id as sid
func (s *Signer) SignAccess(userID, email, sessionID string) (string, time.Time, error) {
	key, err := s.keys.GetActiveKey()
	if err != nil {
		return "", time.Time{}, err
	}

	now := s.now()
	exp := now.Add(s.accessTTL)

	builder := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		Expiration(exp).
		JwtID(uuid.NewString()).
		Claim(claimSessionID, sessionID).
		Claim(claimEmail, email).
		Claim(claimType, tokenTypeAccess)
	if s.issuer != "" {
		builder = builder.Issuer(s.issuer)
	}
	if len(s.audience) > 0 {
		builder = builder.Audience(s.audience)
	}

	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build access token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256(), key))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return string(signed), exp, nil
}

// SignRefresh binds the refresh token to its session: jti is the session id
// and exp the session expiry.
func (s *Signer) SignRefresh(sessionID, userID string, expiresAt time.Time) (string, error) {
	builder := jwt.NewBuilder().
		Subject(userID).
		JwtID(sessionID).
		IssuedAt(s.now()).
		Expiration(expiresAt).
		Claim(claimType, tokenTypeRefresh)
	if s.issuer != "" {
		builder = builder.Issuer(s.issuer)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("failed to build refresh token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256(), s.refreshKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return string(signed), nil
}

// VerifyRefresh accepts only well-formed, unexpired refresh tokens signed
// with the refresh secret. Every failure maps to session.ErrInvalidToken.
func (s *Signer) VerifyRefresh(raw string) (session.RefreshClaims, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256(), s.refreshKey),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse([]byte(raw), opts...)
	if err != nil {
		return session.RefreshClaims{}, fmt.Errorf("%w: %v", session.ErrInvalidToken, err)
	}

	if stringClaim(token, claimType) != tokenTypeRefresh {
		return session.RefreshClaims{}, fmt.Errorf("%w: %v", session.ErrInvalidToken, ErrWrongTokenType)
	}

	sid, _ := token.JwtID()
	sub, _ := token.Subject()
	if _, err := uuid.Parse(sid); err != nil || sub == "" {
		return session.RefreshClaims{}, fmt.Errorf("%w: %v", session.ErrInvalidToken, ErrMissingClaim)
	}

	return session.RefreshClaims{SessionID: sid, UserID: sub}, nil
}

// withClock overrides the time source, used by tests
func (s *Signer) withClock(now func() time.Time) *Signer {
	s.now = now
	return s
}
