package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwt"
)

const (
	claimSessionID = "sid"
	claimEmail     = "email"
	claimType      = "typ"

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessTokenClaims wraps a verified access token
type AccessTokenClaims struct {
	Token jwt.Token
}

func (c *AccessTokenClaims) Subject() string {
	sub, _ := c.Token.Subject()
	return sub
}

func (c *AccessTokenClaims) Audience() []string {
	aud, _ := c.Token.Audience()
	return aud
}

func (c *AccessTokenClaims) Issuer() string {
	iss, _ := c.Token.Issuer()
	return iss
}

func (c *AccessTokenClaims) Expiration() time.Time {
	exp, _ := c.Token.Expiration()
	return exp
}

func (c *AccessTokenClaims) SessionID() string {
	return stringClaim(c.Token, claimSessionID)
}

func (c *AccessTokenClaims) Email() string {
	return stringClaim(c.Token, claimEmail)
}

func (c *AccessTokenClaims) Type() string {
	return stringClaim(c.Token, claimType)
}

// Validate checks the claims jwt.Parse does not: issuer, audience, token type and session binding
func (c *AccessTokenClaims) Validate(issuer string, expectedAudience []string) error {
	exp := c.Expiration()
	if exp.IsZero() {
		return errors.New("token missing expiration claim")
	}
	if time.Now().After(exp) {
		return errors.New("token expired")
	}

	if issuer != "" && c.Issuer() != issuer {
		return errors.New("token issuer mismatch")
	}

	if len(expectedAudience) > 0 {
		aud := c.Audience()
		if !slices.ContainsFunc(expectedAudience, func(expected string) bool {
			return slices.Contains(aud, expected)
		}) {
			return errors.New("token audience mismatch")
		}
	}

	if c.Type() != tokenTypeAccess {
		return ErrWrongTokenType
	}
	if c.Subject() == "" || c.SessionID() == "" {
		return ErrMissingClaim
	}

	return nil
}

// Identity is the authenticated caller of a request
type Identity struct {
	UserID    string
	SessionID string
	Email     string
}

func stringClaim(token jwt.Token, name string) string {
	var v any
	if token.Get(name, &v) != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}
