package auth

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Anvoria/sessionly/internal/utils"
)

const (
	// IdentityKey is the key used to store the identity in Fiber context
	IdentityKey = "identity"
)

var (
	errMissingAuthorization = utils.NewAPIError("missing_authorization_header", "Authorization header is required", fiber.StatusUnauthorized)
	errInvalidAuthorization = utils.NewAPIError("invalid_authorization_header", "Authorization header must be a Bearer token", fiber.StatusUnauthorized)
	errInvalidAccessToken   = utils.NewAPIError("invalid_token", "Access token is invalid or expired", fiber.StatusUnauthorized)
	errRevokedAccessToken   = utils.NewAPIError("token_revoked", "Session has been revoked", fiber.StatusUnauthorized)
)

// RevocationChecker reports whether a session was revoked while its access
// tokens are still within their lifetime.
type RevocationChecker interface {
	IsSessionRevoked(ctx context.Context, sessionID string) (bool, error)
}

// AuthMiddleware verifies the bearer access token. revocations may be nil,
// in which case revoked sessions keep access until their token expires.
func AuthMiddleware(keyStore *KeyStore, revocations RevocationChecker, issuer string, expectedAudience []string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return utils.ErrorResponse(c, errMissingAuthorization)
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			return utils.ErrorResponse(c, errInvalidAuthorization)
		}

		claims, err := keyStore.Verify(token)
		if err != nil {
			return utils.ErrorResponse(c, errInvalidAccessToken)
		}

		if err := claims.Validate(issuer, expectedAudience); err != nil {
			return utils.ErrorResponse(c, errInvalidAccessToken)
		}

		sid := claims.SessionID()
		if revocations != nil {
			revoked, err := revocations.IsSessionRevoked(c.UserContext(), sid)
			if err != nil {
				// fail open, the token still expires on its own
				slog.Warn("Revocation check failed", "session_id", sid, "error", err)
			} else if revoked {
				return utils.ErrorResponse(c, errRevokedAccessToken)
			}
		}

		c.Locals(IdentityKey, &Identity{
			UserID:    claims.Subject(),
			SessionID: sid,
			Email:     claims.Email(),
		})

		return c.Next()
	}
}

// GetIdentity extracts the identity from Fiber context
func GetIdentity(c *fiber.Ctx) *Identity {
	identity, ok := c.Locals(IdentityKey).(*Identity)
	if !ok {
		return nil
	}
	return identity
}
