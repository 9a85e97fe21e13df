package auth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/Anvoria/sessionly/internal/domain/session"
	"github.com/Anvoria/sessionly/internal/utils"
)

const (
	RefreshCookieName = "refresh_token"
	RefreshCookiePath = "/v1/auth"
)

var (
	errInvalidSession     = utils.NewAPIError("invalid_session", "Session is invalid or expired", fiber.StatusUnauthorized)
	errInvalidCredentials = utils.NewAPIError("invalid_credentials", "Invalid email or password", fiber.StatusUnauthorized)
	errInvalidBody        = utils.NewAPIError("invalid_body", "Request body is malformed", fiber.StatusBadRequest)
)

var validate = validator.New()

// LoginRequest is the body of POST /v1/auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=256"`
}

// TokenResponse is returned by login and refresh. The refresh token only
// travels in the cookie.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// SessionResponse describes one active session of the caller
type SessionResponse struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	Current    bool       `json:"current"`
}

// Handler serves the /v1/auth endpoints and owns the refresh cookie
type Handler struct {
	authService  AuthService
	cookieSecure bool
}

// NewHandler creates a Handler. cookieSecure sets the Secure attribute on the
// refresh cookie and should only be false for local development.
func NewHandler(s AuthService, cookieSecure bool) *Handler {
	return &Handler{authService: s, cookieSecure: cookieSecure}
}

// Login handles POST /v1/auth/login
func (h *Handler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, errInvalidBody)
	}
	if err := validate.Struct(req); err != nil {
		return utils.ErrorResponse(c, utils.ErrBadRequest.WithDetails(validationDetails(err)))
	}

	issued, err := h.authService.Login(c.UserContext(), req.Email, req.Password, clientMeta(c))
	if err != nil {
		return h.fail(c, err)
	}

	h.setRefreshCookie(c, issued)
	return utils.SuccessResponse(c, tokenResponse(issued), "Login successful")
}

// Refresh handles POST /v1/auth/refresh, rotating the cookie's refresh token
func (h *Handler) Refresh(c *fiber.Ctx) error {
	refreshToken := c.Cookies(RefreshCookieName)
	if refreshToken == "" {
		return utils.ErrorResponse(c, errInvalidSession)
	}

	issued, err := h.authService.Refresh(c.UserContext(), refreshToken, clientMeta(c))
	if err != nil {
		return h.fail(c, err)
	}

	h.setRefreshCookie(c, issued)
	return utils.SuccessResponse(c, tokenResponse(issued), "Token refreshed")
}

// Logout always clears the cookie. A missing or invalid token is already logged out.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if refreshToken := c.Cookies(RefreshCookieName); refreshToken != "" {
		if err := h.authService.Logout(c.UserContext(), refreshToken); err != nil {
			return h.fail(c, err)
		}
	}

	h.clearRefreshCookie(c)
	return utils.SuccessResponse(c, nil, "Logged out")
}

// LogoutAll handles POST /v1/auth/logout-all for the authenticated user
func (h *Handler) LogoutAll(c *fiber.Ctx) error {
	identity := GetIdentity(c)
	if identity == nil {
		return utils.ErrorResponse(c, utils.ErrUnauthorized)
	}

	revoked, err := h.authService.LogoutAll(c.UserContext(), identity.UserID)
	if err != nil {
		return h.fail(c, err)
	}

	h.clearRefreshCookie(c)
	return utils.SuccessResponse(c, fiber.Map{"revoked": revoked}, "Logged out from all sessions")
}

// Sessions handles GET /v1/auth/sessions
func (h *Handler) Sessions(c *fiber.Ctx) error {
	identity := GetIdentity(c)
	if identity == nil {
		return utils.ErrorResponse(c, utils.ErrUnauthorized)
	}

	sessions, err := h.authService.Sessions(c.UserContext(), identity.UserID)
	if err != nil {
		return h.fail(c, err)
	}

	res := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		res = append(res, SessionResponse{
			ID:         s.ID,
			CreatedAt:  s.CreatedAt,
			ExpiresAt:  s.ExpiresAt,
			LastUsedAt: s.LastUsedAt,
			IPAddress:  s.IPAddress,
			UserAgent:  s.UserAgent,
			Current:    s.ID == identity.SessionID,
		})
	}

	return utils.SuccessResponse(c, res, "Active sessions")
}

// RevokeSession handles DELETE /v1/auth/sessions/:id. Sessions of other
// users and malformed ids both answer 404.
func (h *Handler) RevokeSession(c *fiber.Ctx) error {
	identity := GetIdentity(c)
	if identity == nil {
		return utils.ErrorResponse(c, utils.ErrUnauthorized)
	}

	revoked, err := h.authService.RevokeSession(c.UserContext(), c.Params("id"), identity.UserID)
	if err != nil {
		return h.fail(c, err)
	}
	if !revoked {
		return utils.ErrorResponse(c, utils.ErrNotFound)
	}

	return utils.SuccessResponse(c, nil, "Session revoked")
}

// fail maps session errors onto the HTTP contract. Every refresh failure
// looks the same to the client.
func (h *Handler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, session.ErrInvalidToken),
		errors.Is(err, session.ErrTokenExpired),
		errors.Is(err, session.ErrTokenReuseDetected):
		h.clearRefreshCookie(c)
		return utils.ErrorResponse(c, errInvalidSession)
	case errors.Is(err, session.ErrInvalidCredentials):
		return utils.ErrorResponse(c, errInvalidCredentials)
	case errors.Is(err, session.ErrStorage):
		slog.Error("Session storage unavailable", "path", c.Path(), "error", err)
		return utils.ErrorResponse(c, utils.ErrServiceUnavailable)
	default:
		slog.Error("Auth request failed", "path", c.Path(), "error", err)
		return utils.ErrorResponse(c, utils.ErrInternalServer)
	}
}

func (h *Handler) setRefreshCookie(c *fiber.Ctx, issued *session.Issued) {
	c.Cookie(h.refreshCookie(issued.RefreshToken, issued.RefreshExpiresAt))
}

// clearRefreshCookie must use the same name, path and flags as setRefreshCookie
func (h *Handler) clearRefreshCookie(c *fiber.Ctx) {
	cookie := h.refreshCookie("", time.Unix(0, 0))
	cookie.MaxAge = -1
	c.Cookie(cookie)
}

func (h *Handler) refreshCookie(value string, expires time.Time) *fiber.Cookie {
	return &fiber.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     RefreshCookiePath,
		HTTPOnly: true,
		Secure:   h.cookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
		Expires:  expires,
	}
}

func clientMeta(c *fiber.Ctx) session.ClientMeta {
	return session.ClientMeta{
		IPAddress: c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

func tokenResponse(issued *session.Issued) TokenResponse {
	return TokenResponse{
		AccessToken: issued.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   max(int64(time.Until(issued.AccessExpiresAt).Seconds()), 0),
	}
}

func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}
	return details
}

// JWKSHandler serves the public half of every signing key
func JWKSHandler(keyStore *KeyStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(keyStore.JWKS())
	}
}
