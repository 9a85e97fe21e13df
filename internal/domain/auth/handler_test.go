package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Anvoria/sessionly/internal/domain/session"
)

// MockAuthService is a mock implementation of AuthService
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, email, password string, meta session.ClientMeta) (*session.Issued, error) {
	args := m.Called(email, password, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Issued), args.Error(1)
}

func (m *MockAuthService) Refresh(ctx context.Context, refreshToken string, meta session.ClientMeta) (*session.Issued, error) {
	args := m.Called(refreshToken, meta)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Issued), args.Error(1)
}

func (m *MockAuthService) Logout(ctx context.Context, refreshToken string) error {
	return m.Called(refreshToken).Error(0)
}

func (m *MockAuthService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	args := m.Called(userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAuthService) Sessions(ctx context.Context, userID string) ([]session.Session, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]session.Session), args.Error(1)
}

func (m *MockAuthService) RevokeSession(ctx context.Context, sessionID, userID string) (bool, error) {
	args := m.Called(sessionID, userID)
	return args.Bool(0), args.Error(1)
}

var testIdentity = &Identity{UserID: "user-1", SessionID: "sess-1", Email: "user@example.com"}

// newTestApp mounts the handler the way the server does, with a fake auth step
func newTestApp(svc AuthService) *fiber.App {
	app := fiber.New()
	h := NewHandler(svc, true)

	fakeAuth := func(c *fiber.Ctx) error {
		c.Locals(IdentityKey, testIdentity)
		return c.Next()
	}

	group := app.Group(RefreshCookiePath)
	group.Post("/login", h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/logout", h.Logout)
	group.Post("/logout-all", fakeAuth, h.LogoutAll)
	group.Get("/sessions", fakeAuth, h.Sessions)
	group.Delete("/sessions/:id", fakeAuth, h.RevokeSession)
	return app
}

func testIssued() *session.Issued {
	return &session.Issued{
		SessionID:        "sess-2",
		UserID:           "user-1",
		AccessToken:      "access-token",
		RefreshToken:     "refresh-token",
		AccessExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decode(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	return env
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	return nil
}

func postJSON(path string, body any) *http.Request {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(b))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return req
}

func withRefreshCookie(req *http.Request, value string) *http.Request {
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: value})
	return req
}

func TestHandler_Login(t *testing.T) {
	t.Run("success sets cookie", func(t *testing.T) {
		svc := new(MockAuthService)
		svc.On("Login", "user@example.com", "password123", mock.AnythingOfType("session.ClientMeta")).Return(testIssued(), nil)

		resp, err := newTestApp(svc).Test(postJSON("/v1/auth/login", LoginRequest{Email: "user@example.com", Password: "password123"}))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		env := decode(t, resp)
		var tokens TokenResponse
		require.NoError(t, json.Unmarshal(env.Data, &tokens))
		assert.Equal(t, "access-token", tokens.AccessToken)
		assert.Equal(t, "Bearer", tokens.TokenType)
		assert.InDelta(t, 900, tokens.ExpiresIn, 5)

		cookie := refreshCookie(resp)
		require.NotNil(t, cookie)
		assert.Equal(t, "refresh-token", cookie.Value)
		assert.Equal(t, RefreshCookiePath, cookie.Path)
		assert.True(t, cookie.HttpOnly)
		assert.True(t, cookie.Secure)
		assert.NotContains(t, string(env.Data), "refresh-token")

		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockAuthService)
		req := httptest.NewRequest(fiber.MethodPost, "/v1/auth/login", bytes.NewReader([]byte(`{"email": }`)))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

		resp, err := newTestApp(svc).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("validation failure", func(t *testing.T) {
		svc := new(MockAuthService)

		resp, err := newTestApp(svc).Test(postJSON("/v1/auth/login", LoginRequest{Email: "not-an-email"}))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "BAD_REQUEST", decode(t, resp).Error.Code)
		svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("wrong credentials", func(t *testing.T) {
		svc := new(MockAuthService)
		svc.On("Login", "user@example.com", "wrong-password", mock.Anything).Return(nil, session.ErrInvalidCredentials)

		resp, err := newTestApp(svc).Test(postJSON("/v1/auth/login", LoginRequest{Email: "user@example.com", Password: "wrong-password"}))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_credentials", decode(t, resp).Error.Code)
		assert.Nil(t, refreshCookie(resp))
	})
}

func TestHandler_Refresh(t *testing.T) {
	t.Run("success rotates cookie", func(t *testing.T) {
		svc := new(MockAuthService)
		svc.On("Refresh", "old-refresh", mock.Anything).Return(testIssued(), nil)

		req := withRefreshCookie(httptest.NewRequest(fiber.MethodPost, "/v1/auth/refresh", nil), "old-refresh")
		resp, err := newTestApp(svc).Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		cookie := refreshCookie(resp)
		require.NotNil(t, cookie)
		assert.Equal(t, "refresh-token", cookie.Value)
	})

	t.Run("missing cookie", func(t *testing.T) {
		svc := new(MockAuthService)

		resp, err := newTestApp(svc).Test(httptest.NewRequest(fiber.MethodPost, "/v1/auth/refresh", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "invalid_session", decode(t, resp).Error.Code)
	})

	for _, sessionErr := range []error{session.ErrInvalidToken, session.ErrTokenExpired, session.ErrTokenReuseDetected} {
		t.Run(sessionErr.Error(), func(t *testing.T) {
			svc := new(MockAuthService)
			svc.On("Refresh", "stale", mock.Anything).Return(nil, sessionErr)

			req := withRefreshCookie(httptest.NewRequest(fiber.MethodPost, "/v1/auth/refresh", nil), "stale")
			resp, err := newTestApp(svc).Test(req)
			require.NoError(t, err)
			assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "invalid_session", decode(t, resp).Error.Code)

			cookie := refreshCookie(resp)
			require.NotNil(t, cookie, "cookie must be cleared")
			assert.Empty(t, cookie.Value)
			assert.Equal(t, RefreshCookiePath, cookie.Path)
			assert.True(t, cookie.HttpOnly)
		})
	}

	t.Run("storage failure", func(t *testing.T) {
		svc := new(MockAuthService)
		svc.On("Refresh", "token", mock.Anything).Return(nil, &session.StorageError{Op: "get", Err: errors.New("connection refused")})

		req := withRefreshCookie(httptest.NewRequest(fiber.MethodPost, "/v1/auth/refresh", nil), "token")
		resp, err := newTestApp(svc).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
		assert.Nil(t, refreshCookie(resp), "a storage failure must not log the client out")
	})
}

func TestHandler_Logout(t *testing.T) {
	t.Run("with cookie", func(t *testing.T) {
		svc := new(MockAuthService)
		svc.On("Logout", "refresh").Return(nil)

		req := withRefreshCookie(httptest.NewRequest(fiber.MethodPost, "/v1/auth/logout", nil), "refresh")
		resp, err := newTestApp(svc).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		cookie := refreshCookie(resp)
		require.NotNil(t, cookie)
		assert.Empty(t, cookie.Value)
		assert.Equal(t, RefreshCookiePath, cookie.Path)
		svc.AssertExpectations(t)
	})

	t.Run("without cookie", func(t *testing.T) {
		svc := new(MockAuthService)

		resp, err := newTestApp(svc).Test(httptest.NewRequest(fiber.MethodPost, "/v1/auth/logout", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		svc.AssertNotCalled(t, "Logout", mock.Anything)
	})

	t.Run("unexpected error", func(t *testing.T) {
		svc := new(MockAuthService)
		svc.On("Logout", "refresh").Return(errors.New("boom"))

		req := withRefreshCookie(httptest.NewRequest(fiber.MethodPost, "/v1/auth/logout", nil), "refresh")
		resp, err := newTestApp(svc).Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	})
}

func TestHandler_LogoutAll(t *testing.T) {
	svc := new(MockAuthService)
	svc.On("LogoutAll", testIdentity.UserID).Return(int64(3), nil)

	resp, err := newTestApp(svc).Test(httptest.NewRequest(fiber.MethodPost, "/v1/auth/logout-all", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var data map[string]int64
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &data))
	assert.Equal(t, int64(3), data["revoked"])
	require.NotNil(t, refreshCookie(resp))
}

func TestHandler_Sessions(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	svc := new(MockAuthService)
	svc.On("Sessions", testIdentity.UserID).Return([]session.Session{
		{ID: "sess-3", UserID: testIdentity.UserID, CreatedAt: now, ExpiresAt: now.Add(time.Hour), UserAgent: "curl"},
		{ID: testIdentity.SessionID, UserID: testIdentity.UserID, CreatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)},
	}, nil)

	resp, err := newTestApp(svc).Test(httptest.NewRequest(fiber.MethodGet, "/v1/auth/sessions", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var list []SessionResponse
	require.NoError(t, json.Unmarshal(decode(t, resp).Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "sess-3", list[0].ID)
	assert.False(t, list[0].Current)
	assert.Equal(t, "curl", list[0].UserAgent)
	assert.True(t, list[1].Current)
}

func TestHandler_RevokeSession(t *testing.T) {
	tests := []struct {
		name    string
		revoked bool
		err     error
		status  int
	}{
		{"revoked", true, nil, fiber.StatusOK},
		{"not found", false, nil, fiber.StatusNotFound},
		{"storage failure", false, &session.StorageError{Op: "revoke", Err: context.DeadlineExceeded}, fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockAuthService)
			svc.On("RevokeSession", "sess-9", testIdentity.UserID).Return(tt.revoked, tt.err)

			resp, err := newTestApp(svc).Test(httptest.NewRequest(fiber.MethodDelete, "/v1/auth/sessions/sess-9", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			svc.AssertExpectations(t)
		})
	}
}

func TestHandler_RequiresIdentity(t *testing.T) {
	app := fiber.New()
	h := NewHandler(new(MockAuthService), false)
	app.Get("/sessions", h.Sessions)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/sessions", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
