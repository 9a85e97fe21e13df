package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Anvoria/sessionly/internal/domain/session"
)

type MockCredentialVerifier struct {
	mock.Mock
}

func (m *MockCredentialVerifier) VerifyCredentials(ctx context.Context, email, password string) (string, error) {
	args := m.Called(email, password)
	return args.String(0), args.Error(1)
}

type staticDirectory map[string]string

func (d staticDirectory) LookupEmail(_ context.Context, userID string) (string, error) {
	email, ok := d[userID]
	if !ok {
		return "", session.ErrUserNotFound
	}
	return email, nil
}

func newTestService(t *testing.T, credentials session.CredentialVerifier, directory staticDirectory) *Service {
	t.Helper()
	manager := session.NewManager(
		session.NewMemoryStore(),
		newTestSigner(t),
		session.Config{AccessTTL: 15 * time.Minute, RefreshTTL: time.Hour, MaxActivePerUser: 3},
		session.WithDirectory(directory),
	)
	return NewService(credentials, manager)
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	userID := uuid.NewString()

	creds := new(MockCredentialVerifier)
	creds.On("VerifyCredentials", "user@example.com", "password123").Return(userID, nil)
	creds.On("VerifyCredentials", "user@example.com", "wrong").Return("", session.ErrInvalidCredentials)

	svc := newTestService(t, creds, staticDirectory{userID: "user@example.com"})
	meta := session.ClientMeta{IPAddress: "10.0.0.1", UserAgent: "test"}

	issued, err := svc.Login(ctx, "user@example.com", "password123", meta)
	require.NoError(t, err)
	assert.Equal(t, userID, issued.UserID)
	assert.NotEmpty(t, issued.AccessToken)
	assert.NotEmpty(t, issued.RefreshToken)

	_, err = svc.Login(ctx, "user@example.com", "wrong", meta)
	assert.ErrorIs(t, err, session.ErrInvalidCredentials)

	sessions, err := svc.Sessions(ctx, userID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, issued.SessionID, sessions[0].ID)
	assert.Equal(t, "10.0.0.1", sessions[0].IPAddress)

	creds.AssertExpectations(t)
}

func TestService_RefreshLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := uuid.NewString()

	creds := new(MockCredentialVerifier)
	creds.On("VerifyCredentials", "user@example.com", "password123").Return(userID, nil)
	svc := newTestService(t, creds, staticDirectory{userID: "user@example.com"})

	first, err := svc.Login(ctx, "user@example.com", "password123", session.ClientMeta{})
	require.NoError(t, err)
	other, err := svc.Login(ctx, "user@example.com", "password123", session.ClientMeta{})
	require.NoError(t, err)

	second, err := svc.Refresh(ctx, first.RefreshToken, session.ClientMeta{})
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	// replaying the rotated token revokes everything, including the other login
	_, err = svc.Refresh(ctx, first.RefreshToken, session.ClientMeta{})
	assert.ErrorIs(t, err, session.ErrTokenReuseDetected)

	_, err = svc.Refresh(ctx, other.RefreshToken, session.ClientMeta{})
	assert.ErrorIs(t, err, session.ErrTokenReuseDetected)

	sessions, err := svc.Sessions(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestService_LogoutAndRevoke(t *testing.T) {
	ctx := context.Background()
	userID := uuid.NewString()

	creds := new(MockCredentialVerifier)
	creds.On("VerifyCredentials", "user@example.com", "password123").Return(userID, nil)
	svc := newTestService(t, creds, staticDirectory{userID: "user@example.com"})

	a, err := svc.Login(ctx, "user@example.com", "password123", session.ClientMeta{})
	require.NoError(t, err)
	b, err := svc.Login(ctx, "user@example.com", "password123", session.ClientMeta{})
	require.NoError(t, err)
	c, err := svc.Login(ctx, "user@example.com", "password123", session.ClientMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, a.RefreshToken))
	require.NoError(t, svc.Logout(ctx, a.RefreshToken), "logout is idempotent")
	require.NoError(t, svc.Logout(ctx, "garbage"))

	ok, err := svc.RevokeSession(ctx, b.SessionID, uuid.NewString())
	require.NoError(t, err)
	assert.False(t, ok, "sessions of other users cannot be revoked")

	ok, err = svc.RevokeSession(ctx, "not-a-uuid", userID)
	require.NoError(t, err)
	assert.False(t, ok, "malformed ids are unknown, not a storage failure")

	ok, err = svc.RevokeSession(ctx, b.SessionID, userID)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := svc.LogoutAll(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = svc.Refresh(ctx, c.RefreshToken, session.ClientMeta{})
	assert.ErrorIs(t, err, session.ErrTokenReuseDetected)
}
