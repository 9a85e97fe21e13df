package auth

import (
	"context"

	"github.com/Anvoria/sessionly/internal/domain/session"
)

// AuthService is what the HTTP handler needs from the auth layer
type AuthService interface {
	Login(ctx context.Context, email, password string, meta session.ClientMeta) (*session.Issued, error)
	Refresh(ctx context.Context, refreshToken string, meta session.ClientMeta) (*session.Issued, error)
	Logout(ctx context.Context, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	Sessions(ctx context.Context, userID string) ([]session.Session, error)
	RevokeSession(ctx context.Context, sessionID, userID string) (bool, error)
}

// Service checks credentials and hands the rest of the lifecycle to the session manager
type Service struct {
	credentials session.CredentialVerifier
	sessions    *session.Manager
}

// NewService creates an auth service
func NewService(credentials session.CredentialVerifier, sessions *session.Manager) *Service {
	return &Service{credentials: credentials, sessions: sessions}
}

func (s *Service) Login(ctx context.Context, email, password string, meta session.ClientMeta) (*session.Issued, error) {
	userID, err := s.credentials.VerifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.sessions.Login(ctx, userID, meta)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string, meta session.ClientMeta) (*session.Issued, error) {
	return s.sessions.Rotate(ctx, refreshToken, meta)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.sessions.Logout(ctx, refreshToken)
}

func (s *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return s.sessions.LogoutAll(ctx, userID)
}

func (s *Service) Sessions(ctx context.Context, userID string) ([]session.Session, error) {
	return s.sessions.ActiveSessions(ctx, userID)
}

func (s *Service) RevokeSession(ctx context.Context, sessionID, userID string) (bool, error) {
	return s.sessions.RevokeByID(ctx, sessionID, userID)
}
