package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Anvoria/sessionly/internal/domain/session"
	"gorm.io/gorm"
)

var (
	// ErrEmailExists is returned when trying to register with an email that already exists
	ErrEmailExists = errors.New("email already exists")
	// ErrUsernameExists is returned when trying to register with a username that already exists
	ErrUsernameExists = errors.New("username already exists")
	// ErrUsernameRequired is returned when trying to register with an empty username
	ErrUsernameRequired = errors.New("username is required")
	// ErrPasswordTooShort is returned when the password is shorter than minPasswordLength
	ErrPasswordTooShort = errors.New("password is too short")
)

const minPasswordLength = 8

// dummyHash is verified against when the email is unknown so that both
// paths cost one argon2 derivation.
var dummyHash, _ = HashPassword("sessionly-timing-equalizer")

// RegisterRequest represents the input for user registration
type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

// Service verifies credentials and resolves user emails for the session
// manager. Register exists for operator tooling only.
type Service struct {
	repo       Repository
	hashParams Params
}

// NewService creates a user service hashing new passwords with DefaultParams
func NewService(repo Repository) *Service {
	return &Service{repo: repo, hashParams: DefaultParams}
}

// VerifyCredentials returns the id of the active user matching email and
// password, or session.ErrInvalidCredentials.
func (s *Service) VerifyCredentials(ctx context.Context, email, password string) (string, error) {
	u, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_, _ = VerifyPassword(password, dummyHash)
			return "", session.ErrInvalidCredentials
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	ok, err := VerifyPassword(password, u.Password)
	if err != nil {
		slog.Error("Stored password hash is unusable", "user_id", u.ID, "error", err)
		return "", fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok || !u.IsActive {
		return "", session.ErrInvalidCredentials
	}

	return u.ID.String(), nil
}

// LookupEmail returns the email of an active user or session.ErrUserNotFound
func (s *Service) LookupEmail(ctx context.Context, userID string) (string, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", session.ErrUserNotFound
		}
		return "", fmt.Errorf("failed to look up user: %w", err)
	}

	if !u.IsActive {
		return "", session.ErrUserNotFound
	}
	return u.Email, nil
}

// Register registers a new user
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if strings.TrimSpace(req.Username) == "" {
		return nil, ErrUsernameRequired
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	email := normalizeEmail(req.Email)

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, ErrEmailExists
	}

	if _, err := s.repo.FindByUsername(ctx, req.Username); err == nil {
		return nil, ErrUsernameExists
	}

	hashedPassword, err := s.hashParams.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username: req.Username,
		Email:    email,
		Password: hashedPassword,
		IsActive: true,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
