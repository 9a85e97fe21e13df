package user

import (
	"context"
	"testing"

	"github.com/Anvoria/sessionly/internal/domain/session"
	"github.com/Anvoria/sessionly/internal/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memRepo is an in-memory Repository
type memRepo struct {
	users []*User
}

func (m *memRepo) Create(_ context.Context, u *User) error {
	u.ID = uuid.New()
	m.users = append(m.users, u)
	return nil
}

func (m *memRepo) find(match func(*User) bool) (*User, error) {
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *memRepo) FindByID(_ context.Context, id string) (*User, error) {
	return m.find(func(u *User) bool { return u.ID.String() == id })
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	return m.find(func(u *User) bool { return u.Email == email })
}

func (m *memRepo) FindByUsername(_ context.Context, username string) (*User, error) {
	return m.find(func(u *User) bool { return u.Username == username })
}

func TestService_VerifyCredentials(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memRepo{})

	u, err := svc.Register(ctx, RegisterRequest{Username: "ada", Email: "Ada@Example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{name: "valid", email: "ada@example.com", password: "correct horse"},
		{name: "email is case insensitive", email: " ADA@example.com ", password: "correct horse"},
		{name: "wrong password", email: "ada@example.com", password: "battery staple", wantErr: session.ErrInvalidCredentials},
		{name: "unknown email", email: "bob@example.com", password: "correct horse", wantErr: session.ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.VerifyCredentials(ctx, tt.email, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, u.ID.String(), id)
		})
	}

	t.Run("inactive user", func(t *testing.T) {
		u.IsActive = false
		defer func() { u.IsActive = true }()

		_, err := svc.VerifyCredentials(ctx, "ada@example.com", "correct horse")
		assert.ErrorIs(t, err, session.ErrInvalidCredentials)
	})

	t.Run("corrupt stored hash", func(t *testing.T) {
		stored := u.Password
		u.Password = "$argon2id$v=19$m=4194304,t=2,p=2$c2FsdHNhbHRzYWx0c2FsdA$c2FsdHNhbHRzYWx0c2FsdA"
		defer func() { u.Password = stored }()

		_, err := svc.VerifyCredentials(ctx, "ada@example.com", "correct horse")
		assert.ErrorIs(t, err, ErrUnsafeParams)
		assert.NotErrorIs(t, err, session.ErrInvalidCredentials)
	})
}

func TestService_LookupEmail(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memRepo{})

	u, err := svc.Register(ctx, RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)

	email, err := svc.LookupEmail(ctx, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", email)

	_, err = svc.LookupEmail(ctx, uuid.NewString())
	assert.ErrorIs(t, err, session.ErrUserNotFound)

	u.IsActive = false
	_, err = svc.LookupEmail(ctx, u.ID.String())
	assert.ErrorIs(t, err, session.ErrUserNotFound)
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		req     RegisterRequest
		wantErr error
	}{
		{name: "duplicate email", req: RegisterRequest{Username: "other", Email: "ada@example.com", Password: "password123"}, wantErr: ErrEmailExists},
		{name: "duplicate username", req: RegisterRequest{Username: "ada", Email: "new@example.com", Password: "password123"}, wantErr: ErrUsernameExists},
		{name: "missing username", req: RegisterRequest{Email: "x@example.com", Password: "password123"}, wantErr: ErrUsernameRequired},
		{name: "short password", req: RegisterRequest{Username: "x", Email: "x@example.com", Password: "short"}, wantErr: ErrPasswordTooShort},
		{name: "ok", req: RegisterRequest{Username: "grace", Email: "grace@example.com", Password: "password123"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&memRepo{})
			_, err := svc.Register(ctx, RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "password123"})
			require.NoError(t, err)

			u, err := svc.Register(ctx, tt.req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			ok, err := VerifyPassword(tt.req.Password, u.Password)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.True(t, u.IsActive)
		})
	}
}

func TestRepository_Postgres(t *testing.T) {
	db := utils.SetupTestDB(t)
	db.Exec("DELETE FROM users")

	ctx := context.Background()
	svc := NewService(NewRepository(db))

	u, err := svc.Register(ctx, RegisterRequest{Username: "ada", Email: "ada@example.com", Password: "correct horse"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, u.ID)

	id, err := svc.VerifyCredentials(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID.String(), id)

	email, err := svc.LookupEmail(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", email)
}
