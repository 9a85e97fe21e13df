package session

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when an email/password pair does not match a user
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a refresh token is malformed, badly signed or past its exp
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a verified token points at an expired session
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenReuseDetected is returned when a token for an unknown or revoked session is presented
	ErrTokenReuseDetected = errors.New("token reuse detected")
	// ErrSessionNotFound is returned by stores when no session matches (id, user)
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserNotFound is returned by a Directory that no longer knows the user
	ErrUserNotFound = errors.New("user not found")
	// ErrStorage matches every *StorageError via errors.Is
	ErrStorage = errors.New("session storage failure")
)

// StorageError wraps a store failure or timeout
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("session storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrStorage) true for any StorageError
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// errDuplicateID mirrors a primary key violation in the in-memory store
var errDuplicateID = errors.New("session id already exists")
