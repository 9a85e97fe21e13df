package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKey is returned when the active key id is not in the key set
	ErrUnknownKey = errors.New("unknown signing key")
	// ErrNoKeys is returned when a keys directory holds no usable key pair
	ErrNoKeys = errors.New("no signing keys found")
	// ErrWrongTokenType is returned when an access token is presented as a refresh token or vice versa
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrMissingClaim is returned when a verified token lacks a required claim
	ErrMissingClaim = errors.New("missing required claim")
	// ErrWeakRefreshSecret is returned for refresh secrets too short to sign with
	ErrWeakRefreshSecret = errors.New("refresh secret too short")
)

// ErrKeysDirectoryNotAccessible is returned when the keys directory cannot be read
type ErrKeysDirectoryNotAccessible struct {
	Path string
	Err  error
}

func (e *ErrKeysDirectoryNotAccessible) Error() string {
	return fmt.Sprintf("keys directory %s is not accessible: %v", e.Path, e.Err)
}

func (e *ErrKeysDirectoryNotAccessible) Unwrap() error { return e.Err }

// ErrKeysPathNotDirectory is returned when the keys path is a regular file
type ErrKeysPathNotDirectory struct {
	Path string
}

func (e *ErrKeysPathNotDirectory) Error() string {
	return fmt.Sprintf("keys path %s is not a directory", e.Path)
}

// ErrKeyFile describes a key file that could not be loaded
type ErrKeyFile struct {
	FileName string
	Reason   string
	Err      error
}

func (e *ErrKeyFile) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("key file %s: %s: %v", e.FileName, e.Reason, e.Err)
	}
	return fmt.Sprintf("key file %s: %s", e.FileName, e.Reason)
}

func (e *ErrKeyFile) Unwrap() error { return e.Err }
