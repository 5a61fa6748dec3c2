package errors

import (
	"errors"
	"fmt"
)

// Common error values for the storefront client
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotAuthenticated   = errors.New("user is not authenticated")
	ErrRegistrationFailed = errors.New("registration rejected")

	// Token errors
	ErrNoAccessToken       = errors.New("no access token")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrMalformedToken      = errors.New("malformed token")
	ErrEmptyTokenResponse  = errors.New("token response missing access token")

	// Request errors
	ErrInvalidRequest       = errors.New("invalid request")
	ErrRequestNotReplayable = errors.New("request body cannot be replayed")

	// Storage errors
	ErrStorageClosed = errors.New("storage closed")
	ErrDecrypt       = errors.New("unable to decrypt stored value")

	// General errors
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}
