package session

import (
	"fmt"

	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
)

// AuthError reports credentials rejected by the login or registration endpoint.
// It is surfaced to the caller and never retried.
type AuthError struct {
	Op         string // "login" or "register"
	StatusCode int
	Message    string // Server supplied reason, when present
	Err        error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("session: %s rejected (%d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("session: %s rejected (%d)", e.Op, e.StatusCode)
}

// Unwrap exposes both the matching sentinel and the underlying status error
func (e *AuthError) Unwrap() []error {
	sentinel := apperrors.ErrInvalidCredentials
	if e.Op == opRegister {
		sentinel = apperrors.ErrRegistrationFailed
	}
	return []error{sentinel, e.Err}
}

// RefreshError reports that the refresh token was missing, expired or rejected.
// It is terminal for the session: by the time it is returned the session is cleared.
type RefreshError struct {
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("session: token refresh failed: %v", e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// ProfileFetchError reports that the tokens were issued but the profile could not
// be loaded. The session is established regardless.
type ProfileFetchError struct {
	Err error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("session: profile fetch failed: %v", e.Err)
}

func (e *ProfileFetchError) Unwrap() error {
	return e.Err
}
