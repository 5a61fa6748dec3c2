// Package tokeninfo reads the claims of access tokens issued by the storefront API.
//
// The client never holds the signing key, so claims are parsed without signature
// verification. They are only used for display and for deciding when a cached
// token is stale; the server remains the authority on validity.
package tokeninfo

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Introspection holds the claims of a SimpleJWT access token
type Introspection struct {
	UserID    string    // "user_id" claim, numeric ids are formatted as strings
	TokenType string    // "token_type" claim, "access" or "refresh"
	JTI       string    // Unique token id
	IssuedAt  time.Time // Zero when absent
	ExpiresAt time.Time // Zero when absent
}

// Expired reports whether the token expires within leeway of now.
// Tokens without an exp claim never expire client-side.
func (i *Introspection) Expired(leeway time.Duration) bool {
	if i.ExpiresAt.IsZero() {
		return false
	}
	return !NowTimeFunc().Add(leeway).Before(i.ExpiresAt)
}

// Inspect decodes the claims of rawToken without verifying its signature.
// Opaque (non-JWT) tokens return ErrMalformedToken.
func Inspect(rawToken string) (*Introspection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, apperrors.ErrMalformedToken
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrMalformedToken, "tokeninfo.Inspect: %v", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, apperrors.ErrMalformedToken
	}

	info := &Introspection{}
	info.TokenType, _ = claims["token_type"].(string)
	info.JTI, _ = claims["jti"].(string)

	switch userID := claims["user_id"].(type) {
	case string:
		info.UserID = userID
	case float64:
		info.UserID = fmt.Sprintf("%.0f", userID)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		info.IssuedAt = iat.Time
	}
	return info, nil
}

// ExpiryOf returns the exp claim of rawToken, or the zero time when the token is
// opaque or carries no exp claim.
func ExpiryOf(rawToken string) time.Time {
	info, err := Inspect(rawToken)
	if err != nil {
		return time.Time{}
	}
	return info.ExpiresAt
}
