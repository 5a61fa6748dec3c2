package api

// TokenPair is the body returned by the token, token refresh and register endpoints.
// The refresh endpoint only returns a new refresh token when rotation is enabled
// server-side, so Refresh is optional.
type TokenPair struct {
	// Access is the short-lived JWT sent as "Authorization: Bearer <access>"
	Access string `json:"access"`

	// Refresh is the long-lived token used only against the refresh endpoint
	Refresh *string `json:"refresh,omitempty"`
}

// RefreshRequest is the body of a token refresh call
type RefreshRequest struct {
	Refresh string `json:"refresh" validate:"required"`
}

// Credentials are exchanged for an initial token pair
type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Registration creates a new account and returns an initial token pair
type Registration struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// ErrorBody covers both error shapes the API produces: {"error": "..."} from the
// storefront views and {"detail": "...", "code": "..."} from the token views.
type ErrorBody struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// Message returns the most specific message in the body
func (e ErrorBody) Message() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Detail
}
