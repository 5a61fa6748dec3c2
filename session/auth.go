package session

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/jrsteele09/go-storefront-client/httpclient"
	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
	"github.com/jrsteele09/go-storefront-client/internal/utils"
)

// Login exchanges credentials for a token pair, installs it and loads the profile.
//
// Rejected credentials return *AuthError and leave the session untouched. When the
// tokens are issued but the profile cannot be fetched the session is kept and the
// returned error is a *ProfileFetchError alongside the session.
func (m *Manager) Login(ctx context.Context, creds api.Credentials) (Session, error) {
	if err := api.Validate(creds); err != nil {
		return Session{}, err
	}
	return m.establish(ctx, opLogin, api.EndpointToken, creds)
}

// Register creates an account and logs into it in one step
func (m *Manager) Register(ctx context.Context, reg api.Registration) (Session, error) {
	if err := api.Validate(reg); err != nil {
		return Session{}, err
	}
	return m.establish(ctx, opRegister, api.EndpointRegister, reg)
}

func (m *Manager) establish(ctx context.Context, op, endpoint string, body any) (Session, error) {
	var pair api.TokenPair
	if err := m.auth.Post(ctx, endpoint, body, &pair); err != nil {
		return Session{}, authError(op, err)
	}
	refresh := utils.Value(pair.Refresh)
	if pair.Access == "" || refresh == "" {
		return Session{}, apperrors.Wrapf(apperrors.ErrEmptyTokenResponse, "session.%s", op)
	}

	if err := m.store.SetTokens(ctx, pair.Access, refresh); err != nil {
		m.logger.Warn().Err(err).Str("op", op).Msg("Session established but not persisted")
	}
	m.logger.Info().Str("op", op).Msg("Session established")

	if _, err := m.FetchProfile(ctx); err != nil {
		m.logger.Warn().Err(err).Str("op", op).Msg("Profile not loaded after authentication")
		return m.store.Snapshot(), &ProfileFetchError{Err: err}
	}
	return m.store.Snapshot(), nil
}

func authError(op string, err error) error {
	var statusErr *httpclient.StatusError
	if !apperrors.As(err, &statusErr) {
		return err
	}
	switch statusErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusConflict:
		return &AuthError{
			Op:         op,
			StatusCode: statusErr.StatusCode,
			Message:    statusErr.Message,
			Err:        statusErr,
		}
	}
	return err
}

// Logout destroys the session. It never fails: storage and hook errors are logged.
func (m *Manager) Logout(ctx context.Context) {
	m.destroySession(ctx, reasonLogout)
	m.runLogoutHooks(ctx)
	m.logger.Info().Msg("Logged out")
}

// FetchProfile loads the current user's profile and caches it on the session
func (m *Manager) FetchProfile(ctx context.Context) (*api.UserProfile, error) {
	if !m.store.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}
	var profile api.UserProfile
	if err := m.api.Get(ctx, api.EndpointUser, &profile); err != nil {
		return nil, err
	}
	if err := m.store.SetUser(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// UpdateProfile saves profile changes and caches the server's result
func (m *Manager) UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*api.UserProfile, error) {
	if !m.store.IsAuthenticated() {
		return nil, apperrors.ErrNotAuthenticated
	}
	if err := api.Validate(update); err != nil {
		return nil, err
	}
	var profile api.UserProfile
	if err := m.api.Put(ctx, api.EndpointUser, update, &profile); err != nil {
		return nil, err
	}
	if err := m.store.SetUser(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}
