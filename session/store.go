package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-storefront-client/api"
	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
	"github.com/jrsteele09/go-storefront-client/storage"
	"github.com/jrsteele09/go-storefront-client/tokeninfo"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

// Session is a point-in-time copy of the authenticated state
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // From the access token's exp claim, zero when unknown
	User         *api.UserProfile
}

// Authenticated reports whether the session holds a token pair
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// Store is the application-wide session state. Every token mutation is written
// through to the persistent storage, which is read back once at start-up by Load.
//
// The access and refresh tokens are always set and cleared together, and the
// cached user only exists while a token pair does.
type Store struct {
	persist storage.Store
	logger  zerolog.Logger

	lock  sync.RWMutex
	token *oauth2.Token
	user  *api.UserProfile
}

func NewStore(persist storage.Store, logger zerolog.Logger) *Store {
	return &Store{
		persist: persist,
		logger:  logger,
	}
}

// Load restores the token pair from storage. A half-present pair is discarded.
func (s *Store) Load(ctx context.Context) error {
	access, hasAccess, err := s.persist.Get(ctx, storage.AccessTokenKey)
	if err != nil {
		return fmt.Errorf("session.Store.Load access token: %w", err)
	}
	refresh, hasRefresh, err := s.persist.Get(ctx, storage.RefreshTokenKey)
	if err != nil {
		return fmt.Errorf("session.Store.Load refresh token: %w", err)
	}

	if hasAccess != hasRefresh || (hasAccess && (access == "" || refresh == "")) {
		s.logger.Warn().
			Bool("has_access", hasAccess).
			Bool("has_refresh", hasRefresh).
			Msg("Discarding incomplete persisted token pair")
		return s.ClearTokens(ctx)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	s.user = nil
	s.token = nil
	if hasAccess {
		s.token = newToken(access, refresh)
	}
	return nil
}

func (s *Store) GetAccessToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.token == nil {
		return ""
	}
	return s.token.AccessToken
}

func (s *Store) GetRefreshToken() string {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.token == nil {
		return ""
	}
	return s.token.RefreshToken
}

func (s *Store) IsAuthenticated() bool {
	return s.GetAccessToken() != ""
}

// Token returns a copy of the current token pair, or nil
func (s *Store) Token() *oauth2.Token {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.token == nil {
		return nil
	}
	t := *s.token
	return &t
}

// User returns a copy of the cached profile, or nil
func (s *Store) User() *api.UserProfile {
	s.lock.RLock()
	defer s.lock.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Snapshot copies the whole session state under one lock
func (s *Store) Snapshot() Session {
	s.lock.RLock()
	defer s.lock.RUnlock()
	var snap Session
	if s.token != nil {
		snap.AccessToken = s.token.AccessToken
		snap.RefreshToken = s.token.RefreshToken
		snap.ExpiresAt = s.token.Expiry
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// SetTokens starts a new session: it installs the pair, drops any cached user and
// writes the pair through to storage. The in-memory state is updated even when
// persisting fails; the error is returned so the caller can decide whether that
// matters.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	if access == "" || refresh == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "session.Store.SetTokens: both tokens are required")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.setTokensLocked(access, refresh)
	s.user = nil
	return s.persistLocked(ctx, access, refresh)
}

// ReplaceTokens installs a new pair only if the held refresh token still equals
// expectedRefresh. It reports false, without writing, when the session was
// cleared or replaced in the meantime. The cached user is kept.
func (s *Store) ReplaceTokens(ctx context.Context, expectedRefresh, access, refresh string) (bool, error) {
	if access == "" || refresh == "" {
		return false, apperrors.Wrapf(apperrors.ErrInvalidRequest, "session.Store.ReplaceTokens: both tokens are required")
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.token == nil || s.token.RefreshToken != expectedRefresh {
		return false, nil
	}
	s.setTokensLocked(access, refresh)
	return true, s.persistLocked(ctx, access, refresh)
}

// SetUser caches the profile of the current session
func (s *Store) SetUser(user *api.UserProfile) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.token == nil {
		return apperrors.ErrNotAuthenticated
	}
	if user == nil {
		s.user = nil
		return nil
	}
	u := *user
	s.user = &u
	return nil
}

// ClearTokens drops the token pair and the cached user, in memory and in storage.
// Memory is always cleared; storage errors are joined and returned.
func (s *Store) ClearTokens(ctx context.Context) error {
	_, err := s.clearIf(ctx, nil)
	return err
}

// clearIf clears the session only while match accepts the held token. A nil
// match always clears.
func (s *Store) clearIf(ctx context.Context, match func(*oauth2.Token) bool) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if match != nil && (s.token == nil || !match(s.token)) {
		return false, nil
	}
	s.token = nil
	s.user = nil

	var errs []error
	if err := s.persist.Remove(ctx, storage.AccessTokenKey); err != nil {
		errs = append(errs, fmt.Errorf("remove access token: %w", err))
	}
	if err := s.persist.Remove(ctx, storage.RefreshTokenKey); err != nil {
		errs = append(errs, fmt.Errorf("remove refresh token: %w", err))
	}
	return true, apperrors.Join(errs...)
}

func (s *Store) setTokensLocked(access, refresh string) {
	s.token = newToken(access, refresh)
}

func (s *Store) persistLocked(ctx context.Context, access, refresh string) error {
	if err := s.persist.Set(ctx, storage.AccessTokenKey, access); err != nil {
		return fmt.Errorf("session.Store persist access token: %w", err)
	}
	if err := s.persist.Set(ctx, storage.RefreshTokenKey, refresh); err != nil {
		return fmt.Errorf("session.Store persist refresh token: %w", err)
	}
	return nil
}

func newToken(access, refresh string) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Expiry:       tokeninfo.ExpiryOf(access),
	}
}
