package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/jrsteele09/go-storefront-client/httpclient"
	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
	"github.com/jrsteele09/go-storefront-client/session"
	"github.com/jrsteele09/go-storefront-client/storage"
	"github.com/jrsteele09/go-storefront-client/storage/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAttachCredential(t *testing.T) {
	f := setupTestFixture(t)

	req := httptest.NewRequest(http.MethodGet, f.api.BaseURL()+"cart/", nil)
	require.Same(t, req, f.manager.AttachCredential(req), "no token held, request passes through")

	access, _ := f.signIn(t)
	attached := f.manager.AttachCredential(req)
	require.Equal(t, "Bearer "+access, attached.Header.Get("Authorization"))
	require.Empty(t, req.Header.Get("Authorization"), "original request is not modified")

	for _, endpoint := range []string{api.EndpointToken, api.EndpointTokenRefresh, api.EndpointRegister} {
		credReq := httptest.NewRequest(http.MethodPost, f.api.BaseURL()+endpoint, nil)
		out := f.manager.AttachCredential(credReq)
		require.Empty(t, out.Header.Get("Authorization"), endpoint)
	}
}

func TestExpiredAccessTokenIsRefreshedAndReplayed(t *testing.T) {
	f := setupTestFixture(t)
	oldAccess, refresh := f.signIn(t)
	f.api.ExpireAccess()

	var items []api.CartItem
	err := f.manager.Client().Get(context.Background(), api.EndpointCart, &items)
	require.NoError(t, err)
	require.Empty(t, items)

	require.EqualValues(t, 1, f.api.RefreshCalls.Load())
	newAccess := f.store.GetAccessToken()
	require.NotEqual(t, oldAccess, newAccess)
	require.Equal(t, refresh, f.store.GetRefreshToken(), "refresh token retained when not rotated")

	calls := f.api.CallsTo("/api/cart/")
	require.Len(t, calls, 2)
	require.Equal(t, "Bearer "+oldAccess, calls[0].Authorization)
	require.Equal(t, "Bearer "+newAccess, calls[1].Authorization)

	persisted, ok, err := f.storage.Get(context.Background(), storage.AccessTokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, newAccess, persisted)

	require.Empty(t, f.nav.Visits())
	require.Equal(t, float64(1), f.sample(t, "storefront_token_refresh_total", `result="success"`))
	require.Equal(t, float64(1), f.sample(t, "storefront_request_replay_total", `result="success"`))
}

func TestRotatedRefreshTokenIsPersisted(t *testing.T) {
	f := setupTestFixture(t)
	f.api.SetRotateRefresh(true)
	_, oldRefresh := f.signIn(t)
	f.api.ExpireAccess()

	require.NoError(t, f.manager.Client().Get(context.Background(), api.EndpointCart, nil))

	newRefresh := f.store.GetRefreshToken()
	require.NotEqual(t, oldRefresh, newRefresh)
	persisted, _, err := f.storage.Get(context.Background(), storage.RefreshTokenKey)
	require.NoError(t, err)
	require.Equal(t, newRefresh, persisted)
}

func TestReplayResendsRequestBody(t *testing.T) {
	f := setupTestFixture(t)
	f.api.AddSchedule(api.PerformanceSchedule{ID: 7, PerformanceName: "Hamlet", AvailableSeats: 10, Price: 1500})
	f.signIn(t)
	f.api.ExpireAccess()

	var item api.CartItem
	err := f.manager.Client().Post(context.Background(), api.EndpointCartAdd,
		api.AddToCartRequest{PerformanceScheduleID: 7, Quantity: 2}, &item)
	require.NoError(t, err)
	require.Equal(t, 2, item.Quantity)
	require.Equal(t, api.Amount(3000), item.TotalPrice)
	require.Len(t, f.api.CallsTo("/api/cart/add/"), 2)
}

func TestRefreshFailureDestroysSession(t *testing.T) {
	var hookCalls atomic.Int32
	f := setupTestFixture(t, session.WithLogoutHook(func(context.Context) error {
		hookCalls.Add(1)
		return nil
	}))
	f.signIn(t)
	require.NoError(t, f.store.SetUser(&api.UserProfile{Username: testUsername}))
	f.api.ExpireAccess()
	f.api.RevokeRefresh()

	err := f.manager.Client().Get(context.Background(), api.EndpointCart, nil)
	require.True(t, httpclient.IsStatus(err, http.StatusUnauthorized), "the original 401 is returned: %v", err)

	require.False(t, f.store.IsAuthenticated())
	require.Empty(t, f.store.GetRefreshToken())
	require.Nil(t, f.store.User())
	for _, key := range []string{storage.AccessTokenKey, storage.RefreshTokenKey} {
		_, ok, err := f.storage.Get(context.Background(), key)
		require.NoError(t, err)
		require.False(t, ok, key)
	}

	require.EqualValues(t, 1, f.api.RefreshCalls.Load())
	require.Len(t, f.api.CallsTo("/api/cart/"), 1, "nothing is replayed after a failed refresh")
	require.Equal(t, []string{"/login"}, f.nav.Visits())
	require.EqualValues(t, 1, hookCalls.Load())
	require.Equal(t, float64(1), f.sample(t, "storefront_session_cleared_total", `reason="refresh_failed"`))
}

func TestRedirectSkippedWhenAlreadyOnLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.nav.current = "/login"
	f.signIn(t)
	f.api.ExpireAccess()
	f.api.RevokeRefresh()

	err := f.manager.Client().Get(context.Background(), api.EndpointCart, nil)
	require.True(t, httpclient.IsStatus(err, http.StatusUnauthorized))
	require.Empty(t, f.nav.Visits())
}

func TestUnauthorizedWithoutRefreshTokenShortCircuits(t *testing.T) {
	f := setupTestFixture(t)

	err := f.manager.Client().Get(context.Background(), api.EndpointCart, nil)
	require.True(t, httpclient.IsStatus(err, http.StatusUnauthorized))
	require.Zero(t, f.api.RefreshCalls.Load())
	require.Equal(t, []string{"/login"}, f.nav.Visits())

	_, err = f.manager.Refresh(context.Background())
	var refreshErr *session.RefreshError
	require.ErrorAs(t, err, &refreshErr)
	require.ErrorIs(t, err, apperrors.ErrNoRefreshToken)
	require.Zero(t, f.api.RefreshCalls.Load())
}

func TestReplayedUnauthorizedIsNotRefreshedAgain(t *testing.T) {
	var refreshCalls, ordersCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/token/refresh/":
			refreshCalls.Add(1)
			_ = json.NewEncoder(w).Encode(api.TokenPair{Access: "fresh-access"})
		default:
			ordersCalls.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(api.ErrorBody{Detail: "no"})
		}
	}))
	t.Cleanup(srv.Close)

	nav := &recordingNavigator{current: "/orders"}
	store := session.NewStore(memory.New(), zerolog.Nop())
	require.NoError(t, store.SetTokens(context.Background(), "stale-access", "refresh"))
	m, err := session.NewManager(testConfig(srv.URL+"/api/"), store, nav, session.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	err = m.Client().Get(context.Background(), api.EndpointOrders, nil)
	require.True(t, httpclient.IsStatus(err, http.StatusUnauthorized))
	require.EqualValues(t, 1, refreshCalls.Load())
	require.EqualValues(t, 2, ordersCalls.Load())
	require.False(t, store.IsAuthenticated(), "a rejected replay ends the session")
	require.Empty(t, store.GetRefreshToken())
	require.Equal(t, []string{"/login"}, nav.Visits())
}

func TestHandleResponseIsIdempotentPerAttempt(t *testing.T) {
	f := setupTestFixture(t)
	access, _ := f.signIn(t)

	req := httptest.NewRequest(http.MethodGet, f.api.BaseURL()+"cart/", nil)
	attempt := session.NewAttempt(req)
	attempt.Retried = true
	attempt.Credential = access
	resp := &http.Response{StatusCode: http.StatusUnauthorized, Body: http.NoBody, Request: req}

	dispatched := false
	out, err := f.manager.HandleResponse(context.Background(), attempt, resp, nil, func(*session.Attempt) (*http.Response, error) {
		dispatched = true
		return nil, nil
	})
	require.NoError(t, err)
	require.Same(t, resp, out)
	require.False(t, dispatched)
	require.Zero(t, f.api.RefreshCalls.Load())
	require.False(t, f.store.IsAuthenticated())
	require.Equal(t, []string{"/login"}, f.nav.Visits())
	require.Equal(t, float64(1), f.sample(t, "storefront_session_cleared_total", `reason="replay_rejected"`))
}

func TestRejectedReplayKeepsNewerSession(t *testing.T) {
	f := setupTestFixture(t)
	stale, _ := f.signIn(t)
	current, _ := f.signIn(t)

	req := httptest.NewRequest(http.MethodGet, f.api.BaseURL()+"cart/", nil)
	attempt := session.NewAttempt(req)
	attempt.Retried = true
	attempt.Credential = stale
	resp := &http.Response{StatusCode: http.StatusUnauthorized, Body: http.NoBody, Request: req}

	out, err := f.manager.HandleResponse(context.Background(), attempt, resp, nil, nil)
	require.NoError(t, err)
	require.Same(t, resp, out)
	require.Equal(t, current, f.store.GetAccessToken())
	require.Empty(t, f.nav.Visits())
}

func TestCredentialEndpointUnauthorizedIsNotRefreshed(t *testing.T) {
	f := setupTestFixture(t)
	access, _ := f.signIn(t)

	_, err := f.manager.Login(context.Background(), api.Credentials{Username: testUsername, Password: "wrong"})
	var authErr *session.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)

	require.Zero(t, f.api.RefreshCalls.Load())
	require.Equal(t, access, f.store.GetAccessToken(), "a rejected login leaves the current session alone")
	require.Empty(t, f.nav.Visits())
}

func TestNetworkErrorDoesNotRefresh(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL + "/api/"
	srv.Close()

	store := session.NewStore(memory.New(), zerolog.Nop())
	require.NoError(t, store.SetTokens(context.Background(), "access", "refresh"))
	nav := &recordingNavigator{}
	m, err := session.NewManager(testConfig(baseURL), store, nav, session.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	err = m.Client().Get(context.Background(), api.EndpointCart, nil)
	var netErr *httpclient.NetworkError
	require.ErrorAs(t, err, &netErr)
	require.True(t, store.IsAuthenticated())
	require.Empty(t, nav.Visits())
}

func TestConcurrentUnauthorizedResponsesShareOneRefresh(t *testing.T) {
	const requests = 8

	f := setupTestFixture(t)
	f.signIn(t)
	f.api.ExpireAccess()

	// Hold the refresh until every request has been rejected once
	f.api.SetRefreshHook(func() {
		deadline := time.Now().Add(2 * time.Second)
		for f.api.Unauthorized.Load() < requests && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	})

	var g errgroup.Group
	for i := 0; i < requests; i++ {
		g.Go(func() error {
			return f.manager.Client().Get(context.Background(), api.EndpointCart, nil)
		})
	}
	require.NoError(t, g.Wait())

	require.EqualValues(t, 1, f.api.RefreshCalls.Load())
	require.EqualValues(t, requests, f.api.Unauthorized.Load())
	require.Len(t, f.api.CallsTo("/api/cart/"), 2*requests)
	require.True(t, f.store.IsAuthenticated())
	require.Equal(t, float64(requests-1), f.sample(t, "storefront_token_refresh_coalesced_total", ""))
	require.Equal(t, float64(1), f.sample(t, "storefront_token_refresh_total", `result="success"`))
}

func TestWaiterCancellationDoesNotCancelSharedRefresh(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t)
	f.api.ExpireAccess()

	release := make(chan struct{})
	f.api.SetRefreshHook(func() { <-release })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.manager.Refresh(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return f.api.RefreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	oldAccess := f.store.GetAccessToken()
	close(release)
	require.Eventually(t, func() bool { return f.store.GetAccessToken() != oldAccess }, 2*time.Second, 5*time.Millisecond)
	require.True(t, f.store.IsAuthenticated())
}

func TestLogoutDuringRefreshWins(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn(t)
	f.api.SetRefreshHook(func() { f.manager.Logout(context.Background()) })

	_, err := f.manager.Refresh(context.Background())
	var refreshErr *session.RefreshError
	require.ErrorAs(t, err, &refreshErr)
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)
	require.False(t, f.store.IsAuthenticated(), "a refresh completing after logout does not resurrect the session")
}

func TestLoginDuringRefreshReplaysWithNewSession(t *testing.T) {
	var hookCalls atomic.Int32
	f := setupTestFixture(t, session.WithLogoutHook(func(context.Context) error {
		hookCalls.Add(1)
		return nil
	}))
	f.signIn(t)
	f.api.ExpireAccess()

	var once sync.Once
	loginErrs := make(chan error, 1)
	f.api.SetRefreshHook(func() {
		once.Do(func() {
			_, err := f.manager.Login(context.Background(), api.Credentials{Username: testUsername, Password: testPassword})
			loginErrs <- err
		})
	})

	err := f.manager.Client().Get(context.Background(), api.EndpointCart, nil)
	require.NoError(t, err, "the request replays with the new session's token")
	require.NoError(t, <-loginErrs)

	require.True(t, f.store.IsAuthenticated())
	require.NotNil(t, f.store.User())
	require.Empty(t, f.nav.Visits())
	require.Zero(t, hookCalls.Load())
	require.Len(t, f.api.CallsTo("/api/cart/"), 2)
	require.Equal(t, float64(1), f.sample(t, "storefront_token_refresh_total", `result="superseded"`))
}

func TestLoginDuringRejectedRefreshKeepsNewSession(t *testing.T) {
	var hookCalls atomic.Int32
	f := setupTestFixture(t, session.WithLogoutHook(func(context.Context) error {
		hookCalls.Add(1)
		return nil
	}))
	f.signIn(t)
	f.api.ExpireAccess()
	f.api.RevokeRefresh()

	var once sync.Once
	loginErrs := make(chan error, 1)
	f.api.SetRefreshHook(func() {
		once.Do(func() {
			_, err := f.manager.Login(context.Background(), api.Credentials{Username: testUsername, Password: testPassword})
			loginErrs <- err
		})
	})

	err := f.manager.Client().Get(context.Background(), api.EndpointCart, nil)
	require.True(t, httpclient.IsStatus(err, http.StatusUnauthorized), "the original 401 is returned: %v", err)
	require.NoError(t, <-loginErrs)

	require.True(t, f.store.IsAuthenticated(), "the session established during the refresh survives")
	require.Empty(t, f.nav.Visits())
	require.Zero(t, hookCalls.Load())
	require.Zero(t, f.sample(t, "storefront_session_cleared_total", `reason="refresh_failed"`))
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)

	s, err := f.manager.Login(context.Background(), api.Credentials{Username: testUsername, Password: testPassword})
	require.NoError(t, err)
	require.True(t, s.Authenticated())
	require.NotEmpty(t, s.RefreshToken)
	require.False(t, s.ExpiresAt.IsZero())
	require.NotNil(t, s.User)
	require.Equal(t, testEmail, s.User.Email)

	for _, key := range []string{storage.AccessTokenKey, storage.RefreshTokenKey} {
		_, ok, err := f.storage.Get(context.Background(), key)
		require.NoError(t, err)
		require.True(t, ok, key)
	}

	tokenCalls := f.api.CallsTo("/api/token/")
	require.Len(t, tokenCalls, 1)
	require.Empty(t, tokenCalls[0].Authorization)
	userCalls := f.api.CallsTo("/api/user/")
	require.Len(t, userCalls, 1)
	require.Equal(t, "Bearer "+s.AccessToken, userCalls[0].Authorization)
}

func TestLoginValidatesCredentials(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.Login(context.Background(), api.Credentials{Username: testUsername})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
	require.Empty(t, f.api.Calls())
}

func TestLoginKeepsTokensWhenProfileFails(t *testing.T) {
	f := setupTestFixture(t)
	f.api.SetFailProfile(true)

	s, err := f.manager.Login(context.Background(), api.Credentials{Username: testUsername, Password: testPassword})
	var profileErr *session.ProfileFetchError
	require.ErrorAs(t, err, &profileErr)
	require.True(t, httpclient.IsStatus(err, http.StatusInternalServerError))

	require.True(t, s.Authenticated())
	require.Nil(t, s.User)
	require.True(t, f.store.IsAuthenticated())
	require.Nil(t, f.store.User())
}

func TestRegister(t *testing.T) {
	f := setupTestFixture(t)

	s, err := f.manager.Register(context.Background(), api.Registration{
		Username: "bob",
		Email:    "bob@example.com",
		Password: "long-enough",
	})
	require.NoError(t, err)
	require.Equal(t, "bob", s.User.Username)

	_, err = f.manager.Register(context.Background(), api.Registration{
		Username: testUsername,
		Email:    testEmail,
		Password: "long-enough",
	})
	var authErr *session.AuthError
	require.ErrorAs(t, err, &authErr)
	require.Equal(t, "Username already exists", authErr.Message)
	require.ErrorIs(t, err, apperrors.ErrRegistrationFailed)
	require.Equal(t, "bob", f.store.User().Username, "a rejected registration keeps the current session")
}

func TestLogoutNeverFails(t *testing.T) {
	var calls atomic.Int32
	f := setupTestFixture(t,
		session.WithLogoutHook(func(context.Context) error {
			calls.Add(1)
			return errors.New("cart reset failed")
		}),
		session.WithLogoutHook(func(context.Context) error {
			calls.Add(1)
			panic("boom")
		}),
	)
	f.signIn(t)

	require.NotPanics(t, func() { f.manager.Logout(context.Background()) })
	require.False(t, f.store.IsAuthenticated())
	require.EqualValues(t, 2, calls.Load())

	require.NotPanics(t, func() { f.manager.Logout(context.Background()) }, "logout twice is harmless")
	require.Equal(t, float64(2), f.sample(t, "storefront_session_cleared_total", `reason="logout"`))
}

func TestUpdateProfile(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.UpdateProfile(context.Background(), api.ProfileUpdate{Email: "new@example.com"})
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	f.signIn(t)
	profile, err := f.manager.UpdateProfile(context.Background(), api.ProfileUpdate{Email: "new@example.com"})
	require.NoError(t, err)
	require.Equal(t, "new@example.com", profile.Email)
	require.Equal(t, "new@example.com", f.store.User().Email)

	_, err = f.manager.UpdateProfile(context.Background(), api.ProfileUpdate{Email: "not-an-email"})
	require.ErrorIs(t, err, apperrors.ErrInvalidRequest)
}

func TestTokenSource(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.TokenSource(context.Background()).Token()
	require.ErrorIs(t, err, apperrors.ErrNotAuthenticated)

	// Inside oauth2's expiry delta, so the token counts as expired
	f.api.SetAccessTTL(5 * time.Second)
	oldAccess, _ := f.signIn(t)

	tok, err := f.manager.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	require.NotEqual(t, oldAccess, tok.AccessToken)
	require.Equal(t, "Bearer", tok.Type())
	require.EqualValues(t, 1, f.api.RefreshCalls.Load())

	f.api.SetAccessTTL(time.Hour)
	access, _ := f.signIn(t)
	tok, err = f.manager.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	require.Equal(t, access, tok.AccessToken)
	require.EqualValues(t, 1, f.api.RefreshCalls.Load())
	require.True(t, strings.HasPrefix(tok.AccessToken, "ey"))
}
