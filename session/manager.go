package session

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/jrsteele09/go-storefront-client/httpclient"
	"github.com/jrsteele09/go-storefront-client/internal/config"
	"github.com/jrsteele09/go-storefront-client/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	tracerName = "github.com/jrsteele09/go-storefront-client/session"

	opLogin    = "login"
	opRegister = "register"

	reasonLogout         = "logout"
	reasonRefreshFailed  = "refresh_failed"
	reasonNoRefreshToken = "no_refresh_token"
	reasonReplayRejected = "replay_rejected"
)

// Navigator moves the user to another view. The manager only uses it to send an
// unauthenticated user to the login view.
type Navigator interface {
	CurrentPath() string
	NavigateTo(path string)
}

// Config is the configuration the manager reads
type Config interface {
	config.APIConfig
	config.SessionConfig
}

// LogoutHook runs after a session is destroyed. Hook errors and panics are logged
// and never reach the caller.
type LogoutHook func(ctx context.Context) error

// Manager owns the session lifecycle: it attaches the bearer credential to API
// requests, refreshes an expired access token once per request, replays the
// rejected request, and tears the session down when the refresh token is gone.
type Manager struct {
	store          *Store
	nav            Navigator
	loginPath      string
	refreshTimeout time.Duration
	httpTimeout    time.Duration

	transport http.RoundTripper
	auth      *httpclient.Client // Credential endpoints, no session middleware
	api       *httpclient.Client // Everything else

	refreshGroup singleflight.Group

	hooksLock   sync.RWMutex
	logoutHooks []LogoutHook

	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  zerolog.Logger
}

type ManagerOption func(*Manager)

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mets *metrics.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = mets
	}
}

// WithTransport replaces the innermost HTTP transport of both clients
func WithTransport(rt http.RoundTripper) ManagerOption {
	return func(m *Manager) {
		m.transport = rt
	}
}

func WithTracerProvider(tp trace.TracerProvider) ManagerOption {
	return func(m *Manager) {
		m.tracer = tp.Tracer(tracerName)
	}
}

func WithLogoutHook(hook LogoutHook) ManagerOption {
	return func(m *Manager) {
		m.logoutHooks = append(m.logoutHooks, hook)
	}
}

func NewManager(cfg Config, store *Store, nav Navigator, options ...ManagerOption) (*Manager, error) {
	m := &Manager{
		store:          store,
		nav:            nav,
		loginPath:      cfg.GetLoginPath(),
		refreshTimeout: cfg.GetRefreshTimeout(),
		httpTimeout:    cfg.GetHTTPTimeout(),
		logger:         log.Logger,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.metrics == nil {
		m.metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	if m.loginPath == "" {
		m.loginPath = "/login"
	}

	var err error
	m.auth, err = httpclient.New(cfg.GetAPIBaseURL(),
		httpclient.WithTransport(m.transport),
		httpclient.WithTimeout(m.httpTimeout),
		httpclient.WithLogger(m.logger),
	)
	if err != nil {
		return nil, err
	}
	m.api, err = httpclient.New(cfg.GetAPIBaseURL(),
		httpclient.WithTransport(m.transport),
		httpclient.WithTimeout(m.httpTimeout),
		httpclient.WithLogger(m.logger),
		httpclient.WithMiddleware(m.Middleware),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Client returns the API client that carries the session credential
func (m *Manager) Client() *httpclient.Client {
	return m.api
}

func (m *Manager) Store() *Store {
	return m.store
}

// AddLogoutHook registers a hook after construction, e.g. from a feature module
func (m *Manager) AddLogoutHook(hook LogoutHook) {
	m.hooksLock.Lock()
	defer m.hooksLock.Unlock()
	m.logoutHooks = append(m.logoutHooks, hook)
}

// AttachCredential returns req with the current access token as a bearer
// credential. Credential endpoints and requests made while unauthenticated are
// returned unchanged; req itself is never modified.
func (m *Manager) AttachCredential(req *http.Request) *http.Request {
	if api.IsCredentialEndpoint(req.URL.Path) {
		return req
	}
	tok := m.store.Token()
	if tok == nil || tok.AccessToken == "" {
		return req
	}
	out := req.Clone(req.Context())
	tok.SetAuthHeader(out)
	return out
}

// Middleware installs the credential and refresh hooks on an HTTP transport
func (m *Manager) Middleware(next http.RoundTripper) http.RoundTripper {
	return httpclient.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		var dispatch Dispatcher
		dispatch = func(a *Attempt) (*http.Response, error) {
			req := m.AttachCredential(a.Request)
			a.Credential = bearerOf(req)
			resp, err := next.RoundTrip(req)
			return m.HandleResponse(req.Context(), a, resp, err, dispatch)
		}
		return dispatch(NewAttempt(r))
	})
}

// HandleResponse decides what happens to a completed send. Only a 401 on a
// non-credential endpoint that has not been retried yet leads to a refresh;
// after a successful refresh the attempt is replayed through dispatch with the
// new credential. On any refresh failure the original 401 is returned.
func (m *Manager) HandleResponse(ctx context.Context, a *Attempt, resp *http.Response, err error, dispatch Dispatcher) (*http.Response, error) {
	if err != nil || resp == nil {
		// Transport failures never look like an expired token
		return resp, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	logger := m.logger.With().
		Str("request_id", a.ID).
		Str("method", a.Request.Method).
		Str("path", a.Request.URL.Path).
		Logger()

	if api.IsCredentialEndpoint(a.Request.URL.Path) {
		return resp, nil
	}
	if a.Retried {
		m.metrics.ReplayTotal.WithLabelValues("unauthorized").Inc()
		// A session replaced since this attempt was sent is not the one rejected
		sentWith := a.Credential
		if m.destroySessionIf(ctx, reasonReplayRejected, func(tok *oauth2.Token) bool {
			return sentWith != "" && tok.AccessToken == sentWith
		}) {
			logger.Info().Msg("Refreshed credential rejected, ending session")
			m.afterSessionLost(ctx)
		}
		return resp, nil
	}
	a.Retried = true

	if m.store.GetRefreshToken() == "" {
		logger.Info().Msg("Unauthorized with no refresh token, ending session")
		m.destroySession(ctx, reasonNoRefreshToken)
		m.afterSessionLost(ctx)
		return resp, nil
	}

	if _, refreshErr := m.refreshFor(ctx, a); refreshErr != nil {
		if ctx.Err() != nil {
			// The caller gave up; the shared refresh decides the session's fate
			return resp, nil
		}
		if m.store.IsAuthenticated() {
			// A new session was established while the refresh was in flight
			logger.Info().Err(refreshErr).Msg("Token refresh superseded by a new session")
			return resp, nil
		}
		logger.Warn().Err(refreshErr).Msg("Token refresh failed, ending session")
		m.afterSessionLost(ctx)
		return resp, nil
	}

	_, span := m.tracer.Start(ctx, "session.replay")
	defer span.End()

	replay, rewindErr := a.rewind()
	if rewindErr != nil {
		logger.Warn().Err(rewindErr).Msg("Cannot replay request after refresh")
		m.metrics.ReplayTotal.WithLabelValues("error").Inc()
		return resp, nil
	}
	drain(resp)

	a.Request = replay
	replayResp, replayErr := dispatch(a)
	switch {
	case replayErr != nil:
		span.RecordError(replayErr)
		m.metrics.ReplayTotal.WithLabelValues("error").Inc()
	case replayResp.StatusCode != http.StatusUnauthorized:
		m.metrics.ReplayTotal.WithLabelValues("success").Inc()
	}
	logger.Debug().Err(replayErr).Msg("Request replayed with refreshed token")
	return replayResp, replayErr
}

// refreshFor refreshes on behalf of an attempt. When the held access token no
// longer matches the one the attempt was sent with, another request already
// refreshed and the attempt just replays with the current token.
func (m *Manager) refreshFor(ctx context.Context, a *Attempt) (string, error) {
	if current := m.store.GetAccessToken(); current != "" && current != a.Credential {
		m.metrics.RefreshCoalesced.Inc()
		return current, nil
	}
	return m.Refresh(ctx)
}

// afterSessionLost runs the logout side effects and moves to the login view
func (m *Manager) afterSessionLost(ctx context.Context) {
	m.runLogoutHooks(ctx)
	m.redirectToLogin()
}

func (m *Manager) redirectToLogin() {
	if m.nav == nil {
		return
	}
	if m.nav.CurrentPath() == m.loginPath {
		return
	}
	m.nav.NavigateTo(m.loginPath)
}

func (m *Manager) destroySession(ctx context.Context, reason string) {
	m.destroySessionIf(ctx, reason, nil)
}

// destroySessionIf clears the session while match accepts the held token, nil
// meaning always. It reports whether the session was cleared.
func (m *Manager) destroySessionIf(ctx context.Context, reason string, match func(*oauth2.Token) bool) bool {
	cleared, err := m.store.clearIf(context.WithoutCancel(ctx), match)
	if err != nil {
		m.logger.Warn().Err(err).Str("reason", reason).Msg("Session cleared in memory but not in storage")
	}
	if cleared {
		m.metrics.SessionClearedTotal.WithLabelValues(reason).Inc()
	}
	return cleared
}

func (m *Manager) runLogoutHooks(ctx context.Context) {
	m.hooksLock.RLock()
	hooks := append([]LogoutHook(nil), m.logoutHooks...)
	m.hooksLock.RUnlock()

	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error().Interface("panic", r).Msg("Logout hook panicked")
				}
			}()
			if err := hook(ctx); err != nil {
				m.logger.Warn().Err(err).Msg("Logout hook failed")
			}
		}()
	}
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
