package session

import (
	"context"
	"time"

	"github.com/jrsteele09/go-storefront-client/api"
	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
	"github.com/jrsteele09/go-storefront-client/internal/utils"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
)

const refreshFlightKey = "refresh"

// Refresh exchanges the refresh token for a new access token and returns it.
// Concurrent callers share a single refresh call. The call itself is detached
// from ctx and bounded by the refresh timeout instead, so one caller giving up
// does not fail the others; ctx only bounds how long this caller waits.
//
// Failures are returned as *RefreshError. A rejected refresh token ends the
// session that held it; a session established while the call was in flight is
// kept and its access token returned instead.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	if m.store.GetRefreshToken() == "" {
		m.destroySession(ctx, reasonNoRefreshToken)
		return "", &RefreshError{Err: apperrors.ErrNoRefreshToken}
	}

	detached := context.WithoutCancel(ctx)
	leader := false
	result := m.refreshGroup.DoChan(refreshFlightKey, func() (any, error) {
		leader = true
		return m.doRefresh(detached)
	})

	select {
	case res := <-result:
		// leader is written before the result is delivered
		if !leader {
			m.metrics.RefreshCoalesced.Inc()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", &RefreshError{Err: ctx.Err()}
	}
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	if m.refreshTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.refreshTimeout)
		defer cancel()
	}
	ctx, span := m.tracer.Start(ctx, "session.refresh")
	defer span.End()

	refreshToken := m.store.GetRefreshToken()
	if refreshToken == "" {
		// Cleared while this flight was being scheduled
		return "", &RefreshError{Err: apperrors.ErrNoRefreshToken}
	}

	start := time.Now()
	var pair api.TokenPair
	err := m.auth.Post(ctx, api.EndpointTokenRefresh, api.RefreshRequest{Refresh: refreshToken}, &pair)
	m.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
	if err == nil && pair.Access == "" {
		err = apperrors.ErrEmptyTokenResponse
	}
	if err != nil {
		m.metrics.RefreshTotal.WithLabelValues("failure").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		m.logger.Warn().Err(err).Msg("Refresh token rejected")
		// Only the session that owned the rejected refresh token ends
		m.destroySessionIf(ctx, reasonRefreshFailed, func(tok *oauth2.Token) bool {
			return tok.RefreshToken == refreshToken
		})
		return "", &RefreshError{Err: err}
	}

	// The server only sends a refresh token when it rotates them
	newRefresh := utils.ValueOr(pair.Refresh, refreshToken)
	replaced, err := m.store.ReplaceTokens(ctx, refreshToken, pair.Access, newRefresh)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Refreshed tokens not persisted")
	}
	if !replaced {
		if current := m.store.GetAccessToken(); current != "" {
			// Logged in again while the call was in flight; the new session wins
			m.metrics.RefreshTotal.WithLabelValues("superseded").Inc()
			m.logger.Debug().Msg("Refresh result discarded for a newer session")
			return current, nil
		}
		// Logged out while the call was in flight
		m.metrics.RefreshTotal.WithLabelValues("failure").Inc()
		return "", &RefreshError{Err: apperrors.ErrNotAuthenticated}
	}

	m.metrics.RefreshTotal.WithLabelValues("success").Inc()
	m.logger.Debug().Bool("rotated", newRefresh != refreshToken).Msg("Access token refreshed")
	return pair.Access, nil
}
