package session

import (
	"context"

	apperrors "github.com/jrsteele09/go-storefront-client/internal/errors"
	"golang.org/x/oauth2"
)

type tokenSource struct {
	ctx context.Context
	m   *Manager
}

// TokenSource exposes the session as an oauth2.TokenSource, so an
// oauth2.Transport can authorize requests made outside the storefront client.
// A token that expires within oauth2's expiry delta is refreshed first.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, m: m}
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	tok := ts.m.store.Token()
	if tok == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	if tok.Valid() {
		return tok, nil
	}
	if _, err := ts.m.Refresh(ts.ctx); err != nil {
		return nil, err
	}
	if tok = ts.m.store.Token(); tok == nil {
		return nil, apperrors.ErrNotAuthenticated
	}
	return tok, nil
}
