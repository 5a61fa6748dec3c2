package httpclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jrsteele09/go-storefront-client/httpclient"
	"github.com/stretchr/testify/require"
)

type echo struct {
	Method    string `json:"method"`
	Path      string `json:"path"`
	RequestID string `json:"request_id"`
	Quantity  int    `json:"quantity"`
}

func newEchoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/missing/":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Cart item not found"}`))
			return
		case "/api/empty/":
			w.WriteHeader(http.StatusNoContent)
			return
		case "/api/broken/":
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>bad gateway</html>`))
			return
		}
		var in echo
		_ = json.NewDecoder(r.Body).Decode(&in)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(echo{
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: r.Header.Get(httpclient.RequestIDHeader),
			Quantity:  in.Quantity,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientResolvesPathsAgainstBaseURL(t *testing.T) {
	srv := newEchoServer(t)
	c, err := httpclient.New(srv.URL + "/api/")
	require.NoError(t, err)

	var out echo
	require.NoError(t, c.Post(context.Background(), "cart/add/", echo{Quantity: 3}, &out))
	require.Equal(t, http.MethodPost, out.Method)
	require.Equal(t, "/api/cart/add/", out.Path)
	require.Equal(t, 3, out.Quantity)
	require.NotEmpty(t, out.RequestID)
}

func TestClientStatusErrors(t *testing.T) {
	srv := newEchoServer(t)
	c, err := httpclient.New(srv.URL + "/api/")
	require.NoError(t, err)

	err = c.Get(context.Background(), "missing/", nil)
	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	require.Equal(t, "Cart item not found", statusErr.Message)
	require.True(t, httpclient.IsStatus(err, http.StatusNotFound))
	require.Equal(t, "Cart item not found", httpclient.Message(err, "fallback"))

	err = c.Get(context.Background(), "broken/", nil)
	require.Equal(t, http.StatusBadGateway, httpclient.StatusCode(err))
	require.Equal(t, "fallback", httpclient.Message(err, "fallback"))

	require.NoError(t, c.Delete(context.Background(), "empty/", &echo{}))
}

func TestClientNetworkError(t *testing.T) {
	srv := newEchoServer(t)
	url := srv.URL
	srv.Close()

	c, err := httpclient.New(url + "/api/")
	require.NoError(t, err)

	err = c.Get(context.Background(), "user/", nil)
	var netErr *httpclient.NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Equal(t, 0, httpclient.StatusCode(err))
}

func TestClientRejectsRelativeBaseURL(t *testing.T) {
	_, err := httpclient.New("/api/")
	require.Error(t, err)
}

func TestChainOrder(t *testing.T) {
	var calls []string
	mark := func(name string) httpclient.Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return httpclient.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
				calls = append(calls, name+" before")
				resp, err := next.RoundTrip(r)
				calls = append(calls, name+" after")
				return resp, err
			})
		}
	}
	base := httpclient.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		calls = append(calls, "transport")
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: r}, nil
	})

	rt := httpclient.Chain(base, mark("outer"), mark("inner"))
	req := httptest.NewRequest(http.MethodGet, "http://example.com/api/user/", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, []string{"outer before", "inner before", "transport", "inner after", "outer after"}, calls)
}

func TestRequestIDMiddlewareKeepsExistingID(t *testing.T) {
	var seen string
	rt := httpclient.Chain(httpclient.RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		seen = r.Header.Get(httpclient.RequestIDHeader)
		return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
	}), httpclient.RequestIDMiddleware)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	req.Header.Set(httpclient.RequestIDHeader, "fixed-id")
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.Equal(t, "fixed-id", seen)
}
