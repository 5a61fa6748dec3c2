package httpclient

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries a unique id per logical request. Replays keep the id
// of the request they replay.
const RequestIDHeader = "X-Request-ID"

// Middleware wraps a transport. It is the client-side counterpart of a handler
// middleware: code before next.RoundTrip is the before-request hook, code after
// it the on-response/on-error hook.
type Middleware func(next http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Chain wraps base with mw so that mw[0] is the outermost layer
func Chain(base http.RoundTripper, mw ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	chained := base
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// RequestIDMiddleware stamps a uuid on requests that don't carry one yet
func RequestIDMiddleware(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(RequestIDHeader) != "" {
			return next.RoundTrip(r)
		}
		r = r.Clone(r.Context())
		r.Header.Set(RequestIDHeader, uuid.NewString())
		return next.RoundTrip(r)
	})
}

// LoggingMiddleware logs every exchange at debug level
func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)
			event := logger.Debug().
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("request_id", r.Header.Get(RequestIDHeader)).
				Dur("duration", time.Since(start))
			if err != nil {
				event.Err(err).Msg("request failed")
				return resp, err
			}
			event.Int("status", resp.StatusCode).Msg("request completed")
			return resp, nil
		})
	}
}
