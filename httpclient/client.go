package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxBodyBytes = 10 << 20

// Client sends JSON requests to the storefront API. Paths are resolved against the
// base URL, so "cart/" against "http://localhost:8000/api/" targets
// "http://localhost:8000/api/cart/".
type Client struct {
	baseURL    *url.URL
	transport  http.RoundTripper
	middleware []Middleware
	timeout    time.Duration
	logger     zerolog.Logger
	http       *http.Client
}

type Option func(*Client)

// WithTransport replaces the innermost transport (default http.DefaultTransport)
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithMiddleware appends middleware; earlier middleware wraps later middleware
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithTimeout bounds a whole exchange, including any refresh and replay
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpclient.New parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("httpclient.New: base url %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	chain := append([]Middleware{RequestIDMiddleware, LoggingMiddleware(c.logger)}, c.middleware...)
	c.http = &http.Client{
		Transport: Chain(c.transport, chain...),
		Timeout:   c.timeout,
	}
	return c, nil
}

// BaseURL returns a copy of the API root
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// Resolve turns an endpoint path into an absolute URL
func (c *Client) Resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("httpclient.Resolve %q: %w", path, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// Do sends in (when not nil) as JSON and decodes a 2xx JSON body into out (when not nil).
// Non-2xx responses return *StatusError; transport failures return *NetworkError.
func (c *Client) Do(ctx context.Context, method, path string, in, out any) error {
	target, err := c.Resolve(path)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("httpclient.Do encode %s %s: %w", method, path, err)
		}
		// bytes.Reader bodies get a GetBody func, which is what makes a replay possible
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return fmt.Errorf("httpclient.Do build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Method: method, URL: target.String(), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &NetworkError{Method: method, URL: target.String(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        target.String(),
			Body:       data,
		}
		var errBody api.ErrorBody
		if json.Unmarshal(data, &errBody) == nil {
			statusErr.Message = errBody.Message()
		}
		return statusErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("httpclient.Do decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}
