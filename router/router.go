// Package router keeps track of which storefront view the user is on and guards
// the views that need a signed-in user.
package router

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxRedirects = 8

// Route is one entry of the route table. Path segments starting with ':' are parameters.
type Route struct {
	Path         string
	Name         string
	Redirect     string
	RequiresAuth bool
}

// Match is the outcome of resolving a path against the route table
type Match struct {
	Path   string
	Route  *Route // nil for paths outside the table
	Params map[string]string
}

// AuthChecker reports whether a session is active
type AuthChecker interface {
	IsAuthenticated() bool
}

// DefaultRoutes is the storefront's route table
func DefaultRoutes() []Route {
	return []Route{
		{Path: "/", Redirect: "/general"},
		{Path: "/register", Name: "Register"},
		{Path: "/login", Name: "Login"},
		{Path: "/profile", Name: "Profile", RequiresAuth: true},
		{Path: "/general", Name: "General"},
		{Path: "/performances/:id", Name: "Performance"},
		{Path: "/cart", Name: "Cart", RequiresAuth: true},
		{Path: "/checkout", Name: "Checkout", RequiresAuth: true},
		{Path: "/orders", Name: "Orders", RequiresAuth: true},
		{Path: "/catalog", Name: "Catalog"},
	}
}

type Router struct {
	routes    []Route
	auth      AuthChecker
	loginPath string
	logger    zerolog.Logger

	lock    sync.RWMutex
	current Match
	history []string
}

type Option func(*Router)

func WithRoutes(routes []Route) Option {
	return func(r *Router) {
		r.routes = routes
	}
}

func WithLoginPath(path string) Option {
	return func(r *Router) {
		r.loginPath = path
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

func New(auth AuthChecker, opts ...Option) *Router {
	r := &Router{
		routes:    DefaultRoutes(),
		auth:      auth,
		loginPath: "/login",
		logger:    log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve follows redirects and applies the auth guard without navigating
func (r *Router) Resolve(path string) Match {
	path = normalize(path)
	for i := 0; i < maxRedirects; i++ {
		match := r.match(path)
		if match.Route == nil {
			return match
		}
		if match.Route.Redirect != "" {
			path = normalize(match.Route.Redirect)
			continue
		}
		if match.Route.RequiresAuth && (r.auth == nil || !r.auth.IsAuthenticated()) && path != r.loginPath {
			r.logger.Debug().Str("path", path).Msg("Protected route without a session, redirecting to login")
			path = r.loginPath
			continue
		}
		return match
	}
	r.logger.Warn().Str("path", path).Msg("Redirect loop in route table")
	return Match{Path: path}
}

// NavigateTo moves to path, or to wherever the guard and redirects send it
func (r *Router) NavigateTo(path string) {
	match := r.Resolve(path)

	r.lock.Lock()
	defer r.lock.Unlock()
	r.current = match
	r.history = append(r.history, match.Path)
}

// CurrentPath returns "" before the first navigation
func (r *Router) CurrentPath() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.current.Path
}

// Current returns the current match, including route parameters
func (r *Router) Current() Match {
	r.lock.RLock()
	defer r.lock.RUnlock()
	m := r.current
	if m.Params != nil {
		params := make(map[string]string, len(m.Params))
		for k, v := range m.Params {
			params[k] = v
		}
		m.Params = params
	}
	return m
}

func (r *Router) History() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return append([]string(nil), r.history...)
}

func (r *Router) match(path string) Match {
	segments := split(path)
	for i := range r.routes {
		route := &r.routes[i]
		params, ok := matchSegments(split(route.Path), segments)
		if ok {
			return Match{Path: path, Route: route, Params: params}
		}
	}
	return Match{Path: path}
}

func matchSegments(pattern, segments []string) (map[string]string, bool) {
	if len(pattern) != len(segments) {
		return nil, false
	}
	var params map[string]string
	for i, p := range pattern {
		if strings.HasPrefix(p, ":") {
			if params == nil {
				params = make(map[string]string)
			}
			params[p[1:]] = segments[i]
			continue
		}
		if p != segments[i] {
			return nil, false
		}
	}
	return params, true
}

func split(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// normalize drops any query or fragment and trailing slash
func normalize(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}
	return path
}
