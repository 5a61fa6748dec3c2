package router_test

import (
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-storefront-client/router"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	authenticated atomic.Bool
}

func (a *fakeAuth) IsAuthenticated() bool {
	return a.authenticated.Load()
}

func TestNavigateFollowsRedirects(t *testing.T) {
	r := router.New(&fakeAuth{}, router.WithLogger(zerolog.Nop()))
	require.Empty(t, r.CurrentPath())

	r.NavigateTo("/")
	require.Equal(t, "/general", r.CurrentPath())
	require.Equal(t, "General", r.Current().Route.Name)
}

func TestGuardSendsAnonymousUsersToLogin(t *testing.T) {
	auth := &fakeAuth{}
	r := router.New(auth, router.WithLogger(zerolog.Nop()))

	for _, path := range []string{"/profile", "/cart", "/checkout", "/orders/"} {
		r.NavigateTo(path)
		require.Equal(t, "/login", r.CurrentPath(), path)
	}

	auth.authenticated.Store(true)
	r.NavigateTo("/orders?page=2")
	require.Equal(t, "/orders", r.CurrentPath())

	require.Equal(t, []string{"/login", "/login", "/login", "/login", "/orders"}, r.History())
}

func TestPublicRoutesAndParams(t *testing.T) {
	r := router.New(&fakeAuth{}, router.WithLogger(zerolog.Nop()))

	r.NavigateTo("/performances/42")
	current := r.Current()
	require.Equal(t, "/performances/42", current.Path)
	require.Equal(t, "Performance", current.Route.Name)
	require.Equal(t, map[string]string{"id": "42"}, current.Params)

	r.NavigateTo("/catalog")
	require.Equal(t, "/catalog", r.CurrentPath())
}

func TestUnknownPathsAreKept(t *testing.T) {
	r := router.New(&fakeAuth{}, router.WithLogger(zerolog.Nop()))

	r.NavigateTo("/hawk-test")
	require.Equal(t, "/hawk-test", r.CurrentPath())
	require.Nil(t, r.Current().Route)
}

func TestCustomLoginPath(t *testing.T) {
	r := router.New(&fakeAuth{},
		router.WithLogger(zerolog.Nop()),
		router.WithLoginPath("/signin"),
		router.WithRoutes([]router.Route{
			{Path: "/signin", Name: "SignIn"},
			{Path: "/account", RequiresAuth: true},
		}),
	)
	r.NavigateTo("/account")
	require.Equal(t, "/signin", r.CurrentPath())
}

func TestRedirectLoopStops(t *testing.T) {
	r := router.New(&fakeAuth{},
		router.WithLogger(zerolog.Nop()),
		router.WithRoutes([]router.Route{
			{Path: "/a", Redirect: "/b"},
			{Path: "/b", Redirect: "/a"},
		}),
	)
	r.NavigateTo("/a")
	require.Contains(t, []string{"/a", "/b"}, r.CurrentPath())
}
