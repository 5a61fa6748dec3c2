package session_test

import (
	"context"
	"sync"
	"testing"

	"github.com/jrsteele09/go-storefront-client/internal/config"
	"github.com/jrsteele09/go-storefront-client/internal/fakeapi"
	"github.com/jrsteele09/go-storefront-client/internal/metrics"
	"github.com/jrsteele09/go-storefront-client/session"
	"github.com/jrsteele09/go-storefront-client/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

const (
	testUsername = "alice"
	testEmail    = "alice@example.com"
	testPassword = "correct-horse"
)

// recordingNavigator stands in for the router
type recordingNavigator struct {
	lock    sync.Mutex
	current string
	visits  []string
}

func (n *recordingNavigator) CurrentPath() string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.current
}

func (n *recordingNavigator) NavigateTo(path string) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.visits = append(n.visits, path)
	n.current = path
}

func (n *recordingNavigator) Visits() []string {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]string(nil), n.visits...)
}

type testFixture struct {
	api      *fakeapi.Server
	storage  *memory.Store
	store    *session.Store
	nav      *recordingNavigator
	registry *prometheus.Registry
	manager  *session.Manager
}

func testConfig(baseURL string) config.Config {
	v := viper.New()
	v.Set("API_BASE_URL", baseURL)
	v.Set("HTTP_TIMEOUT", "5s")
	v.Set("REFRESH_TIMEOUT", "2s")
	return config.New(v)
}

func setupTestFixture(t *testing.T, options ...session.ManagerOption) *testFixture {
	t.Helper()

	f := &testFixture{
		api:      fakeapi.New(t),
		storage:  memory.New(),
		nav:      &recordingNavigator{current: "/cart"},
		registry: prometheus.NewRegistry(),
	}
	f.api.AddUser(testUsername, testEmail, testPassword)
	f.store = session.NewStore(f.storage, zerolog.Nop())

	options = append([]session.ManagerOption{
		session.WithLogger(zerolog.Nop()),
		session.WithMetrics(metrics.NewMetrics(f.registry)),
	}, options...)
	m, err := session.NewManager(testConfig(f.api.BaseURL()), f.store, f.nav, options...)
	require.NoError(t, err)
	f.manager = m
	return f
}

// signIn installs a token pair issued by the fake API without a login call
func (f *testFixture) signIn(t *testing.T) (access, refresh string) {
	t.Helper()
	access, refresh = f.api.IssueTokens(testUsername)
	require.NoError(t, f.store.SetTokens(context.Background(), access, refresh))
	return access, refresh
}

func (f *testFixture) sample(t *testing.T, name, labels string) float64 {
	t.Helper()
	samples, err := metrics.Snapshot(f.registry)
	require.NoError(t, err)
	for _, s := range samples {
		if s.Name == name && s.Labels == labels {
			return s.Value
		}
	}
	return 0
}
