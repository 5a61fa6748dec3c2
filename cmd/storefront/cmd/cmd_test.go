package cmd_test

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/jrsteele09/go-storefront-client/cmd/storefront/cmd"
	"github.com/jrsteele09/go-storefront-client/internal/fakeapi"
	"github.com/stretchr/testify/require"
)

type cli struct {
	api  *fakeapi.Server
	args []string
}

func setupCLI(t *testing.T) *cli {
	t.Helper()
	srv := fakeapi.New(t)
	srv.AddUser("alice", "alice@example.com", "correct-horse")
	srv.AddSchedule(api.PerformanceSchedule{ID: 1, PerformanceName: "Hamlet", TheaterName: "Globe", AvailableSeats: 10, Price: 1500})
	return &cli{
		api: srv,
		args: []string{
			"--api-base-url", srv.BaseURL(),
			"--storage-backend", "file",
			"--storage-path", filepath.Join(t.TempDir(), "session.json"),
			"--log-level", "error",
		},
	}
}

func (c *cli) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := cmd.NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append(append([]string{}, args...), c.args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) login(t *testing.T) {
	t.Helper()
	out, err := c.run(t, "", "login", "-u", "alice", "-p", "correct-horse")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as alice")
}

func TestLoginPersistsSessionAcrossRuns(t *testing.T) {
	c := setupCLI(t)

	_, err := c.run(t, "", "whoami")
	require.ErrorContains(t, err, "not logged in")

	c.login(t)

	out, err := c.run(t, "", "whoami")
	require.NoError(t, err)
	require.Equal(t, "alice\n", out)

	out, err = c.run(t, "", "status")
	require.NoError(t, err)
	require.Contains(t, out, "active")
	require.Contains(t, out, "Access token:")
}

func TestLoginReadsPasswordFromStdin(t *testing.T) {
	c := setupCLI(t)

	out, err := c.run(t, "correct-horse\n", "login", "-u", "alice")
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as alice")

	_, err = c.run(t, "wrong\n", "login", "-u", "alice")
	require.ErrorContains(t, err, "login rejected")
}

func TestExpiredSessionIsRefreshed(t *testing.T) {
	c := setupCLI(t)
	c.login(t)
	c.api.ExpireAccess()

	out, err := c.run(t, "", "whoami")
	require.NoError(t, err)
	require.Equal(t, "alice\n", out)
	require.EqualValues(t, 1, c.api.RefreshCalls.Load())

	// The refreshed token was stored, so the next run needs no refresh
	_, err = c.run(t, "", "whoami")
	require.NoError(t, err)
	require.EqualValues(t, 1, c.api.RefreshCalls.Load())
}

func TestRevokedSessionRequiresLogin(t *testing.T) {
	c := setupCLI(t)
	c.login(t)
	c.api.ExpireAccess()
	c.api.RevokeRefresh()

	_, err := c.run(t, "", "cart")
	require.ErrorContains(t, err, "401")

	_, err = c.run(t, "", "whoami")
	require.ErrorContains(t, err, "not logged in")
	require.EqualValues(t, 1, c.api.RefreshCalls.Load(), "the cleared session is not refreshed again")
}

func TestCartAndCheckout(t *testing.T) {
	c := setupCLI(t)
	c.login(t)

	out, err := c.run(t, "", "cart", "add", "1", "2")
	require.NoError(t, err)
	require.Contains(t, out, "Added 2 x Hamlet")
	require.Contains(t, out, "3000.00")

	out, err = c.run(t, "", "orders", "checkout", "--name", "Alice", "--email", "alice@example.com", "--phone", "555-0100")
	require.NoError(t, err)
	require.Contains(t, out, "pending")

	out, err = c.run(t, "", "cart")
	require.NoError(t, err)
	require.Contains(t, out, "Your cart is empty")

	out, err = c.run(t, "", "orders", "--status", "pending")
	require.NoError(t, err)
	require.Contains(t, out, "3000.00")

	out, err = c.run(t, "", "orders", "cancel", "2")
	require.NoError(t, err)
	require.Contains(t, out, "cancelled")
}

func TestLogout(t *testing.T) {
	c := setupCLI(t)
	c.login(t)

	out, err := c.run(t, "", "logout")
	require.NoError(t, err)
	require.Contains(t, out, "Logged out")

	_, err = c.run(t, "", "orders")
	require.ErrorContains(t, err, "not logged in")
}

func TestVersion(t *testing.T) {
	c := setupCLI(t)
	out, err := c.run(t, "", "version")
	require.NoError(t, err)
	require.Contains(t, out, "storefront "+cmd.Version)
}
