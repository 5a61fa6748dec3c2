// Package cmd provides the CLI commands of the storefront client.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-storefront-client/cart"
	"github.com/jrsteele09/go-storefront-client/internal/config"
	"github.com/jrsteele09/go-storefront-client/internal/metrics"
	"github.com/jrsteele09/go-storefront-client/internal/tracing"
	"github.com/jrsteele09/go-storefront-client/orders"
	"github.com/jrsteele09/go-storefront-client/router"
	"github.com/jrsteele09/go-storefront-client/session"
	"github.com/jrsteele09/go-storefront-client/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errNotLoggedIn = errors.New("not logged in: run 'storefront login' first")

// app holds everything a command needs. It is built once per invocation by the
// root command's pre-run hook.
type app struct {
	v       *viper.Viper
	cfgFile string

	cfg      config.Config
	logger   zerolog.Logger
	storage  storage.Store
	store    *session.Store
	router   *router.Router
	registry *prometheus.Registry
	manager  *session.Manager
	cart     *cart.Module
	orders   *orders.Module

	closers []func(context.Context) error
}

// NewRootCmd builds a fresh command tree with its own configuration
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "storefront",
		Short: "Storefront client - theatre tickets from the command line",
		Long: `storefront talks to the storefront REST API on behalf of a signed-in user.

The session (access and refresh token) is kept in local storage between runs.
An expired access token is refreshed transparently; when the refresh token is
no longer accepted the session is cleared and you need to log in again.

Configuration is read from flags, environment variables (API_BASE_URL,
STORAGE_BACKEND, ...), an optional .env file and an optional YAML file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			displayAppname(cmd.OutOrStdout(), a.cfg.GetAppName())
			return cmd.Help()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "YAML config file")
	flags.String("api-base-url", "", "API root, e.g. http://localhost:8000/api/")
	flags.String("storage-backend", "", "session storage: file, sqlite, redis or memory")
	flags.String("storage-path", "", "session file or sqlite database path")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.Bool("trace", false, "write OpenTelemetry spans to stderr")
	for key, flag := range map[string]string{
		"API_BASE_URL":    "api-base-url",
		"STORAGE_BACKEND": "storage-backend",
		"STORAGE_PATH":    "storage-path",
		"LOG_LEVEL":       "log-level",
		"TRACE":           "trace",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(flag))
	}

	root.AddCommand(
		newLoginCmd(a),
		newRegisterCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newProfileCmd(a),
		newCartCmd(a),
		newOrdersCmd(a),
		newStatusCmd(a),
		newVersionCmd(a),
	)
	return root
}

// Execute runs the CLI and exits non-zero on error
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func (a *app) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.GetLogLevel()))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.GetLogLevel(), err)
	}
	a.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Str("env", cfg.GetEnv()).Logger()
	log.Logger = a.logger

	options := []session.ManagerOption{session.WithLogger(a.logger)}
	if cfg.GetTraceEnabled() {
		shutdown, err := tracing.Setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		a.closers = append(a.closers, shutdown)
	}

	st, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	a.storage = st
	a.closers = append(a.closers, closeStorage)

	a.store = session.NewStore(st, a.logger)
	if err := a.store.Load(ctx); err != nil {
		return err
	}
	a.router = router.New(a.store, router.WithLoginPath(cfg.GetLoginPath()), router.WithLogger(a.logger))
	a.router.NavigateTo("/")

	a.registry = prometheus.NewRegistry()
	options = append(options, session.WithMetrics(metrics.NewMetrics(a.registry)))
	a.manager, err = session.NewManager(cfg, a.store, a.router, options...)
	if err != nil {
		return err
	}

	a.cart = cart.New(a.manager.Client(), cart.WithLogger(a.logger))
	a.orders = orders.New(a.manager.Client(), orders.WithLogger(a.logger))
	a.manager.AddLogoutHook(a.cart.Reset)
	a.manager.AddLogoutHook(a.orders.Reset)
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// visit navigates to a view and fails when the auth guard sent us to login
func (a *app) visit(path string) error {
	a.router.NavigateTo(path)
	if a.router.CurrentPath() == a.cfg.GetLoginPath() && path != a.cfg.GetLoginPath() {
		return errNotLoggedIn
	}
	return nil
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
