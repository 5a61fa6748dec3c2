package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jrsteele09/go-storefront-client/internal/metrics"
	"github.com/jrsteele09/go-storefront-client/tokeninfo"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the stored session",
		Long: `Show the stored session and the expiry of its tokens.

With --check the session is verified against the API first, which refreshes
an expired access token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if check && a.store.IsAuthenticated() {
				if _, err := a.manager.FetchProfile(cmd.Context()); err != nil {
					a.logger.Warn().Err(err).Msg("Session check failed")
				}
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "API:\t%s\n", a.cfg.GetAPIBaseURL())
			fmt.Fprintf(w, "Storage:\t%s\n", a.cfg.GetStorageBackend())

			snap := a.store.Snapshot()
			if !snap.Authenticated() {
				fmt.Fprintf(w, "Session:\tnone\n")
			} else {
				fmt.Fprintf(w, "Session:\tactive\n")
				if snap.User != nil {
					fmt.Fprintf(w, "User:\t%s\n", snap.User.Username)
				}
				printTokenInfo(w, "Access token", snap.AccessToken)
				printTokenInfo(w, "Refresh token", snap.RefreshToken)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			samples, err := metrics.Snapshot(a.registry)
			if err != nil {
				return err
			}
			for _, s := range samples {
				if s.Value != 0 {
					fmt.Fprintln(cmd.OutOrStdout(), s.String())
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "verify the session against the API")
	return cmd
}

func printTokenInfo(w io.Writer, label, raw string) {
	info, err := tokeninfo.Inspect(raw)
	if err != nil {
		fmt.Fprintf(w, "%s:\topaque\n", label)
		return
	}
	if info.ExpiresAt.IsZero() {
		fmt.Fprintf(w, "%s:\tno expiry\n", label)
		return
	}
	state := "valid"
	if info.Expired(0) {
		state = "expired"
	}
	fmt.Fprintf(w, "%s:\t%s until %s (%s)\n", label, state,
		info.ExpiresAt.Local().Format(time.DateTime), time.Until(info.ExpiresAt).Round(time.Second))
}
