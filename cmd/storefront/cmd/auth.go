package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/go-storefront-client/api"
	"github.com/jrsteele09/go-storefront-client/session"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var creds api.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and keep the session",
		Long: `Exchange a username and password for a token pair.

The password is read from standard input when --password is not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if creds.Password == "" {
				password, err := readLine(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
				if err != nil {
					return err
				}
				creds.Password = password
			}
			s, err := a.manager.Login(cmd.Context(), creds)
			return reportSession(cmd, a, s, err, "Logged in")
		},
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "account password")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var reg api.Registration
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log into it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.visit("/register"); err != nil {
				return err
			}
			if reg.Password == "" {
				password, err := readLine(cmd.InOrStdin(), cmd.OutOrStdout(), "Password: ")
				if err != nil {
					return err
				}
				reg.Password = password
			}
			s, err := a.manager.Register(cmd.Context(), reg)
			return reportSession(cmd, a, s, err, "Registered")
		},
	}
	cmd.Flags().StringVarP(&reg.Username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&reg.Email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&reg.Password, "password", "p", "", "account password, at least 8 characters")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// reportSession prints the outcome of a login or registration. A profile that
// failed to load is reported but does not fail the command.
func reportSession(cmd *cobra.Command, a *app, s session.Session, err error, verb string) error {
	var profileErr *session.ProfileFetchError
	switch {
	case errors.As(err, &profileErr):
		fmt.Fprintf(cmd.OutOrStdout(), "%s, but the profile could not be loaded: %v\n", verb, profileErr.Err)
	case err != nil:
		return err
	default:
		fmt.Fprintf(cmd.OutOrStdout(), "%s as %s\n", verb, s.User.Username)
	}
	a.router.NavigateTo("/profile")
	return nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.manager.Logout(cmd.Context())
			a.router.NavigateTo(a.cfg.GetLoginPath())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the logged in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.visit("/profile"); err != nil {
				return err
			}
			profile, err := a.manager.FetchProfile(cmd.Context())
			if err != nil {
				if !a.store.IsAuthenticated() {
					return errNotLoggedIn
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), profile.Username)
			return nil
		},
	}
}

func newProfileCmd(a *app) *cobra.Command {
	var update api.ProfileUpdate
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update the profile",
		Long: `Show the profile of the logged in user.

With --username or --email the profile is updated first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.visit("/profile"); err != nil {
				return err
			}
			var (
				profile *api.UserProfile
				err     error
			)
			if update.Username != "" || update.Email != "" {
				profile, err = a.manager.UpdateProfile(cmd.Context(), update)
			} else {
				profile, err = a.manager.FetchProfile(cmd.Context())
			}
			if err != nil {
				if !a.store.IsAuthenticated() {
					return errNotLoggedIn
				}
				return err
			}

			w := newTable(cmd.OutOrStdout())
			fmt.Fprintf(w, "Username:\t%s\n", profile.Username)
			fmt.Fprintf(w, "Email:\t%s\n", profile.Email)
			if !profile.RegistrationDate.IsZero() {
				fmt.Fprintf(w, "Registered:\t%s\n", profile.RegistrationDate.Format("2006-01-02"))
			}
			if roles := roleNames(profile); roles != "" {
				fmt.Fprintf(w, "Roles:\t%s\n", roles)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&update.Username, "username", "", "new username")
	cmd.Flags().StringVar(&update.Email, "email", "", "new email")
	return cmd
}

func roleNames(p *api.UserProfile) string {
	var roles []string
	if p.IsAdmin {
		roles = append(roles, "admin")
	}
	if p.IsStaff {
		roles = append(roles, "staff")
	}
	if p.IsSuperuser {
		roles = append(roles, "superuser")
	}
	return strings.Join(roles, ", ")
}

func readLine(in io.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	fmt.Fprintln(out)
	return strings.TrimRight(line, "\r\n"), nil
}
