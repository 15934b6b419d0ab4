package commands

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/imyashkale/mcphub/internal/authgate"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/session"
)

var (
	loginGitHub bool
	loginEmail  string
	signupEmail string
	resetEmail  string
	whoamiJSON  bool
)

func init() {
	authLoginCmd.Flags().BoolVar(&loginGitHub, "github", false, "sign in with GitHub in the browser")
	authLoginCmd.Flags().StringVar(&loginEmail, "email", "", "sign in with this email and a password")
	authSignupCmd.Flags().StringVar(&signupEmail, "email", "", "email address of the new account")
	_ = authSignupCmd.MarkFlagRequired("email")
	authResetCmd.Flags().StringVar(&resetEmail, "email", "", "email address of the account")
	_ = authResetCmd.MarkFlagRequired("email")
	authWhoamiCmd.Flags().BoolVar(&whoamiJSON, "json", false, "Output in JSON format")

	authCmd.AddCommand(authLoginCmd, authSignupCmd, authResetCmd, authPasswordCmd,
		authLogoutCmd, authWhoamiCmd, authProvidersCmd)
	rootCmd.AddCommand(authCmd)
}

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Sign in, sign out and inspect the current session",
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with GitHub or email",
	Long: `Sign in to mcphub.

With --github a browser sign-in URL is printed and mcphub waits for the
redirect on a local listener (see --callback-addr). With --email the
password is read from the terminal, or from stdin when it is not a
terminal.

Only the sign-in methods enabled by AUTH_PROVIDERS are available.`,
	Example: `  mcphub auth login --github
  mcphub auth login --email ada@example.com
  echo "$PASSWORD" | mcphub auth login --email ada@example.com`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	method, err := loginMethod(a.providers, loginGitHub, loginEmail)
	if err != nil {
		return err
	}

	switch method {
	case authgate.GitHub:
		if err := a.enableOAuth(); err != nil {
			return errors.Wrap(err, "starting sign-in callback listener")
		}
		err = a.resolver.SignInWithGitHub(ctx)
	default:
		var password string
		if password, err = promptPassword(cmd.ErrOrStderr(), "Password: "); err != nil {
			return err
		}
		err = a.resolver.SignInWithEmail(ctx, loginEmail, password)
	}
	if err != nil {
		return errors.Wrap(err, "signing in")
	}

	reportSession(cmd.OutOrStdout(), a.resolver.State())
	return nil
}

// loginMethod picks the sign-in method from the flags and refuses
// disabled ones
func loginMethod(p authgate.Providers, github bool, email string) (string, error) {
	switch {
	case github && email != "":
		return "", errors.WithHint(errors.New("use either --github or --email, not both"), enabledHint(p))
	case github:
		if !p.GitHubEnabled() {
			return "", errors.WithHint(errors.New("GitHub sign-in is disabled"), enabledHint(p))
		}
		return authgate.GitHub, nil
	case email != "":
		if !p.EmailEnabled() {
			return "", errors.WithHint(errors.New("email sign-in is disabled"), enabledHint(p))
		}
		return authgate.Email, nil
	}
	return "", errors.WithHint(errors.New("choose a sign-in method"), enabledHint(p))
}

func enabledHint(p authgate.Providers) string {
	switch {
	case p.GitHubEnabled() && p.EmailEnabled():
		return "use --github or --email <address>"
	case p.GitHubEnabled():
		return "use --github"
	case p.EmailEnabled():
		return "use --email <address>"
	}
	return "no sign-in method is enabled, check AUTH_PROVIDERS"
}

var authSignupCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account with email and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if !a.providers.EmailEnabled() {
			return errors.WithHint(errors.New("email sign-up is disabled"), enabledHint(a.providers))
		}

		password, err := promptPassword(cmd.ErrOrStderr(), "Password: ")
		if err != nil {
			return err
		}
		again, err := promptPassword(cmd.ErrOrStderr(), "Confirm password: ")
		if err != nil {
			return err
		}
		if password != again {
			return errors.New("passwords do not match")
		}

		if err := a.resolver.SignUpWithEmail(cmd.Context(), signupEmail, password); err != nil {
			return errors.Wrap(err, "signing up")
		}

		state := a.resolver.State()
		if state.User == nil {
			printSuccess(cmd.OutOrStdout(), "Account created. Check %s for a confirmation link.", signupEmail)
			return nil
		}
		reportSession(cmd.OutOrStdout(), state)
		return nil
	},
}

var authResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Email a password reset link",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.resolver.ResetPassword(cmd.Context(), resetEmail); err != nil {
			return errors.Wrap(err, "requesting password reset")
		}
		printSuccess(cmd.OutOrStdout(), "Password reset email sent to %s", resetEmail)
		return nil
	},
}

var authPasswordCmd = &cobra.Command{
	Use:   "password",
	Short: "Change the password of the signed-in account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if _, err := a.requireUser(cmd.Context()); err != nil {
			return err
		}

		password, err := promptPassword(cmd.ErrOrStderr(), "New password: ")
		if err != nil {
			return err
		}
		if err := a.account.UpdatePassword(cmd.Context(), password); err != nil {
			return errors.Wrap(err, "changing password")
		}
		printSuccess(cmd.OutOrStdout(), "Password changed")
		return nil
	},
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.resolver.SignOut(cmd.Context()); err != nil {
			return errors.Wrap(err, "signing out")
		}
		printSuccess(cmd.OutOrStdout(), "Signed out")
		return nil
	},
}

var authWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		if err := a.resolver.Init(cmd.Context()); err != nil {
			return errors.Wrap(err, "checking session")
		}
		state := a.resolver.State()

		if whoamiJSON {
			if state.User == nil {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"user": nil})
			}
			return writeJSON(cmd.OutOrStdout(), models.MeResponse{User: *state.User, ProfileSync: state.ProfileSync})
		}
		reportSession(cmd.OutOrStdout(), state)
		return nil
	},
}

var authProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the enabled sign-in methods",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, name := range []string{authgate.GitHub, authgate.Email} {
			if a.providers.IsProviderEnabled(name) {
				successColor.Fprintf(w, "  %-8s enabled\n", name)
			} else {
				dimColor.Fprintf(w, "  %-8s disabled\n", name)
			}
		}
		return nil
	},
}

// reportSession prints who is signed in and any profile problem
func reportSession(w io.Writer, state session.State) {
	if state.User == nil {
		printWarning(w, "Not signed in")
		return
	}

	u := state.User
	printSuccess(w, "Signed in as %s <%s> via %s", u.Profile.Name, u.Email, u.AuthProvider)
	if u.Profile.Avatar != "" {
		fmt.Fprintf(w, "  avatar: %s\n", u.Profile.Avatar)
	}
	fmt.Fprintf(w, "  id:     %s\n", u.Id)
	if state.ProfileSync.Status == models.ProfileSyncFailed {
		printWarning(w, "%s", state.Error)
	}
}
