package commands

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/imyashkale/mcphub/internal/authgate"
	"github.com/imyashkale/mcphub/internal/client"
	"github.com/imyashkale/mcphub/internal/config"
	"github.com/imyashkale/mcphub/internal/draft"
	"github.com/imyashkale/mcphub/internal/gotrue"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/services"
	"github.com/imyashkale/mcphub/internal/session"
)

// account is the part of the auth client used outside the resolver
type account interface {
	GetUser(ctx context.Context) (*models.SessionUser, error)
	UpdatePassword(ctx context.Context, password string) error
}

// app holds the services a command works with
type app struct {
	api       *client.Client
	account   account
	resolver  *session.Resolver
	providers authgate.Providers
	readme    *services.ReadmeFetcher

	// enableOAuth starts the local callback listener for browser sign-in
	enableOAuth func() error
}

// newApp builds the services from the environment. Tests replace it.
var newApp = func(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, errors.Wrap(err, "loading configuration")
	}
	if apiURLFlag != "" {
		cfg.APIURL = apiURLFlag
	}

	sessionPath := cfg.SessionFile
	if sessionPath == "" {
		if sessionPath, err = gotrue.DefaultSessionPath(); err != nil {
			return nil, errors.Wrap(err, "resolving session file")
		}
	}

	auth := gotrue.New(cfg.AuthURL, cfg.AuthAnonKey, gotrue.NewFileSessionStore(sessionPath))
	api := client.New(cfg.APIURL, auth)
	readme := services.NewReadmeFetcher(cfg.GitHubRawBaseURL, cfg.ReadmeFetchTimeout)

	return &app{
		api:         api,
		account:     auth,
		resolver:    session.NewResolver(auth, api, session.WithResetRedirect(cfg.AuthRedirectURL)),
		providers:   authgate.Parse(cfg.AuthProviders),
		readme:      readme,
		enableOAuth: func() error {
			h, err := gotrue.NewLoopbackHandoff(callbackAddr, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			auth.UseHandoff(h)
			return nil
		},
	}, nil
}

// viewerId returns the signed-in user's id, or "" when nobody is signed in
// or the session cannot be checked.
func (a *app) viewerId(ctx context.Context) string {
	su, err := a.account.GetUser(ctx)
	if err != nil || su == nil {
		return ""
	}
	return su.Id
}

// requireUser resolves the session and fails when nobody is signed in
func (a *app) requireUser(ctx context.Context) (*models.User, error) {
	if err := a.resolver.Init(ctx); err != nil {
		return nil, errors.Wrap(err, "checking session")
	}
	state := a.resolver.State()
	if state.User == nil {
		return nil, errors.WithHint(draft.ErrNotSignedIn, "run 'mcphub auth login' first")
	}
	return state.User, nil
}
