package session

import (
	"context"
	"errors"
	"sync"

	"github.com/samber/lo"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
)

// GitHubScopes are requested on GitHub sign-in
const GitHubScopes = "read:user user:email"

const (
	msgAuthFailed  = "authentication failed"
	msgFetchFailed = "Failed to fetch user"
)

// ErrDisposed is returned by operations on a disposed resolver
var ErrDisposed = errors.New("session resolver is disposed")

// AuthProvider is the external authentication service
type AuthProvider interface {
	SignInWithOAuth(ctx context.Context, provider, scopes string) error
	SignInWithPassword(ctx context.Context, email, password string) error
	SignUp(ctx context.Context, email, password string) error
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	SignOut(ctx context.Context) error
	// GetUser returns nil without error when nobody is signed in
	GetUser(ctx context.Context) (*models.SessionUser, error)
}

// Phase is the position in the auth lifecycle
type Phase string

const (
	PhaseUnresolved      Phase = "unresolved"
	PhaseResolving       Phase = "resolving"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseUnauthenticated Phase = "unauthenticated"
)

// State is what the resolver publishes. User is authoritative as soon as
// it is set; ProfileSync catches up afterwards.
type State struct {
	Phase       Phase
	User        *models.User
	IsLoading   bool
	Error       string
	ProfileSync models.ProfileSync
}

// Option configures a Resolver
type Option func(*Resolver)

// WithResetRedirect sets the page a password reset email links to
func WithResetRedirect(url string) Option {
	return func(r *Resolver) { r.resetRedirect = url }
}

// Resolver holds the current identity and runs the auth operations
type Resolver struct {
	provider      AuthProvider
	profiles      ProfileStore
	resetRedirect string

	mu          sync.Mutex
	state       State
	disposed    bool
	subscribers map[int]func(State)
	nextSub     int
}

// NewResolver creates an unresolved resolver. Call Init to resolve it.
func NewResolver(provider AuthProvider, profiles ProfileStore, opts ...Option) *Resolver {
	r := &Resolver{
		provider:    provider,
		profiles:    profiles,
		state:       State{Phase: PhaseUnresolved, IsLoading: true},
		subscribers: map[int]func(State){},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init resolves the current session
func (r *Resolver) Init(ctx context.Context) error {
	return r.CheckUser(ctx)
}

// Dispose drops all subscribers; later operations return ErrDisposed
func (r *Resolver) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
	r.subscribers = map[int]func(State){}
}

// State returns a copy of the current state
func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyState(r.state)
}

// Subscribe registers fn to receive every state change
func (r *Resolver) Subscribe(fn func(State)) (unsubscribe func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.nextSub
	r.nextSub++
	r.subscribers[key] = fn
	return func() {
		r.mu.Lock()
		delete(r.subscribers, key)
		r.mu.Unlock()
	}
}

// set applies fn to the state and notifies subscribers with a copy
func (r *Resolver) set(fn func(s *State)) error {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return ErrDisposed
	}
	fn(&r.state)
	snap := copyState(r.state)
	subs := lo.Values(r.subscribers)
	r.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
	return nil
}

func copyState(s State) State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// CheckUser resolves the identity from the provider, publishes it and then
// reconciles the profile row before returning.
func (r *Resolver) CheckUser(ctx context.Context) error {
	if err := r.set(func(s *State) { s.Phase = PhaseResolving }); err != nil {
		return err
	}

	su, err := r.provider.GetUser(ctx)
	if err != nil {
		logger.WithError(err).Warn("Failed to fetch user")
		_ = r.set(func(s *State) {
			*s = State{Phase: PhaseUnauthenticated, Error: msgFetchFailed}
		})
		return err
	}

	if su == nil {
		return r.set(func(s *State) {
			*s = State{Phase: PhaseUnauthenticated}
		})
	}

	user := IdentityFromSession(*su)
	if err := r.set(func(s *State) {
		*s = State{
			Phase:       PhaseAuthenticated,
			User:        &user,
			ProfileSync: models.ProfileSync{Status: models.ProfileSyncPending},
		}
	}); err != nil {
		return err
	}

	synced := ReconcileProfile(ctx, r.profiles, user)
	return r.set(func(s *State) {
		s.ProfileSync = synced
		if synced.Status == models.ProfileSyncFailed {
			s.Error = synced.Error
		}
	})
}

// SignInWithGitHub runs the OAuth flow and resolves the new session
func (r *Resolver) SignInWithGitHub(ctx context.Context) error {
	if err := r.begin(); err != nil {
		return err
	}
	if err := r.provider.SignInWithOAuth(ctx, string(models.ProviderGitHub), GitHubScopes); err != nil {
		return r.fail("github", err)
	}
	return r.CheckUser(ctx)
}

// SignInWithEmail signs in with a password and resolves the new session
func (r *Resolver) SignInWithEmail(ctx context.Context, email, password string) error {
	if err := r.begin(); err != nil {
		return err
	}
	if err := r.provider.SignInWithPassword(ctx, email, password); err != nil {
		return r.fail("email", err)
	}
	return r.CheckUser(ctx)
}

// SignUpWithEmail registers a new account and resolves the new session
func (r *Resolver) SignUpWithEmail(ctx context.Context, email, password string) error {
	if err := r.begin(); err != nil {
		return err
	}
	if err := r.provider.SignUp(ctx, email, password); err != nil {
		return r.fail("signup", err)
	}
	return r.CheckUser(ctx)
}

// ResetPassword asks the provider to email a reset link
func (r *Resolver) ResetPassword(ctx context.Context, email string) error {
	if err := r.begin(); err != nil {
		return err
	}
	if err := r.provider.ResetPasswordForEmail(ctx, email, r.resetRedirect); err != nil {
		return r.fail("reset", err)
	}
	return r.set(func(s *State) {
		s.IsLoading = false
		s.Error = ""
		s.Phase = settledPhase(s.User)
	})
}

// SignOut ends the session and clears the user
func (r *Resolver) SignOut(ctx context.Context) error {
	if err := r.begin(); err != nil {
		return err
	}
	if err := r.provider.SignOut(ctx); err != nil {
		return r.fail("signout", err)
	}
	return r.set(func(s *State) {
		*s = State{Phase: PhaseUnauthenticated}
	})
}

func (r *Resolver) begin() error {
	return r.set(func(s *State) {
		s.IsLoading = true
		s.Error = ""
		s.Phase = PhaseResolving
	})
}

// fail records a provider error without touching the user
func (r *Resolver) fail(op string, err error) error {
	msg := err.Error()
	if msg == "" {
		msg = msgAuthFailed
	}
	logger.WithFields(map[string]interface{}{
		"operation": op,
		"error":     msg,
	}).Warn("Authentication operation failed")

	_ = r.set(func(s *State) {
		s.Error = msg
		s.IsLoading = false
		s.Phase = settledPhase(s.User)
	})
	return err
}

func settledPhase(u *models.User) Phase {
	if u != nil {
		return PhaseAuthenticated
	}
	return PhaseUnauthenticated
}
