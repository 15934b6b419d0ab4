package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/mcphub/internal/database"
	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/repository"
)

// fakeProvider signs in whoever has the right password
type fakeProvider struct {
	user       *models.SessionUser
	current    *models.SessionUser
	password   string
	getUserErr error
	oauthCalls []string
	resetTo    string
}

func (p *fakeProvider) SignInWithOAuth(_ context.Context, provider, scopes string) error {
	p.oauthCalls = append(p.oauthCalls, provider+" "+scopes)
	p.current = p.user
	return nil
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, password string) error {
	if p.user == nil || email != p.user.Email || password != p.password {
		return errors.New("Invalid login credentials")
	}
	p.current = p.user
	return nil
}

func (p *fakeProvider) SignUp(_ context.Context, email, password string) error {
	p.user = &models.SessionUser{Id: "new-user", Email: email, AppMetadata: map[string]any{"provider": "email"}}
	p.password = password
	p.current = p.user
	return nil
}

func (p *fakeProvider) ResetPasswordForEmail(_ context.Context, email, redirectTo string) error {
	p.resetTo = redirectTo
	return nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.current = nil
	return nil
}

func (p *fakeProvider) GetUser(context.Context) (*models.SessionUser, error) {
	if p.getUserErr != nil {
		return nil, p.getUserErr
	}
	return p.current, nil
}

// countingProfiles counts upserts on top of the real repository
type countingProfiles struct {
	repository.ProfileRepository
	upserts int
	findErr error
}

func (c *countingProfiles) FindProfiles(ctx context.Context, id string) ([]models.Profile, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.ProfileRepository.FindProfiles(ctx, id)
}

func (c *countingProfiles) UpsertProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	c.upserts++
	return c.ProfileRepository.UpsertProfile(ctx, p)
}

func newProfiles() *countingProfiles {
	return &countingProfiles{ProfileRepository: repository.NewProfileRepository(database.NewMemoryStore())}
}

func githubUser() *models.SessionUser {
	return &models.SessionUser{
		Id:           "gh-1",
		Email:        "octo@example.com",
		AppMetadata:  map[string]any{"provider": "github"},
		UserMetadata: map[string]any{"user_name": "octocat", "avatar_url": "https://avatars.example.com/1"},
	}
}

func TestIdentityFromSession(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name         string
		session      models.SessionUser
		wantProvider models.AuthProvider
		wantName     string
	}{
		{
			name:         "github uses the oauth username",
			session:      *githubUser(),
			wantProvider: models.ProviderGitHub,
			wantName:     "octocat",
		},
		{
			name:         "github without username falls back to email",
			session:      models.SessionUser{Email: "octo@example.com", AppMetadata: map[string]any{"provider": "github"}},
			wantProvider: models.ProviderGitHub,
			wantName:     "octo",
		},
		{
			name:         "email ignores the username",
			session:      models.SessionUser{Email: "jane@example.com", UserMetadata: map[string]any{"user_name": "x"}},
			wantProvider: models.ProviderEmail,
			wantName:     "jane",
		},
		{
			name:         "web3 without email",
			session:      models.SessionUser{AppMetadata: map[string]any{"provider": "web3"}},
			wantProvider: models.ProviderWeb3,
			wantName:     "Anonymous",
		},
		{
			name:         "unknown provider is email",
			session:      models.SessionUser{Email: "a@b.c", AppMetadata: map[string]any{"provider": "google"}, CreatedAt: &created},
			wantProvider: models.ProviderEmail,
			wantName:     "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := IdentityFromSession(tt.session)
			assert.Equal(t, tt.wantProvider, u.AuthProvider)
			assert.Equal(t, tt.wantName, u.Profile.Name)
			assert.False(t, u.CreatedAt.IsZero())
			assert.False(t, u.UpdatedAt.IsZero())
		})
	}

	u := IdentityFromSession(*githubUser())
	assert.Equal(t, "https://avatars.example.com/1", u.Profile.Avatar)
}

func TestCheckUser_GitHubSessionCreatesOneProfile(t *testing.T) {
	provider := &fakeProvider{current: githubUser()}
	profiles := newProfiles()
	r := NewResolver(provider, profiles)

	require.NoError(t, r.Init(context.Background()))
	require.NoError(t, r.CheckUser(context.Background()))

	assert.Equal(t, 1, profiles.upserts)
	rows, err := profiles.FindProfiles(context.Background(), "gh-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ProviderGitHub, rows[0].AuthProvider)
	assert.Equal(t, "octocat", rows[0].Name)

	state := r.State()
	assert.Equal(t, PhaseAuthenticated, state.Phase)
	assert.Equal(t, models.ProfileSyncExists, state.ProfileSync.Status)
	assert.False(t, state.IsLoading)
}

func TestCheckUser_PublishesIdentityBeforeReconciling(t *testing.T) {
	provider := &fakeProvider{current: githubUser()}
	r := NewResolver(provider, newProfiles())

	var states []State
	r.Subscribe(func(s State) { states = append(states, s) })
	require.NoError(t, r.CheckUser(context.Background()))

	require.Len(t, states, 3)
	assert.Equal(t, PhaseResolving, states[0].Phase)
	assert.NotNil(t, states[1].User)
	assert.Equal(t, models.ProfileSyncPending, states[1].ProfileSync.Status)
	assert.Equal(t, models.ProfileSyncCreated, states[2].ProfileSync.Status)
}

func TestCheckUser_ProfileFailureKeepsUser(t *testing.T) {
	profiles := newProfiles()
	profiles.findErr = errors.New("permission denied")
	r := NewResolver(&fakeProvider{current: githubUser()}, profiles)

	require.NoError(t, r.CheckUser(context.Background()))

	state := r.State()
	require.NotNil(t, state.User)
	assert.Equal(t, "Failed to setup user profile", state.Error)
	assert.Equal(t, models.ProfileSyncFailed, state.ProfileSync.Status)
}

func TestCheckUser_NoSession(t *testing.T) {
	r := NewResolver(&fakeProvider{}, newProfiles())
	assert.Equal(t, PhaseUnresolved, r.State().Phase)

	require.NoError(t, r.Init(context.Background()))
	state := r.State()
	assert.Nil(t, state.User)
	assert.False(t, state.IsLoading)
	assert.Empty(t, state.Error)
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
}

func TestCheckUser_ProviderError(t *testing.T) {
	r := NewResolver(&fakeProvider{getUserErr: errors.New("boom")}, newProfiles())
	require.Error(t, r.CheckUser(context.Background()))
	assert.Equal(t, "Failed to fetch user", r.State().Error)
}

func TestSignInWithEmail_WrongPassword(t *testing.T) {
	provider := &fakeProvider{user: &models.SessionUser{Id: "u1", Email: "jane@example.com"}, password: "secret"}
	r := NewResolver(provider, newProfiles())
	require.NoError(t, r.Init(context.Background()))

	err := r.SignInWithEmail(context.Background(), "jane@example.com", "wrong")
	require.Error(t, err)

	state := r.State()
	assert.Nil(t, state.User)
	assert.NotEmpty(t, state.Error)
	assert.False(t, state.IsLoading)
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
}

func TestSignInWithEmail_Success(t *testing.T) {
	provider := &fakeProvider{user: &models.SessionUser{Id: "u1", Email: "jane@example.com"}, password: "secret"}
	r := NewResolver(provider, newProfiles())

	require.NoError(t, r.SignInWithEmail(context.Background(), "jane@example.com", "secret"))
	state := r.State()
	require.NotNil(t, state.User)
	assert.Equal(t, "jane", state.User.Profile.Name)
	assert.Equal(t, models.ProviderEmail, state.User.AuthProvider)
}

func TestSignInWithGitHub_RequestsScopes(t *testing.T) {
	provider := &fakeProvider{user: githubUser()}
	r := NewResolver(provider, newProfiles())

	require.NoError(t, r.SignInWithGitHub(context.Background()))
	assert.Equal(t, []string{"github read:user user:email"}, provider.oauthCalls)
	assert.Equal(t, "octocat", r.State().User.Profile.Name)
}

func TestSignUpThenSignOut(t *testing.T) {
	r := NewResolver(&fakeProvider{}, newProfiles())

	require.NoError(t, r.SignUpWithEmail(context.Background(), "new@example.com", "pw"))
	require.NotNil(t, r.State().User)

	require.NoError(t, r.SignOut(context.Background()))
	state := r.State()
	assert.Nil(t, state.User)
	assert.Equal(t, PhaseUnauthenticated, state.Phase)
}

func TestResetPassword(t *testing.T) {
	provider := &fakeProvider{}
	r := NewResolver(provider, newProfiles(), WithResetRedirect("https://mcphub.example.com/reset-password"))

	require.NoError(t, r.ResetPassword(context.Background(), "jane@example.com"))
	assert.Equal(t, "https://mcphub.example.com/reset-password", provider.resetTo)
	assert.False(t, r.State().IsLoading)
}

func TestDispose(t *testing.T) {
	r := NewResolver(&fakeProvider{}, newProfiles())
	calls := 0
	r.Subscribe(func(State) { calls++ })
	r.Dispose()

	require.ErrorIs(t, r.CheckUser(context.Background()), ErrDisposed)
	assert.Zero(t, calls)
}
