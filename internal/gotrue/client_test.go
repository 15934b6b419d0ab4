package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imyashkale/mcphub/internal/models"
	"github.com/imyashkale/mcphub/internal/session"
)

var _ session.AuthProvider = (*Client)(nil)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": exp.Unix()})
	s, err := tok.SignedString([]byte("secret"))
	require.NoError(t, err)
	return s
}

// fakeAuth is a minimal GoTrue stand-in
type fakeAuth struct {
	mu       sync.Mutex
	access   string
	requests []string
	bodies   []map[string]string
	headers  []http.Header
}

func (f *fakeAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
	f.headers = append(f.headers, r.Header.Clone())
	body := map[string]string{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies = append(f.bodies, body)
	access := f.access
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "password":
		if body["password"] != "secret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": access, "refresh_token": "r1", "token_type": "bearer", "expires_in": 3600,
		})
	case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "refresh_token":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": access, "refresh_token": "r2", "token_type": "bearer", "expires_in": 3600,
		})
	case r.URL.Path == "/auth/v1/token" && r.URL.Query().Get("grant_type") == "pkce":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": access, "refresh_token": "r3", "token_type": "bearer", "expires_in": 3600,
		})
	case r.URL.Path == "/auth/v1/signup":
		_, _ = w.Write([]byte(`{"id":"u2","email":"new@example.com"}`))
	case r.URL.Path == "/auth/v1/user":
		if r.Header.Get("Authorization") != "Bearer "+access {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":401,"msg":"invalid JWT"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"u1","email":"jane@example.com","app_metadata":{"provider":"email"}}`))
	case r.URL.Path == "/auth/v1/recover", r.URL.Path == "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newFakeAuth(t *testing.T) (*fakeAuth, *httptest.Server) {
	f := &fakeAuth{access: signedToken(t, time.Now().Add(time.Hour))}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestSignInWithPassword_StoresSession(t *testing.T) {
	f, srv := newFakeAuth(t)
	store := &MemorySessionStore{}
	c := New(srv.URL, "anon-key", store)

	require.NoError(t, c.SignInWithPassword(context.Background(), "jane@example.com", "secret"))

	s, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "r1", s.RefreshToken)
	assert.Equal(t, "anon-key", f.headers[0].Get("apikey"))
	assert.Equal(t, "jane@example.com", f.bodies[0]["email"])

	user, err := c.GetUser(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "u1", user.Id)
	assert.Equal(t, "email", user.AppMetadata["provider"])
}

func TestSignInWithPassword_WrongPassword(t *testing.T) {
	_, srv := newFakeAuth(t)
	c := New(srv.URL, "anon-key", nil)

	err := c.SignInWithPassword(context.Background(), "jane@example.com", "nope")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid_grant", apiErr.Code)
	assert.Equal(t, "Invalid login credentials", err.Error())
}

func TestGetUser_NoSession(t *testing.T) {
	f, srv := newFakeAuth(t)
	c := New(srv.URL, "anon-key", nil)

	user, err := c.GetUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Empty(t, f.requests)

	_, err = c.AccessToken(context.Background())
	require.ErrorIs(t, err, ErrNoSession)
}

func TestGetUser_RefreshesExpiredToken(t *testing.T) {
	f, srv := newFakeAuth(t)
	store := &MemorySessionStore{}
	require.NoError(t, store.Save(&Session{
		AccessToken:  signedToken(t, time.Now().Add(-time.Minute)),
		RefreshToken: "old-refresh",
	}))
	c := New(srv.URL, "anon-key", store)

	user, err := c.GetUser(context.Background())
	require.NoError(t, err)
	require.NotNil(t, user)

	require.Len(t, f.requests, 2)
	assert.True(t, strings.HasPrefix(f.requests[0], "POST /auth/v1/token?grant_type=refresh_token"))
	assert.Equal(t, "old-refresh", f.bodies[0]["refresh_token"])

	s, _ := store.Load()
	assert.Equal(t, "r2", s.RefreshToken)
	assert.Equal(t, f.access, s.AccessToken)
}

func TestGetUser_RejectedSessionIsDropped(t *testing.T) {
	_, srv := newFakeAuth(t)
	store := &MemorySessionStore{}
	require.NoError(t, store.Save(&Session{AccessToken: "revoked-token", ExpiresAt: time.Now().Add(time.Hour), RefreshToken: "r"}))
	c := New(srv.URL, "anon-key", store)

	user, err := c.GetUser(context.Background())
	require.NoError(t, err)
	assert.Nil(t, user)

	s, _ := store.Load()
	assert.Nil(t, s)
}

func TestSignUp_ConfirmationRequired(t *testing.T) {
	_, srv := newFakeAuth(t)
	store := &MemorySessionStore{}
	c := New(srv.URL, "anon-key", store)

	require.NoError(t, c.SignUp(context.Background(), "new@example.com", "pw"))
	s, _ := store.Load()
	assert.Nil(t, s)
}

func TestResetPasswordForEmail(t *testing.T) {
	f, srv := newFakeAuth(t)
	c := New(srv.URL, "anon-key", nil)

	require.NoError(t, c.ResetPasswordForEmail(context.Background(), "jane@example.com", "https://app.example.com/reset-password"))
	require.Len(t, f.requests, 1)
	assert.Equal(t, "POST /auth/v1/recover?redirect_to="+url.QueryEscape("https://app.example.com/reset-password"), f.requests[0])
	assert.Equal(t, "jane@example.com", f.bodies[0]["email"])
}

func TestSignOut_ClearsSession(t *testing.T) {
	f, srv := newFakeAuth(t)
	store := &MemorySessionStore{}
	require.NoError(t, store.Save(&Session{AccessToken: f.access}))
	c := New(srv.URL, "anon-key", store)

	require.NoError(t, c.SignOut(context.Background()))
	s, _ := store.Load()
	assert.Nil(t, s)
	assert.Equal(t, "Bearer "+f.access, f.headers[0].Get("Authorization"))
}

// codeHandoff answers the authorize step without a browser
type codeHandoff struct {
	authorizeURL string
}

func (h *codeHandoff) RedirectURL() string { return "http://127.0.0.1:9999/callback" }

func (h *codeHandoff) Await(_ context.Context, authorizeURL string) (string, error) {
	h.authorizeURL = authorizeURL
	return "auth-code", nil
}

func TestSignInWithOAuth_PKCE(t *testing.T) {
	f, srv := newFakeAuth(t)
	store := &MemorySessionStore{}
	h := &codeHandoff{}
	c := New(srv.URL, "anon-key", store, WithHandoff(h))

	require.NoError(t, c.SignInWithOAuth(context.Background(), "github", "read:user user:email"))

	u, err := url.Parse(h.authorizeURL)
	require.NoError(t, err)
	assert.Equal(t, "/auth/v1/authorize", u.Path)
	assert.Equal(t, "github", u.Query().Get("provider"))
	assert.Equal(t, "read:user user:email", u.Query().Get("scopes"))
	assert.Equal(t, "s256", u.Query().Get("code_challenge_method"))

	require.Len(t, f.bodies, 1)
	assert.Equal(t, "auth-code", f.bodies[0]["auth_code"])
	assert.Equal(t, codeChallenge(f.bodies[0]["code_verifier"]), u.Query().Get("code_challenge"))

	s, _ := store.Load()
	assert.Equal(t, "r3", s.RefreshToken)
}

func TestSignInWithOAuth_NoHandoff(t *testing.T) {
	c := New("http://unused", "anon-key", nil)
	require.ErrorIs(t, c.SignInWithOAuth(context.Background(), "github", ""), ErrNoHandoff)
}

func TestLoopbackHandoff(t *testing.T) {
	var out strings.Builder
	h, err := NewLoopbackHandoff("127.0.0.1:0", &out)
	require.NoError(t, err)

	codes := make(chan string, 1)
	go func() {
		code, err := h.Await(context.Background(), "https://auth.example.com/authorize")
		assert.NoError(t, err)
		codes <- code
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(h.RedirectURL() + "?code=abc")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "abc", <-codes)
}

func TestFileSessionStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcphub", "session.yaml")
	store := NewFileSessionStore(path)

	s, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, s)

	want := &Session{
		AccessToken:  "a",
		RefreshToken: "r",
		TokenType:    "bearer",
		ExpiresAt:    time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		User:         &models.SessionUser{Id: "u1", Email: "jane@example.com"},
	}
	require.NoError(t, store.Save(want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, want.AccessToken, got.AccessToken)
	assert.Equal(t, want.RefreshToken, got.RefreshToken)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt))
	assert.Equal(t, "u1", got.User.Id)

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear())
	got, err = store.Load()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	assert.False(t, (&Session{AccessToken: signedToken(t, now.Add(time.Hour))}).Expired(now))
	assert.True(t, (&Session{AccessToken: signedToken(t, now.Add(10*time.Second))}).Expired(now))
	assert.True(t, (&Session{AccessToken: "opaque", ExpiresAt: now.Add(-time.Second)}).Expired(now))
	assert.False(t, (&Session{AccessToken: "opaque"}).Expired(now))
}
