package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
)

var (
	// ErrNoSession is returned when an operation needs a signed-in user
	ErrNoSession = errors.New("not signed in")
	// ErrNoHandoff is returned by OAuth sign-in when no browser handoff is configured
	ErrNoHandoff = errors.New("oauth sign-in is not available")
)

const (
	authPath       = "/auth/v1"
	defaultTimeout = 15 * time.Second
)

// APIError is a non-2xx answer from the auth service
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("auth service returned status %d", e.Status)
}

// Client talks to a GoTrue compatible auth service and keeps the session
// in a SessionStore.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	store   SessionStore
	handoff Handoff
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithHandoff enables OAuth sign-in through h
func WithHandoff(h Handoff) Option {
	return func(c *Client) { c.handoff = h }
}

// UseHandoff enables OAuth sign-in through h. Call it before signing in.
func (c *Client) UseHandoff(h Handoff) {
	c.handoff = h
}

// New creates a client for the service at baseURL
func New(baseURL, apiKey string, store SessionStore, opts ...Option) *Client {
	if store == nil {
		store = &MemorySessionStore{}
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + authPath,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
		store:   store,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// tokenResponse is returned by /token and, when confirmation is disabled, /signup
type tokenResponse struct {
	AccessToken  string              `json:"access_token"`
	TokenType    string              `json:"token_type"`
	ExpiresIn    int64               `json:"expires_in"`
	ExpiresAt    int64               `json:"expires_at"`
	RefreshToken string              `json:"refresh_token"`
	User         *models.SessionUser `json:"user"`
}

func (t *tokenResponse) session(now time.Time) *Session {
	s := &Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		User:         t.User,
	}
	switch {
	case t.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0).UTC()
	case t.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second).UTC()
	}
	return s
}

// SignInWithPassword exchanges email and password for a session
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) error {
	var tok tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &tok); err != nil {
		return err
	}
	return c.saveSession(&tok)
}

// SignUp registers an account. When the service requires email
// confirmation no session is returned and none is stored.
func (c *Client) SignUp(ctx context.Context, email, password string) error {
	var tok tokenResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/signup", "", body, &tok); err != nil {
		return err
	}
	if tok.AccessToken == "" {
		logger.WithField("email", email).Info("Sign-up requires email confirmation")
		return nil
	}
	return c.saveSession(&tok)
}

// ResetPasswordForEmail sends a reset link that lands on redirectTo
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.do(ctx, http.MethodPost, path, "", map[string]string{"email": email}, nil)
}

// UpdatePassword changes the password of the signed-in user
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/user", token, map[string]string{"password": password}, nil)
}

// SignOut revokes the session remotely and always forgets it locally
func (c *Client) SignOut(ctx context.Context) error {
	s, err := c.store.Load()
	if err != nil {
		return err
	}
	if s != nil {
		err = c.do(ctx, http.MethodPost, "/logout", s.AccessToken, nil, nil)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
			// the token is already invalid
			err = nil
		}
	}
	if clearErr := c.store.Clear(); clearErr != nil {
		return clearErr
	}
	return err
}

// GetUser returns the signed-in user, refreshing the access token when it
// has expired. A session the service no longer accepts is dropped.
func (c *Client) GetUser(ctx context.Context) (*models.SessionUser, error) {
	s, err := c.validSession(ctx)
	if errors.Is(err, ErrNoSession) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var user models.SessionUser
	err = c.do(ctx, http.MethodGet, "/user", s.AccessToken, nil, &user)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
		logger.Info("Stored session was rejected, signing out locally")
		return nil, c.store.Clear()
	}
	if err != nil {
		return nil, err
	}

	s.User = &user
	if err := c.store.Save(s); err != nil {
		logger.WithError(err).Warn("Failed to persist session user")
	}
	return &user, nil
}

// AccessToken returns a valid access token for API calls
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	s, err := c.validSession(ctx)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

func (c *Client) validSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrNoSession
	}
	if !s.Expired(c.now()) {
		return s, nil
	}
	if s.RefreshToken == "" {
		_ = c.store.Clear()
		return nil, ErrNoSession
	}

	logger.Debug("Access token expired, refreshing")
	var tok tokenResponse
	err = c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{"refresh_token": s.RefreshToken}, &tok)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		logger.WithField("error", apiErr.Message).Info("Refresh token rejected, signing out locally")
		_ = c.store.Clear()
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}

	refreshed := tok.session(c.now())
	if refreshed.User == nil {
		refreshed.User = s.User
	}
	if err := c.store.Save(refreshed); err != nil {
		return nil, err
	}
	return refreshed, nil
}

func (c *Client) saveSession(tok *tokenResponse) error {
	if tok.AccessToken == "" {
		return errors.New("auth service returned no access token")
	}
	return c.store.Save(tok.session(c.now()))
}

// do sends a JSON request. bearer defaults to the API key.
func (c *Client) do(ctx context.Context, method, path, bearer string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"method": method,
			"path":   strings.SplitN(path, "?", 2)[0],
			"error":  err.Error(),
		}).Error("Auth service request failed")
		return fmt.Errorf("auth service request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp.StatusCode, data)
		logger.WithFields(map[string]interface{}{
			"method":      method,
			"path":        strings.SplitN(path, "?", 2)[0],
			"status_code": resp.StatusCode,
			"code":        apiErr.Code,
		}).Warn("Auth service returned an error")
		return apiErr
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	return nil
}

// decodeAPIError understands the error bodies of the different service versions
func decodeAPIError(status int, data []byte) *APIError {
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	_ = json.Unmarshal(data, &body)

	apiErr := &APIError{Status: status, Code: body.ErrorCode}
	if apiErr.Code == "" {
		apiErr.Code = body.Error
	}
	for _, m := range []string{body.ErrorDescription, body.Msg, body.Message, body.Error} {
		if m != "" {
			apiErr.Message = m
			break
		}
	}
	return apiErr
}
