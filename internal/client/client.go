// Package client is the typed HTTP client of the mcphub API
package client

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
	"time"

	"github.com/imyashkale/mcphub/internal/logger"
	"github.com/imyashkale/mcphub/internal/models"
)

const (
	apiPrefix      = "/api/v1"
	defaultTimeout = 30 * time.Second
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
)

// APIError is a non-2xx answer from the API
type APIError struct {
	Status  int
	Code    string
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api returned status %d", e.Status)
}

// Unwrap lets callers match the status with errors.Is
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return nil
}

// FieldErrors returns the per-field validation messages, if any
func (e *APIError) FieldErrors() map[string]string {
	return e.Fields
}

// TokenSource supplies the bearer token for authenticated calls
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Client calls the mcphub API
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a client for the API at baseURL. tokens may be nil when
// only public endpoints are used.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/") + apiPrefix,
		http:    &http.Client{Timeout: defaultTimeout},
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListServers returns every listing, newest first
func (c *Client) ListServers(ctx context.Context) ([]models.ServerListing, error) {
	var resp models.ServerListResponse
	if err := c.do(ctx, http.MethodGet, "/servers", false, nil, &resp); err != nil {
		return nil, err
	}
	listings := make([]models.ServerListing, 0, len(resp.Servers))
	for i := range resp.Servers {
		listings = append(listings, resp.Servers[i].ToDomain())
	}
	return listings, nil
}

// GetServer returns one listing
func (c *Client) GetServer(ctx context.Context, id string) (models.ServerListing, error) {
	var resp models.ServerResponse
	if err := c.do(ctx, http.MethodGet, "/servers/"+url.PathEscape(id), false, nil, &resp); err != nil {
		return models.ServerListing{}, err
	}
	return resp.ToDomain(), nil
}

// CreateServer registers a listing owned by the signed-in user
func (c *Client) CreateServer(ctx context.Context, listing models.ServerListing) (models.ServerListing, error) {
	metrics := listing.Metrics
	req := models.CreateServerRequest{
		Name:            listing.Name,
		Description:     listing.Description,
		EndpointUrl:     listing.EndpointUrl,
		ProtocolVersion: listing.ProtocolVersion,
		Tags:            listing.Tags,
		Documentation:   listing.Documentation,
		Status:          listing.Status,
		Metrics:         &metrics,
	}

	var resp models.ServerResponse
	if err := c.do(ctx, http.MethodPost, "/servers", true, req, &resp); err != nil {
		return models.ServerListing{}, err
	}
	return resp.ToDomain(), nil
}

// UpdateServer sends only the fields set in patch
func (c *Client) UpdateServer(ctx context.Context, id string, patch models.ServerPatch) (models.ServerListing, error) {
	var resp models.ServerResponse
	if err := c.do(ctx, http.MethodPatch, "/servers/"+url.PathEscape(id), true, models.PatchToRequest(patch), &resp); err != nil {
		return models.ServerListing{}, err
	}
	return resp.ToDomain(), nil
}

// DeleteServer removes a listing the signed-in user owns
func (c *Client) DeleteServer(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/servers/"+url.PathEscape(id), true, nil, nil)
}

// TestServer asks the API to call the listing's endpoint
func (c *Client) TestServer(ctx context.Context, id string, req models.TestServerRequest) (models.TestResult, error) {
	var result models.TestResult
	err := c.do(ctx, http.MethodPost, "/servers/"+url.PathEscape(id)+"/test", true, req, &result)
	return result, err
}

// Readme previews the README of a GitHub repository
func (c *Client) Readme(ctx context.Context, repoURL string) (models.ReadmeResponse, error) {
	var resp models.ReadmeResponse
	err := c.do(ctx, http.MethodGet, "/readme?url="+url.QueryEscape(repoURL), false, nil, &resp)
	return resp, err
}

// Providers returns the sign-in methods the deployment enables
func (c *Client) Providers(ctx context.Context) (models.ProvidersResponse, error) {
	var resp models.ProvidersResponse
	err := c.do(ctx, http.MethodGet, "/auth/providers", false, nil, &resp)
	return resp, err
}

// Me returns the identity the API derives from the access token
func (c *Client) Me(ctx context.Context) (models.MeResponse, error) {
	var resp models.MeResponse
	err := c.do(ctx, http.MethodGet, "/me", true, nil, &resp)
	return resp, err
}

// FindProfiles returns the profile rows for id
func (c *Client) FindProfiles(ctx context.Context, id string) ([]models.Profile, error) {
	var resp models.ProfileListResponse
	if err := c.do(ctx, http.MethodGet, "/profiles/"+url.PathEscape(id), true, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Profiles, nil
}

// UpsertProfile creates or replaces the signed-in user's profile
func (c *Client) UpsertProfile(ctx context.Context, profile models.Profile) (models.Profile, error) {
	var stored models.Profile
	err := c.do(ctx, http.MethodPut, "/profiles/"+url.PathEscape(profile.Id), true, profile, &stored)
	return stored, err
}

func (c *Client) do(ctx context.Context, method, path string, auth bool, body, out any) error {
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
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if c.tokens == nil {
			return ErrUnauthorized
		}
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"method": method,
			"path":   path,
			"error":  err.Error(),
		}).Error("API request failed")
		return fmt.Errorf("api request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read api response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var body models.ErrorResponse
		_ = json.Unmarshal(data, &body)
		logger.WithFields(map[string]interface{}{
			"method":      method,
			"path":        path,
			"status_code": resp.StatusCode,
			"error":       body.Error,
		}).Debug("API returned an error")
		return &APIError{
			Status:  resp.StatusCode,
			Code:    body.Error,
			Message: body.Message,
			Fields:  body.Fields,
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode api response: %w", err)
	}
	return nil
}
