package gotrue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v2"

	"github.com/imyashkale/mcphub/internal/models"
)

// expiryLeeway refreshes tokens slightly before they actually expire
const expiryLeeway = 30 * time.Second

// Session is the token pair issued by the auth service
type Session struct {
	AccessToken  string              `yaml:"access_token"`
	RefreshToken string              `yaml:"refresh_token"`
	TokenType    string              `yaml:"token_type"`
	ExpiresAt    time.Time           `yaml:"expires_at"`
	User         *models.SessionUser `yaml:"user,omitempty"`
}

// Expired reports whether the access token must be refreshed at now
func (s *Session) Expired(now time.Time) bool {
	exp := tokenExpiry(s.AccessToken)
	if exp.IsZero() {
		exp = s.ExpiresAt
	}
	if exp.IsZero() {
		return false
	}
	return !now.Add(expiryLeeway).Before(exp)
}

// tokenExpiry reads the exp claim without verifying the signature; the
// token is only ever checked by the service that issued it.
func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// SessionStore persists the current session between runs
type SessionStore interface {
	// Load returns nil without error when no session is stored
	Load() (*Session, error)
	Save(s *Session) error
	Clear() error
}

// MemorySessionStore keeps the session in memory only
type MemorySessionStore struct {
	mu      sync.Mutex
	session *Session
}

func (m *MemorySessionStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil, nil
	}
	s := *m.session
	return &s, nil
}

func (m *MemorySessionStore) Save(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.session = &c
	return nil
}

func (m *MemorySessionStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}

// FileSessionStore writes the session as YAML readable by the owner only
type FileSessionStore struct {
	path string
}

// NewFileSessionStore stores the session at path
func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

// DefaultSessionPath returns $XDG_CONFIG_HOME/mcphub/session.yaml
func DefaultSessionPath() (string, error) {
	return xdg.ConfigFile(filepath.Join("mcphub", "session.yaml"))
}

// Path returns the file location
func (f *FileSessionStore) Path() string { return f.path }

func (f *FileSessionStore) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if s.AccessToken == "" {
		return nil, nil
	}
	return &s, nil
}

func (f *FileSessionStore) Save(s *Session) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

func (f *FileSessionStore) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
