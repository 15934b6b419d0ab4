package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingConfig is returned when required configuration values are absent
var ErrMissingConfig = errors.New("missing required configuration values")

// Store backends
const (
	BackendPostgres = "postgres"
	BackendDynamoDB = "dynamodb"
	BackendMemory   = "memory"
)

// Config holds all server configuration
type Config struct {
	// Server configuration
	Port              string
	CorsAllowedOrigin string

	// Logging configuration
	LogLevel string

	// Store configuration
	StoreBackend string
	DatabaseURL  string
	AutoMigrate  bool

	// AWS configuration
	AWSRegion             string
	DynamoDBServersTable  string
	DynamoDBProfilesTable string

	// Auth configuration
	AuthJWTSecret   string
	AuthJWTAudience string
	AuthProviders   string

	// Enrichment configuration
	GitHubRawBaseURL   string
	ReadmeFetchTimeout time.Duration
	DraftTTL           time.Duration
	EnrichWorkers      int
	EnrichQueueSize    int

	// TesterAllowPrivate lets endpoint tests reach loopback and private
	// addresses. Local development only.
	TesterAllowPrivate bool
}

// ClientConfig holds the CLI configuration
type ClientConfig struct {
	APIURL             string
	AuthURL            string
	AuthAnonKey        string
	AuthProviders      string
	AuthRedirectURL    string
	GitHubRawBaseURL   string
	ReadmeFetchTimeout time.Duration
	SessionFile        string // empty means the XDG default
}

// loadEnv reads .env from the working directory. OS environment variables
// take precedence over .env file values.
func loadEnv() {
	_ = godotenv.Load(filepath.Join(".", ".env"))
}

// New loads the server configuration and panics when it is invalid
func New() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// Load reads the server configuration from .env and the OS environment
func Load() (*Config, error) {
	loadEnv()

	var p parser
	cfg := &Config{
		Port:              getEnvOrDefault("PORT", "3001"),
		CorsAllowedOrigin: getEnvOrDefault("CORS_ALLOWED_ORIGIN", "*"),

		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),

		StoreBackend: strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendPostgres)),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		AutoMigrate:  p.bool("AUTO_MIGRATE", true),

		AWSRegion:             getEnvOrDefault("AWS_REGION", "us-east-1"),
		DynamoDBServersTable:  getEnvOrDefault("DYNAMODB_SERVERS_TABLE", "servers"),
		DynamoDBProfilesTable: getEnvOrDefault("DYNAMODB_PROFILES_TABLE", "profiles"),

		AuthJWTSecret:   os.Getenv("AUTH_JWT_SECRET"),
		AuthJWTAudience: getEnvOrDefault("AUTH_JWT_AUDIENCE", "authenticated"),
		AuthProviders:   getEnvOrDefault("AUTH_PROVIDERS", "github,email"),

		GitHubRawBaseURL:   getEnvOrDefault("GITHUB_RAW_BASE_URL", "https://raw.githubusercontent.com"),
		ReadmeFetchTimeout: p.duration("README_FETCH_TIMEOUT", 10*time.Second),
		DraftTTL:           p.duration("DRAFT_TTL", 30*time.Minute),
		EnrichWorkers:      p.int("ENRICH_WORKERS", 5),
		EnrichQueueSize:    p.int("ENRICH_QUEUE_SIZE", 100),
		TesterAllowPrivate: p.bool("TESTER_ALLOW_PRIVATE", false),
	}
	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks that all required configuration values are present and valid
func (c *Config) validate() error {
	var missing []string

	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	case BackendDynamoDB, BackendMemory:
	default:
		return fmt.Errorf("STORE_BACKEND must be one of %s, %s, %s (got '%s')",
			BackendPostgres, BackendDynamoDB, BackendMemory, c.StoreBackend)
	}

	if c.AuthJWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrMissingConfig, missing)
	}

	if c.EnrichWorkers < 1 {
		return fmt.Errorf("ENRICH_WORKERS must be at least 1 (got %d)", c.EnrichWorkers)
	}
	if c.EnrichQueueSize < 1 {
		return fmt.Errorf("ENRICH_QUEUE_SIZE must be at least 1 (got %d)", c.EnrichQueueSize)
	}
	return nil
}

// LoadClient reads the CLI configuration from .env and the OS environment
func LoadClient() (*ClientConfig, error) {
	loadEnv()

	var p parser
	cfg := &ClientConfig{
		APIURL:             strings.TrimRight(getEnvOrDefault("MCPHUB_API_URL", "http://localhost:3001"), "/"),
		AuthURL:            os.Getenv("AUTH_URL"),
		AuthAnonKey:        os.Getenv("AUTH_ANON_KEY"),
		AuthProviders:      getEnvOrDefault("AUTH_PROVIDERS", "github,email"),
		AuthRedirectURL:    os.Getenv("AUTH_REDIRECT_URL"),
		GitHubRawBaseURL:   getEnvOrDefault("GITHUB_RAW_BASE_URL", "https://raw.githubusercontent.com"),
		ReadmeFetchTimeout: p.duration("README_FETCH_TIMEOUT", 10*time.Second),
		SessionFile:        os.Getenv("MCPHUB_SESSION_FILE"),
	}
	if p.err != nil {
		return nil, p.err
	}

	var missing []string
	if cfg.AuthURL == "" {
		missing = append(missing, "AUTH_URL")
	}
	if cfg.AuthAnonKey == "" {
		missing = append(missing, "AUTH_ANON_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, missing)
	}
	return cfg, nil
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser reads typed values and keeps the first error
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid value '%s' for %s: %w", value, key, err)
	}
}

func (p *parser) bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}
