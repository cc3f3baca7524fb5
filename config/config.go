package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// minProductionSecretLength is the minimum HS256 secret length accepted in production
const minProductionSecretLength = 32

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Database      DatabaseConfig
	Session       SessionConfig
	Google        GoogleConfig
	RBAC          RBACConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	FrontEndURL   string
	Environment   string

	// envErrors holds variables that were set but could not be parsed
	envErrors []error
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the backing store for users and sessions
type StoreConfig struct {
	Driver  string        // postgres or memory
	Timeout time.Duration // upper bound for a single store operation
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	RunMigrations    bool
}

// SessionConfig holds the credential signing and session lifetime settings.
// TTL drives both the signed credential expiry and the persisted session expiry.
type SessionConfig struct {
	Secret        string
	TTL           time.Duration
	SweepInterval time.Duration // 0 disables the expired-session sweeper
}

// GoogleConfig holds Google identity provider settings
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	JWKSURL      string
	HTTPTimeout  time.Duration
}

// RBACConfig holds the role service notification settings
type RBACConfig struct {
	ServiceURL string // empty disables registration
	Timeout    time.Duration
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	var envErrs envErrors
	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     envErrs.duration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    envErrs.duration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: envErrs.duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Store: StoreConfig{
			Driver:  strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
			Timeout: envErrs.duration("STORE_TIMEOUT", 5*time.Second),
		},
		Database: loadDatabaseConfig(&envErrs),
		Session: SessionConfig{
			Secret:        getEnv("JWT_SECRET", ""),
			TTL:           envErrs.duration("JWT_EXPIRATION", time.Hour),
			SweepInterval: envErrs.duration("SESSION_SWEEP_INTERVAL", 15*time.Minute),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			CallbackURL:  getEnv("GOOGLE_CALLBACK_URL", "http://localhost:3001/auth/google/callback"),
			JWKSURL:      getEnv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
			HTTPTimeout:  envErrs.duration("GOOGLE_HTTP_TIMEOUT", 10*time.Second),
		},
		RBAC: RBACConfig{
			ServiceURL: getEnv("RBAC_SERVICE_URL", ""),
			Timeout:    envErrs.duration("RBAC_TIMEOUT", 5*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*"}),
		},
		FrontEndURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	cfg.envErrors = envErrs

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if len(c.envErrors) > 0 {
		return errors.Join(c.envErrors...)
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		// Database validation (DATABASE_URL or DB_* vars)
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
		if c.Database.ConnectionString == "" {
			if c.Database.User == "" {
				return fmt.Errorf("database user is required")
			}
			if c.Database.Database == "" {
				return fmt.Errorf("database name is required")
			}
		}
	case StoreDriverMemory:
		if c.IsProduction() {
			return fmt.Errorf("memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}

	// Session signing
	if c.Session.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.Session.Secret) < minProductionSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretLength)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session TTL must be positive")
	}
	if c.Session.SweepInterval < 0 {
		return fmt.Errorf("session sweep interval cannot be negative")
	}

	// Google validation (required in production)
	if c.IsProduction() && c.Google.ClientID == "" {
		return fmt.Errorf("google client ID is required in production")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// GoogleEnabled reports whether the Google identity provider is configured
func (c *Config) GoogleEnabled() bool {
	return c.Google.ClientID != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MigrationURL returns a URL-form connection string as required by golang-migrate
func (c *DatabaseConfig) MigrationURL() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars
func loadDatabaseConfig(envErrs *envErrors) DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  envErrs.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			RunMigrations:    getEnvAsBool("DB_RUN_MIGRATIONS", true),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "auth"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "auth_service"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: envErrs.duration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		RunMigrations:   getEnvAsBool("DB_RUN_MIGRATIONS", true),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 3001)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 3001
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration parses Go durations ("90s", "1h30m") plus a whole-day
// suffix ("7d"). An unparseable value returns the default and an error.
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := strings.TrimSpace(os.Getenv(key))
	if valueStr == "" {
		return defaultValue, nil
	}
	if days, ok := strings.CutSuffix(valueStr, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil && n >= 0 {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue, fmt.Errorf("%s: invalid duration %q", key, valueStr)
	}
	return value, nil
}

// envErrors collects variables that were set but could not be parsed
type envErrors []error

func (e *envErrors) duration(key string, defaultValue time.Duration) time.Duration {
	value, err := getEnvAsDuration(key, defaultValue)
	if err != nil {
		*e = append(*e, err)
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var values []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return defaultValue
	}
	return values
}
