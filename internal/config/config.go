// Package config provides configuration management for the items service.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	// Loads a .env file from the working directory, if present, before Load reads the environment.
	_ "github.com/joho/godotenv/autoload"
)

// Default configuration values.
const (
	DefaultServerPort      = 8080
	DefaultProbePort       = 9090
	DefaultLogLevel        = "info"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMetricsEnabled  = true
	DefaultStoreBackend    = StoreBackendPostgres
	DefaultCORSOrigins     = "*"

	DefaultDBHost           = "localhost"
	DefaultDBPort           = 5432
	DefaultDBUser           = "postgres"
	DefaultDBName           = "items"
	DefaultDBSSLMode        = "disable"
	DefaultDBMode           = DBModeSingle
	DefaultDBMaxConns       = 10
	DefaultDBConnectTimeout = 10 * time.Second
	DefaultDBKeepalive      = 30 * time.Second
)

// Store backends.
const (
	StoreBackendPostgres = "postgres"
	StoreBackendMemory   = "memory"
)

// Connection handle modes.
const (
	DBModePool   = "pool"
	DBModeSingle = "single"
)

// Environment variable names.
const (
	EnvServerPort      = "APP_SERVER_PORT"
	EnvProbePort       = "APP_PROBE_PORT"
	EnvLogLevel        = "APP_LOG_LEVEL"
	EnvShutdownTimeout = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled  = "APP_METRICS_ENABLED"
	EnvStoreBackend    = "APP_STORE_BACKEND"
	EnvCORSOrigins     = "APP_CORS_ORIGINS"

	EnvDBURL            = "APP_DB_URL"
	EnvDBHost           = "APP_DB_HOST"
	EnvDBPort           = "APP_DB_PORT"
	EnvDBUser           = "APP_DB_USER"
	EnvDBPassword       = "APP_DB_PASSWORD" //nolint:gosec // env var name, not a credential
	EnvDBName           = "APP_DB_NAME"
	EnvDBSSLMode        = "APP_DB_SSLMODE"
	EnvDBMode           = "APP_DB_MODE"
	EnvDBMaxConns       = "APP_DB_MAX_CONNS"
	EnvDBConnectTimeout = "APP_DB_CONNECT_TIMEOUT"
	EnvDBKeepalive      = "APP_DB_KEEPALIVE"
)

// Config holds the application configuration.
// It is resolved once by Load and treated as read-only afterwards.
type Config struct {
	// Server settings.
	ServerPort      int
	ProbePort       int // Probe server port (0 = disabled).
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool

	// StoreBackend selects the item repository: postgres or memory.
	StoreBackend string

	// CORSOrigins lists the browser origins allowed to call the API.
	// "*" allows any origin.
	CORSOrigins []string

	Database DatabaseConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL, when set, is used verbatim and the discrete fields are ignored.
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	// Mode is single (one serialized connection) or pool.
	Mode           string
	MaxConns       int
	ConnectTimeout time.Duration
	// Keepalive is the liveness check interval of a single-mode connection.
	Keepalive time.Duration
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidProbePort       = errors.New(
		"probe port must be between 0 and 65535",
	)
	ErrProbePortConflict = errors.New(
		"probe port must differ from server port when probe port is not 0",
	)
	ErrInvalidStoreBackend = errors.New("store backend must be one of: postgres, memory")
	ErrMissingCORSOrigins  = errors.New("at least one CORS origin must be set")
	ErrInvalidCORSOrigin   = errors.New("CORS origin must be * or scheme://host[:port]")
	ErrInvalidDBPort       = errors.New("database port must be between 1 and 65535")
	ErrInvalidDBMode       = errors.New("database mode must be one of: pool, single")
	ErrInvalidDBMaxConns   = errors.New("database max connections must be positive")
	ErrInvalidDBTimeout    = errors.New("database connect timeout must be positive")
	ErrInvalidDBKeepalive  = errors.New("database keepalive must be positive")
	ErrMissingDBTarget     = errors.New("database host and name must be set when no database URL is given")
)

// Load reads configuration from environment variables with defaults.
// Environment variables have priority over default values.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:      DefaultServerPort,
		ProbePort:       DefaultProbePort,
		LogLevel:        DefaultLogLevel,
		ShutdownTimeout: DefaultShutdownTimeout,
		MetricsEnabled:  DefaultMetricsEnabled,
		StoreBackend:    DefaultStoreBackend,
		CORSOrigins:     splitList(DefaultCORSOrigins),
		Database: DatabaseConfig{
			Host:           DefaultDBHost,
			Port:           DefaultDBPort,
			User:           DefaultDBUser,
			Name:           DefaultDBName,
			SSLMode:        DefaultDBSSLMode,
			Mode:           DefaultDBMode,
			MaxConns:       DefaultDBMaxConns,
			ConnectTimeout: DefaultDBConnectTimeout,
			Keepalive:      DefaultDBKeepalive,
		},
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	if err := c.loadDatabaseEnv(); err != nil {
		return err
	}

	return nil
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if val := os.Getenv(EnvServerPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvServerPort, err)
		}
		c.ServerPort = port
	}

	if val := os.Getenv(EnvProbePort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvProbePort, err)
		}
		c.ProbePort = port
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if val := os.Getenv(EnvShutdownTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvShutdownTimeout, err)
		}
		c.ShutdownTimeout = timeout
	}

	if val := os.Getenv(EnvMetricsEnabled); val != "" {
		enabled, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvMetricsEnabled, err)
		}
		c.MetricsEnabled = enabled
	}

	if val := os.Getenv(EnvStoreBackend); val != "" {
		c.StoreBackend = val
	}

	if val := os.Getenv(EnvCORSOrigins); val != "" {
		c.CORSOrigins = splitList(val)
	}

	return nil
}

// splitList parses a comma-separated list, dropping blank entries.
func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadDatabaseEnv loads PostgreSQL environment variables.
func (c *Config) loadDatabaseEnv() error {
	db := &c.Database

	if val := os.Getenv(EnvDBURL); val != "" {
		db.URL = val
	}

	if val := os.Getenv(EnvDBHost); val != "" {
		db.Host = val
	}

	if val := os.Getenv(EnvDBPort); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvDBPort, err)
		}
		db.Port = port
	}

	if val := os.Getenv(EnvDBUser); val != "" {
		db.User = val
	}

	if val := os.Getenv(EnvDBPassword); val != "" {
		db.Password = val
	}

	if val := os.Getenv(EnvDBName); val != "" {
		db.Name = val
	}

	if val := os.Getenv(EnvDBSSLMode); val != "" {
		db.SSLMode = val
	}

	if val := os.Getenv(EnvDBMode); val != "" {
		db.Mode = val
	}

	if val := os.Getenv(EnvDBMaxConns); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvDBMaxConns, err)
		}
		db.MaxConns = n
	}

	if val := os.Getenv(EnvDBConnectTimeout); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvDBConnectTimeout, err)
		}
		db.ConnectTimeout = timeout
	}

	if val := os.Getenv(EnvDBKeepalive); val != "" {
		interval, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", EnvDBKeepalive, err)
		}
		db.Keepalive = interval
	}

	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if c.StoreBackend != StoreBackendPostgres && c.StoreBackend != StoreBackendMemory {
		return ErrInvalidStoreBackend
	}

	if err := validateCORSOrigins(c.CORSOrigins); err != nil {
		return err
	}

	// The memory backend never opens a connection.
	if c.StoreBackend == StoreBackendPostgres {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	if c.ProbePort != 0 && (c.ProbePort < 1 || c.ProbePort > 65535) {
		return ErrInvalidProbePort
	}

	if c.ProbePort != 0 && c.ProbePort == c.ServerPort {
		return ErrProbePortConflict
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

// validateCORSOrigins requires each origin to be "*" or a bare
// scheme://host[:port] as browsers send it.
func validateCORSOrigins(origins []string) error {
	if len(origins) == 0 {
		return ErrMissingCORSOrigins
	}

	for _, origin := range origins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") || u.RawQuery != "" {
			return fmt.Errorf("%w: %q", ErrInvalidCORSOrigin, origin)
		}
	}

	return nil
}

// Validate checks the database settings.
func (d *DatabaseConfig) Validate() error {
	if d.Mode != DBModePool && d.Mode != DBModeSingle {
		return ErrInvalidDBMode
	}

	if d.MaxConns < 1 {
		return ErrInvalidDBMaxConns
	}

	if d.ConnectTimeout <= 0 {
		return ErrInvalidDBTimeout
	}

	if d.Keepalive <= 0 {
		return ErrInvalidDBKeepalive
	}

	if d.URL != "" {
		return nil
	}

	if d.Host == "" || d.Name == "" {
		return ErrMissingDBTarget
	}

	if d.Port < 1 || d.Port > 65535 {
		return ErrInvalidDBPort
	}

	return nil
}

// DSN returns the connection string. URL wins over the discrete fields.
func (d *DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.Password == "" {
		u.User = url.User(d.User)
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{d.SSLMode}}.Encode()
	}

	return u.String()
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// ProbeAddress returns the probe server address in host:port format.
func (c *Config) ProbeAddress() string {
	return fmt.Sprintf(":%d", c.ProbePort)
}
