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

	"github.com/goccy/go-yaml"
)

// Config holds the application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Session  SessionConfig  `yaml:"session"`
	Janitor  JanitorConfig  `yaml:"janitor"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// AppConfig holds app-specific configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host           string          `yaml:"host"`
	Port           int             `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	CookieSecure   bool            `yaml:"cookie_secure"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig holds the per-IP limiter settings applied to the HTTP server
type RateLimitConfig struct {
	Max        int `yaml:"max"`
	Expiration int `yaml:"expiration"` // seconds
}

// AuthConfig holds token signing configuration
type AuthConfig struct {
	KeysPath  string   `yaml:"keys_path"`
	ActiveKID string   `yaml:"active_kid"`
	Issuer    string   `yaml:"issuer"`
	Audience  []string `yaml:"audience"`
}

// SessionConfig holds refresh-token session lifecycle settings
type SessionConfig struct {
	AccessTTL        Duration `yaml:"access_ttl"`
	RefreshTTL       Duration `yaml:"refresh_ttl"`
	MaxActivePerUser int      `yaml:"max_active_per_user"`
	Retention        Duration `yaml:"retention"`
	StoreTimeout     Duration `yaml:"store_timeout"`
}

// JanitorConfig holds the cleanup scheduler settings
type JanitorConfig struct {
	Disabled      bool     `yaml:"disabled"`
	LightInterval Duration `yaml:"light_interval"`
	DeepInterval  Duration `yaml:"deep_interval"`
	PassTimeout   Duration `yaml:"pass_timeout"`
	LockTTL       Duration `yaml:"lock_ttl"`
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds redis-specific configuration.
// An empty host disables every redis-backed feature.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggingConfig holds logging-specific configuration
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

const (
	DefaultAccessTTL        = 15 * time.Minute
	DefaultRefreshTTL       = 7 * 24 * time.Hour
	DefaultMaxActivePerUser = 5
	DefaultRetention        = 30 * 24 * time.Hour
	DefaultStoreTimeout     = 5 * time.Second
	DefaultLightInterval    = time.Hour
	DefaultDeepInterval     = 24 * time.Hour
	DefaultPassTimeout      = 2 * time.Minute
	DefaultLockTTL          = 10 * time.Minute
)

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ApplyDefaults fills zero values with the documented defaults
func (c *Config) ApplyDefaults() {
	if c.Session.AccessTTL == 0 {
		c.Session.AccessTTL = Duration(DefaultAccessTTL)
	}
	if c.Session.RefreshTTL == 0 {
		c.Session.RefreshTTL = Duration(DefaultRefreshTTL)
	}
	if c.Session.MaxActivePerUser == 0 {
		c.Session.MaxActivePerUser = DefaultMaxActivePerUser
	}
	if c.Session.Retention == 0 {
		c.Session.Retention = Duration(DefaultRetention)
	}
	if c.Session.StoreTimeout == 0 {
		c.Session.StoreTimeout = Duration(DefaultStoreTimeout)
	}
	if c.Janitor.LightInterval == 0 {
		c.Janitor.LightInterval = Duration(DefaultLightInterval)
	}
	if c.Janitor.DeepInterval == 0 {
		c.Janitor.DeepInterval = Duration(DefaultDeepInterval)
	}
	if c.Janitor.PassTimeout == 0 {
		c.Janitor.PassTimeout = Duration(DefaultPassTimeout)
	}
	if c.Janitor.LockTTL == 0 {
		c.Janitor.LockTTL = Duration(DefaultLockTTL)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate rejects settings the session lifecycle cannot work with
func (c *Config) Validate() error {
	var errs []error
	if c.Session.AccessTTL < 0 {
		errs = append(errs, errors.New("session.access_ttl must be positive"))
	}
	if c.Session.RefreshTTL < 0 {
		errs = append(errs, errors.New("session.refresh_ttl must be positive"))
	}
	if c.Session.AccessTTL > 0 && c.Session.RefreshTTL > 0 && c.Session.AccessTTL >= c.Session.RefreshTTL {
		errs = append(errs, errors.New("session.access_ttl must be shorter than session.refresh_ttl"))
	}
	if c.Session.MaxActivePerUser < 0 {
		errs = append(errs, errors.New("session.max_active_per_user must be positive"))
	}
	if c.Session.Retention < 0 {
		errs = append(errs, errors.New("session.retention must be positive"))
	}
	if c.Janitor.LightInterval < 0 || c.Janitor.DeepInterval < 0 {
		errs = append(errs, errors.New("janitor intervals must be positive"))
	}
	return errors.Join(errs...)
}

// Address returns the server address in the format "host:port"
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Enabled reports whether a redis host is configured
func (r *RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Host) != ""
}

// Address returns the redis address in the format "host:port"
func (r *RedisConfig) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// quoteDSNValue quotes a DSN value if it contains spaces or special characters.
// Single quotes inside the value are escaped by doubling them.
func quoteDSNValue(value string) string {
	needsQuoting := value == ""
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '.' || r == '-' || r == '_' || r == '/' || r == '@' || r == ':' {
			continue
		}
		needsQuoting = true
		break
	}

	if !needsQuoting {
		return value
	}

	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// DSN returns the database connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteDSNValue(d.Host),
		d.Port,
		quoteDSNValue(d.User),
		quoteDSNValue(d.Password),
		quoteDSNValue(d.DBName),
		quoteDSNValue(d.SSLMode),
	)
}

// URL returns the database connection URL in postgres:// format for golang-migrate
func (d *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s&search_path=public", url.QueryEscape(d.SSLMode)),
	}

	return u.String()
}
