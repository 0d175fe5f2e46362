// Package config loads kitstok settings from an optional YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"

	"github.com/erazemk/kitstok/internal/inventory"
	"github.com/erazemk/kitstok/internal/lifecycle"
)

// Storage backends.
const (
	BackendGitHub = "github"
	BackendLocal  = "local"
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP server and local database.
type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	DBPath        string        `yaml:"db_path"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	SecureCookies bool          `yaml:"secure_cookies"`
}

// StoreConfig selects where the datasets live.
type StoreConfig struct {
	Backend     string        `yaml:"backend"`
	ActivePath  string        `yaml:"active_path"`
	ExpiredPath string        `yaml:"expired_path"`
	DeletedPath string        `yaml:"deleted_path"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	GitHub      GitHubConfig  `yaml:"github"`
}

// GitHubConfig configures the GitHub contents backend.
type GitHubConfig struct {
	Token     string        `yaml:"token"`
	Repo      string        `yaml:"repo"`
	Branch    string        `yaml:"branch"`
	APIURL    string        `yaml:"api_url"`
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// AuthConfig holds the single login account.
type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// AlertsConfig configures the expiry rules and the SMS gateway.
type AlertsConfig struct {
	WarnHorizonDays int          `yaml:"warn_horizon_days"`
	Timezone        string       `yaml:"timezone"`
	Duplicates      string       `yaml:"duplicates"`
	To              string       `yaml:"to"`
	Twilio          TwilioConfig `yaml:"twilio"`
}

// TwilioConfig holds the SMS gateway credentials.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	From       string `yaml:"from"`
	APIURL     string `yaml:"api_url"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:       ":8080",
			DBPath:     "kitstok.sqlite3",
			SessionTTL: 24 * time.Hour,
		},
		Store: StoreConfig{
			Backend:     BackendGitHub,
			ActivePath:  "data/kits.csv",
			ExpiredPath: "data/expired.csv",
			DeletedPath: "data/deleted.csv",
			HTTPTimeout: 30 * time.Second,
			GitHub: GitHubConfig{
				APIURL:    "https://api.github.com",
				CacheSize: 32,
				CacheTTL:  10 * time.Minute,
			},
		},
		Alerts: AlertsConfig{
			WarnHorizonDays: lifecycle.DefaultWarnHorizon,
			Timezone:        "Europe/Istanbul",
			Duplicates:      string(inventory.DuplicatesReject),
			Twilio: TwilioConfig{
				APIURL: "https://api.twilio.com",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (if it exists) over the defaults and applies environment
// overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("reading config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads the environment. The unprefixed names are the ones
// earlier deployments used.
func (c *Config) applyEnvOverrides() error {
	setString(&c.Store.GitHub.Token, "GITHUB_TOKEN")
	setString(&c.Store.GitHub.Repo, "GITHUB_REPO")
	setString(&c.Store.ActivePath, "CSV_PATH")
	setString(&c.Auth.Username, "AUTH_USERNAME")
	setString(&c.Auth.PasswordHash, "AUTH_PASSWORD_HASH")
	setString(&c.Alerts.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	setString(&c.Alerts.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	setString(&c.Alerts.Twilio.From, "TWILIO_FROM")
	setString(&c.Alerts.To, "ALERT_TO")

	setString(&c.Server.Addr, "KITSTOK_ADDR")
	setString(&c.Server.DBPath, "KITSTOK_DB")
	setString(&c.Store.Backend, "KITSTOK_BACKEND")
	setString(&c.Store.ExpiredPath, "KITSTOK_EXPIRED_PATH")
	setString(&c.Store.DeletedPath, "KITSTOK_DELETED_PATH")
	setString(&c.Store.GitHub.Branch, "KITSTOK_GITHUB_BRANCH")
	setString(&c.Store.GitHub.APIURL, "KITSTOK_GITHUB_API_URL")
	setString(&c.Alerts.Timezone, "KITSTOK_TIMEZONE")
	setString(&c.Alerts.Duplicates, "KITSTOK_DUPLICATES")
	setString(&c.Alerts.Twilio.APIURL, "KITSTOK_TWILIO_API_URL")
	setString(&c.Logging.Level, "KITSTOK_LOG_LEVEL")
	setString(&c.Logging.Format, "KITSTOK_LOG_FORMAT")
	setString(&c.Logging.File, "KITSTOK_LOG_FILE")

	var errs []error
	errs = append(errs,
		setInt(&c.Alerts.WarnHorizonDays, "KITSTOK_WARN_DAYS"),
		setDuration(&c.Store.HTTPTimeout, "KITSTOK_HTTP_TIMEOUT"),
		setDuration(&c.Server.SessionTTL, "KITSTOK_SESSION_TTL"),
		setBool(&c.Server.SecureCookies, "KITSTOK_SECURE_COOKIES"),
	)
	return errors.Join(errs...)
}

// Validate checks that the configuration can run the server.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendGitHub:
		if c.Store.GitHub.Token == "" {
			errs = append(errs, errors.New("GITHUB_TOKEN is required for the github backend"))
		}
		if c.Store.GitHub.Repo == "" {
			errs = append(errs, errors.New("GITHUB_REPO is required for the github backend"))
		}
	case BackendLocal:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}

	paths := map[string]bool{}
	for _, p := range []string{c.Store.ActivePath, c.Store.ExpiredPath, c.Store.DeletedPath} {
		if p == "" {
			errs = append(errs, errors.New("dataset paths must not be empty"))
			break
		}
		if paths[p] {
			errs = append(errs, fmt.Errorf("dataset path %q used twice", p))
		}
		paths[p] = true
	}

	if c.Alerts.WarnHorizonDays < 0 {
		errs = append(errs, fmt.Errorf("warn horizon must not be negative, got %d", c.Alerts.WarnHorizonDays))
	}
	if _, err := inventory.ParseDuplicatePolicy(c.Alerts.Duplicates); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if f := c.Logging.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("unknown log format %q, want text or json", f))
	}

	return errors.Join(errs...)
}

// ValidateAuth checks that a login account is configured.
func (c *Config) ValidateAuth() error {
	var errs []error
	if c.Auth.Username == "" {
		errs = append(errs, errors.New("AUTH_USERNAME is required"))
	}
	if c.Auth.PasswordHash == "" {
		errs = append(errs, errors.New("AUTH_PASSWORD_HASH is required"))
	}
	return errors.Join(errs...)
}

// Location returns the time zone used to decide what "today" is.
func (c *Config) Location() (*time.Location, error) {
	if c.Alerts.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Alerts.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Alerts.Timezone, err)
	}
	return loc, nil
}

// ParseLogLevel converts a level name to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q, want debug, info, warn or error", level)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q (use Go format: 30s, 1h, 15m)", key, v)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, v)
	}
	*dst = b
	return nil
}
