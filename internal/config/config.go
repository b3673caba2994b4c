// Package config loads the web front end configuration: defaults, then an
// optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config is the complete runtime configuration.
type Config struct {
	Env      string         `yaml:"env"`
	LogLevel string         `yaml:"log_level"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Gate     GateConfig     `yaml:"gate"`
	Store    StoreConfig    `yaml:"store"`
	Upstream UpstreamConfig `yaml:"upstream"`
}

// HTTPConfig configures the listener and request hardening.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxBodyBytes caps request bodies; CSV uploads pass through this limit.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// RateBurst and RatePerSecond bound credential endpoints per client IP.
	RateBurst     int `yaml:"rate_burst"`
	RatePerSecond int `yaml:"rate_per_second"`
	// TrustForwardedFor keys rate limits on X-Forwarded-For. Enable only
	// behind a proxy that overwrites the header.
	TrustForwardedFor bool `yaml:"trust_forwarded_for"`
}

// AuthConfig configures token signing and the session cookie.
type AuthConfig struct {
	// Secret signs session tokens. Required outside development.
	Secret       string        `yaml:"secret"`
	Issuer       string        `yaml:"issuer"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	CookieName   string        `yaml:"cookie_name"`
	CookieSecure bool          `yaml:"cookie_secure"`
	PasswordCost int           `yaml:"password_cost"`
}

// GateConfig configures which navigations require a session.
type GateConfig struct {
	LoginPath         string   `yaml:"login_path"`
	ProtectedPrefixes []string `yaml:"protected_prefixes"`
	PublicPaths       []string `yaml:"public_paths"`
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoMigrate bool   `yaml:"auto_migrate"`
}

// UpstreamConfig points at the document/chat API.
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns a Config with production-safe defaults.
func Default() *Config {
	return &Config{
		Env:      EnvProduction,
		LogLevel: "info",
		HTTP: HTTPConfig{
			Addr:            ":3000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    32 << 20,
			RateBurst:       10,
			RatePerSecond:   5,
		},
		Auth: AuthConfig{
			Issuer:       "chatdocs",
			TokenTTL:     time.Hour,
			CookieName:   "access_token",
			CookieSecure: true,
		},
		Gate: GateConfig{
			LoginPath:         "/login",
			ProtectedPrefixes: []string{"/documents", "/profile", "/dashboard"},
			PublicPaths:       []string{"/", "/login", "/register"},
		},
		Store: StoreConfig{
			Driver:      DriverMemory,
			AutoMigrate: true,
		},
		Upstream: UpstreamConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration. An empty path skips the YAML file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("CHATDOCS_ENV", &c.Env)
	str("CHATDOCS_LOG_LEVEL", &c.LogLevel)
	str("CHATDOCS_HTTP_ADDR", &c.HTTP.Addr)
	// JWT_SECRET is the name the previous deployment used.
	str("JWT_SECRET", &c.Auth.Secret)
	str("CHATDOCS_AUTH_SECRET", &c.Auth.Secret)
	if err := dur("CHATDOCS_AUTH_TOKEN_TTL", &c.Auth.TokenTTL); err != nil {
		return err
	}
	if v, ok := lookup("CHATDOCS_COOKIE_SECURE"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("CHATDOCS_COOKIE_SECURE: %w", err)
		}
		c.Auth.CookieSecure = b
	}
	str("CHATDOCS_STORE_DRIVER", &c.Store.Driver)
	str("CHATDOCS_STORE_DSN", &c.Store.DSN)
	str("CHATDOCS_UPSTREAM_URL", &c.Upstream.BaseURL)
	if err := dur("CHATDOCS_UPSTREAM_TIMEOUT", &c.Upstream.Timeout); err != nil {
		return err
	}
	if v, ok := lookup("CHATDOCS_PROTECTED_PREFIXES"); ok && strings.TrimSpace(v) != "" {
		c.Gate.ProtectedPrefixes = splitList(v)
	}
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("config: unknown env %q", c.Env)
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("config: http.addr is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: auth.token_ttl must be positive")
	}
	if strings.TrimSpace(c.Auth.CookieName) == "" {
		return errors.New("config: auth.cookie_name is required")
	}
	if !strings.HasPrefix(c.Gate.LoginPath, "/") {
		return fmt.Errorf("config: gate.login_path %q must be an absolute path", c.Gate.LoginPath)
	}
	for _, p := range c.Gate.ProtectedPrefixes {
		if !strings.HasPrefix(p, "/") || p == "/" {
			return fmt.Errorf("config: protected prefix %q must be an absolute path other than /", p)
		}
		if p == c.Gate.LoginPath {
			return fmt.Errorf("config: login path %q cannot be protected", p)
		}
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("config: store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: upstream.base_url %q must be an absolute http(s) URL", c.Upstream.BaseURL)
	}
	return nil
}

// AllowEphemeralSecret reports whether a missing signing secret may be
// replaced with a random one.
func (c *Config) AllowEphemeralSecret() bool {
	return c.Env == EnvDevelopment
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
