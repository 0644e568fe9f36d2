package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/storefront/pkg/logger"
)

// DefaultPath is where Load looks for the YAML overlay.
var DefaultPath = filepath.Join("config", "storefront.yaml")

// Config is the storefront configuration.
type Config struct {
	Supabase SupabaseConfig       `yaml:"supabase"`
	HTTP     HTTPConfig           `yaml:"http"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Redis    RedisConfig          `yaml:"redis"`
	Catalog  CatalogConfig        `yaml:"catalog"`
}

// SupabaseConfig locates the hosted backend.
type SupabaseConfig struct {
	URL         string        `yaml:"url"`
	AnonKey     string        `yaml:"anon_key"`
	RedirectURL string        `yaml:"redirect_url"`
	Timeout     time.Duration `yaml:"timeout"`
	// SessionRefreshSchedule is how often the session expiry is checked;
	// sessions expiring within SessionRefreshMargin are renewed.
	SessionRefreshSchedule string        `yaml:"session_refresh_schedule"`
	SessionRefreshMargin   time.Duration `yaml:"session_refresh_margin"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr              string        `yaml:"addr"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	AuditPath         string        `yaml:"audit_path"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig enables cart persistence and the product cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	CartTTL  time.Duration `yaml:"cart_ttl"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// CatalogConfig controls the background catalog refresh.
type CatalogConfig struct {
	RefreshSchedule string `yaml:"refresh_schedule"`
}

// environment holds the variables read from the process environment. Empty
// values leave the file or default value in place.
type environment struct {
	SupabaseURL     string `env:"SUPABASE_URL"`
	ViteSupabaseURL string `env:"VITE_SUPABASE_URL"`
	AnonKey         string `env:"SUPABASE_ANON_KEY"`
	ViteAnonKey     string `env:"VITE_SUPABASE_ANON_KEY"`
	RedirectURL     string `env:"SUPABASE_REDIRECT_URL"`

	HTTPAddr  string `env:"STOREFRONT_HTTP_ADDR"`
	AuditPath string `env:"STOREFRONT_AUDIT_PATH"`

	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisPrefix   string `env:"REDIS_PREFIX"`

	RefreshSchedule        string `env:"CATALOG_REFRESH_SCHEDULE"`
	SessionRefreshSchedule string `env:"SESSION_REFRESH_SCHEDULE"`
}

// Default returns the built-in configuration. Supabase is left unset.
func Default() *Config {
	return &Config{
		Supabase: SupabaseConfig{
			Timeout:                30 * time.Second,
			SessionRefreshSchedule: "@every 1m",
			SessionRefreshMargin:   5 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:              ":8080",
			RequestsPerSecond: 20,
			Burst:             40,
			ShutdownTimeout:   10 * time.Second,
		},
		Logging: logger.LoggingConfig{Level: "info", Format: "text", Output: "stdout"},
		Redis: RedisConfig{
			Prefix:   "storefront:",
			CartTTL:  30 * 24 * time.Hour,
			CacheTTL: 5 * time.Minute,
		},
		Catalog: CatalogConfig{RefreshSchedule: "@every 5m"},
	}
}

// Load reads .env (if present), the YAML overlay at DefaultPath (if present)
// and the process environment, later sources winning.
func Load() (*Config, error) {
	return LoadFromPath(DefaultPath, ".env")
}

// LoadFromPath is Load with explicit file locations. Missing files are skipped.
func LoadFromPath(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	var env environment
	if err := envdecode.Decode(&env); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	cfg.applyEnvironment(env)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvironment(env environment) {
	override(&c.Supabase.URL, firstNonEmpty(env.SupabaseURL, env.ViteSupabaseURL))
	override(&c.Supabase.AnonKey, firstNonEmpty(env.AnonKey, env.ViteAnonKey))
	override(&c.Supabase.RedirectURL, env.RedirectURL)
	override(&c.HTTP.Addr, env.HTTPAddr)
	override(&c.HTTP.AuditPath, env.AuditPath)
	override(&c.Logging.Level, env.LogLevel)
	override(&c.Logging.Format, env.LogFormat)
	override(&c.Redis.Addr, env.RedisAddr)
	override(&c.Redis.Password, env.RedisPassword)
	override(&c.Redis.Prefix, env.RedisPrefix)
	override(&c.Catalog.RefreshSchedule, env.RefreshSchedule)
	override(&c.Supabase.SessionRefreshSchedule, env.SessionRefreshSchedule)
}

func (c *Config) normalize() {
	c.Supabase.URL = strings.TrimRight(strings.TrimSpace(c.Supabase.URL), "/")
	c.Supabase.AnonKey = strings.TrimSpace(c.Supabase.AnonKey)
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	c.Catalog.RefreshSchedule = strings.TrimSpace(c.Catalog.RefreshSchedule)
	c.Supabase.SessionRefreshSchedule = strings.TrimSpace(c.Supabase.SessionRefreshSchedule)
}

// Validate rejects settings that cannot start a server. Missing Supabase
// credentials are not an error; they select disabled mode.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.HTTP.RequestsPerSecond < 0 || c.HTTP.Burst < 0 {
		return errors.New("http rate limit must not be negative")
	}
	if c.Supabase.SessionRefreshMargin < 0 {
		return errors.New("supabase.session_refresh_margin must not be negative")
	}
	if c.Supabase.URL != "" && !strings.HasPrefix(c.Supabase.URL, "http://") && !strings.HasPrefix(c.Supabase.URL, "https://") {
		return fmt.Errorf("supabase url %q must be http or https", c.Supabase.URL)
	}
	return nil
}

// Enabled reports whether both the Supabase URL and anon key are present.
func (c *Config) Enabled() bool {
	return c.Supabase.URL != "" && c.Supabase.AnonKey != ""
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool {
	return c.Redis.Addr != ""
}

func override(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
