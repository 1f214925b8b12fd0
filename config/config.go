// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/artpar/shellgate/domain/remote"
	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SHELLGATE_"

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	OpenAPI   OpenAPIConfig   `yaml:"openapi" envPrefix:"OPENAPI_"`
	Storage   StorageConfig   `yaml:"storage" envPrefix:"STORAGE_"`
	Admin     AdminConfig     `yaml:"admin" envPrefix:"ADMIN_"`
	Remotes   []RemoteConfig  `yaml:"remotes" envPrefix:"REMOTES_"`
	Overrides OverridesConfig `yaml:"overrides" envPrefix:"OVERRIDES_"`
	Loader    LoaderConfig    `yaml:"loader" envPrefix:"LOADER_"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host" env:"HOST"`
	Port         int           `yaml:"port" env:"PORT"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"FORMAT"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"` // Enable /metrics endpoint
	Path    string `yaml:"path" env:"PATH"`       // Custom path (default: /metrics)
}

// OpenAPIConfig configures OpenAPI/Swagger documentation.
type OpenAPIConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// StorageConfig selects the override blob backend.
type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // "memory" or "sqlite"
	DSN    string `yaml:"dsn" env:"DSN"`
}

// AdminConfig protects the /admin API.
// An empty TokenHash leaves the admin API open, which is meant for local development.
type AdminConfig struct {
	TokenHash string `yaml:"token_hash" env:"TOKEN_HASH"` // bcrypt hash of the admin token
}

// RemoteConfig declares one remote module and its environment default.
type RemoteConfig struct {
	Name           string `yaml:"name" env:"NAME"`
	DefaultAddress string `yaml:"default_address" env:"DEFAULT_ADDRESS"`
}

// OverridesConfig configures override naming and the convenience patterns.
type OverridesConfig struct {
	QueryPrefix    string `yaml:"query_prefix" env:"QUERY_PREFIX"`
	CookiePrefix   string `yaml:"cookie_prefix" env:"COOKIE_PREFIX"`
	StoreKey       string `yaml:"store_key" env:"STORE_KEY"`
	StagingPattern string `yaml:"staging_pattern" env:"STAGING_PATTERN"`
	PreviewPattern string `yaml:"preview_pattern" env:"PREVIEW_PATTERN"`
}

// LoaderConfig configures manifest fetching.
type LoaderConfig struct {
	Timeout time.Duration     `yaml:"timeout" env:"TIMEOUT"`
	Headers map[string]string `yaml:"headers"`

	// AllowedHosts limits which hosts manifests are fetched from. Headers
	// are only sent to these hosts.
	AllowedHosts []string `yaml:"allowed_hosts" env:"ALLOWED_HOSTS" envSeparator:","`
}

// Modules converts the configured remotes to domain values.
func (c *Config) Modules() []remote.Module {
	out := make([]remote.Module, 0, len(c.Remotes))
	for _, r := range c.Remotes {
		out = append(out, remote.Module{Name: r.Name, DefaultAddress: r.DefaultAddress})
	}
	return out
}

// Naming returns the configured override naming.
func (c *Config) Naming() remote.Naming {
	return remote.Naming{
		QueryPrefix:  c.Overrides.QueryPrefix,
		CookiePrefix: c.Overrides.CookiePrefix,
	}
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse builds configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from SHELLGATE_* environment
// variables. Remotes are declared as SHELLGATE_REMOTES_<i>_NAME and
// SHELLGATE_REMOTES_<i>_DEFAULT_ADDRESS.
func LoadFromEnv() (*Config, error) {
	return finish(&Config{})
}

// LoadWithFallback loads from file when it exists and falls back to the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	// Environment variables always override file-based configuration.
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "shellgate.db"
	}

	if cfg.Overrides.QueryPrefix == "" {
		cfg.Overrides.QueryPrefix = remote.DefaultQueryPrefix
	}
	if cfg.Overrides.CookiePrefix == "" {
		cfg.Overrides.CookiePrefix = remote.DefaultCookiePrefix
	}
	if cfg.Overrides.StoreKey == "" {
		cfg.Overrides.StoreKey = remote.DefaultStoreKey
	}
	if cfg.Overrides.StagingPattern == "" {
		cfg.Overrides.StagingPattern = remote.DefaultStagingPattern
	}
	if cfg.Overrides.PreviewPattern == "" {
		cfg.Overrides.PreviewPattern = remote.DefaultPreviewPattern
	}

	if cfg.Loader.Timeout == 0 {
		cfg.Loader.Timeout = 10 * time.Second
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/', got %q", cfg.Metrics.Path)
	}

	switch cfg.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("storage.driver must be 'memory' or 'sqlite', got %q", cfg.Storage.Driver)
	}

	if cfg.Admin.TokenHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.Admin.TokenHash)); err != nil {
			return fmt.Errorf("admin.token_hash is not a bcrypt hash: %w", err)
		}
	}

	seen := make(map[string]bool, len(cfg.Remotes))
	for i, r := range cfg.Remotes {
		if r.Name == "" {
			return fmt.Errorf("remotes[%d].name is required", i)
		}
		if strings.ContainsAny(r.Name, " \t/?&=;") {
			return fmt.Errorf("remotes[%d].name %q contains characters not allowed in a query parameter or cookie name", i, r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("remotes[%d].name %q is declared more than once", i, r.Name)
		}
		seen[r.Name] = true
		if r.DefaultAddress == "" {
			return fmt.Errorf("remotes[%d].default_address is required", i)
		}
	}

	if !strings.Contains(cfg.Overrides.StagingPattern, remote.PlaceholderModule) {
		return fmt.Errorf("overrides.staging_pattern must contain %s", remote.PlaceholderModule)
	}
	if !strings.Contains(cfg.Overrides.PreviewPattern, remote.PlaceholderPR) {
		return fmt.Errorf("overrides.preview_pattern must contain %s", remote.PlaceholderPR)
	}

	if cfg.Loader.Timeout < 0 {
		return errors.New("loader.timeout must not be negative")
	}
	if len(cfg.Loader.Headers) > 0 && len(cfg.Loader.AllowedHosts) == 0 {
		return errors.New("loader.headers requires loader.allowed_hosts")
	}

	return nil
}
