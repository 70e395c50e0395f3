// Package config loads service configuration from the environment, optionally
// overlaid by a JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/jonathan/persona-transformer/internal/adapter"
	"github.com/jonathan/persona-transformer/internal/llm"
	"github.com/jonathan/persona-transformer/internal/logging"
	"github.com/jonathan/persona-transformer/internal/orchestrator"
)

// EnvPrefix prefixes every environment variable, e.g. TRANSFORMER_PORT
const EnvPrefix = "TRANSFORMER"

// Config is the complete service configuration
type Config struct {
	Port        int    `envconfig:"PORT" default:"8080"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"console"`

	// Provider
	Provider        string        `envconfig:"PROVIDER" default:"gemini"`
	APIKey          string        `envconfig:"API_KEY"`
	Model           string        `envconfig:"MODEL"` // overrides the standard tier
	ProviderBaseURL string        `envconfig:"PROVIDER_BASE_URL"`
	ProviderTimeout time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"60s"`
	MaxContentWords int           `envconfig:"MAX_CONTENT_WORDS" default:"20000"`

	// Orchestrator
	Workers        int           `envconfig:"WORKERS" default:"4"`
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" default:"2s"`
	RetryMaxDelay  time.Duration `envconfig:"RETRY_MAX_DELAY" default:"1m"`
	LeaseTTL       time.Duration `envconfig:"LEASE_TTL" default:"5m"`

	// Collaborators
	TemplatesDir   string        `envconfig:"TEMPLATES_DIR"`
	AssetsEndpoint string        `envconfig:"ASSETS_ENDPOINT"`
	AssetsTimeout  time.Duration `envconfig:"ASSETS_TIMEOUT" default:"15s"`
}

// File is the JSON config file. Zero values leave the environment setting in
// place; durations use time.ParseDuration syntax.
type File struct {
	Port            int    `json:"port,omitempty"`
	DatabaseURL     string `json:"database_url,omitempty"`
	LogLevel        string `json:"log_level,omitempty"`
	LogFormat       string `json:"log_format,omitempty"`
	Provider        string `json:"provider,omitempty"`
	APIKey          string `json:"api_key,omitempty"`
	Model           string `json:"model,omitempty"`
	ProviderBaseURL string `json:"provider_base_url,omitempty"`
	ProviderTimeout string `json:"provider_timeout,omitempty"`
	MaxContentWords int    `json:"max_content_words,omitempty"`
	Workers         int    `json:"workers,omitempty"`
	MaxRetries      *int   `json:"max_retries,omitempty"` // zero is meaningful
	RetryBaseDelay  string `json:"retry_base_delay,omitempty"`
	RetryMaxDelay   string `json:"retry_max_delay,omitempty"`
	LeaseTTL        string `json:"lease_ttl,omitempty"`
	TemplatesDir    string `json:"templates_dir,omitempty"`
	AssetsEndpoint  string `json:"assets_endpoint,omitempty"`
	AssetsTimeout   string `json:"assets_timeout,omitempty"`
}

// FromEnv reads the configuration from the environment
func FromEnv() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return cfg, nil
}

// Load reads the environment, applies the JSON file at path when path is not
// empty and validates the result
func Load(path string) (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := f.Apply(cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a JSON config file
func LoadFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	return &f, nil
}

// Apply overlays the file's non-zero settings onto cfg
func (f *File) Apply(cfg *Config) error {
	setString(&cfg.DatabaseURL, f.DatabaseURL)
	setString(&cfg.LogLevel, f.LogLevel)
	setString(&cfg.LogFormat, f.LogFormat)
	setString(&cfg.Provider, f.Provider)
	setString(&cfg.APIKey, f.APIKey)
	setString(&cfg.Model, f.Model)
	setString(&cfg.ProviderBaseURL, f.ProviderBaseURL)
	setString(&cfg.TemplatesDir, f.TemplatesDir)
	setString(&cfg.AssetsEndpoint, f.AssetsEndpoint)

	if f.Port != 0 {
		cfg.Port = f.Port
	}
	if f.MaxContentWords != 0 {
		cfg.MaxContentWords = f.MaxContentWords
	}
	if f.Workers != 0 {
		cfg.Workers = f.Workers
	}
	if f.MaxRetries != nil {
		cfg.MaxRetries = *f.MaxRetries
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"provider_timeout", f.ProviderTimeout, &cfg.ProviderTimeout},
		{"retry_base_delay", f.RetryBaseDelay, &cfg.RetryBaseDelay},
		{"retry_max_delay", f.RetryMaxDelay, &cfg.RetryMaxDelay},
		{"lease_ttl", f.LeaseTTL, &cfg.LeaseTTL},
		{"assets_timeout", f.AssetsTimeout, &cfg.AssetsTimeout},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config error: '%s': %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks that the configuration has usable values. Credentials are
// checked by the commands that need them.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 1 and 65535")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.LogFormat != logging.FormatConsole && c.LogFormat != logging.FormatJSON {
		return fmt.Errorf("config error: 'log_format' must be %s or %s", logging.FormatConsole, logging.FormatJSON)
	}
	if _, err := llm.ParseProvider(c.Provider); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if c.ProviderTimeout <= 0 {
		return fmt.Errorf("config error: 'provider_timeout' must be positive")
	}
	if c.MaxContentWords <= 0 {
		return fmt.Errorf("config error: 'max_content_words' must be positive")
	}
	if c.Workers < 1 {
		return fmt.Errorf("config error: 'workers' must be at least 1")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("config error: 'max_retries' must be non-negative")
	}
	if c.RetryBaseDelay <= 0 {
		return fmt.Errorf("config error: 'retry_base_delay' must be positive")
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("config error: 'retry_max_delay' must not be below 'retry_base_delay'")
	}
	if c.LeaseTTL <= 0 {
		return fmt.Errorf("config error: 'lease_ttl' must be positive")
	}
	if c.TemplatesDir != "" {
		if _, err := os.Stat(c.TemplatesDir); os.IsNotExist(err) {
			return fmt.Errorf("config error: templates directory not found: %s", c.TemplatesDir)
		}
	}
	return nil
}

// LLM returns the provider configuration
func (c *Config) LLM() (*llm.Config, error) {
	p, err := llm.ParseProvider(c.Provider)
	if err != nil {
		return nil, err
	}
	cfg := llm.ConfigFor(p)
	if c.Model != "" {
		cfg = cfg.WithModel(llm.TierStandard, c.Model)
	}
	cfg.BaseURL = c.ProviderBaseURL
	return cfg, nil
}

// Adapter returns the adapter settings
func (c *Config) Adapter() adapter.Config {
	cfg := adapter.DefaultConfig()
	cfg.ProviderTimeout = c.ProviderTimeout
	cfg.MaxContentWords = c.MaxContentWords
	return cfg
}

// Orchestrator returns the worker pool and retry settings
func (c *Config) Orchestrator() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()
	cfg.Workers = c.Workers
	cfg.MaxRetries = c.MaxRetries
	cfg.BaseDelay = c.RetryBaseDelay
	cfg.MaxDelay = c.RetryMaxDelay
	cfg.LeaseTTL = c.LeaseTTL
	return cfg
}
