// Package config provides configuration loading and validation for the CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Defaults applied when neither the config file nor CLI flags set a value.
const (
	DefaultWorkers             = 3
	DefaultRequestDelaySeconds = 1.0
	DefaultTimeoutSeconds      = 15
	DefaultMaxRetries          = 3
	DefaultCooldownMinutes     = 30
	DefaultMaxPages            = 25
	DefaultOutputDir           = "output"
)

// Config represents the CLI configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults or CLI flags.
type Config struct {
	// Pipeline behavior
	Workers             int     `json:"workers,omitempty" validate:"omitempty,min=1,max=64"`
	RequestDelaySeconds float64 `json:"request_delay_seconds,omitempty" validate:"omitempty,min=0"`
	TimeoutSeconds      int     `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=300"`
	MaxPages            int     `json:"max_pages,omitempty" validate:"omitempty,min=1,max=500"`

	// Retry behavior
	MaxRetries      int `json:"max_retries,omitempty" validate:"omitempty,min=1,max=10"`
	CooldownMinutes int `json:"rate_limit_cooldown_minutes,omitempty" validate:"omitempty,min=1"`

	// EmptyIsFailure treats a run of the full strategy chain that yields
	// zero job URLs as a parse error instead of an empty success.
	EmptyIsFailure bool `json:"empty_is_failure,omitempty"`

	// Output
	OutputDir string `json:"output_dir,omitempty"`

	// Optional PostgreSQL persistence; empty disables it.
	DatabaseURL string `json:"database_url,omitempty"`

	// Verbose enables debug logging.
	Verbose bool `json:"verbose,omitempty"`
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
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

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// Validate checks that the configuration has valid values.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) && len(invalid) > 0 {
			fe := invalid[0]
			return fmt.Errorf("config error: field %q failed %q validation", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// MergeWithDefaults returns a new Config with zero-valued fields filled
// from defaults. Used to apply config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	if result.Workers == 0 {
		result.Workers = defaults.Workers
	}
	if result.RequestDelaySeconds == 0 {
		result.RequestDelaySeconds = defaults.RequestDelaySeconds
	}
	if result.TimeoutSeconds == 0 {
		result.TimeoutSeconds = defaults.TimeoutSeconds
	}
	if result.MaxPages == 0 {
		result.MaxPages = defaults.MaxPages
	}
	if result.MaxRetries == 0 {
		result.MaxRetries = defaults.MaxRetries
	}
	if result.CooldownMinutes == 0 {
		result.CooldownMinutes = defaults.CooldownMinutes
	}
	if result.OutputDir == "" {
		result.OutputDir = defaults.OutputDir
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Workers:             DefaultWorkers,
		RequestDelaySeconds: DefaultRequestDelaySeconds,
		TimeoutSeconds:      DefaultTimeoutSeconds,
		MaxPages:            DefaultMaxPages,
		MaxRetries:          DefaultMaxRetries,
		CooldownMinutes:     DefaultCooldownMinutes,
		OutputDir:           DefaultOutputDir,
	}
}

// RequestDelay returns the inter-request delay as a duration.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySeconds * float64(time.Second))
}

// Timeout returns the per-request timeout as a duration.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Cooldown returns the rate-limit cooldown as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}
