package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied. It is a convenience wrapper around
// [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// Soft misconfiguration (missing optional pieces) is logged, not returned.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Gateway.BaseURL == "" {
		errs = append(errs, errors.New("gateway.base_url must be set"))
	} else if u, err := url.Parse(cfg.Gateway.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("gateway.base_url %q is not an absolute URL", cfg.Gateway.BaseURL))
	}

	if cfg.Broker.Retries < 0 {
		errs = append(errs, fmt.Errorf("broker.retries must not be negative, got %d", cfg.Broker.Retries))
	}
	if cfg.Broker.Timeout < 0 {
		errs = append(errs, fmt.Errorf("broker.timeout must not be negative, got %s", cfg.Broker.Timeout))
	}
	if cfg.Broker.CacheCapacity < 0 {
		errs = append(errs, fmt.Errorf("broker.cache_capacity must not be negative, got %d", cfg.Broker.CacheCapacity))
	}
	if cfg.Broker.DefaultTimezone != "" {
		if _, err := time.LoadLocation(cfg.Broker.DefaultTimezone); err != nil {
			errs = append(errs, fmt.Errorf("broker.default_timezone %q is not a valid IANA zone", cfg.Broker.DefaultTimezone))
		}
	}

	// Soft warnings — the server still starts, with reduced capability.
	if cfg.Gateway.APIKey == "" {
		slog.Warn("gateway.api_key is empty; all remote invocations will fail until it is configured")
	}
	if cfg.Storage.PostgresDSN == "" {
		slog.Warn("storage.postgres_dsn is empty; OAuth integrations and search history will be unavailable")
	}
	if cfg.Integrations.Gmail.ClientID == "" || cfg.Integrations.Gmail.ClientSecret == "" {
		slog.Warn("integrations.gmail oauth client is incomplete; gmail tools will be unavailable")
	}
	if cfg.Integrations.Calendar.ClientID == "" || cfg.Integrations.Calendar.ClientSecret == "" {
		slog.Warn("integrations.calendar oauth client is incomplete; calendar tools will be unavailable")
	}
	if cfg.Integrations.Search.APIKey == "" {
		slog.Warn("integrations.search.api_key is empty; web search will be unavailable")
	}

	return errors.Join(errs...)
}
