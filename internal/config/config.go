// Package config provides the configuration schema, loader, and validation
// for the Concierge tool-invocation broker.
package config

import "time"

// LogLevel controls log verbosity for the Concierge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for Concierge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Gateway      GatewayConfig      `yaml:"gateway"`
	Integrations IntegrationsConfig `yaml:"integrations"`
	Broker       BrokerConfig       `yaml:"broker"`
	Storage      StorageConfig      `yaml:"storage"`
}

// ServerConfig holds network and logging settings for the Concierge server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	// Serves the health and metrics endpoints.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// GatewayConfig describes the MCP gateway that hosts the remote integration
// servers. Each integration is reached at
// <base_url>/<integration-path>/mcp with per-call configuration encoded in
// the query string.
type GatewayConfig struct {
	// BaseURL is the gateway origin, e.g. "https://server.smithery.ai".
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates this deployment against the gateway. Sent as the
	// api_key query parameter on every connection.
	APIKey string `yaml:"api_key"`

	// RegistryURL is an optional endpoint serving the integration catalogue
	// as JSON. When empty or unreachable, the compiled-in catalogue is used.
	RegistryURL string `yaml:"registry_url"`
}

// OAuthClient holds the OAuth application credentials for one integration.
// These are deployment-wide; per-caller refresh tokens live in the
// credential store.
type OAuthClient struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// SearchConfig holds settings for the web search integration, which
// authenticates with a static API key rather than per-caller OAuth.
type SearchConfig struct {
	// APIKey is the search provider's API key, embedded in the connection
	// configuration of every search session.
	APIKey string `yaml:"api_key"`
}

// IntegrationsConfig holds per-integration credentials and settings.
type IntegrationsConfig struct {
	Gmail    OAuthClient  `yaml:"gmail"`
	Calendar OAuthClient  `yaml:"calendar"`
	Search   SearchConfig `yaml:"search"`
}

// BrokerConfig tunes the invocation executor.
type BrokerConfig struct {
	// Retries is the number of additional attempts after the first failure.
	// Total attempts per invocation = Retries + 1. Default: 2.
	Retries int `yaml:"retries"`

	// Timeout bounds each attempt's connect step and call step separately.
	// Default: 20s.
	Timeout time.Duration `yaml:"timeout"`

	// BackoffBase is the sleep before the first retry; it doubles on each
	// subsequent retry. Default: 500ms.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// CacheCapacity bounds the in-memory result cache. The oldest entry is
	// evicted when the capacity is exceeded. Default: 256.
	CacheCapacity int `yaml:"cache_capacity"`

	// CacheTTL is how long a cached result stays servable. Default: 5m.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// DefaultTimezone is the IANA zone used to format dates when a caller
	// does not supply one. Default: "America/New_York".
	DefaultTimezone string `yaml:"default_timezone"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// PostgresDSN is the connection string for the credential and search
	// history stores. When empty, OAuth-backed integrations are unavailable
	// and history is not recorded.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// ApplyDefaults fills zero-valued broker knobs with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Broker.Retries == 0 {
		c.Broker.Retries = 2
	}
	if c.Broker.Timeout == 0 {
		c.Broker.Timeout = 20 * time.Second
	}
	if c.Broker.BackoffBase == 0 {
		c.Broker.BackoffBase = 500 * time.Millisecond
	}
	if c.Broker.CacheCapacity == 0 {
		c.Broker.CacheCapacity = 256
	}
	if c.Broker.CacheTTL == 0 {
		c.Broker.CacheTTL = 5 * time.Minute
	}
	if c.Broker.DefaultTimezone == "" {
		c.Broker.DefaultTimezone = "America/New_York"
	}
}
