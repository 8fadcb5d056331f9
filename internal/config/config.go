// Package config loads the pkjwt service configuration from YAML with
// PKJWT_* environment overrides. Every field names its variable in an env tag.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Key storage backends.
const (
	StorageFile   = "file"
	StorageMemory = "memory"
)

// MinKeyBits is the smallest signing key the service will generate.
const MinKeyBits = 4096

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Keys     KeysConfig     `yaml:"keys"`
	Provider ProviderConfig `yaml:"provider"`
	Client   ClientConfig   `yaml:"client"`
	Resource ResourceConfig `yaml:"resource"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" env:"PKJWT_SERVER_ADDR"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"PKJWT_SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"PKJWT_SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"PKJWT_SERVER_SHUTDOWN_TIMEOUT"`
}

// GetAddr returns the listen address with a default of ":8000".
func (c *ServerConfig) GetAddr() string {
	if c.Addr == "" {
		return ":8000"
	}
	return c.Addr
}

// GetReadTimeout returns the read timeout with a default of 15 seconds.
func (c *ServerConfig) GetReadTimeout() time.Duration {
	if c.ReadTimeout <= 0 {
		return 15 * time.Second
	}
	return c.ReadTimeout
}

// GetWriteTimeout defaults to 60 seconds; /client waits on two upstream calls.
func (c *ServerConfig) GetWriteTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return 60 * time.Second
	}
	return c.WriteTimeout
}

func (c *ServerConfig) GetShutdownTimeout() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return c.ShutdownTimeout
}

type KeysConfig struct {
	Storage  string `yaml:"storage" env:"PKJWT_KEYS_STORAGE"`   // file | memory
	CertsDir string `yaml:"certs_dir" env:"PKJWT_KEYS_CERTS_DIR"` // file storage only
	EnvFile  string `yaml:"env_file" env:"PKJWT_KEYS_ENV_FILE"`  // holds KID and PKEY_PASSWORD
	Bits     int    `yaml:"bits" env:"PKJWT_KEYS_BITS"`
}

func (c *KeysConfig) GetStorage() string {
	if c.Storage == "" {
		return StorageFile
	}
	return strings.ToLower(c.Storage)
}

func (c *KeysConfig) GetCertsDir() string {
	if c.CertsDir == "" {
		return "certs"
	}
	return c.CertsDir
}

func (c *KeysConfig) GetEnvFile() string {
	if c.EnvFile == "" {
		return "dev.env"
	}
	return c.EnvFile
}

func (c *KeysConfig) GetBits() int {
	if c.Bits == 0 {
		return MinKeyBits
	}
	return c.Bits
}

type ProviderConfig struct {
	// Issuer is the realm URL, e.g. http://localhost:8080/realms/master.
	Issuer        string        `yaml:"issuer" env:"PKJWT_PROVIDER_ISSUER"`
	Audience      string        `yaml:"audience" env:"PKJWT_PROVIDER_AUDIENCE"`
	TokenEndpoint string        `yaml:"token_endpoint" env:"PKJWT_PROVIDER_TOKEN_ENDPOINT"` // skips discovery when set
	JWKSURI       string        `yaml:"jwks_uri" env:"PKJWT_PROVIDER_JWKS_URI"`       // skips discovery when set
	DiscoveryTTL  time.Duration `yaml:"discovery_ttl" env:"PKJWT_PROVIDER_DISCOVERY_TTL"`
	JWKSCacheTTL  time.Duration `yaml:"jwks_cache_ttl" env:"PKJWT_PROVIDER_JWKS_CACHE_TTL"`
	HTTPTimeout   time.Duration `yaml:"http_timeout" env:"PKJWT_PROVIDER_HTTP_TIMEOUT"`
	ClockSkew     time.Duration `yaml:"clock_skew" env:"PKJWT_PROVIDER_CLOCK_SKEW"`
}

// GetAudience returns the expected aud with Keycloak's default "account".
func (c *ProviderConfig) GetAudience() string {
	if c.Audience == "" {
		return "account"
	}
	return c.Audience
}

func (c *ProviderConfig) GetDiscoveryTTL() time.Duration {
	if c.DiscoveryTTL <= 0 {
		return time.Hour
	}
	return c.DiscoveryTTL
}

func (c *ProviderConfig) GetJWKSCacheTTL() time.Duration {
	if c.JWKSCacheTTL <= 0 {
		return 15 * time.Minute
	}
	return c.JWKSCacheTTL
}

func (c *ProviderConfig) GetHTTPTimeout() time.Duration {
	if c.HTTPTimeout <= 0 {
		return 30 * time.Second
	}
	return c.HTTPTimeout
}

type ClientConfig struct {
	ID                string        `yaml:"id" env:"PKJWT_CLIENT_ID"`
	AssertionLifetime time.Duration `yaml:"assertion_lifetime" env:"PKJWT_CLIENT_ASSERTION_LIFETIME"`
	Scopes            []string      `yaml:"scopes" env:"PKJWT_CLIENT_SCOPES"`
}

func (c *ClientConfig) GetAssertionLifetime() time.Duration {
	if c.AssertionLifetime <= 0 {
		return 300 * time.Second
	}
	return c.AssertionLifetime
}

type ResourceConfig struct {
	URL string `yaml:"url" env:"PKJWT_RESOURCE_URL"`
}

func (c *ResourceConfig) GetURL() string {
	if c.URL == "" {
		return "http://localhost:8000/protected_api"
	}
	return c.URL
}

type LoggingConfig struct {
	Backend string `yaml:"backend" env:"PKJWT_LOG_BACKEND"` // logrus | zap | zerolog
	Level   string `yaml:"level" env:"PKJWT_LOG_LEVEL"`
	Format  string `yaml:"format" env:"PKJWT_LOG_FORMAT"` // text | json
}

func (c *LoggingConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return strings.ToLower(c.Level)
}

type MetricsConfig struct {
	Disabled  bool   `yaml:"disabled" env:"PKJWT_METRICS_DISABLED"`
	Namespace string `yaml:"namespace" env:"PKJWT_METRICS_NAMESPACE"`
}

// IsEnabled reports whether /metrics is served. Metrics are on unless
// disabled.
func (c *MetricsConfig) IsEnabled() bool {
	return !c.Disabled
}

func (c *MetricsConfig) GetNamespace() string {
	if c.Namespace == "" {
		return "pkjwt"
	}
	return c.Namespace
}

// Trace exporters.
const (
	TraceExporterNone   = "none"
	TraceExporterStdout = "stdout"
)

// TracingConfig selects where spans go. With no exporter the globally
// installed OpenTelemetry provider is used, which is a no-op unless the
// embedding program installs one.
type TracingConfig struct {
	Exporter    string `yaml:"exporter" env:"PKJWT_TRACING_EXPORTER"` // none | stdout
	ServiceName string `yaml:"service_name" env:"PKJWT_TRACING_SERVICE_NAME"`
}

func (c *TracingConfig) GetExporter() string {
	if c.Exporter == "" {
		return TraceExporterNone
	}
	return strings.ToLower(c.Exporter)
}

func (c *TracingConfig) GetServiceName() string {
	if c.ServiceName == "" {
		return "pkjwt"
	}
	return c.ServiceName
}

// Load reads the YAML file at path, then lets PKJWT_* environment variables
// override it, and validates the result. An empty path loads from the
// environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.Client.Scopes = compact(cfg.Client.Scopes)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Provider.Issuer == "" {
		return errors.New("provider.issuer is required")
	}
	if c.Client.ID == "" {
		return errors.New("client.id is required")
	}
	switch c.Keys.GetStorage() {
	case StorageFile, StorageMemory:
	default:
		return fmt.Errorf("keys.storage must be %q or %q, got %q", StorageFile, StorageMemory, c.Keys.Storage)
	}
	if c.Keys.GetBits() < MinKeyBits {
		return fmt.Errorf("keys.bits must be at least %d, got %d", MinKeyBits, c.Keys.Bits)
	}
	switch c.Tracing.GetExporter() {
	case TraceExporterNone, TraceExporterStdout:
	default:
		return fmt.Errorf("tracing.exporter must be %q or %q, got %q", TraceExporterNone, TraceExporterStdout, c.Tracing.Exporter)
	}
	return nil
}

// compact trims list entries and drops empty ones, so that
// PKJWT_CLIENT_SCOPES="a, b" means [a b].
func compact(list []string) []string {
	out := list[:0]
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
