// Package config loads the gateway configuration from sqlgate.yaml,
// SQLGATE_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/edgeflare/sqlgate/pkg/broadcast"
	"github.com/edgeflare/sqlgate/pkg/httputil/middleware"
	"github.com/edgeflare/sqlgate/pkg/service"
	"github.com/edgeflare/sqlgate/pkg/system"
)

// Version is set at build time with -ldflags "-X ...config.Version=...".
var Version = "dev"

// Config holds application-wide configuration
type Config struct {
	Server    ServerConfig          `mapstructure:"server"`
	System    SystemConfig          `mapstructure:"system"`
	Services  []service.Config      `mapstructure:"services"`
	API       system.APIConfig      `mapstructure:"api"`
	Platform  system.PlatformConfig `mapstructure:"platform"`
	Scripting ScriptingConfig       `mapstructure:"scripting"`
	Broadcast BroadcastConfig       `mapstructure:"broadcast"`
	Metrics   MetricsConfig         `mapstructure:"metrics"`
}

type ServerConfig struct {
	ListenAddr string                        `mapstructure:"listenAddr"`
	BaseURL    string                        `mapstructure:"baseURL"`
	CORS       middleware.CORSOptions        `mapstructure:"cors"`
	BasicAuth  map[string]string             `mapstructure:"basicAuth"`
	AdminUsers []string                      `mapstructure:"adminUsers"`
	UserIDs    map[string]int                `mapstructure:"userIDs"`
	OIDC       middleware.OIDCProviderConfig `mapstructure:"oidc"`
	TLS        TLSConfig                     `mapstructure:"tls"`
}

// TLSConfig enables HTTPS. A missing key pair is generated self-signed for
// Hosts.
type TLSConfig struct {
	CertFile string   `mapstructure:"certFile"`
	KeyFile  string   `mapstructure:"keyFile"`
	Hosts    []string `mapstructure:"hosts"`
}

func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// SystemConfig points at the PostgreSQL system database. An empty
// ConnString selects the in-memory store.
type SystemConfig struct {
	ConnString string        `mapstructure:"connString"`
	Schema     string        `mapstructure:"schema"`
	Migrate    bool          `mapstructure:"migrate"`
	MaxWait    time.Duration `mapstructure:"maxWait"`
	// ListenReload subscribes pgsql services to schema reload notifications.
	ListenReload bool `mapstructure:"listenReload"`
}

type ScriptingConfig struct {
	DefaultEngine   string        `mapstructure:"defaultEngine"`
	LookupCacheSize int           `mapstructure:"lookupCacheSize"`
	LookupCacheTTL  time.Duration `mapstructure:"lookupCacheTTL"`
	// ProgramCacheSize bounds the compiled expr programs kept in memory.
	ProgramCacheSize int           `mapstructure:"programCacheSize"`
	Webhook          WebhookConfig `mapstructure:"webhook"`
}

type WebhookConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

type BroadcastConfig struct {
	Sinks []broadcast.SinkConfig `mapstructure:"sinks"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// SessionConfig returns the session resolution settings of the server.
func (s ServerConfig) SessionConfig() middleware.SessionConfig {
	return middleware.SessionConfig{AdminUsers: s.AdminUsers, UserIDs: s.UserIDs, OIDC: s.OIDC}
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.listenAddr", ":8080")
	v.SetDefault("server.baseURL", "/api/v2")
	v.SetDefault("system.schema", "sqlgate")
	v.SetDefault("system.migrate", true)
	v.SetDefault("system.maxWait", 30*time.Second)
	v.SetDefault("api.resourcesWrapper", "resource")
	v.SetDefault("api.db.maxRecordsReturned", 1000)
	v.SetDefault("platform.versionCurrent", Version)
	v.SetDefault("scripting.defaultEngine", "expr")
	v.SetDefault("scripting.lookupCacheSize", 256)
	v.SetDefault("scripting.lookupCacheTTL", 30*time.Second)
	v.SetDefault("scripting.programCacheSize", 512)
	v.SetDefault("scripting.webhook.timeout", 10*time.Second)
	v.SetDefault("scripting.webhook.retries", 2)
	v.SetDefault("metrics.addr", ":9100")
	v.SetDefault("metrics.path", "/metrics")
}

// Load reads config from file or environment. Keys are overridden by
// environment variables such as SQLGATE_SERVER_LISTENADDR.
func Load(cfgFile string) (*Config, error) {
	return LoadWith(viper.GetViper(), cfgFile)
}

// LoadWith is Load on a caller-provided viper instance, which may already
// have flags bound.
func LoadWith(v *viper.Viper, cfgFile string) (*Config, error) {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("sqlgate")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SQLGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the service list for missing and duplicate names and
// names that would be shadowed by the system routes.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Services))
	for i, s := range c.Services {
		switch {
		case s.Name == "":
			return fmt.Errorf("services[%d]: name is required", i)
		case s.Name == "system" || s.Name == "openapi.json":
			return fmt.Errorf("services[%d]: name %q is reserved", i, s.Name)
		case seen[s.Name]:
			return fmt.Errorf("services[%d]: duplicate name %q", i, s.Name)
		case s.Driver == "":
			return fmt.Errorf("service %q: driver is required", s.Name)
		}
		seen[s.Name] = true
	}
	for i, s := range c.Broadcast.Sinks {
		if s.Type == "" {
			return fmt.Errorf("broadcast.sinks[%d]: type is required", i)
		}
	}
	return nil
}
