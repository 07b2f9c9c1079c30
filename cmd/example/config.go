package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/oidcware/rp/internal/logging"
	"github.com/oidcware/rp/internal/validation"
)

// DefaultConfigPaths lists the paths where a config file is searched for, in
// order of priority. The first one found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/oidcrp/config.yaml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// AppConfig is the example server's own configuration, separate from
// rp.Config: it carries listen address, CORS, rate limiting, and the raw
// OIDC fields that get translated into an rp.Config once loaded.
type AppConfig struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
	OIDC     OIDCConfig     `koanf:"oidc"`
	Security SecurityConfig `koanf:"security"`
}

type ServerConfig struct {
	ListenAddr      string        `koanf:"listen_addr" validate:"required,hostname_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"required"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"required,oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"required,oneof=json console"`
	Caller bool   `koanf:"caller"`
}

type OIDCConfig struct {
	ClientID                string        `koanf:"client_id" validate:"required"`
	ClientSecret            string        `koanf:"client_secret"`
	DiscoveryURL            string        `koanf:"discovery_url" validate:"required,url"`
	RedirectURI             string        `koanf:"redirect_uri" validate:"required,url"`
	PostLogoutRedirectURI   string        `koanf:"post_logout_redirect_uri"`
	ErrorURL                string        `koanf:"error_url"`
	Scopes                  []string      `koanf:"scopes"`
	PKCE                    bool          `koanf:"pkce"`
	TokenEndpointAuthMethod string        `koanf:"token_endpoint_auth_method" validate:"omitempty,oneof=client_secret_basic client_secret_post private_key_jwt"`
	SessionTTL              time.Duration `koanf:"session_ttl"`
	UseSilentRenew          bool          `koanf:"use_silent_renew"`
	EncryptionKey           string        `koanf:"encryption_key"`
}

type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			ListenAddr:      "0.0.0.0:8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		OIDC: OIDCConfig{
			Scopes:                  []string{"openid", "profile", "email"},
			PKCE:                    true,
			TokenEndpointAuthMethod: "client_secret_basic",
			SessionTTL:              time.Hour,
			UseSilentRenew:          true,
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
	}
}

// loadConfig loads configuration via koanf v2 with layered sources, highest
// priority last: built-in defaults, then an optional YAML file, then
// environment variables (OIDCRP_ prefix, double underscore as nesting).
func loadConfig() (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider("OIDCRP_", ".", func(key string) string {
		key = strings.TrimPrefix(key, "OIDCRP_")
		key = strings.ToLower(key)
		return strings.ReplaceAll(key, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	cfg := &AppConfig{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if verr := validation.ValidateStruct(cfg); verr != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", verr)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func initLogging(cfg LoggingConfig) {
	logging.Init(logging.Config{
		Level:     cfg.Level,
		Format:    cfg.Format,
		Caller:    cfg.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})
}
