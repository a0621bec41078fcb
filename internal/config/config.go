// Package config provides application configuration.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: WIDGET_SERVER__PORT sets server.port.
const EnvPrefix = "WIDGET_"

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Store   StoreConfig   `koanf:"store"`
	Backend BackendConfig `koanf:"backend"`
	Widget  WidgetConfig  `koanf:"widget"`
	Handoff HandoffConfig `koanf:"handoff"`
	Log     LogConfig     `koanf:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port           string   `koanf:"port"`
	FrontendURL    string   `koanf:"frontend_url"`
	AllowedOrigins []string `koanf:"allowed_origins"`
	SecureCookies  bool     `koanf:"secure_cookies"`
}

// StoreConfig selects the durable visitor store.
type StoreConfig struct {
	Backend     string `koanf:"backend"`
	SQLitePath  string `koanf:"sqlite_path"`
	RedisAddr   string `koanf:"redis_addr"`
	RedisPrefix string `koanf:"redis_prefix"`
}

// BackendConfig points at the search service and the lead store.
type BackendConfig struct {
	ChatURL  string        `koanf:"chat_url"`
	LeadsURL string        `koanf:"leads_url"`
	Timeout  time.Duration `koanf:"timeout"`
}

// WidgetConfig tunes widget sessions.
type WidgetConfig struct {
	CatalogURL    string        `koanf:"catalog_url"`
	RatePerSecond float64       `koanf:"rate_per_second"`
	Burst         int           `koanf:"burst"`
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
}

// HandoffConfig names the external messaging application.
type HandoffConfig struct {
	Host       string        `koanf:"host"`
	AppScheme  string        `koanf:"app_scheme"`
	AppPackage string        `koanf:"app_package"`
	Timeout    time.Duration `koanf:"timeout"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":            "8080",
		"server.frontend_url":    "",
		"server.allowed_origins": []string{},
		"server.secure_cookies":  false,
		"store.backend":          "sqlite",
		"store.sqlite_path":      "./data/widget.db",
		"store.redis_prefix":     "widget:",
		"backend.chat_url":       "http://localhost:8000/chat/",
		"backend.leads_url":      "http://localhost:8000/leads/",
		"backend.timeout":        "30s",
		"widget.catalog_url":     "https://ecolite.com.co/",
		"widget.rate_per_second": 2.0,
		"widget.burst":           5,
		"widget.idle_timeout":    "30m",
		"handoff.host":           "wa.me",
		"handoff.app_scheme":     "whatsapp",
		"handoff.app_package":    "com.whatsapp",
		"handoff.timeout":        "1200ms",
		"log.level":              "info",
		"log.format":             "json",
	}
}

// Load layers defaults, the optional TOML file at path and WIDGET_
// environment variables, then validates the result. An empty path falls back
// to WIDGET_CONFIG and then ./widget.toml when it exists.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path == "" {
		if _, err := os.Stat("./widget.toml"); err == nil {
			path = "./widget.toml"
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "load config file %s", path)
		}
	}

	err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "load environment")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server.port cannot be empty")
	}
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path cannot be empty")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis backend")
		}
	default:
		return errors.Errorf("store.backend %q is not one of sqlite, redis", c.Store.Backend)
	}
	if c.Backend.ChatURL == "" || c.Backend.LeadsURL == "" {
		return errors.New("backend.chat_url and backend.leads_url are required")
	}
	if c.Widget.RatePerSecond <= 0 || c.Widget.Burst <= 0 {
		return errors.New("widget.rate_per_second and widget.burst must be > 0")
	}
	if c.Handoff.Host == "" || c.Handoff.AppScheme == "" || c.Handoff.AppPackage == "" {
		return errors.New("handoff.host, handoff.app_scheme and handoff.app_package are required")
	}
	if c.Handoff.Timeout <= 0 {
		return errors.New("handoff.timeout must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.FrontendURL == "" ||
		strings.Contains(c.Server.FrontendURL, "localhost") ||
		strings.Contains(c.Server.FrontendURL, "127.0.0.1")
}
