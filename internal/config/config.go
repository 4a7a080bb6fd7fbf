// Package config loads avatard configuration from an optional YAML file and
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level avatard configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Browser  BrowserConfig `yaml:"browser"`
	Cache    CacheConfig   `yaml:"cache"`
	Proxy    ProxyConfig   `yaml:"proxy"`
	MCP      MCPConfig     `yaml:"mcp"`
	LogLevel string        `yaml:"log_level"` // debug | info | warn | error
}

// ServerConfig controls the HTTP listener and maintenance mode.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Maintenance     bool          `yaml:"maintenance"`
	MaintenanceDB   string        `yaml:"maintenance_db"`   // optional SQLite flag source
	MaintenancePage string        `yaml:"maintenance_page"` // optional HTML file
}

// BrowserConfig controls how profile pages are rendered.
type BrowserConfig struct {
	Mode             string        `yaml:"mode"` // rod | http
	Remote           string        `yaml:"remote"`
	Bin              string        `yaml:"bin"`
	Sandbox          bool          `yaml:"sandbox"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
	UserAgent        string        `yaml:"user_agent"`
}

// CacheConfig controls the result cache.
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"` // 0 = unbounded
}

// ProxyConfig controls the image proxy.
type ProxyConfig struct {
	Referer  string        `yaml:"referer"`
	MaxBytes int64         `yaml:"max_bytes"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MCPConfig controls the MCP endpoint.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides, then fills defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("PORT"); ok && v != "" {
		c.Server.Port = v
	}
	if v, ok := os.LookupEnv("MAINTENANCE_MODE"); ok && v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MAINTENANCE_MODE: %w", err)
		}
		c.Server.Maintenance = on
	}
	if v, ok := os.LookupEnv("MAINTENANCE_DB"); ok && v != "" {
		c.Server.MaintenanceDB = v
	}
	if v, ok := os.LookupEnv("BROWSER_REMOTE"); ok && v != "" {
		c.Browser.Remote = v
	}
	if v, ok := os.LookupEnv("BROWSER_MODE"); ok && v != "" {
		c.Browser.Mode = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok && v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "rod"
	}
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 15 * time.Second
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.MCP.Path == "" {
		c.MCP.Path = "/mcp"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.Browser.Mode {
	case "rod", "http":
	default:
		return fmt.Errorf("config: browser.mode must be rod or http, got %q", c.Browser.Mode)
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("config: invalid port %q", c.Server.Port)
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("config: cache.max_entries must be >= 0")
	}
	return nil
}
