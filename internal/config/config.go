package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the bot configuration.
type Config struct {
	// Signal transport configuration
	Signal SignalConfig `toml:"signal"`

	// Database configuration
	Database DatabaseConfig `toml:"database"`

	// Cache configuration
	Cache CacheConfig `toml:"cache"`

	// Abuse alerting configuration
	Abuse AbuseConfig `toml:"abuse"`

	// Admin API configuration
	Admin AdminConfig `toml:"admin"`
}

// SignalConfig contains signal-cli-rest-api connection settings.
type SignalConfig struct {
	Service     string `toml:"service"`      // signal-cli-rest-api URL, e.g. "http://localhost:8080"
	PhoneNumber string `toml:"phone_number"` // E.164 number the bot is registered under
	OwnerNumber string `toml:"owner_number"` // Where abuse alerts go (empty = log only)
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path string `toml:"path"` // Path to the SQLite file
}

// CacheConfig contains card cache settings.
type CacheConfig struct {
	TTL           string `toml:"ttl"`            // Cache TTL (e.g., "24h")
	PurgeInterval string `toml:"purge_interval"` // Background sweep interval (e.g., "1h")
}

// AbuseConfig contains burst-abuse detection settings.
type AbuseConfig struct {
	Threshold int    `toml:"threshold"` // Lookups allowed inside the window
	Window    string `toml:"window"`    // Rolling window (e.g., "5m")
	Cooldown  string `toml:"cooldown"`  // Quiet period between alerts (e.g., "30m")
}

// AdminConfig contains admin API settings.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"` // Serve the admin API
	Addr    string `toml:"addr"`    // Listen address (e.g., ":8081")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Signal: SignalConfig{
			Service:     "http://localhost:8080",
			PhoneNumber: "",
			OwnerNumber: "",
		},
		Database: DatabaseConfig{
			Path: "mtgbot.db",
		},
		Cache: CacheConfig{
			TTL:           "24h",
			PurgeInterval: "1h",
		},
		Abuse: AbuseConfig{
			Threshold: 20,
			Window:    "5m",
			Cooldown:  "30m",
		},
		Admin: AdminConfig{
			Enabled: false,
			Addr:    ":8081",
		},
	}
}

// Load loads the configuration from path. Returns default config if the
// file doesn't exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return config, nil
}

// Save saves the configuration to path.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration values.
func (c *Config) Validate() error {
	if c.Signal.Service == "" {
		return fmt.Errorf("signal service URL is required")
	}
	if c.Signal.PhoneNumber == "" {
		return fmt.Errorf("signal phone number is required")
	}

	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("invalid cache TTL %q: %w", c.Cache.TTL, err)
	}
	if _, err := time.ParseDuration(c.Cache.PurgeInterval); err != nil {
		return fmt.Errorf("invalid purge interval %q: %w", c.Cache.PurgeInterval, err)
	}

	if c.Abuse.Threshold < 0 {
		return fmt.Errorf("abuse threshold cannot be negative: %d", c.Abuse.Threshold)
	}
	if _, err := time.ParseDuration(c.Abuse.Window); err != nil {
		return fmt.Errorf("invalid abuse window %q: %w", c.Abuse.Window, err)
	}
	if _, err := time.ParseDuration(c.Abuse.Cooldown); err != nil {
		return fmt.Errorf("invalid abuse cooldown %q: %w", c.Abuse.Cooldown, err)
	}

	return nil
}

// GetCacheTTL returns the cache TTL as a duration.
func (c *Config) GetCacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.TTL)
}

// GetPurgeInterval returns the cache purge interval as a duration.
func (c *Config) GetPurgeInterval() (time.Duration, error) {
	return time.ParseDuration(c.Cache.PurgeInterval)
}

// GetAbuseWindow returns the abuse detection window as a duration.
func (c *Config) GetAbuseWindow() (time.Duration, error) {
	return time.ParseDuration(c.Abuse.Window)
}

// GetAbuseCooldown returns the alert cooldown as a duration.
func (c *Config) GetAbuseCooldown() (time.Duration, error) {
	return time.ParseDuration(c.Abuse.Cooldown)
}
