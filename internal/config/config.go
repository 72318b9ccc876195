// Package config loads the engine configuration from YAML with
// defaults and environment overrides.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lanternvale/questline/internal/logger"
	"github.com/lanternvale/questline/internal/save"
)

// EngineConfig holds engine-wide configuration settings.
type EngineConfig struct {
	Content  ContentConfig  `yaml:"content"`
	Database save.Config    `yaml:"database"`
	AutoSave AutoSaveConfig `yaml:"auto_save"`
	Events   EventsConfig   `yaml:"events"`
	Tap      TapConfig      `yaml:"tap"`
	Logging  logger.Config  `yaml:"logging"`
}

// ContentConfig locates authored quest content.
type ContentConfig struct {
	// Dir is the directory of quest YAML files.
	Dir string `yaml:"dir"`
}

// AutoSaveConfig controls periodic persistence.
type AutoSaveConfig struct {
	// IntervalSeconds between auto-saves. 0 disables auto-save.
	IntervalSeconds int `yaml:"interval_seconds"`

	// Slot receiving auto-saves.
	Slot string `yaml:"slot"`
}

// EventsConfig tunes the event bus.
type EventsConfig struct {
	// HistorySize is the ring buffer capacity for recent events.
	HistorySize int `yaml:"history_size"`

	// HistoryEnabled toggles event recording.
	HistoryEnabled bool `yaml:"history_enabled"`
}

// TapConfig configures the websocket diagnostics tap.
type TapConfig struct {
	// Enabled starts the tap listener.
	Enabled bool `yaml:"enabled"`

	// ListenAddr is the tap's HTTP listen address.
	ListenAddr string `yaml:"listen_addr"`

	// AllowedOrigins is a list of origins allowed to connect.
	// Empty list enforces same-origin policy.
	// Use "*" to allow all origins (not recommended for production).
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum websocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DefaultConfig returns an EngineConfig with sensible defaults.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Content: ContentConfig{
			Dir: "content/quests",
		},
		Database: save.DefaultConfig("data/saves.db"),
		AutoSave: AutoSaveConfig{
			IntervalSeconds: 300,
			Slot:            save.DefaultSlot,
		},
		Events: EventsConfig{
			HistorySize:    64,
			HistoryEnabled: true,
		},
		Tap: TapConfig{
			Enabled:        false,
			ListenAddr:     "127.0.0.1:8189",
			AllowedOrigins: []string{}, // Same-origin only by default
			MaxMessageSize: 4096,
		},
		Logging: logger.DefaultConfig(),
	}
}

// LoadConfig loads engine configuration from a YAML file.
// If the file doesn't exist or can't be parsed, returns default config.
func LoadConfig(path string) (*EngineConfig, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Use defaults if file doesn't exist
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), err
	}

	return cfg, nil
}

// ApplyEnvOverrides lets deployment environments adjust the file-based
// configuration without editing it.
func (c *EngineConfig) ApplyEnvOverrides() {
	if v := os.Getenv("QUESTD_CONTENT_DIR"); v != "" {
		c.Content.Dir = v
	}
	if v := os.Getenv("QUESTD_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("QUESTD_SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("QUESTD_PG_HOST"); v != "" {
		c.Database.Postgres.Host = v
	}
	if v := os.Getenv("QUESTD_PG_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Postgres.Port = port
		}
	}
	if v := os.Getenv("QUESTD_PG_USER"); v != "" {
		c.Database.Postgres.User = v
	}
	if v := os.Getenv("QUESTD_PG_PASSWORD"); v != "" {
		c.Database.Postgres.Password = v
	}
	if v := os.Getenv("QUESTD_PG_DATABASE"); v != "" {
		c.Database.Postgres.Database = v
	}
	if v := os.Getenv("QUESTD_AUTOSAVE_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.AutoSave.IntervalSeconds = secs
		}
	}
	if v := os.Getenv("QUESTD_TAP_ENABLED"); v != "" {
		c.Tap.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("QUESTD_TAP_ADDR"); v != "" {
		c.Tap.ListenAddr = v
	}
	c.Logging.ApplyEnvOverrides()
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *TapConfig) IsOriginAllowed(origin, requestHost string) bool {
	// If no origins configured, enforce same-origin policy
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		// Wildcard allows all origins
		if allowed == "*" {
			return true
		}
		// Exact match
		if allowed == origin {
			return true
		}
	}

	return false
}

// isSameOrigin checks if the origin matches the request host (same-origin policy).
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // No origin header means same-origin (e.g., non-browser client)
	}

	// Extract host from origin URL (e.g., "http://localhost:3000" -> "localhost:3000")
	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	// Remove trailing slash if present
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
