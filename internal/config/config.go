// Package config handles roomview configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"maunium.net/go/mautrix/id"
)

// Config is the root configuration structure for roomview.
type Config struct {
	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Session identifies the local user and history store.
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Timeline controls windowing and pagination.
	Timeline TimelineConfig `yaml:"timeline" mapstructure:"timeline"`

	// Search settings
	Search SearchConfig `yaml:"search" mapstructure:"search"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path. The TUI owns the terminal, so
	// interactive sessions log here instead of stderr when set.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// SessionConfig contains session settings.
type SessionConfig struct {
	// UserID is the local user's fully qualified id.
	UserID string `yaml:"user_id" mapstructure:"user_id"`

	// DatabasePath is the SQLite history file (default: ~/.local/share/roomview/roomview.db).
	DatabasePath string `yaml:"database_path" mapstructure:"database_path"`

	// SyncInterval is how often the local client polls the store for new events.
	SyncInterval time.Duration `yaml:"sync_interval" mapstructure:"sync_interval"`
}

// TimelineConfig contains windowing settings.
type TimelineConfig struct {
	// PageSize is how many events each pagination step adds.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`

	// InitialWindow is the window size on mount.
	InitialWindow int `yaml:"initial_window" mapstructure:"initial_window"`

	// DateLocation names the time zone used for date separators.
	DateLocation string `yaml:"date_location" mapstructure:"date_location"`
}

// SearchConfig contains search settings.
type SearchConfig struct {
	// CacheTTL is how long search responses are reused.
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`

	// ContextLimit is how many events of context are fetched before and after each hit.
	ContextLimit int `yaml:"context_limit" mapstructure:"context_limit"`

	// Limit caps the number of hits per search.
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows message times next to senders.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Session: SessionConfig{
			SyncInterval: time.Second,
		},
		Timeline: TimelineConfig{
			PageSize:      20,
			InitialWindow: 20,
			DateLocation:  "Local",
		},
		Search: SearchConfig{
			CacheTTL:     30 * time.Second,
			ContextLimit: 1,
			Limit:        100,
		},
		TUI: TUIConfig{
			Theme:          "default",
			ShowTimestamps: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Timeline.PageSize < 1 {
		return fmt.Errorf("timeline.page_size must be at least 1")
	}
	if c.Timeline.InitialWindow < 1 {
		return fmt.Errorf("timeline.initial_window must be at least 1")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("timeline.date_location: %w", err)
	}
	if c.Search.ContextLimit < 0 {
		return fmt.Errorf("search.context_limit must not be negative")
	}
	if c.Session.SyncInterval < 100*time.Millisecond {
		return fmt.Errorf("session.sync_interval must be at least 100ms")
	}
	if c.Session.UserID != "" {
		if _, _, err := id.UserID(c.Session.UserID).Parse(); err != nil {
			return fmt.Errorf("session.user_id: %w", err)
		}
	}
	switch strings.ToLower(c.TUI.Theme) {
	case "", "default", "high-contrast":
	default:
		return fmt.Errorf("tui.theme must be one of default, high-contrast")
	}
	return nil
}

// RequireUser reports an error when no local user is configured.
func (c *Config) RequireUser() error {
	if strings.TrimSpace(c.Session.UserID) == "" {
		return fmt.Errorf("session.user_id is required (set --user or ROOMVIEW_SESSION_USER_ID)")
	}
	return nil
}

// Location resolves Timeline.DateLocation.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timeline.DateLocation {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Timeline.DateLocation)
	}
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Session.DatabasePath != "" {
		return c.Session.DatabasePath
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "roomview", "roomview.db")
}

// EnsureDirectories creates the database directory.
func (c *Config) EnsureDirectories() error {
	dir := filepath.Dir(c.DatabasePath())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
