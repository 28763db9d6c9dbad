package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 20, cfg.Timeline.PageSize)
	require.Equal(t, 20, cfg.Timeline.InitialWindow)
	require.Equal(t, 30*time.Second, cfg.Search.CacheTTL)
	require.Error(t, cfg.RequireUser())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"page size":      func(c *Config) { c.Timeline.PageSize = 0 },
		"initial window": func(c *Config) { c.Timeline.InitialWindow = 0 },
		"location":       func(c *Config) { c.Timeline.DateLocation = "Nowhere/Special" },
		"user id":        func(c *Config) { c.Session.UserID = "not-a-user" },
		"theme":          func(c *Config) { c.TUI.Theme = "neon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoaderPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  user_id: "@file:example.org"
  database_path: "~/rooms.db"
timeline:
  page_size: 10
`), 0644))

	t.Setenv("ROOMVIEW_TIMELINE_PAGE_SIZE", "15")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "@file:example.org", cfg.Session.UserID)
	require.Equal(t, 15, cfg.Timeline.PageSize)
	require.Equal(t, 20, cfg.Timeline.InitialWindow)

	home, _ := os.UserHomeDir()
	require.Equal(t, filepath.Join(home, "rooms.db"), cfg.DatabasePath())
}

func TestLoaderOverride(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	loader := NewLoader()
	loader.Set("session.user_id", "@flag:example.org")
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "@flag:example.org", cfg.Session.UserID)
	require.Empty(t, loader.ConfigFileUsed())
}
