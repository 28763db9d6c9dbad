package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/id"

	"github.com/tOgg1/roomview/internal/config"
	"github.com/tOgg1/roomview/internal/db"
	"github.com/tOgg1/roomview/internal/logging"
	"github.com/tOgg1/roomview/internal/session"
)

// runtime is the opened state shared by all commands.
type runtime struct {
	cfg    *config.Config
	db     *db.DB
	client *session.LocalClient
	log    zerolog.Logger

	logFile *os.File
}

func loadConfig(opts *globalOptions) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader()
	if opts.configFile != "" {
		loader.SetConfigFile(opts.configFile)
	}
	overrides := map[string]string{
		"session.database_path": opts.dbPath,
		"session.user_id":       opts.userID,
		"logging.level":         opts.logLevel,
		"logging.format":        opts.logFormat,
	}
	for key, value := range overrides {
		if value != "" {
			loader.Set(key, value)
		}
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// openRuntime loads config, initializes logging and opens the store. When
// interactive is set, logs go to the configured file or are discarded so
// they do not corrupt the TUI.
func openRuntime(ctx context.Context, opts *globalOptions, interactive bool) (*runtime, error) {
	cfg, loader, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireUser(); err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg}
	var out io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		f, err := logging.OpenFile(cfg.Logging.File)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rt.logFile = f
		out = f
	} else if interactive {
		out = io.Discard
	}
	logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       out,
		EnableCaller: cfg.Logging.EnableCaller,
	})
	rt.log = logging.Component("cli")
	rt.log.Debug().
		Str("config_file", loader.ConfigFileUsed()).
		Interface("settings", logging.RedactMap(loader.Viper().AllSettings())).
		Msg("configuration loaded")

	if err := cfg.EnsureDirectories(); err != nil {
		rt.Close()
		return nil, err
	}
	database, err := db.Open(cfg.DatabasePath(), db.WithLogger(logging.Component("db")))
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("open history store: %w", err)
	}
	rt.db = database
	applied, err := database.MigrateUp(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	if applied > 0 {
		rt.log.Info().Int("migrations", applied).Str("path", database.Path()).Msg("history store migrated")
	}

	sessionLog := logging.Component("session")
	initialLoad := cfg.Timeline.InitialWindow
	if cfg.Timeline.PageSize > initialLoad {
		initialLoad = cfg.Timeline.PageSize
	}
	rt.client = session.NewLocalClient(database, userID(cfg), session.Options{
		Logger:         &sessionLog,
		InitialLoad:    initialLoad,
		SearchCacheTTL: cfg.Search.CacheTTL,
		ContextLimit:   cfg.Search.ContextLimit,
		SearchLimit:    cfg.Search.Limit,
	})
	return rt, nil
}

// startSync polls the store in the background. The returned stop cancels
// the loop and waits for it to exit, so it must run before Close.
func (rt *runtime) startSync(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		rt.client.RunSync(ctx, rt.cfg.Session.SyncInterval)
	}()
	return func() {
		cancel()
		<-done
	}
}

// Close releases the store and log file.
func (rt *runtime) Close() {
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.log.Warn().Err(err).Msg("failed to close history store")
		}
		rt.db = nil
	}
	if rt.logFile != nil {
		_ = rt.logFile.Close()
		rt.logFile = nil
	}
}

func userID(cfg *config.Config) id.UserID {
	return id.UserID(strings.TrimSpace(cfg.Session.UserID))
}

func parseRoom(raw string) (id.RoomID, error) {
	roomID := id.RoomID(strings.TrimSpace(raw))
	if roomID == "" {
		return "", fmt.Errorf("room id is required")
	}
	if !strings.HasPrefix(roomID.String(), "!") {
		return "", fmt.Errorf("invalid room id %q: must start with '!'", raw)
	}
	return roomID, nil
}
