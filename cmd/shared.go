package cmd

import (
	"sync/atomic"
	"time"

	"github.com/spf13/viper"

	"github.com/Soflution1/McpHub/internal/cacheschema"
	"github.com/Soflution1/McpHub/internal/childmgr"
	"github.com/Soflution1/McpHub/internal/config"
	"github.com/Soflution1/McpHub/internal/search"
	"github.com/Soflution1/McpHub/pkg/logger"
)

// waitGrace bounds how long ShutdownAll waits for children to exit
// cleanly on process shutdown (spec §5 "process hygiene").
const waitGrace = 2 * time.Second

// configReloadDebounce is the settle time before a watched config-file
// change is reloaded (spec §9 open question #2: coalesce a dashboard
// read-modify-write pair into one reload).
const configReloadDebounce = 250 * time.Millisecond

// runtime bundles together the pieces every subcommand needs: the loaded
// config (behind an atomic pointer so a long-running serve process can
// hot-swap it on file-watch reload without readers taking a lock), its
// derived logger, the persistent schema cache, and a settings accessor
// that always reflects the current value.
type runtime struct {
	cfgPtr atomic.Pointer[config.Config]
	log    logger.Logger
	cache  *cacheschema.Cache
	path   string
}

func (r *runtime) cfg() *config.Config       { return r.cfgPtr.Load() }
func (r *runtime) settings() config.Settings { return r.cfgPtr.Load().Settings }

func bootstrap() (*runtime, error) {
	path := viper.GetString("config")
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Settings.LogLevel = lvl
	}
	logFile := viper.GetString("log-file")
	format := viper.GetString("log-format")
	log, err := logger.CreateLogger(logFile, cfg.Settings.LogLevel, format, false)
	if err != nil {
		return nil, err
	}

	cache := cacheschema.New(cfg.Settings.CacheDir, log)
	if err := cache.Load(); err != nil {
		log.Warnf("schema cache not loaded: %v", err)
	}

	rt := &runtime{log: log, cache: cache, path: path}
	rt.cfgPtr.Store(cfg)
	return rt, nil
}

// newManager builds a child manager hooked up to r's cache and settings.
func (r *runtime) newManager() *childmgr.Manager {
	return childmgr.New(r.cfg(), r.cache, r.settings, r.log)
}

// watchConfig starts a debounced fsnotify watch on r's config file and
// calls onReload with the freshly loaded config each time it settles,
// after swapping it into r's atomic pointer. Returns the watcher's Close.
func (r *runtime) watchConfig(onReload func(*config.Config)) (func() error, error) {
	w, err := config.NewWatcher(r.path, configReloadDebounce, func(cfg *config.Config) {
		r.cfgPtr.Store(cfg)
		onReload(cfg)
	})
	if err != nil {
		return nil, err
	}
	return w.Close, nil
}

// newIndex builds a BM25 index from the current schema cache contents.
func (r *runtime) newIndex() *search.Index {
	idx := search.New()
	idx.Build(search.DocumentsFromCache(r.cache.Full()))
	return idx
}
