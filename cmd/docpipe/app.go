package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	docpipe "github.com/alnah/go-docpipe"
	"github.com/alnah/go-docpipe/fetch"
	"github.com/alnah/go-docpipe/internal/config"
	"github.com/alnah/go-docpipe/internal/fileutil"
	"github.com/alnah/go-docpipe/internal/hints"
	"github.com/alnah/go-docpipe/internal/logging"
	"github.com/alnah/go-docpipe/internal/releases"
	"github.com/alnah/go-docpipe/metrics"
	"github.com/alnah/go-docpipe/store"
)

// ErrStoreUnavailable is returned when a configured cache store cannot be
// opened or reached.
var ErrStoreUnavailable = errors.New("cache store unavailable")

const (
	defaultConfigName = "docpipe"
	defaultSessionTTL = 30 * time.Minute
	defaultFetchWait  = 30 * time.Second
	redisPingTimeout  = 3 * time.Second
	sqliteFileName    = "images.db"
	dirPermissions    = 0o750 // rwxr-x---: owner full, group read+execute
	filePermissions   = 0o644 // rw-r--r--: owner read+write, others read
)

// app is everything a command needs, built once from the merged config.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	fetcher  fetch.Fetcher
	session  store.Store
	pipeline *docpipe.Pipeline
	registry *prometheus.Registry
	logClose io.Closer
}

// loadConfig merges defaults, the config file, DOCPIPE_* variables and
// flags, in increasing precedence. Without --config or DOCPIPE_CONFIG, a
// "docpipe" config is used when one exists.
func loadConfig(f *commonFlags, env *Environment) (*config.Config, error) {
	envCfg := loadEnvConfig(env.Getenv)

	name := f.config
	if name == "" {
		name = envCfg.ConfigPath
	}

	cfg := config.DefaultConfig()
	switch {
	case name != "":
		loaded, err := config.LoadConfig(name)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	default:
		loaded, err := config.LoadConfig(defaultConfigName)
		if err == nil {
			cfg = loaded
		} else if !errors.Is(err, config.ErrConfigNotFound) {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	applyEnvConfig(envCfg, cfg)
	mergeCommonFlags(f, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeCommonFlags applies explicitly set flags over cfg.
func mergeCommonFlags(f *commonFlags, cfg *config.Config) {
	if f.baseURL != "" {
		cfg.Site.BaseURL = f.baseURL
	}
	if f.root != "" {
		cfg.Site.Root = f.root
	}
	if f.timeout != "" {
		cfg.Fetch.Timeout = f.timeout
	}
	if f.attempts > 0 {
		cfg.Fetch.Attempts = f.attempts
	}
	switch {
	case f.verbose:
		cfg.Log.Level = "debug"
	case f.quiet:
		cfg.Log.Level = "error"
	}
}

// newApp builds the logger, stores, fetcher and pipeline for cfg. The
// caller must Close the app.
func newApp(ctx context.Context, cfg *config.Config, env *Environment) (*app, error) {
	logger, logClose, err := logging.New(env.Stderr, logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		Service:    "docpipe",
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, logClose: logClose}
	ready := false
	defer func() {
		if !ready {
			_ = logClose.Close()
		}
	}()

	baseURL := cfg.Site.BaseURL
	if baseURL == "" {
		if baseURL, err = fileutil.DirURL(cfg.Site.Root); err != nil {
			return nil, fmt.Errorf("resolving docs root: %w", err)
		}
	}

	a.fetcher = env.Fetcher
	if a.fetcher == nil {
		a.fetcher = newFetcher(cfg)
	}

	session, err := openSessionStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	durable, err := openDurableStore(ctx, cfg)
	if err != nil {
		_ = session.Close()
		return nil, err
	}
	a.session = session

	a.registry = env.Registry
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
	}

	a.pipeline, err = docpipe.New(
		docpipe.WithBaseURL(baseURL),
		docpipe.WithSessionStore(session),
		docpipe.WithDurableStore(durable),
		docpipe.WithFetcher(a.fetcher),
		docpipe.WithLogger(logger),
		docpipe.WithMetrics(metrics.New(a.registry)),
		docpipe.WithHighlightStyle(cfg.Render.HighlightStyle),
		docpipe.WithDocsURL(cfg.Site.DocsURL),
		docpipe.WithConcurrency(cfg.Render.Concurrency),
		docpipe.WithSiteName(cfg.Site.Name),
	)
	if err != nil {
		_ = session.Close()
		_ = durable.Close()
		return nil, err
	}

	logger.Debug("pipeline ready",
		"base_url", a.pipeline.BaseURL(),
		"session_store", cfg.Cache.Session,
		"durable_store", cfg.Cache.Durable,
	)
	ready = true
	return a, nil
}

// setup loads the config and builds the app in one step.
func setup(ctx context.Context, f *commonFlags, env *Environment) (*app, error) {
	cfg, err := loadConfig(f, env)
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg, env)
}

// releases returns a release source over the app's fetcher and session.
func (a *app) releases(live bool) (*releases.Source, error) {
	return releases.NewSource(a.fetcher, a.session, a.pipeline.BaseURL(),
		releases.WithTTL(a.cfg.DownloadsTTL(releases.DefaultTTL)),
		releases.WithLivePreview(live || a.cfg.Downloads.LivePreview),
		releases.WithPaths(a.cfg.Downloads.IndexPath, a.cfg.Downloads.MetaPath),
		releases.WithLogger(a.logger),
	)
}

// Close releases the pipeline stores and the log file.
func (a *app) Close() error {
	var errs []error
	if a.pipeline != nil {
		errs = append(errs, a.pipeline.Close())
	}
	if a.logClose != nil {
		errs = append(errs, a.logClose.Close())
	}
	return errors.Join(errs...)
}

func newFetcher(cfg *config.Config) *fetch.HTTPFetcher {
	opts := []fetch.Option{
		fetch.WithTimeout(cfg.FetchTimeout(defaultFetchWait)),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithFileRoot(cfg.Site.Root),
	}
	if cfg.Fetch.Attempts > 0 {
		opts = append(opts, fetch.WithAttempts(cfg.Fetch.Attempts))
	}
	if cfg.Fetch.MaxBodyMB > 0 {
		opts = append(opts, fetch.WithMaxBodySize(int64(cfg.Fetch.MaxBodyMB)<<20))
	}
	return fetch.NewHTTPFetcher(opts...)
}

func redisOptions(cfg *config.Config) store.RedisOptions {
	return store.RedisOptions{
		Addr:      cfg.Cache.Redis.Addr,
		Password:  cfg.Cache.Redis.Password,
		DB:        cfg.Cache.Redis.DB,
		Namespace: cfg.Cache.Redis.Namespace,
	}
}

// openSessionStore opens the per-run text cache. Each run is one session,
// so a Redis session store gets a fresh namespace that expires on its own.
func openSessionStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Cache.Session != config.StoreRedis {
		return store.NewMemory(cfg.Cache.SessionMaxBytes), nil
	}
	opts := redisOptions(cfg)
	opts.TTL = cfg.SessionTTL(defaultSessionTTL)
	r := store.NewRedisSession(opts)
	if err := pingRedis(ctx, r, cfg.Cache.Redis.Addr); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// openDurableStore opens the image store shared across runs.
func openDurableStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Cache.Durable {
	case config.StoreMemory:
		return store.NewMemory(int(cfg.Cache.DurableMaxBytes)), nil
	case config.StoreRedis:
		r := store.NewRedis(redisOptions(cfg))
		if err := pingRedis(ctx, r, cfg.Cache.Redis.Addr); err != nil {
			_ = r.Close()
			return nil, err
		}
		return r, nil
	default:
		path, err := sqlitePath(cfg)
		if err != nil {
			return nil, err
		}
		s, err := store.OpenSQLite(path, cfg.Cache.DurableMaxBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return s, nil
	}
}

func pingRedis(ctx context.Context, r *store.Redis, addr string) error {
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		return fmt.Errorf("%w: redis at %s: %v%s", ErrStoreUnavailable, addr, err, hints.ForRedis(addr))
	}
	return nil
}

// sqlitePath returns cache.sqlitePath, defaulting to a file in the user
// cache directory, and creates its parent directory.
func sqlitePath(cfg *config.Config) (string, error) {
	path := cfg.Cache.SQLitePath
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("%w: locating cache directory: %v", ErrStoreUnavailable, err)
		}
		path = filepath.Join(dir, config.ConfigDirName, sqliteFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return "", fmt.Errorf("%w: %v%s", ErrStoreUnavailable, err, hints.ForOutputDirectory())
	}
	return path, nil
}
