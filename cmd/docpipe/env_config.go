package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alnah/go-docpipe/internal/config"
)

const envPrefix = "DOCPIPE_"

// envConfig holds configuration from environment variables.
// Provides CI/CD-friendly overrides without requiring YAML files.
type envConfig struct {
	// Site
	ConfigPath string // DOCPIPE_CONFIG: config file name or path
	BaseURL    string // DOCPIPE_BASE_URL: document base URL
	Root       string // DOCPIPE_ROOT: local docs root
	SiteName   string // DOCPIPE_SITE_NAME: title suffix

	// Caches
	SessionStore string // DOCPIPE_SESSION_STORE: memory, redis
	DurableStore string // DOCPIPE_DURABLE_STORE: memory, sqlite, redis
	SQLitePath   string // DOCPIPE_SQLITE_PATH: image database
	RedisAddr    string // DOCPIPE_REDIS_ADDR: host:port
	RedisPass    string // DOCPIPE_REDIS_PASSWORD

	// Fetching and serving
	FetchTimeout string // DOCPIPE_FETCH_TIMEOUT: e.g. 30s
	Attempts     int    // DOCPIPE_FETCH_ATTEMPTS
	Addr         string // DOCPIPE_ADDR: dev server listen address
	LivePreview  *bool  // DOCPIPE_LIVE_PREVIEW: bypass the release cache

	// Logging
	LogLevel  string // DOCPIPE_LOG_LEVEL
	LogFormat string // DOCPIPE_LOG_FORMAT
	LogFile   string // DOCPIPE_LOG_FILE
}

// knownEnvVars lists valid DOCPIPE_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	"DOCPIPE_CONFIG":         true,
	"DOCPIPE_BASE_URL":       true,
	"DOCPIPE_ROOT":           true,
	"DOCPIPE_SITE_NAME":      true,
	"DOCPIPE_SESSION_STORE":  true,
	"DOCPIPE_DURABLE_STORE":  true,
	"DOCPIPE_SQLITE_PATH":    true,
	"DOCPIPE_REDIS_ADDR":     true,
	"DOCPIPE_REDIS_PASSWORD": true,
	"DOCPIPE_FETCH_TIMEOUT":  true,
	"DOCPIPE_FETCH_ATTEMPTS": true,
	"DOCPIPE_ADDR":           true,
	"DOCPIPE_LIVE_PREVIEW":   true,
	"DOCPIPE_LOG_LEVEL":      true,
	"DOCPIPE_LOG_FORMAT":     true,
	"DOCPIPE_LOG_FILE":       true,
	"DOCPIPE_CONTAINER":      true, // read by doctor
}

// loadEnvConfig reads configuration through getenv. Malformed numbers and
// booleans are ignored so a typo never blocks a command.
func loadEnvConfig(getenv func(string) string) *envConfig {
	cfg := &envConfig{
		ConfigPath:   getenv("DOCPIPE_CONFIG"),
		BaseURL:      getenv("DOCPIPE_BASE_URL"),
		Root:         getenv("DOCPIPE_ROOT"),
		SiteName:     getenv("DOCPIPE_SITE_NAME"),
		SessionStore: getenv("DOCPIPE_SESSION_STORE"),
		DurableStore: getenv("DOCPIPE_DURABLE_STORE"),
		SQLitePath:   getenv("DOCPIPE_SQLITE_PATH"),
		RedisAddr:    getenv("DOCPIPE_REDIS_ADDR"),
		RedisPass:    getenv("DOCPIPE_REDIS_PASSWORD"),
		FetchTimeout: getenv("DOCPIPE_FETCH_TIMEOUT"),
		Addr:         getenv("DOCPIPE_ADDR"),
		LogLevel:     getenv("DOCPIPE_LOG_LEVEL"),
		LogFormat:    getenv("DOCPIPE_LOG_FORMAT"),
		LogFile:      getenv("DOCPIPE_LOG_FILE"),
	}

	if v := getenv("DOCPIPE_FETCH_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Attempts = n
		}
	}
	if v := getenv("DOCPIPE_LIVE_PREVIEW"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.LivePreview = &b
		}
	}

	return cfg
}

// warnUnknownEnvVars prints a warning for each unrecognized DOCPIPE_*
// variable in environ, such as DOCPIPE_BASEURL for DOCPIPE_BASE_URL.
func warnUnknownEnvVars(w io.Writer, environ []string) {
	for _, env := range environ {
		if !strings.HasPrefix(env, envPrefix) {
			continue
		}
		name, _, _ := strings.Cut(env, "=")
		if !knownEnvVars[name] {
			fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
		}
	}
}

// applyEnvConfig overwrites config values with every set variable.
// Precedence: CLI flags > env vars > config file > defaults
// (CLI flags are applied later via mergeCommonFlags)
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	set(&cfg.Site.BaseURL, env.BaseURL)
	set(&cfg.Site.Root, env.Root)
	set(&cfg.Site.Name, env.SiteName)

	set(&cfg.Cache.Session, env.SessionStore)
	set(&cfg.Cache.Durable, env.DurableStore)
	set(&cfg.Cache.SQLitePath, env.SQLitePath)
	set(&cfg.Cache.Redis.Addr, env.RedisAddr)
	set(&cfg.Cache.Redis.Password, env.RedisPass)

	set(&cfg.Fetch.Timeout, env.FetchTimeout)
	if env.Attempts > 0 {
		cfg.Fetch.Attempts = env.Attempts
	}
	set(&cfg.Server.Addr, env.Addr)
	if env.LivePreview != nil {
		cfg.Downloads.LivePreview = *env.LivePreview
	}

	set(&cfg.Log.Level, env.LogLevel)
	set(&cfg.Log.Format, env.LogFormat)
	set(&cfg.Log.File, env.LogFile)
}
