package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2/styles"

	"github.com/alnah/go-docpipe/internal/fileutil"
	"github.com/alnah/go-docpipe/internal/hints"
	"github.com/alnah/go-docpipe/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
)

// Field length limits.
const (
	MaxSiteNameLength = 100
	MaxURLLength      = 2048 // Browser limit
	MaxPathLength     = 4096
	MaxStyleLength    = 50
	MaxAddrLength     = 255
)

// Store kinds accepted by cache.session and cache.durable.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// ConfigDirName is the directory under os.UserConfigDir searched for named
// configs.
const ConfigDirName = "go-docpipe"

// Config holds all configuration for the pipeline, the CLI and the dev server.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Cache     CacheConfig     `yaml:"cache"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Render    RenderConfig    `yaml:"render"`
	Downloads DownloadsConfig `yaml:"downloads"`
	Server    ServerConfig    `yaml:"server"`
	PDF       PDFConfig       `yaml:"pdf"`
	Log       LogConfig       `yaml:"log"`
}

// SiteConfig describes the documentation site.
type SiteConfig struct {
	Name    string `yaml:"name"`    // Title suffix (default: "Phasor")
	BaseURL string `yaml:"baseURL"` // Document keys resolve against this (empty = file:// of root)
	Root    string `yaml:"root"`    // Local docs root for the CLI and dev server (default: ".")
	DocsURL string `yaml:"docsURL"` // Linked from fetch-failure hints
}

// CacheConfig selects the session and durable stores.
type CacheConfig struct {
	Session         string      `yaml:"session"` // memory or redis (default: memory)
	Durable         string      `yaml:"durable"` // memory, sqlite or redis (default: sqlite)
	SQLitePath      string      `yaml:"sqlitePath"`
	SessionMaxBytes int         `yaml:"sessionMaxBytes"` // 0 = unbounded
	DurableMaxBytes int64       `yaml:"durableMaxBytes"` // 0 = unbounded
	SessionTTL      string      `yaml:"sessionTTL"`      // Redis session key expiry (default: 30m)
	Redis           RedisConfig `yaml:"redis"`
}

// RedisConfig locates the Redis server.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	Namespace string `yaml:"namespace"` // Key prefix (default: "docpipe:")
}

// FetchConfig tunes the HTTP fetcher.
type FetchConfig struct {
	Timeout   string `yaml:"timeout"`  // Per request (default: 30s)
	Attempts  int    `yaml:"attempts"` // 1 = no retry
	UserAgent string `yaml:"userAgent"`
	MaxBodyMB int    `yaml:"maxBodyMB"`
}

// RenderConfig tunes Markdown rendering.
type RenderConfig struct {
	HighlightStyle string `yaml:"highlightStyle"` // chroma style (default: "github")
	Concurrency    int    `yaml:"concurrency"`    // Image resolutions in flight per render
}

// DownloadsConfig tunes the downloads page.
type DownloadsConfig struct {
	IndexPath   string `yaml:"indexPath"`
	MetaPath    string `yaml:"metaPath"`
	TTL         string `yaml:"ttl"`         // Release JSON cache lifetime (default: 90s)
	LivePreview bool   `yaml:"livePreview"` // Bypass the release JSON cache
}

// ServerConfig tunes the dev server.
type ServerConfig struct {
	Addr           string   `yaml:"addr"` // default: 127.0.0.1:8080
	CORSOrigins    []string `yaml:"corsOrigins"`
	FileCacheMB    int      `yaml:"fileCacheMB"`    // Total static cache size
	FileCacheMaxKB int      `yaml:"fileCacheMaxKB"` // Larger files bypass the cache
	Watch          bool     `yaml:"watch"`          // Invalidate cached files on change
}

// PDFConfig tunes the headless-browser PDF export.
type PDFConfig struct {
	Timeout string `yaml:"timeout"` // default: 30s
}

// LogConfig selects the log handler.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // text or json
	File       string `yaml:"file"`   // Optional rotated log file
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// Validate checks field lengths and enumerated values.
// Called automatically by LoadConfig, but available for consumers
// who construct Config manually.
func (c *Config) Validate() error {
	lengths := []struct {
		field string
		value string
		max   int
	}{
		{"site.name", c.Site.Name, MaxSiteNameLength},
		{"site.baseURL", c.Site.BaseURL, MaxURLLength},
		{"site.root", c.Site.Root, MaxPathLength},
		{"site.docsURL", c.Site.DocsURL, MaxURLLength},
		{"cache.sqlitePath", c.Cache.SQLitePath, MaxPathLength},
		{"cache.redis.addr", c.Cache.Redis.Addr, MaxAddrLength},
		{"render.highlightStyle", c.Render.HighlightStyle, MaxStyleLength},
		{"downloads.indexPath", c.Downloads.IndexPath, MaxURLLength},
		{"downloads.metaPath", c.Downloads.MetaPath, MaxURLLength},
		{"server.addr", c.Server.Addr, MaxAddrLength},
		{"log.file", c.Log.File, MaxPathLength},
	}
	for _, l := range lengths {
		if err := validateFieldLength(l.field, l.value, l.max); err != nil {
			return err
		}
	}

	if c.Render.HighlightStyle != "" {
		if _, ok := styles.Registry[c.Render.HighlightStyle]; !ok {
			return fmt.Errorf("%w: render.highlightStyle %q is not a known style%s",
				ErrInvalidValue, c.Render.HighlightStyle, hints.ForStyleNotFound(styles.Names()))
		}
	}

	if c.Site.BaseURL != "" {
		u, err := url.Parse(c.Site.BaseURL)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("%w: site.baseURL must be an absolute URL, got %q", ErrInvalidValue, c.Site.BaseURL)
		}
	}

	if err := oneOf("cache.session", c.Cache.Session, StoreMemory, StoreRedis); err != nil {
		return err
	}
	if err := oneOf("cache.durable", c.Cache.Durable, StoreMemory, StoreSQLite, StoreRedis); err != nil {
		return err
	}
	if (c.Cache.Session == StoreRedis || c.Cache.Durable == StoreRedis) && c.Cache.Redis.Addr == "" {
		return fmt.Errorf("%w: cache.redis.addr is required when a redis store is selected", ErrInvalidValue)
	}
	if err := oneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "warning", "error"); err != nil {
		return err
	}
	if err := oneOf("log.format", strings.ToLower(c.Log.Format), "text", "json"); err != nil {
		return err
	}

	durations := []struct {
		field string
		value string
	}{
		{"cache.sessionTTL", c.Cache.SessionTTL},
		{"fetch.timeout", c.Fetch.Timeout},
		{"downloads.ttl", c.Downloads.TTL},
		{"pdf.timeout", c.PDF.Timeout},
	}
	for _, d := range durations {
		if _, err := parseDuration(d.field, d.value, 0); err != nil {
			return err
		}
	}

	negatives := []struct {
		field string
		value int64
	}{
		{"cache.sessionMaxBytes", int64(c.Cache.SessionMaxBytes)},
		{"cache.durableMaxBytes", c.Cache.DurableMaxBytes},
		{"fetch.attempts", int64(c.Fetch.Attempts)},
		{"fetch.maxBodyMB", int64(c.Fetch.MaxBodyMB)},
		{"render.concurrency", int64(c.Render.Concurrency)},
		{"server.fileCacheMB", int64(c.Server.FileCacheMB)},
		{"server.fileCacheMaxKB", int64(c.Server.FileCacheMaxKB)},
	}
	for _, n := range negatives {
		if n.value < 0 {
			return fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidValue, n.field, n.value)
		}
	}
	return nil
}

// FetchTimeout returns fetch.timeout, or def when unset.
func (c *Config) FetchTimeout(def time.Duration) time.Duration {
	d, _ := parseDuration("fetch.timeout", c.Fetch.Timeout, def)
	return d
}

// SessionTTL returns cache.sessionTTL, or def when unset.
func (c *Config) SessionTTL(def time.Duration) time.Duration {
	d, _ := parseDuration("cache.sessionTTL", c.Cache.SessionTTL, def)
	return d
}

// DownloadsTTL returns downloads.ttl, or def when unset.
func (c *Config) DownloadsTTL(def time.Duration) time.Duration {
	d, _ := parseDuration("downloads.ttl", c.Downloads.TTL, def)
	return d
}

// PDFTimeout returns pdf.timeout, or def when unset.
func (c *Config) PDFTimeout(def time.Duration) time.Duration {
	d, _ := parseDuration("pdf.timeout", c.PDF.Timeout, def)
	return d
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return def, fmt.Errorf("%w: %s must be a duration such as 30s, got %q", ErrInvalidValue, field, value)
	}
	return d, nil
}

func oneOf(field, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q (must be one of %s)", ErrInvalidValue, field, value, strings.Join(allowed, ", "))
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		Site:   SiteConfig{Name: "Phasor", Root: "."},
		Cache:  CacheConfig{Session: StoreMemory, Durable: StoreSQLite, Redis: RedisConfig{Namespace: "docpipe:"}},
		Fetch:  FetchConfig{Attempts: 1},
		Render: RenderConfig{HighlightStyle: "github", Concurrency: 8},
		Server: ServerConfig{Addr: "127.0.0.1:8080", FileCacheMB: 64, FileCacheMaxKB: 1024, Watch: true},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Values absent from the file keep their DefaultConfig value.
// Returns error if the file is not found (no silent fallback).
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := yamlutil.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		if errors.Is(err, yamlutil.ErrInputTooLarge) {
			return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/go-docpipe/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileutil.FileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, ConfigDirName, name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s%s", ErrConfigNotFound, strings.Join(triedPaths, ", "), hints.ForConfigNotFound(triedPaths))
}
