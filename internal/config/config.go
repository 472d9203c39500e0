// Package config manages application configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ytcatalog/internal/retry"
	"ytcatalog/internal/youtube"
)

// Backends accepted in Config.Backend.
const (
	BackendYtdlp  = "ytdlp"
	BackendNative = "native"
	BackendAPI    = "api"
)

// FileName is the config file looked up in the working directory and in
// $HOME/.config/ytcatalog.
const FileName = "ytcatalog.yaml"

const envPrefix = "YTCATALOG_"

// Config holds all application configuration.
type Config struct {
	// CatalogPath is the durable catalog file (default: "youtube.txt")
	CatalogPath string `yaml:"catalog_path"`
	// LockTimeout bounds how long opening the catalog waits for its lock file
	LockTimeout time.Duration `yaml:"lock_timeout"`

	// DownloadDir receives downloaded media; created on first download
	DownloadDir string `yaml:"download_dir"`
	// DownloadFormat is the yt-dlp format selector for downloads
	DownloadFormat string `yaml:"download_format"`
	// DownloadTimeout bounds a single download (0 = no limit)
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// Backend selects the metadata backend: "ytdlp", "native" or "api"
	Backend string `yaml:"backend"`
	// APIKey authenticates YouTube Data API v3 requests (backend "api")
	APIKey string `yaml:"api_key"`
	// YtdlpPath is the path to the yt-dlp executable (default: "yt-dlp")
	YtdlpPath string `yaml:"ytdlp_path"`
	// FetchTimeout bounds a single metadata fetch
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// AllowedHosts limits which URL hosts are accepted
	AllowedHosts []string `yaml:"allowed_hosts"`

	// MaxRetries is the number of retries for transient fetch failures (0 = none)
	MaxRetries int `yaml:"max_retries"`
	// InitialBackoff is the initial backoff duration for retries
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// MaxBackoff is the maximum backoff duration for retries
	MaxBackoff time.Duration `yaml:"max_backoff"`
	// BackoffMultiplier is the multiplier for exponential backoff (must be > 1)
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// PlaylistEnrich re-fetches playlist entries that lack a title or duration
	PlaylistEnrich bool `yaml:"playlist_enrich"`
	// PlaylistConcurrency bounds parallel enrichment fetches
	PlaylistConcurrency int `yaml:"playlist_concurrency"`
	// PlaylistRPS paces enrichment fetches (0 = unpaced)
	PlaylistRPS float64 `yaml:"playlist_rps"`

	// HTTPRPS is the per-host request rate of the HTTP backends
	HTTPRPS float64 `yaml:"http_rps"`
	// HTTPTimeout bounds a single HTTP request of the HTTP backends
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// MetricsTextfile, when set, receives a prometheus text dump on exit
	MetricsTextfile string `yaml:"metrics_textfile"`

	// Source is the config file that was loaded, empty if none.
	Source string `yaml:"-"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	backoff := retry.DefaultConfig()
	return &Config{
		CatalogPath:         "youtube.txt",
		LockTimeout:         5 * time.Second,
		DownloadDir:         youtube.DefaultOutputDir,
		DownloadFormat:      youtube.DefaultFormat,
		Backend:             BackendYtdlp,
		YtdlpPath:           "yt-dlp",
		FetchTimeout:        2 * time.Minute,
		AllowedHosts:        append([]string(nil), youtube.DefaultAllowedHosts...),
		MaxRetries:          backoff.MaxRetries,
		InitialBackoff:      backoff.InitialBackoff,
		MaxBackoff:          backoff.MaxBackoff,
		BackoffMultiplier:   backoff.Multiplier,
		PlaylistConcurrency: 4,
		PlaylistRPS:         2,
		HTTPRPS:             2.5,
		HTTPTimeout:         30 * time.Second,
		LogLevel:            "warn",
		LogFormat:           "auto",
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults
//
// An explicit path must exist; without one the working directory and
// $HOME/.config/ytcatalog are searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.loadFromFile(path); err != nil {
		if path != "" || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SearchPaths returns the config files tried when no path is given.
func SearchPaths() []string {
	paths := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "ytcatalog", FileName))
	}
	return paths
}

func (c *Config) loadFromFile(path string) error {
	paths := SearchPaths()
	if path != "" {
		paths = []string{path}
	}

	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && path == "" {
				continue
			}
			return err
		}

		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		c.Source = p
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with YTCATALOG_* variables.
func (c *Config) loadFromEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(envPrefix + key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := getenv(envPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := getenv(envPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v := getenv(envPrefix + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
				return
			}
			*dst = f
		}
	}

	str("CATALOG_PATH", &c.CatalogPath)
	dur("LOCK_TIMEOUT", &c.LockTimeout)
	str("DOWNLOAD_DIR", &c.DownloadDir)
	str("DOWNLOAD_FORMAT", &c.DownloadFormat)
	dur("DOWNLOAD_TIMEOUT", &c.DownloadTimeout)
	str("BACKEND", &c.Backend)
	str("API_KEY", &c.APIKey)
	str("YTDLP_PATH", &c.YtdlpPath)
	dur("FETCH_TIMEOUT", &c.FetchTimeout)
	if v := getenv(envPrefix + "ALLOWED_HOSTS"); v != "" {
		c.AllowedHosts = splitList(v)
	}
	num("MAX_RETRIES", &c.MaxRetries)
	dur("INITIAL_BACKOFF", &c.InitialBackoff)
	dur("MAX_BACKOFF", &c.MaxBackoff)
	float("BACKOFF_MULTIPLIER", &c.BackoffMultiplier)
	if v := getenv(envPrefix + "PLAYLIST_ENRICH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sPLAYLIST_ENRICH: %w", envPrefix, err))
		} else {
			c.PlaylistEnrich = b
		}
	}
	num("PLAYLIST_CONCURRENCY", &c.PlaylistConcurrency)
	float("PLAYLIST_RPS", &c.PlaylistRPS)
	float("HTTP_RPS", &c.HTTPRPS)
	dur("HTTP_TIMEOUT", &c.HTTPTimeout)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	str("METRICS_TEXTFILE", &c.MetricsTextfile)

	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CatalogPath) == "" {
		return fmt.Errorf("catalog_path must not be empty")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be positive")
	}
	if strings.TrimSpace(c.DownloadDir) == "" {
		return fmt.Errorf("download_dir must not be empty")
	}
	if c.DownloadTimeout < 0 {
		return fmt.Errorf("download_timeout must be non-negative")
	}
	switch c.Backend {
	case BackendYtdlp, BackendNative:
	case BackendAPI:
		if strings.TrimSpace(c.APIKey) == "" {
			return fmt.Errorf("api_key is required for backend %q", BackendAPI)
		}
	default:
		return fmt.Errorf("backend must be %q, %q or %q, got %q", BackendYtdlp, BackendNative, BackendAPI, c.Backend)
	}
	if c.Backend == BackendYtdlp && strings.TrimSpace(c.YtdlpPath) == "" {
		return fmt.Errorf("ytdlp_path must not be empty")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch_timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff <= 0 {
		return fmt.Errorf("max_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	if c.PlaylistConcurrency < 1 {
		return fmt.Errorf("playlist_concurrency must be at least 1")
	}
	if c.PlaylistRPS < 0 {
		return fmt.Errorf("playlist_rps must be non-negative")
	}
	if c.HTTPRPS < 0 {
		return fmt.Errorf("http_rps must be non-negative")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http_timeout must be non-negative")
	}
	return nil
}

// RetryConfig returns the retry settings for fetchers.
func (c *Config) RetryConfig() retry.Config {
	return retry.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		Multiplier:     c.BackoffMultiplier,
		JitterFraction: retry.DefaultConfig().JitterFraction,
	}
}

// URLPolicy returns the URL validation policy.
func (c *Config) URLPolicy() youtube.URLPolicy {
	return youtube.URLPolicy{AllowedHosts: c.AllowedHosts}
}
