package ytcatalog

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"ytcatalog/internal/catalog"
	"ytcatalog/internal/config"
	"ytcatalog/internal/log"
	"ytcatalog/internal/metrics"
	"ytcatalog/internal/storage"
	"ytcatalog/internal/transport"
	"ytcatalog/internal/youtube"
)

type (
	// Config holds all settings; see LoadConfig.
	Config = config.Config
	// Video is one catalog record as stored on disk.
	Video = storage.Video
	// Listing is a record together with its 1-based position.
	Listing = catalog.Listing
	// ImportResult summarizes a playlist import.
	ImportResult = catalog.ImportResult
	// DownloadResult describes a finished download.
	DownloadResult = youtube.DownloadResult
)

// LoadConfig loads configuration from the environment, the config file at
// path (or the default locations when path is empty) and defaults.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Session is an opened catalog with its backends. The catalog file stays
// locked until Close.
type Session struct {
	*catalog.Manager

	cfg    *Config
	store  *storage.JSONStore
	logger zerolog.Logger
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	fetcher    youtube.Fetcher
	downloader youtube.Downloader
	progress   func(line string)
}

// WithFetcher replaces the backend selected by Config.Backend.
func WithFetcher(f youtube.Fetcher) Option {
	return func(o *openOptions) { o.fetcher = f }
}

// WithDownloader replaces the yt-dlp downloader.
func WithDownloader(d youtube.Downloader) Option {
	return func(o *openOptions) { o.downloader = d }
}

// WithDownloadProgress forwards yt-dlp progress lines to fn.
func WithDownloadProgress(fn func(line string)) Option {
	return func(o *openOptions) { o.progress = fn }
}

// Open locks and loads the catalog named by cfg. A corrupt catalog is
// returned as an error matching ErrCorruptCatalog and is never overwritten.
func Open(ctx context.Context, cfg *Config, opts ...Option) (*Session, error) {
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	fetcher := o.fetcher
	if fetcher == nil {
		var err error
		if fetcher, err = NewFetcher(ctx, cfg); err != nil {
			return nil, err
		}
	}

	downloader := o.downloader
	if downloader == nil {
		d := youtube.NewYtdlpDownloader()
		if cfg.YtdlpPath != "" {
			d.Path = cfg.YtdlpPath
		}
		d.Timeout = cfg.DownloadTimeout
		d.Logger = log.WithComponent("download")
		downloader = d
	}

	store, err := storage.NewJSONStore(ctx, cfg.CatalogPath,
		storage.WithLockTimeout(cfg.LockTimeout),
		storage.WithLogger(log.WithComponent("storage")))
	if err != nil {
		return nil, err
	}

	managerOpts := []catalog.Option{
		catalog.WithLogger(log.WithComponent("catalog")),
		catalog.WithDownloadDir(cfg.DownloadDir),
		catalog.WithDownloadFormat(cfg.DownloadFormat),
		catalog.WithEnrichment(catalog.EnrichConfig{
			Enabled:     cfg.PlaylistEnrich,
			Concurrency: cfg.PlaylistConcurrency,
			RPS:         cfg.PlaylistRPS,
		}),
	}
	if o.progress != nil {
		managerOpts = append(managerOpts, catalog.WithDownloadProgress(o.progress))
	}

	manager := catalog.NewManager(store, fetcher, downloader, managerOpts...)
	if err := manager.Open(ctx); err != nil {
		return nil, errors.Join(err, store.Close())
	}

	return &Session{
		Manager: manager,
		cfg:     cfg,
		store:   store,
		logger:  log.WithComponent("session"),
	}, nil
}

// Path returns the catalog file.
func (s *Session) Path() string { return s.store.Path() }

// Close releases the catalog lock and, when MetricsTextfile is configured,
// writes the metrics gathered during the session.
func (s *Session) Close() error {
	err := s.store.Close()
	if s.cfg.MetricsTextfile != "" {
		if mErr := metrics.WriteTextfile(s.cfg.MetricsTextfile); mErr != nil {
			s.logger.Warn().Err(mErr).Str("path", s.cfg.MetricsTextfile).Msg("failed to write metrics")
		}
	}
	return err
}

// NewFetcher builds the metadata backend selected by cfg.Backend.
func NewFetcher(ctx context.Context, cfg *Config) (youtube.Fetcher, error) {
	logger := log.Derive(func(c *zerolog.Context) {
		*c = c.Str("component", "fetch").Str("backend", cfg.Backend)
	})
	observe := metrics.FetchObserver(cfg.Backend)

	switch cfg.Backend {
	case config.BackendNative:
		f := youtube.NewNativeFetcher(newHTTPClient(cfg))
		f.Policy = cfg.URLPolicy()
		f.Observe = observe
		f.Logger = logger
		return f, nil

	case config.BackendAPI:
		f, err := youtube.NewDataAPIFetcher(ctx, cfg.APIKey, newHTTPClient(cfg))
		if err != nil {
			return nil, err
		}
		f.Policy = cfg.URLPolicy()
		f.RetryConfig = cfg.RetryConfig()
		f.Observe = observe
		f.Logger = logger
		return f, nil

	case config.BackendYtdlp, "":
		f := youtube.NewYtdlpFetcher()
		if cfg.YtdlpPath != "" {
			f.Path = cfg.YtdlpPath
		}
		f.Timeout = cfg.FetchTimeout
		f.RetryConfig = cfg.RetryConfig()
		f.Policy = cfg.URLPolicy()
		f.Observe = observe
		f.Logger = logger
		return f, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func newHTTPClient(cfg *Config) *http.Client {
	tc := transport.DefaultConfig()
	tc.Timeout = cfg.HTTPTimeout
	tc.RateLimiter.DefaultRPS = cfg.HTTPRPS
	logger := log.WithComponent("http")
	tc.Logger = &logger
	return transport.NewClient(tc)
}
