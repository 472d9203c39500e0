package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"ytcatalog"
	"ytcatalog/internal/config"
	"ytcatalog/internal/log"
	"ytcatalog/internal/storage"
)

// globalFlags override the loaded configuration when set.
type globalFlags struct {
	configPath  string
	catalogPath string
	backend     string
	logLevel    string
	logFormat   string

	downloadDir    string
	downloadFormat string
}

func (f *globalFlags) apply(cfg *config.Config) {
	if f.catalogPath != "" {
		cfg.CatalogPath = f.catalogPath
	}
	if f.backend != "" {
		cfg.Backend = f.backend
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if f.downloadDir != "" {
		cfg.DownloadDir = f.downloadDir
	}
	if f.downloadFormat != "" {
		cfg.DownloadFormat = f.downloadFormat
	}
}

// loadConfig reads the configuration and applies flag overrides.
func (f *globalFlags) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	f.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app is one opened catalog with everything wired around it.
type app struct {
	session *ytcatalog.Session
	logger  zerolog.Logger
}

// openApp loads configuration, configures logging and opens the catalog.
// A corrupt catalog is fatal. progress, when non-nil, receives yt-dlp
// download progress lines.
func openApp(ctx context.Context, flags *globalFlags, logOut, progress io.Writer) (*app, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: logOut})
	logger := log.WithComponent("cli")
	if cfg.Source != "" {
		logger.Debug().Str("path", cfg.Source).Msg("configuration loaded")
	}

	var opts []ytcatalog.Option
	if progress != nil {
		opts = append(opts, ytcatalog.WithDownloadProgress(func(line string) {
			fmt.Fprintln(progress, line)
		}))
	}

	session, err := ytcatalog.Open(ctx, cfg, opts...)
	if err != nil {
		if storage.IsCorrupt(err) {
			return nil, fmt.Errorf("%w (fix or move %s before running again)", err, cfg.CatalogPath)
		}
		return nil, err
	}
	return &app{session: session, logger: logger}, nil
}

func (a *app) close() {
	if err := a.session.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("failed to release catalog")
	}
}
