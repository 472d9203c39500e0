package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ytcatalog/internal/procgroup"
)

const (
	// DefaultOutputDir is where downloads land when no directory is configured.
	DefaultOutputDir = "downloads"
	// DefaultFormat asks yt-dlp for the best single-file format.
	DefaultFormat = "best"
	// OutputTemplate names files after the video title.
	OutputTemplate = "%(title)s.%(ext)s"
)

// Downloader fetches the media behind a URL to local disk.
type Downloader interface {
	Download(ctx context.Context, url string, opts *DownloadOptions) (*DownloadResult, error)
}

// DownloadOptions configures video download behavior.
type DownloadOptions struct {
	// OutputDir is created if missing. Defaults to DefaultOutputDir.
	OutputDir string
	// Format is a yt-dlp format selector. Defaults to DefaultFormat.
	Format string
	// OnProgress receives yt-dlp's progress lines when set.
	OnProgress func(line string)
}

// DownloadResult contains information about a completed download.
type DownloadResult struct {
	// Path is the final media file reported by yt-dlp.
	Path string
	// Size is the file size in bytes, 0 if the file could not be inspected.
	Size int64
	// Elapsed is the wall time spent in yt-dlp.
	Elapsed time.Duration
}

// YtdlpDownloader handles video downloads using yt-dlp.
type YtdlpDownloader struct {
	// Path is the path to the yt-dlp executable.
	Path string
	// Timeout bounds a single download. 0 means only caller cancellation applies.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// NewYtdlpDownloader creates a downloader with default settings.
func NewYtdlpDownloader() *YtdlpDownloader {
	return &YtdlpDownloader{Path: defaultYtdlpPath, Logger: zerolog.Nop()}
}

// Download saves the media at url into opts.OutputDir.
func (d *YtdlpDownloader) Download(ctx context.Context, url string, opts *DownloadOptions) (*DownloadResult, error) {
	if opts == nil {
		opts = &DownloadOptions{}
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	format := opts.Format
	if format == "" {
		format = DefaultFormat
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("create output directory: %w", err)}
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	args := []string{
		"-f", format,
		"-o", filepath.Join(outputDir, OutputTemplate),
		"--no-warnings",
		"--newline",
		"--print", "after_move:filepath",
	}
	if opts.OnProgress != nil {
		// --print implies --quiet; --progress brings the progress lines back on stderr.
		args = append(args, "--progress")
	}
	args = append(args, "--", url)
	cmd := exec.CommandContext(ctx, d.path(), args...)
	procgroup.Bind(cmd, 0)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &progressWriter{buf: &stderr, fn: opts.OnProgress}

	d.Logger.Info().Str("url", url).Str("dir", outputDir).Str("format", format).Msg("starting download")
	start := time.Now()

	if err := cmd.Run(); err != nil {
		switch {
		case ctx.Err() != nil:
			return nil, &DownloadError{URL: url, Err: ctx.Err()}
		case errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist):
			return nil, &DownloadError{URL: url, Err: fmt.Errorf("%w: %s", ErrYtdlpNotInstalled, d.path())}
		}
		return nil, &DownloadError{URL: url, Err: classifyStderr(stderr.String(), err)}
	}

	result := &DownloadResult{
		Path:    parseFinalPath(stdout.String()),
		Elapsed: time.Since(start),
	}
	if result.Path != "" {
		if info, err := os.Stat(result.Path); err == nil {
			result.Size = info.Size()
		}
	}

	d.Logger.Info().Str("url", url).Str("path", result.Path).Int64("bytes", result.Size).
		Dur("elapsed", result.Elapsed).Msg("download finished")
	return result, nil
}

func (d *YtdlpDownloader) path() string {
	if d.Path != "" {
		return d.Path
	}
	return defaultYtdlpPath
}

// parseFinalPath returns the last non-empty line of yt-dlp's stdout, which
// `--print after_move:filepath` sets to the final file path.
func parseFinalPath(stdout string) string {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

// progressWriter buffers stderr and forwards complete lines to fn.
type progressWriter struct {
	buf     *bytes.Buffer
	fn      func(string)
	pending []byte
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	if w.fn == nil {
		return len(p), nil
	}
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexAny(w.pending, "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.pending[:i])); line != "" {
			w.fn(line)
		}
		w.pending = w.pending[i+1:]
	}
	return len(p), nil
}
