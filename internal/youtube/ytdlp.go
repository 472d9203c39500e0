package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ytcatalog/internal/procgroup"
	"ytcatalog/internal/retry"
)

const (
	defaultYtdlpPath    = "yt-dlp"
	defaultFetchTimeout = 2 * time.Minute
)

// YtdlpFetcher implements Fetcher using yt-dlp as a subprocess.
type YtdlpFetcher struct {
	// Path is the path to the yt-dlp executable. Defaults to "yt-dlp".
	Path string

	// Timeout bounds each yt-dlp invocation. Defaults to 2 minutes.
	Timeout time.Duration

	// ExtraArgs are additional arguments to pass to yt-dlp.
	ExtraArgs []string

	// RetryConfig controls retries of transient failures. The zero value
	// (and DefaultConfig) attempts each fetch once.
	RetryConfig retry.Config

	// Policy validates URLs before yt-dlp is started.
	Policy URLPolicy

	// Observe, if set, is called after each yt-dlp run with the kind of
	// fetch ("video" or "playlist"), its duration and its error.
	Observe func(kind string, d time.Duration, err error)

	Logger zerolog.Logger
}

// NewYtdlpFetcher creates a yt-dlp backed fetcher with default settings.
func NewYtdlpFetcher() *YtdlpFetcher {
	return &YtdlpFetcher{
		Path:        defaultYtdlpPath,
		Timeout:     defaultFetchTimeout,
		RetryConfig: retry.DefaultConfig(),
		Policy:      DefaultURLPolicy(),
		Logger:      zerolog.Nop(),
	}
}

// FetchVideo runs `yt-dlp -J --no-playlist` for rawURL.
func (y *YtdlpFetcher) FetchVideo(ctx context.Context, rawURL string) (*VideoInfo, error) {
	u, err := y.Policy.Validate(rawURL)
	if err != nil {
		return nil, &FetchError{Source: "ytdlp", URL: rawURL, Err: err}
	}
	target := u.String()

	var info *VideoInfo
	err = y.run(ctx, "video", target, []string{"-J", "--no-warnings", "--no-playlist"}, func(out []byte) error {
		parsed, err := parseVideo(out, target)
		if err != nil {
			return retry.Permanent(&FetchError{Source: "ytdlp", URL: target, Err: err})
		}
		info = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// FetchPlaylist runs `yt-dlp -J --flat-playlist --skip-download` for rawURL.
func (y *YtdlpFetcher) FetchPlaylist(ctx context.Context, rawURL string) (*Playlist, error) {
	u, err := y.Policy.Validate(rawURL)
	if err != nil {
		return nil, &FetchError{Source: "ytdlp", URL: rawURL, Err: err}
	}
	target := u.String()

	args := []string{"-J", "--no-warnings", "--flat-playlist", "--skip-download", "--yes-playlist"}
	var playlist *Playlist
	err = y.run(ctx, "playlist", target, args, func(out []byte) error {
		parsed, err := parsePlaylist(out)
		if err != nil {
			return retry.Permanent(&FetchError{Source: "ytdlp", URL: target, Err: err})
		}
		playlist = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	if playlist.Skipped > 0 {
		y.Logger.Warn().Str("url", target).Int("skipped", playlist.Skipped).
			Msg("playlist contains unavailable entries")
	}
	return playlist, nil
}

// run executes yt-dlp with args and target, retrying per RetryConfig, and
// hands stdout of the successful attempt to parse.
func (y *YtdlpFetcher) run(ctx context.Context, kind, target string, args []string, parse func([]byte) error) error {
	err := retry.Do(ctx, y.retryConfig(kind, target), ytdlpErrorClassifier, func(ctx context.Context) error {
		start := time.Now()
		out, err := y.exec(ctx, target, args)
		if y.Observe != nil {
			y.Observe(kind, time.Since(start), err)
		}
		if err != nil {
			return err
		}
		return parse(out)
	})
	if err == nil {
		return nil
	}

	// Surface the *FetchError itself rather than retry's wrappers, keeping
	// the retry count in the message when retries were exhausted.
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) {
		var retryErr *retry.RetryableError
		if errors.As(err, &retryErr) {
			return &FetchError{Source: fetchErr.Source, URL: fetchErr.URL,
				Err: fmt.Errorf("%w (after %d retries)", fetchErr.Err, retryErr.Retries)}
		}
		return fetchErr
	}
	return &FetchError{Source: "ytdlp", URL: target, Err: err}
}

func (y *YtdlpFetcher) retryConfig(kind, target string) retry.Config {
	cfg := y.RetryConfig
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, sleep time.Duration) {
			y.Logger.Warn().Err(err).Str("kind", kind).Str("url", target).
				Int("attempt", attempt).Dur("sleep", sleep).Msg("retrying yt-dlp fetch")
		}
	}
	return cfg
}

// exec runs yt-dlp once and classifies failures into FetchError sentinels.
func (y *YtdlpFetcher) exec(ctx context.Context, target string, args []string) ([]byte, error) {
	timeout := y.Timeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append(append(append([]string{}, args...), y.ExtraArgs...), "--", target)
	cmd := exec.CommandContext(cmdCtx, y.path(), argv...)
	procgroup.Bind(cmd, 0)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	y.Logger.Debug().Str("url", target).Strs("args", args).Msg("running yt-dlp")

	if err := cmd.Run(); err != nil {
		// Caller cancellation wins over the per-call timeout.
		if ctx.Err() != nil {
			return nil, &FetchError{Source: "ytdlp", URL: target, Err: ctx.Err()}
		}
		if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
			return nil, &FetchError{Source: "ytdlp", URL: target,
				Err: fmt.Errorf("%w: no response within %v", ErrNetworkTimeout, timeout)}
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
			return nil, &FetchError{Source: "ytdlp", URL: target,
				Err: fmt.Errorf("%w: %s", ErrYtdlpNotInstalled, y.path())}
		}
		return nil, &FetchError{Source: "ytdlp", URL: target, Err: classifyStderr(stderr.String(), err)}
	}

	return stdout.Bytes(), nil
}

func (y *YtdlpFetcher) path() string {
	if y.Path != "" {
		return y.Path
	}
	return defaultYtdlpPath
}

// stderrPatterns map lower-cased yt-dlp error text to sentinels. Order matters:
// the first match wins.
var stderrPatterns = []struct {
	substr string
	err    error
}{
	{"http error 429", ErrRateLimited},
	{"too many requests", ErrRateLimited},
	{"rate-limit", ErrRateLimited},
	{"unsupported url", ErrInvalidURL},
	{"is not a valid url", ErrInvalidURL},
	{"incomplete youtube id", ErrInvalidURL},
	{"private video", ErrUnavailable},
	{"video unavailable", ErrUnavailable},
	{"this video is not available", ErrUnavailable},
	{"has been removed", ErrUnavailable},
	{"not available in your country", ErrUnavailable},
	{"sign in to confirm your age", ErrUnavailable},
	{"members-only", ErrUnavailable},
	{"does not exist", ErrUnavailable},
	{"timed out", ErrNetworkTimeout},
	{"unable to download", ErrNetwork},
	{"name resolution", ErrNetwork},
	{"connection reset", ErrNetwork},
	{"network is unreachable", ErrNetwork},
}

// classifyStderr builds a human-readable error from yt-dlp's stderr.
func classifyStderr(stderr string, runErr error) error {
	detail := lastErrorLine(stderr)
	lower := strings.ToLower(stderr)
	for _, p := range stderrPatterns {
		if strings.Contains(lower, p.substr) {
			if detail == "" {
				return p.err
			}
			return fmt.Errorf("%w: %s", p.err, detail)
		}
	}
	if detail == "" {
		return fmt.Errorf("yt-dlp failed: %w", runErr)
	}
	return fmt.Errorf("yt-dlp failed: %s", detail)
}

// lastErrorLine returns the most relevant line of yt-dlp's stderr, preferring
// lines starting with "ERROR:".
func lastErrorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	return strings.TrimSpace(lines[len(lines)-1])
}

// ytdlpErrorClassifier determines if a yt-dlp error is retryable.
func ytdlpErrorClassifier(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidURL),
		errors.Is(err, ErrNotAPlaylist),
		errors.Is(err, ErrNotAVideo),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrYtdlpNotInstalled):
		return false
	}
	// Rate limits, timeouts and network errors may succeed on a later attempt
	return true
}
