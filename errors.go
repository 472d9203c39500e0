package ytcatalog

import (
	"ytcatalog/internal/catalog"
	"ytcatalog/internal/retry"
	"ytcatalog/internal/storage"
	"ytcatalog/internal/youtube"
)

// Error handling types exported for library users.
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, ytcatalog.ErrNotAPlaylist) {
//		fmt.Println("Error: Provided URL is not a playlist.")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var fetchErr *ytcatalog.FetchError
//	if errors.As(err, &fetchErr) {
//		fmt.Printf("%s backend failed for %s: %v\n", fetchErr.Source, fetchErr.URL, fetchErr.Err)
//	}

// Type aliases for convenient error handling.
type (
	// FetchError wraps metadata fetch failures.
	FetchError = youtube.FetchError
	// DownloadError wraps yt-dlp download failures.
	DownloadError = youtube.DownloadError
	// PositionError reports a position outside the catalog.
	PositionError = catalog.PositionError
	// StorageError wraps catalog file failures.
	StorageError = storage.StorageError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrInvalidURL indicates the URL is malformed or not a YouTube URL.
	ErrInvalidURL = youtube.ErrInvalidURL
	// ErrNotAPlaylist indicates a playlist import was given a single video.
	ErrNotAPlaylist = youtube.ErrNotAPlaylist
	// ErrNotAVideo indicates a single-video fetch was given a playlist page.
	ErrNotAVideo = youtube.ErrNotAVideo
	// ErrUnavailable indicates the video is private, removed or blocked.
	ErrUnavailable = youtube.ErrUnavailable
	// ErrRateLimited indicates YouTube throttled the request.
	ErrRateLimited = youtube.ErrRateLimited
	// ErrNetworkTimeout indicates a network timeout occurred.
	ErrNetworkTimeout = youtube.ErrNetworkTimeout
	// ErrNetwork indicates a connection failure.
	ErrNetwork = youtube.ErrNetwork
	// ErrMalformedResponse indicates metadata that could not be interpreted.
	ErrMalformedResponse = youtube.ErrMalformedResponse
	// ErrYtdlpNotInstalled indicates the yt-dlp binary was not found.
	ErrYtdlpNotInstalled = youtube.ErrYtdlpNotInstalled
	// ErrAPIKeyRejected indicates the Data API refused the configured key.
	ErrAPIKeyRejected = youtube.ErrAPIKeyRejected

	// ErrIndexOutOfRange indicates a position outside [1, len].
	ErrIndexOutOfRange = catalog.ErrIndexOutOfRange

	// Storage errors
	// ErrCorruptCatalog indicates the catalog file could not be parsed.
	ErrCorruptCatalog = storage.ErrCorruptCatalog
	// ErrLockTimeout indicates another process holds the catalog.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable determines if an error should be retried.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
