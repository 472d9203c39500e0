// Package youtube fetches video and playlist metadata and triggers downloads.
//
// Three metadata backends are provided: YtdlpFetcher drives the yt-dlp
// executable, NativeFetcher talks to YouTube directly through
// github.com/kkdai/youtube and DataAPIFetcher uses YouTube Data API v3 with an
// API key. All satisfy Fetcher and report every failure as a *FetchError.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"ytcatalog/internal/storage"
)

// Sentinel errors carried inside FetchError and DownloadError.
var (
	ErrInvalidURL        = errors.New("youtube: invalid URL")
	ErrNotAPlaylist      = errors.New("youtube: not a playlist")
	ErrNotAVideo         = errors.New("youtube: URL refers to a playlist, not a single video")
	ErrUnavailable       = errors.New("youtube: video unavailable")
	ErrRateLimited       = errors.New("youtube: rate limited")
	ErrNetworkTimeout    = errors.New("youtube: network timeout")
	ErrNetwork           = errors.New("youtube: network error")
	ErrMalformedResponse = errors.New("youtube: malformed response")
	ErrYtdlpNotInstalled = errors.New("youtube: yt-dlp not installed")
)

// WatchURLTemplate expands a video ID into a playable URL.
const WatchURLTemplate = "https://www.youtube.com/watch?v=%s"

// UnknownPlaylistTitle is used when a playlist reports no title.
const UnknownPlaylistTitle = "Unknown Playlist"

// WatchURL returns the canonical watch URL for a video ID.
func WatchURL(id string) string {
	return fmt.Sprintf(WatchURLTemplate, url.QueryEscape(id))
}

// Fetcher retrieves metadata without touching the catalog.
type Fetcher interface {
	// FetchVideo returns metadata for the single video at rawURL.
	FetchVideo(ctx context.Context, rawURL string) (*VideoInfo, error)
	// FetchPlaylist returns the flat entry list of the playlist at rawURL.
	// It fails with ErrNotAPlaylist when rawURL resolves to a single video.
	FetchPlaylist(ctx context.Context, rawURL string) (*Playlist, error)
}

// VideoInfo is the metadata of one video as reported by a backend.
type VideoInfo struct {
	ID       string
	Title    string
	Duration int // seconds, 0 when unknown
	URL      string
}

// Record converts the metadata into a catalog record.
func (v VideoInfo) Record() storage.Video {
	title := v.Title
	if strings.TrimSpace(title) == "" {
		title = storage.UnknownTitle
	}
	return storage.Video{
		Name: title,
		Time: storage.FormatDuration(v.Duration),
		URL:  v.URL,
	}
}

// Playlist is the flattened content of a playlist in platform order.
type Playlist struct {
	ID      string
	Title   string
	Entries []PlaylistEntry
	// Skipped counts entries that are not importable videos: unavailable
	// ones (deleted or private) listed without metadata, and nested
	// playlists or channel tabs.
	Skipped int
}

// PlaylistEntry is lightweight per-video metadata from a flat playlist listing.
type PlaylistEntry struct {
	ID       string
	Title    string
	Duration int    // seconds, 0 when the listing omits it
	URL      string // expanded from ID with WatchURLTemplate
}

// Info returns the entry as VideoInfo.
func (e PlaylistEntry) Info() VideoInfo {
	return VideoInfo{ID: e.ID, Title: e.Title, Duration: e.Duration, URL: e.URL}
}

// Incomplete reports whether the flat listing lacked a title or duration.
func (e PlaylistEntry) Incomplete() bool {
	return strings.TrimSpace(e.Title) == "" || e.Duration == 0
}

// FetchError wraps metadata failures with the backend and target URL.
type FetchError struct {
	Source string // "ytdlp" or "native"
	URL    string
	Err    error
}

func (e *FetchError) Error() string {
	return "youtube: " + e.Source + " fetch " + e.URL + ": " + e.Err.Error()
}

func (e *FetchError) Unwrap() error { return e.Err }

// DownloadError wraps download failures.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	return "youtube: download " + e.URL + ": " + e.Err.Error()
}

func (e *DownloadError) Unwrap() error { return e.Err }

// DefaultAllowedHosts are the hosts accepted by DefaultURLPolicy.
var DefaultAllowedHosts = []string{
	"youtube.com",
	"youtu.be",
	"youtube-nocookie.com",
}

// URLPolicy validates user-supplied URLs before any external call.
type URLPolicy struct {
	// AllowedHosts lists accepted host names. Subdomains of a listed host are
	// accepted too. An empty list accepts any host.
	AllowedHosts []string
}

// DefaultURLPolicy accepts YouTube hosts only.
func DefaultURLPolicy() URLPolicy {
	return URLPolicy{AllowedHosts: DefaultAllowedHosts}
}

// Validate parses rawURL and checks scheme and host.
func (p URLPolicy) Validate(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	if !p.hostAllowed(host) {
		return nil, fmt.Errorf("%w: host %q is not supported", ErrInvalidURL, host)
	}
	return u, nil
}

// isPlaylistPage reports whether u is a playlist page rather than a watch
// URL that merely carries a list parameter.
func isPlaylistPage(u *url.URL) bool {
	return strings.TrimSuffix(u.Path, "/") == "/playlist" && u.Query().Get("list") != ""
}

func (p URLPolicy) hostAllowed(host string) bool {
	if len(p.AllowedHosts) == 0 {
		return true
	}
	for _, allowed := range p.AllowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
