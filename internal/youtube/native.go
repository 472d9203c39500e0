package youtube

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	kkyoutube "github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"ytcatalog/internal/transport"
)

// NativeFetcher implements Fetcher by talking to YouTube's InnerTube API
// through github.com/kkdai/youtube. No external executable is needed.
type NativeFetcher struct {
	client *kkyoutube.Client

	// Policy validates URLs before any request is made.
	Policy URLPolicy

	// Observe, if set, is called after each fetch with its kind, duration
	// and error.
	Observe func(kind string, d time.Duration, err error)

	Logger zerolog.Logger
}

// NewNativeFetcher creates a fetcher that sends its requests through
// httpClient. A nil httpClient gets a transport.NewClient with defaults.
func NewNativeFetcher(httpClient *http.Client) *NativeFetcher {
	if httpClient == nil {
		httpClient = transport.NewClient(transport.DefaultConfig())
	}
	return &NativeFetcher{
		client: &kkyoutube.Client{HTTPClient: httpClient},
		Policy: DefaultURLPolicy(),
		Logger: zerolog.Nop(),
	}
}

// FetchVideo resolves the video at rawURL.
func (n *NativeFetcher) FetchVideo(ctx context.Context, rawURL string) (*VideoInfo, error) {
	u, err := n.Policy.Validate(rawURL)
	if err != nil {
		return nil, &FetchError{Source: "native", URL: rawURL, Err: err}
	}
	target := u.String()
	if isPlaylistPage(u) {
		return nil, &FetchError{Source: "native", URL: target, Err: ErrNotAVideo}
	}

	start := time.Now()
	video, err := n.client.GetVideoContext(ctx, target)
	n.observe("video", start, err)
	if err != nil {
		return nil, &FetchError{Source: "native", URL: target, Err: mapNativeError(ctx, err)}
	}

	return &VideoInfo{
		ID:       video.ID,
		Title:    video.Title,
		Duration: int(video.Duration.Seconds()),
		URL:      WatchURL(video.ID),
	}, nil
}

// FetchPlaylist lists the playlist at rawURL. URLs without a list parameter
// fail with ErrNotAPlaylist.
func (n *NativeFetcher) FetchPlaylist(ctx context.Context, rawURL string) (*Playlist, error) {
	u, err := n.Policy.Validate(rawURL)
	if err != nil {
		return nil, &FetchError{Source: "native", URL: rawURL, Err: err}
	}
	target := u.String()

	start := time.Now()
	raw, err := n.client.GetPlaylistContext(ctx, target)
	n.observe("playlist", start, err)
	if err != nil {
		return nil, &FetchError{Source: "native", URL: target, Err: mapNativeError(ctx, err)}
	}

	playlist := convertPlaylist(raw)
	if playlist.Skipped > 0 {
		n.Logger.Warn().Str("url", target).Int("skipped", playlist.Skipped).
			Msg("playlist contains unavailable entries")
	}
	return playlist, nil
}

func (n *NativeFetcher) observe(kind string, start time.Time, err error) {
	if n.Observe != nil {
		n.Observe(kind, time.Since(start), err)
	}
}

func convertPlaylist(raw *kkyoutube.Playlist) *Playlist {
	playlist := &Playlist{
		ID:      raw.ID,
		Title:   coalesce(raw.Title, UnknownPlaylistTitle),
		Entries: make([]PlaylistEntry, 0, len(raw.Videos)),
	}
	for _, entry := range raw.Videos {
		if entry == nil || entry.ID == "" {
			playlist.Skipped++
			continue
		}
		playlist.Entries = append(playlist.Entries, PlaylistEntry{
			ID:       entry.ID,
			Title:    entry.Title,
			Duration: int(entry.Duration.Seconds()),
			URL:      WatchURL(entry.ID),
		})
	}
	return playlist
}

// mapNativeError translates kkdai/youtube and transport failures into the
// package sentinels, keeping the original message as detail.
func mapNativeError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var (
		playability    kkyoutube.ErrPlayabiltyStatus
		playabilityPtr *kkyoutube.ErrPlayabiltyStatus
		listStatus     kkyoutube.ErrPlaylistStatus
		statusCode     kkyoutube.ErrUnexpectedStatusCode
		rateLimited    *transport.RateLimitError
		netErr         net.Error
	)
	switch {
	case errors.Is(err, kkyoutube.ErrInvalidPlaylist):
		return fmt.Errorf("%w: %v", ErrNotAPlaylist, err)
	case errors.Is(err, kkyoutube.ErrInvalidCharactersInVideoID),
		errors.Is(err, kkyoutube.ErrVideoIDMinLength):
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	case errors.Is(err, kkyoutube.ErrLoginRequired),
		errors.Is(err, kkyoutube.ErrVideoPrivate),
		errors.Is(err, kkyoutube.ErrNotPlayableInEmbed),
		errors.As(err, &playability),
		errors.As(err, &playabilityPtr),
		errors.As(err, &listStatus):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.As(err, &rateLimited):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case errors.As(err, &statusCode):
		if int(statusCode) == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		}
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
	case errors.Is(err, transport.ErrCircuitOpen), errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
}
