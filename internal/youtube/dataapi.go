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
	"github.com/sosodev/duration"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"ytcatalog/internal/retry"
	"ytcatalog/internal/transport"
)

// ErrAPIKeyRejected is returned when the Data API refuses the configured key.
var ErrAPIKeyRejected = errors.New("youtube: data API key rejected")

// playlistPageSize is the largest page playlistItems.list returns.
const playlistPageSize = 50

// DataAPIFetcher implements Fetcher using YouTube Data API v3. Every call
// costs quota: one unit per video, two per playlist page.
type DataAPIFetcher struct {
	service *ytapi.Service
	apiKey  string

	// Policy validates URLs before any request is made.
	Policy URLPolicy

	// RetryConfig controls retries of transient API failures.
	RetryConfig retry.Config

	// Observe, if set, is called after each API call with its kind, duration
	// and error.
	Observe func(kind string, d time.Duration, err error)

	Logger zerolog.Logger
}

// NewDataAPIFetcher creates a Data API fetcher authenticated with apiKey.
// Requests go through httpClient; nil gets a transport.NewClient with
// defaults. opts are passed to the API client, e.g. option.WithEndpoint.
func NewDataAPIFetcher(ctx context.Context, apiKey string, httpClient *http.Client, opts ...option.ClientOption) (*DataAPIFetcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key required", ErrAPIKeyRejected)
	}
	if httpClient == nil {
		httpClient = transport.NewClient(transport.DefaultConfig())
	}

	service, err := ytapi.NewService(ctx, append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	return &DataAPIFetcher{
		service:     service,
		apiKey:      apiKey,
		Policy:      DefaultURLPolicy(),
		RetryConfig: retry.DefaultConfig(),
		Logger:      zerolog.Nop(),
	}, nil
}

// FetchVideo looks up the video at rawURL with videos.list.
func (a *DataAPIFetcher) FetchVideo(ctx context.Context, rawURL string) (*VideoInfo, error) {
	u, err := a.Policy.Validate(rawURL)
	if err != nil {
		return nil, &FetchError{Source: "api", URL: rawURL, Err: err}
	}
	target := u.String()

	if isPlaylistPage(u) {
		return nil, &FetchError{Source: "api", URL: target, Err: ErrNotAVideo}
	}
	id, err := kkyoutube.ExtractVideoID(target)
	if err != nil {
		return nil, &FetchError{Source: "api", URL: target, Err: fmt.Errorf("%w: %v", ErrInvalidURL, err)}
	}

	var info *VideoInfo
	err = a.call(ctx, "video", target, func(ctx context.Context) error {
		videos, err := a.lookupVideos(ctx, []string{id})
		if err != nil {
			return err
		}
		v, ok := videos[id]
		if !ok {
			return retry.Permanent(fmt.Errorf("%w: no video with id %s", ErrUnavailable, id))
		}
		info = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// FetchPlaylist pages through playlistItems.list and resolves durations
// with one videos.list call per page. Items the API no longer returns
// (deleted or private videos) are counted in Skipped.
func (a *DataAPIFetcher) FetchPlaylist(ctx context.Context, rawURL string) (*Playlist, error) {
	u, err := a.Policy.Validate(rawURL)
	if err != nil {
		return nil, &FetchError{Source: "api", URL: rawURL, Err: err}
	}
	target := u.String()

	listID := u.Query().Get("list")
	if listID == "" {
		return nil, &FetchError{Source: "api", URL: target, Err: ErrNotAPlaylist}
	}

	playlist := &Playlist{ID: listID, Title: UnknownPlaylistTitle}
	err = a.call(ctx, "playlist", target, func(ctx context.Context) error {
		resp, err := a.service.Playlists.List([]string{"snippet"}).Id(listID).Context(ctx).Do(a.key())
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return retry.Permanent(fmt.Errorf("%w: no playlist with id %s", ErrUnavailable, listID))
		}
		if s := resp.Items[0].Snippet; s != nil && s.Title != "" {
			playlist.Title = s.Title
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pageToken := ""
	for {
		var next string
		err := a.call(ctx, "playlist", target, func(ctx context.Context) error {
			entries, skipped, token, err := a.playlistPage(ctx, listID, pageToken)
			if err != nil {
				return err
			}
			playlist.Entries = append(playlist.Entries, entries...)
			playlist.Skipped += skipped
			next = token
			return nil
		})
		if err != nil {
			return nil, err
		}
		if next == "" {
			break
		}
		pageToken = next
	}

	if playlist.Skipped > 0 {
		a.Logger.Warn().Str("url", target).Int("skipped", playlist.Skipped).
			Msg("playlist contains unavailable entries")
	}
	return playlist, nil
}

// playlistPage fetches one page of playlist items and their durations.
func (a *DataAPIFetcher) playlistPage(ctx context.Context, listID, pageToken string) ([]PlaylistEntry, int, string, error) {
	call := a.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
		PlaylistId(listID).
		MaxResults(playlistPageSize).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	resp, err := call.Do(a.key())
	if err != nil {
		return nil, 0, "", err
	}

	ids := make([]string, 0, len(resp.Items))
	skipped := 0
	for _, item := range resp.Items {
		if item == nil || item.ContentDetails == nil || item.ContentDetails.VideoId == "" {
			skipped++
			continue
		}
		ids = append(ids, item.ContentDetails.VideoId)
	}

	videos := map[string]*VideoInfo{}
	if len(ids) > 0 {
		videos, err = a.lookupVideos(ctx, ids)
		if err != nil {
			return nil, 0, "", err
		}
	}

	entries := make([]PlaylistEntry, 0, len(ids))
	for _, id := range ids {
		v, ok := videos[id]
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, PlaylistEntry{ID: id, Title: v.Title, Duration: v.Duration, URL: v.URL})
	}
	return entries, skipped, resp.NextPageToken, nil
}

// lookupVideos resolves up to playlistPageSize ids with a single
// videos.list call. Ids the API does not return are absent from the map.
func (a *DataAPIFetcher) lookupVideos(ctx context.Context, ids []string) (map[string]*VideoInfo, error) {
	resp, err := a.service.Videos.List([]string{"snippet", "contentDetails"}).
		Id(ids...).
		Context(ctx).
		Do(a.key())
	if err != nil {
		return nil, err
	}

	out := make(map[string]*VideoInfo, len(resp.Items))
	for _, item := range resp.Items {
		if item == nil || item.Id == "" {
			continue
		}
		info, err := convertAPIVideo(item)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		out[item.Id] = info
	}
	return out, nil
}

// convertAPIVideo maps a videos.list item. Live streams report "P0D".
func convertAPIVideo(v *ytapi.Video) (*VideoInfo, error) {
	info := &VideoInfo{ID: v.Id, URL: WatchURL(v.Id)}
	if v.Snippet != nil {
		info.Title = v.Snippet.Title
	}
	if v.ContentDetails != nil && v.ContentDetails.Duration != "" {
		d, err := duration.Parse(v.ContentDetails.Duration)
		if err != nil {
			return nil, fmt.Errorf("%w: duration %q: %v", ErrMalformedResponse, v.ContentDetails.Duration, err)
		}
		info.Duration = int(d.ToTimeDuration().Seconds())
	}
	return info, nil
}

func (a *DataAPIFetcher) key() googleapi.CallOption {
	return googleapi.QueryParameter("key", a.apiKey)
}

// call runs fn under the retry policy and reports every attempt to Observe.
func (a *DataAPIFetcher) call(ctx context.Context, kind, target string, fn func(context.Context) error) error {
	cfg := a.RetryConfig
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, sleep time.Duration) {
			a.Logger.Warn().Err(err).Str("kind", kind).Str("url", target).
				Int("attempt", attempt).Dur("sleep", sleep).Msg("retrying data API call")
		}
	}

	err := retry.Do(ctx, cfg, apiErrorClassifier, func(ctx context.Context) error {
		start := time.Now()
		err := fn(ctx)
		if err != nil {
			err = mapAPIError(ctx, err)
		}
		if a.Observe != nil {
			a.Observe(kind, time.Since(start), err)
		}
		return err
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return &FetchError{Source: "api", URL: target, Err: ctx.Err()}
	}
	return &FetchError{Source: "api", URL: target, Err: err}
}

// apiErrorClassifier retries throttling and server-side failures only.
func apiErrorClassifier(err error) bool {
	if !retry.IsRetryable(err) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrNetworkTimeout) ||
		errors.Is(err, ErrNetwork)
}

// quotaReasons are googleapi error reasons that mean "slow down".
var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
	"dailyLimitExceeded":    true,
}

// mapAPIError translates googleapi and transport failures into the package
// sentinels. Errors that already carry a sentinel pass through.
func mapAPIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	for _, sentinel := range []error{ErrUnavailable, ErrMalformedResponse, ErrInvalidURL} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	var (
		apiErr *googleapi.Error
		netErr net.Error
	)
	switch {
	case errors.As(err, &apiErr):
		for _, item := range apiErr.Errors {
			if quotaReasons[item.Reason] {
				return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
			}
			if item.Reason == "keyInvalid" || item.Reason == "keyExpired" {
				return retry.Permanent(fmt.Errorf("%w: %s", ErrAPIKeyRejected, apiErr.Message))
			}
		}
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s", ErrRateLimited, apiErr.Message)
		case apiErr.Code == http.StatusBadRequest:
			return fmt.Errorf("%w: %s", ErrInvalidURL, apiErr.Message)
		case apiErr.Code == http.StatusUnauthorized:
			return retry.Permanent(fmt.Errorf("%w: %s", ErrAPIKeyRejected, apiErr.Message))
		case apiErr.Code == http.StatusForbidden, apiErr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrUnavailable, apiErr.Message)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: status %d: %s", ErrNetwork, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("%w: status %d: %s", ErrMalformedResponse, apiErr.Code, apiErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
	case errors.Is(err, transport.ErrCircuitOpen), errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
}
