package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"

	"ytcatalog/internal/retry"
	"ytcatalog/internal/transport"
)

// fakeDataAPI serves the three Data API endpoints the fetcher uses from
// in-memory fixtures.
type fakeDataAPI struct {
	t *testing.T

	videos    map[string]*ytapi.Video
	playlists map[string]string // id -> title
	items     map[string][][]string

	// failStatus, when set, answers the next failures requests with this
	// status and reason.
	failStatus int
	failReason string
	failures   atomic.Int32

	calls atomic.Int32
	keys  atomic.Int32
}

func newFakeDataAPI(t *testing.T) *fakeDataAPI {
	return &fakeDataAPI{
		t:         t,
		videos:    map[string]*ytapi.Video{},
		playlists: map[string]string{},
		items:     map[string][][]string{},
	}
}

func (f *fakeDataAPI) addVideo(id, title, iso string) {
	f.videos[id] = &ytapi.Video{
		Id:             id,
		Snippet:        &ytapi.VideoSnippet{Title: title},
		ContentDetails: &ytapi.VideoContentDetails{Duration: iso},
	}
}

func (f *fakeDataAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	if r.URL.Query().Get("key") == "test-key" {
		f.keys.Add(1)
	}
	if f.failStatus != 0 && f.failures.Load() != 0 {
		f.failures.Add(-1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.failStatus)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"failure","errors":[{"reason":%q,"message":"failure"}]}}`,
			f.failStatus, f.failReason)
		return
	}

	q := r.URL.Query()
	var body any
	switch {
	case strings.HasSuffix(r.URL.Path, "/videos"):
		resp := &ytapi.VideoListResponse{}
		for _, param := range q["id"] {
			for _, id := range strings.Split(param, ",") {
				if v, ok := f.videos[id]; ok {
					resp.Items = append(resp.Items, v)
				}
			}
		}
		body = resp
	case strings.HasSuffix(r.URL.Path, "/playlists"):
		resp := &ytapi.PlaylistListResponse{}
		if title, ok := f.playlists[q.Get("id")]; ok {
			resp.Items = []*ytapi.Playlist{{Id: q.Get("id"), Snippet: &ytapi.PlaylistSnippet{Title: title}}}
		}
		body = resp
	case strings.HasSuffix(r.URL.Path, "/playlistItems"):
		pages := f.items[q.Get("playlistId")]
		page := 0
		if tok := q.Get("pageToken"); tok != "" {
			fmt.Sscanf(tok, "page%d", &page)
		}
		resp := &ytapi.PlaylistItemListResponse{}
		if page < len(pages) {
			for _, id := range pages[page] {
				resp.Items = append(resp.Items, &ytapi.PlaylistItem{
					ContentDetails: &ytapi.PlaylistItemContentDetails{VideoId: id},
				})
			}
		}
		if page+1 < len(pages) {
			resp.NextPageToken = fmt.Sprintf("page%d", page+1)
		}
		body = resp
	default:
		f.t.Errorf("unexpected request %s", r.URL.Path)
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	assert.NoError(f.t, json.NewEncoder(w).Encode(body))
}

func newTestDataAPI(t *testing.T, api *fakeDataAPI) *DataAPIFetcher {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	cfg := transport.DefaultConfig()
	cfg.Base = srv.Client().Transport
	cfg.RateLimiter.DefaultRPS = 1000

	f, err := NewDataAPIFetcher(context.Background(), "test-key", transport.NewClient(cfg),
		option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	f.Policy = URLPolicy{}
	return f
}

func TestNewDataAPIFetcher_RequiresKey(t *testing.T) {
	_, err := NewDataAPIFetcher(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrAPIKeyRejected)
}

func TestDataAPIFetcher_FetchVideo(t *testing.T) {
	api := newFakeDataAPI(t)
	api.addVideo("dQw4w9WgXcQ", "Rick Astley - Never Gonna Give You Up", "PT3M32S")
	f := newTestDataAPI(t, api)

	info, err := f.FetchVideo(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", info.ID)
	assert.Equal(t, "Rick Astley - Never Gonna Give You Up", info.Title)
	assert.Equal(t, 212, info.Duration)
	assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", info.URL)
	assert.Equal(t, int32(1), api.keys.Load(), "api key sent as query parameter")
}

func TestDataAPIFetcher_LongAndLiveDurations(t *testing.T) {
	api := newFakeDataAPI(t)
	api.addVideo("longlonglon", "Marathon", "P4DT4H")
	api.addVideo("liveliveliv", "Live", "P0D")
	f := newTestDataAPI(t, api)

	info, err := f.FetchVideo(context.Background(), "https://www.youtube.com/watch?v=longlonglon")
	require.NoError(t, err)
	assert.Equal(t, "100:00:00", info.Record().Time)

	info, err = f.FetchVideo(context.Background(), "https://www.youtube.com/watch?v=liveliveliv")
	require.NoError(t, err)
	assert.Equal(t, "00:00:00", info.Record().Time)
}

func TestDataAPIFetcher_VideoNotFound(t *testing.T) {
	f := newTestDataAPI(t, newFakeDataAPI(t))

	_, err := f.FetchVideo(context.Background(), "https://www.youtube.com/watch?v=gone0000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "api", fetchErr.Source)
}

func TestDataAPIFetcher_PlaylistURLIsNotAVideo(t *testing.T) {
	api := newFakeDataAPI(t)
	f := newTestDataAPI(t, api)

	_, err := f.FetchVideo(context.Background(), "https://www.youtube.com/playlist?list=PLtest")
	assert.ErrorIs(t, err, ErrNotAVideo)
	assert.Zero(t, api.calls.Load())
}

func TestDataAPIFetcher_BadDuration(t *testing.T) {
	api := newFakeDataAPI(t)
	api.addVideo("dQw4w9WgXcQ", "Odd", "three minutes")
	f := newTestDataAPI(t, api)

	_, err := f.FetchVideo(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestDataAPIFetcher_FetchPlaylist(t *testing.T) {
	api := newFakeDataAPI(t)
	api.playlists["PLtest"] = "Test Playlist"
	api.items["PLtest"] = [][]string{
		{"aaaaaaaaaaa", "deleted0000"},
		{"bbbbbbbbbbb"},
	}
	api.addVideo("aaaaaaaaaaa", "A", "PT10S")
	api.addVideo("bbbbbbbbbbb", "B", "PT1H2M5S")
	f := newTestDataAPI(t, api)

	playlist, err := f.FetchPlaylist(context.Background(), "https://www.youtube.com/playlist?list=PLtest")
	require.NoError(t, err)
	assert.Equal(t, "PLtest", playlist.ID)
	assert.Equal(t, "Test Playlist", playlist.Title)
	assert.Equal(t, 1, playlist.Skipped)
	require.Len(t, playlist.Entries, 2)
	assert.Equal(t, PlaylistEntry{ID: "aaaaaaaaaaa", Title: "A", Duration: 10, URL: WatchURL("aaaaaaaaaaa")}, playlist.Entries[0])
	assert.Equal(t, 3725, playlist.Entries[1].Duration)
	// playlists + two pages of (playlistItems + videos)
	assert.Equal(t, int32(5), api.calls.Load())
}

func TestDataAPIFetcher_PlaylistWithoutList(t *testing.T) {
	api := newFakeDataAPI(t)
	f := newTestDataAPI(t, api)

	_, err := f.FetchPlaylist(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrNotAPlaylist)
	assert.Zero(t, api.calls.Load())
}

func TestDataAPIFetcher_PlaylistNotFound(t *testing.T) {
	f := newTestDataAPI(t, newFakeDataAPI(t))
	_, err := f.FetchPlaylist(context.Background(), "https://www.youtube.com/playlist?list=PLmissing")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestDataAPIFetcher_QuotaExceeded(t *testing.T) {
	api := newFakeDataAPI(t)
	api.failStatus = http.StatusForbidden
	api.failReason = "quotaExceeded"
	api.failures.Store(10)
	f := newTestDataAPI(t, api)

	_, err := f.FetchVideo(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestDataAPIFetcher_RetriesServerErrors(t *testing.T) {
	api := newFakeDataAPI(t)
	api.addVideo("dQw4w9WgXcQ", "Recovered", "PT1S")
	api.failStatus = http.StatusInternalServerError
	api.failReason = "backendError"
	api.failures.Store(1)
	f := newTestDataAPI(t, api)
	f.RetryConfig = retry.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2}

	var observed []error
	f.Observe = func(kind string, _ time.Duration, err error) {
		assert.Equal(t, "video", kind)
		observed = append(observed, err)
	}

	info, err := f.FetchVideo(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Recovered", info.Title)
	require.Len(t, observed, 2)
	assert.ErrorIs(t, observed[0], ErrNetwork)
	assert.NoError(t, observed[1])
}

func TestDataAPIFetcher_KeyRejectedNotRetried(t *testing.T) {
	api := newFakeDataAPI(t)
	api.failStatus = http.StatusBadRequest
	api.failReason = "keyInvalid"
	api.failures.Store(10)
	f := newTestDataAPI(t, api)
	f.RetryConfig = retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 2}

	_, err := f.FetchVideo(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrAPIKeyRejected)
	assert.Equal(t, int32(1), api.calls.Load())
}

func TestMapAPIError(t *testing.T) {
	ctx := context.Background()
	apiErr := func(code int, reason string) error {
		return &googleapi.Error{Code: code, Message: "m", Errors: []googleapi.ErrorItem{{Reason: reason}}}
	}
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"quota", apiErr(403, "quotaExceeded"), ErrRateLimited},
		{"too many requests", apiErr(429, ""), ErrRateLimited},
		{"forbidden", apiErr(403, "forbidden"), ErrUnavailable},
		{"not found", apiErr(404, "videoNotFound"), ErrUnavailable},
		{"bad request", apiErr(400, "invalidParameter"), ErrInvalidURL},
		{"key invalid", apiErr(400, "keyInvalid"), ErrAPIKeyRejected},
		{"unauthorized", apiErr(401, ""), ErrAPIKeyRejected},
		{"server", apiErr(503, "backendError"), ErrNetwork},
		{"deadline", context.DeadlineExceeded, ErrNetworkTimeout},
		{"circuit", fmt.Errorf("host: %w", transport.ErrCircuitOpen), ErrNetwork},
		{"sentinel passthrough", fmt.Errorf("%w: x", ErrUnavailable), ErrUnavailable},
		{"other", errors.New("garbage"), ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapAPIError(ctx, tt.err), tt.want)
		})
	}
}

func TestAPIErrorClassifier(t *testing.T) {
	assert.True(t, apiErrorClassifier(ErrRateLimited))
	assert.True(t, apiErrorClassifier(fmt.Errorf("%w: 500", ErrNetwork)))
	assert.False(t, apiErrorClassifier(ErrUnavailable))
	assert.False(t, apiErrorClassifier(retry.Permanent(ErrNetwork)))
	assert.False(t, apiErrorClassifier(context.Canceled))
}
