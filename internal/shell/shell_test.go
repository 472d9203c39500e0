package shell

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcatalog/internal/catalog"
	"ytcatalog/internal/storage"
	"ytcatalog/internal/youtube"
)

// fakeCatalog keeps listings in memory and records what the menu asked for.
type fakeCatalog struct {
	videos []storage.Video

	fetched   map[string]storage.Video
	fetchErr  error
	download  *youtube.DownloadResult
	dlErr     error
	playlist  *catalog.ImportResult
	importErr error

	calls []string
}

func newFakeCatalog(videos ...storage.Video) *fakeCatalog {
	return &fakeCatalog{videos: videos, fetched: map[string]storage.Video{}}
}

func (f *fakeCatalog) listing(pos int) catalog.Listing {
	return catalog.Listing{Position: pos, Key: uuid.Nil, Video: f.videos[pos-1]}
}

func (f *fakeCatalog) List() []catalog.Listing {
	out := make([]catalog.Listing, len(f.videos))
	for i := range f.videos {
		out[i] = f.listing(i + 1)
	}
	return out
}

func (f *fakeCatalog) Get(position int) (catalog.Listing, error) {
	if position < 1 || position > len(f.videos) {
		return catalog.Listing{}, &catalog.PositionError{Position: position, Len: len(f.videos)}
	}
	return f.listing(position), nil
}

func (f *fakeCatalog) fetch(url string) (storage.Video, error) {
	if f.fetchErr != nil {
		return storage.Video{}, f.fetchErr
	}
	v, ok := f.fetched[url]
	if !ok {
		return storage.Video{}, fmt.Errorf("%w: %s", youtube.ErrUnavailable, url)
	}
	return v, nil
}

func (f *fakeCatalog) Add(_ context.Context, url string) (catalog.Listing, error) {
	f.calls = append(f.calls, "add "+url)
	v, err := f.fetch(url)
	if err != nil {
		return catalog.Listing{}, err
	}
	f.videos = append(f.videos, v)
	return f.listing(len(f.videos)), nil
}

func (f *fakeCatalog) Update(_ context.Context, position int, url string) (catalog.Listing, error) {
	f.calls = append(f.calls, fmt.Sprintf("update %d %s", position, url))
	if _, err := f.Get(position); err != nil {
		return catalog.Listing{}, err
	}
	v, err := f.fetch(url)
	if err != nil {
		return catalog.Listing{}, err
	}
	f.videos[position-1] = v
	return f.listing(position), nil
}

func (f *fakeCatalog) Delete(_ context.Context, position int) (storage.Video, error) {
	f.calls = append(f.calls, fmt.Sprintf("delete %d", position))
	l, err := f.Get(position)
	if err != nil {
		return storage.Video{}, err
	}
	f.videos = append(f.videos[:position-1], f.videos[position:]...)
	return l.Video, nil
}

func (f *fakeCatalog) Download(_ context.Context, position int) (*youtube.DownloadResult, error) {
	f.calls = append(f.calls, fmt.Sprintf("download %d", position))
	if f.dlErr != nil {
		return nil, f.dlErr
	}
	if f.download != nil {
		return f.download, nil
	}
	return &youtube.DownloadResult{}, nil
}

func (f *fakeCatalog) ImportPlaylist(_ context.Context, url string) (*catalog.ImportResult, error) {
	f.calls = append(f.calls, "import "+url)
	if f.importErr != nil {
		return nil, f.importErr
	}
	return f.playlist, nil
}

func sampleVideos() []storage.Video {
	return []storage.Video{
		{Name: "First", Time: "00:03:32", URL: "https://www.youtube.com/watch?v=first000000"},
		{Name: "Second", Time: "01:02:05", URL: "https://www.youtube.com/watch?v=second00000"},
	}
}

// run feeds input to a shell over cat and returns everything it printed.
func run(t *testing.T, cat Catalog, input string) string {
	t.Helper()
	var out bytes.Buffer
	sh := New(cat, strings.NewReader(input), &out, WithOperationContext(context.WithCancel))
	require.NoError(t, sh.Run(context.Background()))
	return out.String()
}

func TestRun_MenuAndExit(t *testing.T) {
	out := run(t, newFakeCatalog(), "7\n")

	assert.Contains(t, out, "Youtube Manager | Choose an option")
	for i, item := range menu {
		assert.Contains(t, out, fmt.Sprintf("%d. %s", i+1, item))
	}
	assert.Equal(t, 1, strings.Count(out, "Enter your choice: "))
}

func TestRun_EndOfInputExits(t *testing.T) {
	out := run(t, newFakeCatalog(), "")
	assert.Equal(t, 1, strings.Count(out, "Enter your choice: "))
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := New(newFakeCatalog(), strings.NewReader("1\n"), &out).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}

func TestRun_InvalidChoiceReprompts(t *testing.T) {
	out := run(t, newFakeCatalog(), "9\nabc\n\n7\n")
	assert.Equal(t, 3, strings.Count(out, "Invalid choice!"))
	assert.Equal(t, 4, strings.Count(out, "Enter your choice: "))
}

func TestRun_List(t *testing.T) {
	out := run(t, newFakeCatalog(sampleVideos()...), "1\n7\n")
	assert.Contains(t, out, "1. Name: First, Duration: 00:03:32\n")
	assert.Contains(t, out, "2. Name: Second, Duration: 01:02:05\n")
}

func TestRun_ListEmpty(t *testing.T) {
	out := run(t, newFakeCatalog(), "1\n7\n")
	assert.Contains(t, out, "No videos in the catalog.")
}

func TestRun_Add(t *testing.T) {
	cat := newFakeCatalog()
	url := "https://youtu.be/dQw4w9WgXcQ"
	cat.fetched[url] = storage.Video{Name: "Never Gonna", Time: "00:03:32", URL: youtube.WatchURL("dQw4w9WgXcQ")}

	out := run(t, cat, "2\n  "+url+"  \n7\n")
	assert.Contains(t, out, "Added: Never Gonna (00:03:32)")
	assert.Equal(t, []string{"add " + url}, cat.calls)
	require.Len(t, cat.videos, 1)
}

func TestRun_AddFailure(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	out := run(t, cat, "2\nhttps://www.youtube.com/watch?v=gone0000000\n7\n")
	assert.Contains(t, out, "Failed to fetch video details: ")
	assert.Contains(t, out, "video unavailable")
	assert.Len(t, cat.videos, 2)
}

func TestRun_AddInterrupted(t *testing.T) {
	cat := newFakeCatalog()
	cat.fetchErr = context.Canceled
	out := run(t, cat, "2\nhttps://youtu.be/dQw4w9WgXcQ\n7\n")
	assert.Contains(t, out, "Interrupted, catalog unchanged.")
	assert.NotContains(t, out, "Failed to fetch")
}

func TestRun_Update(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	url := "https://www.youtube.com/watch?v=replacement"
	cat.fetched[url] = storage.Video{Name: "Replacement", Time: "00:00:09", URL: url}

	out := run(t, cat, "3\n2\n"+url+"\n7\n")
	assert.Contains(t, out, "Enter new YouTube video link: ")
	assert.Contains(t, out, "Updated: Replacement (00:00:09)")
	assert.Equal(t, "Replacement", cat.videos[1].Name)
	assert.Equal(t, "First", cat.videos[0].Name)
}

func TestRun_UpdateOutOfRangeDoesNotPromptForURL(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	out := run(t, cat, "3\n5\n7\n")
	assert.Contains(t, out, "Invalid index selected")
	assert.NotContains(t, out, "Enter new YouTube video link: ")
	assert.Empty(t, cat.calls)
}

func TestRun_NonNumericPosition(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	out := run(t, cat, "4\ntwo\n7\n")
	assert.Contains(t, out, `Invalid number: "two"`)
	assert.Empty(t, cat.calls)
	assert.Len(t, cat.videos, 2)
}

func TestRun_Delete(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	out := run(t, cat, "4\n1\n7\n")
	assert.Contains(t, out, "Video deleted successfully.")
	require.Len(t, cat.videos, 1)
	assert.Equal(t, "Second", cat.videos[0].Name)
}

func TestRun_DeleteZeroIsOutOfRange(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	out := run(t, cat, "4\n0\n7\n")
	assert.Contains(t, out, "Invalid index selected")
	assert.Len(t, cat.videos, 2)
}

func TestRun_Download(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	cat.download = &youtube.DownloadResult{Path: "downloads/First.mp4", Size: 2_500_000}

	out := run(t, cat, "5\n1\n7\n")
	assert.Contains(t, out, "Video downloaded from: https://www.youtube.com/watch?v=first000000")
	assert.Contains(t, out, "Saved to downloads/First.mp4 (2.5 MB)")
	assert.Equal(t, []string{"download 1"}, cat.calls)
}

func TestRun_DownloadOutOfRange(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)

	out := run(t, cat, "5\n9\n7\n")
	assert.Contains(t, out, "Invalid index selected")
	assert.NotContains(t, out, "Video downloaded from")
	assert.Empty(t, cat.calls)
}

func TestRun_DownloadReportsSelectedRecord(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)

	out := run(t, cat, "5\n2\n7\n")
	assert.Contains(t, out, "Video downloaded from: "+cat.videos[1].URL)
	assert.Equal(t, []string{"download 2"}, cat.calls)
}

func TestRun_DownloadFailure(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	cat.dlErr = &youtube.DownloadError{URL: cat.videos[0].URL, Err: youtube.ErrUnavailable}

	out := run(t, cat, "5\n1\n7\n")
	assert.Contains(t, out, "Error: ")
	assert.NotContains(t, out, "Video downloaded from")
}

func TestRun_DownloadInterrupted(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	cat.dlErr = context.Canceled

	out := run(t, cat, "5\n2\n7\n")
	assert.Contains(t, out, "Download interrupted.")
}

func TestRun_ProcessPlaylist(t *testing.T) {
	cat := newFakeCatalog()
	cat.playlist = &catalog.ImportResult{
		Title: "Mix",
		Added: []catalog.Listing{
			{Position: 1, Video: storage.Video{Name: "A", Time: "00:00:10"}},
			{Position: 2, Video: storage.Video{Name: "B", Time: "100:00:00"}},
		},
		Skipped:    1,
		Duplicates: 1,
	}

	out := run(t, cat, "6\nhttps://www.youtube.com/playlist?list=PLx\n7\n")
	assert.Contains(t, out, "Processing playlist: Mix")
	assert.Contains(t, out, "2. Name: B, Duration: 100:00:00")
	assert.Contains(t, out, "Added all videos from playlist: Mix (2 videos)")
	assert.Contains(t, out, "Skipped 1 unavailable entry.")
	assert.Contains(t, out, "1 video was already in the catalog.")
}

func TestRun_ProcessPlaylistNotAPlaylist(t *testing.T) {
	cat := newFakeCatalog()
	cat.importErr = fmt.Errorf("%w: single video", youtube.ErrNotAPlaylist)

	out := run(t, cat, "6\nhttps://www.youtube.com/watch?v=dQw4w9WgXcQ\n7\n")
	assert.Contains(t, out, "Error: Provided URL is not a playlist.")
	assert.NotContains(t, out, "Processing playlist")
}

func TestRun_EndOfInputMidPrompt(t *testing.T) {
	cat := newFakeCatalog(sampleVideos()...)
	out := run(t, cat, "3\n1\n")
	assert.Contains(t, out, "Enter new YouTube video link: ")
	assert.Empty(t, cat.calls)
}

func TestFormatListing(t *testing.T) {
	l := catalog.Listing{Position: 12, Video: storage.Video{Name: "Talk", Time: "02:00:00"}}
	assert.Equal(t, "12. Name: Talk, Duration: 02:00:00", FormatListing(l))
}

func TestManagerSatisfiesCatalog(t *testing.T) {
	var _ Catalog = (*catalog.Manager)(nil)
}
