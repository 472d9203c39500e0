package youtube

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// ytdlpVideo is the subset of yt-dlp's -J output used for a single video.
type ytdlpVideo struct {
	Type       string   `json:"_type"`
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Duration   *float64 `json:"duration"` // seconds, absent for live streams
	WebpageURL string   `json:"webpage_url"`
}

// ytdlpPlaylist represents yt-dlp's flat JSON output for a playlist.
// Entries stays raw so that a missing key can be told apart from an empty list.
type ytdlpPlaylist struct {
	Type    string          `json:"_type"`
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Entries json.RawMessage `json:"entries"`
}

// ytdlpEntry represents a single video in yt-dlp's flat playlist output.
type ytdlpEntry struct {
	Type     string   `json:"_type"`
	IEKey    string   `json:"ie_key"`
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Duration *float64 `json:"duration"`
}

// seconds converts an optional yt-dlp duration to whole seconds.
func seconds(d *float64) int {
	if d == nil || *d <= 0 || math.IsNaN(*d) || math.IsInf(*d, 0) {
		return 0
	}
	return int(*d)
}

// parseVideo decodes single-video metadata. fallbackURL is stored when
// yt-dlp does not report a webpage_url.
func parseVideo(data []byte, fallbackURL string) (*VideoInfo, error) {
	var raw ytdlpVideo
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw.Type == "playlist" || raw.Type == "multi_video" {
		return nil, ErrNotAVideo
	}

	info := &VideoInfo{
		ID:       raw.ID,
		Title:    raw.Title,
		Duration: seconds(raw.Duration),
		URL:      coalesce(raw.WebpageURL, fallbackURL),
	}
	return info, nil
}

// parsePlaylist decodes flat playlist metadata. A response without an
// entries collection means the URL resolved to a single video.
func parsePlaylist(data []byte) (*Playlist, error) {
	var raw ytdlpPlaylist
	if err := json.Unmarshal(bytes.TrimSpace(data), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(raw.Entries) == 0 || string(raw.Entries) == "null" {
		return nil, ErrNotAPlaylist
	}

	var entries []*ytdlpEntry
	if err := json.Unmarshal(raw.Entries, &entries); err != nil {
		return nil, fmt.Errorf("%w: entries: %v", ErrMalformedResponse, err)
	}

	playlist := &Playlist{
		ID:      raw.ID,
		Title:   coalesce(raw.Title, UnknownPlaylistTitle),
		Entries: make([]PlaylistEntry, 0, len(entries)),
	}
	for _, entry := range entries {
		if entry == nil || entry.ID == "" || !entry.isVideo() {
			playlist.Skipped++
			continue
		}
		playlist.Entries = append(playlist.Entries, PlaylistEntry{
			ID:       entry.ID,
			Title:    entry.Title,
			Duration: seconds(entry.Duration),
			URL:      WatchURL(entry.ID),
		})
	}
	return playlist, nil
}

// isVideo reports whether a flat entry refers to a single video. Channel
// and tab listings nest playlists (ie_key "YoutubeTab") whose ids are not
// video ids.
func (e *ytdlpEntry) isVideo() bool {
	switch e.Type {
	case "playlist", "multi_video":
		return false
	}
	return e.IEKey == "" || e.IEKey == "Youtube"
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
