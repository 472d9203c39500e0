package catalog

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"ytcatalog/internal/metrics"
	"ytcatalog/internal/storage"
	"ytcatalog/internal/youtube"
)

// EnrichConfig controls re-fetching of playlist entries whose flat listing
// lacks a title or duration.
type EnrichConfig struct {
	Enabled bool
	// Concurrency bounds parallel fetches. Values below 1 mean 1.
	Concurrency int
	// RPS paces fetch starts. 0 means unpaced.
	RPS float64
}

// ImportResult describes a finished playlist import.
type ImportResult struct {
	// Title is the playlist's display title.
	Title string
	// Added lists the appended records in playlist order.
	Added []Listing
	// Skipped counts entries the platform listed as unavailable.
	Skipped int
	// Duplicates counts appended records whose URL was already in the
	// catalog or earlier in the same playlist. They are appended anyway.
	Duplicates int
	// Enriched counts entries completed by a per-video fetch.
	Enriched int
}

// ImportPlaylist appends every entry of the playlist at url, in platform
// order, and saves once. A failed fetch or a cancelled context appends
// nothing.
func (m *Manager) ImportPlaylist(ctx context.Context, url string) (result *ImportResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		fields := zerolog.Dict().Str("url", url)
		if result != nil {
			fields = fields.Int("added", len(result.Added)).Int("duplicates", result.Duplicates)
		}
		m.record(opImport, err, fields)
	}()

	if m.catalog == nil {
		return nil, ErrNotOpen
	}

	playlist, err := m.fetcher.FetchPlaylist(ctx, url)
	if err != nil {
		return nil, err
	}

	infos := make([]youtube.VideoInfo, len(playlist.Entries))
	for i, entry := range playlist.Entries {
		infos[i] = entry.Info()
	}

	enriched := 0
	if m.enrich.Enabled {
		enriched, err = m.enrichEntries(ctx, playlist.Entries, infos)
		if err != nil {
			return nil, err
		}
	}

	records := make([]storage.Video, len(infos))
	for i, info := range infos {
		records[i] = info.Record()
	}

	staged := m.catalog.Clone()
	duplicates := 0
	for _, rec := range records {
		if staged.Contains(rec.URL) {
			duplicates++
		}
		staged.Append(rec)
	}
	added := staged.List()[m.catalog.Len():]

	if len(records) > 0 {
		if err := m.commit(ctx, staged); err != nil {
			return nil, err
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	if duplicates > 0 {
		m.logger.Info().Str("url", url).Int("duplicates", duplicates).
			Msg("playlist contains videos already in the catalog")
	}
	metrics.AddImported(len(added))

	return &ImportResult{
		Title:      playlist.Title,
		Added:      added,
		Skipped:    playlist.Skipped,
		Duplicates: duplicates,
		Enriched:   enriched,
	}, nil
}

// enrichEntries re-fetches incomplete entries concurrently and writes each
// result into infos at the entry's index, so completion order never affects
// the final order. A failed fetch keeps the flat metadata for that entry;
// only cancellation aborts the whole batch.
func (m *Manager) enrichEntries(ctx context.Context, entries []youtube.PlaylistEntry, infos []youtube.VideoInfo) (int, error) {
	limit := rate.Inf
	if m.enrich.RPS > 0 {
		limit = rate.Limit(m.enrich.RPS)
	}
	limiter := rate.NewLimiter(limit, 1)

	concurrency := m.enrich.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	done := make([]bool, len(entries))
	for i, entry := range entries {
		if !entry.Incomplete() {
			continue
		}
		g.Go(func() error {
			if err := limiter.Wait(gctx); err != nil {
				return err
			}
			info, err := m.fetcher.FetchVideo(gctx, entry.URL)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				m.logger.Warn().Err(err).Str("url", entry.URL).Msg("keeping flat playlist metadata")
				return nil
			}
			// The watch URL built from the playlist entry stays canonical.
			info.URL = entry.URL
			infos[i] = *info
			done[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n := 0
	for _, ok := range done {
		if ok {
			n++
		}
	}
	return n, nil
}
