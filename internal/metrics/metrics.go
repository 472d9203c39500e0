// Package metrics holds the prometheus collectors for catalog operations.
//
// The CLI is short-lived, so nothing is served over HTTP; WriteTextfile dumps
// the default registry for the node-exporter textfile collector instead.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ytcatalog/internal/youtube"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ytcatalog_operations_total",
		Help: "Catalog operations by outcome",
	}, []string{"op", "outcome"}) // op=add|update|delete|download|import, outcome=success|<error class>

	catalogEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ytcatalog_catalog_entries",
		Help: "Number of records in the catalog after the last load or save",
	})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ytcatalog_fetch_duration_seconds",
		Help:    "Duration of metadata fetches",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"backend", "kind"}) // kind=video|playlist

	playlistEntriesImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytcatalog_playlist_entries_imported_total",
		Help: "Total number of records appended by playlist imports",
	})

	downloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ytcatalog_download_bytes_total",
		Help: "Total size of downloaded media files",
	})
)

// Outcome labels.
const (
	OutcomeSuccess       = "success"
	OutcomeInvalidURL    = "invalid_url"
	OutcomeNotAPlaylist  = "not_a_playlist"
	OutcomeUnavailable   = "unavailable"
	OutcomeRateLimited   = "rate_limited"
	OutcomeTimeout       = "timeout"
	OutcomeOutOfRange    = "out_of_range"
	OutcomeCancelled     = "cancelled"
	OutcomeStorage       = "storage"
	OutcomeFetchFailure  = "fetch_failure"
	OutcomeDownloadError = "download_failure"
	OutcomeError         = "error"
)

// RecordOperation counts one catalog operation.
func RecordOperation(op, outcome string) {
	operationsTotal.WithLabelValues(op, outcome).Inc()
}

// SetCatalogEntries records the current catalog length.
func SetCatalogEntries(n int) {
	catalogEntries.Set(float64(n))
}

// FetchObserver returns an Observe hook for the fetcher of backend.
func FetchObserver(backend string) func(kind string, d time.Duration, err error) {
	return func(kind string, d time.Duration, _ error) {
		fetchDuration.WithLabelValues(backend, kind).Observe(d.Seconds())
	}
}

// AddImported counts records appended by a playlist import.
func AddImported(n int) {
	if n > 0 {
		playlistEntriesImported.Add(float64(n))
	}
}

// AddDownloadBytes counts the size of a finished download.
func AddDownloadBytes(n int64) {
	if n > 0 {
		downloadBytes.Add(float64(n))
	}
}

// ClassifyFetch maps a fetch error onto an outcome label.
func ClassifyFetch(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, youtube.ErrInvalidURL), errors.Is(err, youtube.ErrNotAVideo):
		return OutcomeInvalidURL
	case errors.Is(err, youtube.ErrNotAPlaylist):
		return OutcomeNotAPlaylist
	case errors.Is(err, youtube.ErrUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, youtube.ErrRateLimited):
		return OutcomeRateLimited
	case errors.Is(err, youtube.ErrNetworkTimeout):
		return OutcomeTimeout
	}
	return OutcomeFetchFailure
}

// WriteTextfile writes the default registry to path in the text exposition
// format, replacing the file atomically.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("metrics: write textfile: %w", err)
	}
	return nil
}
