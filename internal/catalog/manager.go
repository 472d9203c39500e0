package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"ytcatalog/internal/metrics"
	"ytcatalog/internal/storage"
	"ytcatalog/internal/youtube"
)

// Store persists the plain record sequence. *storage.JSONStore satisfies it.
type Store interface {
	Load(ctx context.Context) ([]storage.Video, error)
	Save(ctx context.Context, videos []storage.Video) error
}

// Operation names used in logs and metrics.
const (
	opAdd      = "add"
	opUpdate   = "update"
	opDelete   = "delete"
	opDownload = "download"
	opImport   = "import"
)

// Manager owns the catalog for the lifetime of the process. Every mutation
// is staged on a copy and becomes visible only once the store has saved it,
// so a failed fetch, a failed save or a cancelled context leaves both the
// in-memory catalog and the file as they were.
type Manager struct {
	mu         sync.Mutex
	store      Store
	fetcher    youtube.Fetcher
	downloader youtube.Downloader
	catalog    *Catalog

	logger         zerolog.Logger
	downloadDir    string
	downloadFormat string
	onProgress     func(line string)
	enrich         EnrichConfig
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for operation events.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithDownloadDir sets the directory downloads are written to.
func WithDownloadDir(dir string) Option {
	return func(m *Manager) { m.downloadDir = dir }
}

// WithDownloadFormat sets the yt-dlp format selector used for downloads.
func WithDownloadFormat(format string) Option {
	return func(m *Manager) { m.downloadFormat = format }
}

// WithDownloadProgress forwards downloader progress lines to fn.
func WithDownloadProgress(fn func(line string)) Option {
	return func(m *Manager) { m.onProgress = fn }
}

// WithEnrichment enables re-fetching incomplete playlist entries.
func WithEnrichment(cfg EnrichConfig) Option {
	return func(m *Manager) { m.enrich = cfg }
}

// NewManager creates a manager. Open must be called before any operation.
func NewManager(store Store, fetcher youtube.Fetcher, downloader youtube.Downloader, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		fetcher:        fetcher,
		downloader:     downloader,
		logger:         zerolog.Nop(),
		downloadDir:    youtube.DefaultOutputDir,
		downloadFormat: youtube.DefaultFormat,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open loads the catalog from the store. A corrupt catalog is returned as
// is; callers must not continue with an unknown catalog state.
func (m *Manager) Open(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	videos, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	m.catalog = New(videos)
	metrics.SetCatalogEntries(m.catalog.Len())
	m.logger.Debug().Int("entries", m.catalog.Len()).Msg("catalog loaded")
	return nil
}

// List returns every record with its current position.
func (m *Manager) List() []Listing {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.catalog == nil {
		return nil
	}
	return m.catalog.List()
}

// Len returns the number of records.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.catalog == nil {
		return 0
	}
	return m.catalog.Len()
}

// Get returns the record at position.
func (m *Manager) Get(position int) (Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.catalog == nil {
		return Listing{}, ErrNotOpen
	}
	return m.catalog.At(position)
}

// Add fetches the video at url and appends it.
func (m *Manager) Add(ctx context.Context, url string) (listing Listing, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.record(opAdd, err, zerolog.Dict().Str("url", url)) }()

	if m.catalog == nil {
		return Listing{}, ErrNotOpen
	}

	info, err := m.fetcher.FetchVideo(ctx, url)
	if err != nil {
		return Listing{}, err
	}

	staged := m.catalog.Clone()
	added := staged.Append(info.Record())
	if err := m.commit(ctx, staged); err != nil {
		return Listing{}, err
	}
	return added[0], nil
}

// Update replaces the record at position with the metadata fetched from url.
// The position is checked before anything is fetched.
func (m *Manager) Update(ctx context.Context, position int, url string) (listing Listing, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() {
		m.record(opUpdate, err, zerolog.Dict().Int("position", position).Str("url", url))
	}()

	if m.catalog == nil {
		return Listing{}, ErrNotOpen
	}
	if _, err := m.catalog.At(position); err != nil {
		return Listing{}, err
	}

	info, err := m.fetcher.FetchVideo(ctx, url)
	if err != nil {
		return Listing{}, err
	}

	staged := m.catalog.Clone()
	listing, err = staged.Replace(position, info.Record())
	if err != nil {
		return Listing{}, err
	}
	if err := m.commit(ctx, staged); err != nil {
		return Listing{}, err
	}
	return listing, nil
}

// Delete removes the record at position and returns it.
func (m *Manager) Delete(ctx context.Context, position int) (video storage.Video, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.record(opDelete, err, zerolog.Dict().Int("position", position)) }()

	if m.catalog == nil {
		return storage.Video{}, ErrNotOpen
	}

	staged := m.catalog.Clone()
	removed, err := staged.Remove(position)
	if err != nil {
		return storage.Video{}, err
	}
	if err := m.commit(ctx, staged); err != nil {
		return storage.Video{}, err
	}
	return removed.Video, nil
}

// Download hands the URL of the record at position to the downloader. The
// catalog is never modified.
func (m *Manager) Download(ctx context.Context, position int) (result *youtube.DownloadResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	defer func() { m.record(opDownload, err, zerolog.Dict().Int("position", position)) }()

	if m.catalog == nil {
		return nil, ErrNotOpen
	}
	listing, err := m.catalog.At(position)
	if err != nil {
		return nil, err
	}

	result, err = m.downloader.Download(ctx, listing.Video.URL, &youtube.DownloadOptions{
		OutputDir:  m.downloadDir,
		Format:     m.downloadFormat,
		OnProgress: m.onProgress,
	})
	if err != nil {
		return nil, err
	}
	metrics.AddDownloadBytes(result.Size)
	return result, nil
}

// commit saves staged and, on success, makes it the live catalog.
func (m *Manager) commit(ctx context.Context, staged *Catalog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.Save(ctx, staged.Videos()); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	m.catalog = staged
	metrics.SetCatalogEntries(staged.Len())
	return nil
}

// record logs the outcome of op and counts it.
func (m *Manager) record(op string, err error, fields *zerolog.Event) {
	outcome := outcomeOf(err)
	metrics.RecordOperation(op, outcome)

	var ev *zerolog.Event
	switch outcome {
	case metrics.OutcomeSuccess:
		ev = m.logger.Info()
	case metrics.OutcomeCancelled:
		ev = m.logger.Debug()
	default:
		ev = m.logger.Warn().Err(err)
	}
	ev.Str("op", op).Dict("args", fields).Str("outcome", outcome).Msg("catalog operation")
}

func outcomeOf(err error) string {
	var (
		posErr      *PositionError
		fetchErr    *youtube.FetchError
		downloadErr *youtube.DownloadError
		storageErr  *storage.StorageError
	)
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.OutcomeCancelled
	case errors.As(err, &posErr):
		return metrics.OutcomeOutOfRange
	case errors.As(err, &fetchErr):
		return metrics.ClassifyFetch(err)
	case errors.As(err, &downloadErr):
		return metrics.OutcomeDownloadError
	case errors.As(err, &storageErr):
		return metrics.OutcomeStorage
	}
	return metrics.OutcomeError
}
