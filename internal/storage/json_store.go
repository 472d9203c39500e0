package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	// DefaultLockTimeout bounds how long NewJSONStore waits for the catalog lock.
	DefaultLockTimeout = 5 * time.Second

	jsonIndent = "    "
)

// JSONStore persists the catalog as a JSON array of video records in a
// single file. Every Save rewrites the whole file atomically.
type JSONStore struct {
	path        string
	lock        *FileLock
	lockTimeout time.Duration
	logger      zerolog.Logger
	mu          sync.Mutex
	closed      bool

	// beforeCommit runs after the pending file is fully written and before it
	// replaces the target. Tests use it to simulate a crash mid-save.
	beforeCommit func() error
}

// StoreOption configures a JSONStore.
type StoreOption func(*JSONStore)

// WithLockTimeout sets how long to wait for the catalog lock.
func WithLockTimeout(d time.Duration) StoreOption {
	return func(s *JSONStore) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithLogger attaches a logger to the store.
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *JSONStore) { s.logger = l }
}

// NewJSONStore opens the catalog file at path and holds its lock until Close.
// The file itself is not read or created until Load or Save is called.
func NewJSONStore(ctx context.Context, path string, opts ...StoreOption) (*JSONStore, error) {
	s := &JSONStore{
		path:        path,
		lock:        NewFileLock(path),
		lockTimeout: DefaultLockTimeout,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.lock.Lock(ctx, s.lockTimeout); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the catalog file path.
func (s *JSONStore) Path() string { return s.path }

// Load reads every record from the catalog file. A missing file is an empty
// catalog. Anything that is not a JSON array of complete {name,time,url}
// objects is reported as ErrCorruptCatalog.
func (s *JSONStore) Load(ctx context.Context) ([]Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug().Str("path", s.path).Msg("catalog file not found, starting empty")
			return []Video{}, nil
		}
		return nil, &StorageError{Op: "read", Entity: "catalog", ID: s.path, Err: err}
	}

	videos, err := decodeCatalog(data)
	if err != nil {
		return nil, &StorageError{Op: "read", Entity: "catalog", ID: s.path, Err: err}
	}

	s.logger.Debug().Str("path", s.path).Int("records", len(videos)).Msg("catalog loaded")
	return videos, nil
}

// Save replaces the catalog file with videos. On any error, including ctx
// cancellation before the final rename, the previous file is left untouched.
func (s *JSONStore) Save(ctx context.Context, videos []Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := encodeCatalog(videos)
	if err != nil {
		return &StorageError{Op: "write", Entity: "catalog", ID: s.path, Err: err}
	}

	writer, err := NewAtomicWriter(s.path)
	if err != nil {
		return &StorageError{Op: "write", Entity: "catalog", ID: s.path, Err: err}
	}
	defer func() {
		if err := writer.Abort(); err != nil {
			s.logger.Debug().Err(err).Msg("cleanup pending catalog file")
		}
	}()

	if _, err := writer.Write(data); err != nil {
		return &StorageError{Op: "write", Entity: "catalog", ID: s.path, Err: err}
	}

	if s.beforeCommit != nil {
		if err := s.beforeCommit(); err != nil {
			return &StorageError{Op: "write", Entity: "catalog", ID: s.path, Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := writer.Commit(); err != nil {
		return &StorageError{Op: "write", Entity: "catalog", ID: s.path, Err: err}
	}

	s.logger.Debug().Str("path", s.path).Int("records", len(videos)).Msg("catalog saved")
	return nil
}

// Close releases the catalog lock. Further Load and Save calls fail.
func (s *JSONStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.lock.Unlock()
}

// encodeCatalog renders videos the way the catalog file has always been
// written: a 4-space indented array, no trailing newline, and every
// character outside printable ASCII as a \uXXXX escape (astral runes as
// surrogate pairs). Files in that form survive a load and save unchanged.
func encodeCatalog(videos []Video) ([]byte, error) {
	if videos == nil {
		videos = []Video{}
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", jsonIndent)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(videos); err != nil {
		return nil, err
	}
	return escapeNonASCII(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// escapeNonASCII rewrites encoded JSON so that it contains only printable
// ASCII. Bytes outside that range only occur inside string literals.
func escapeNonASCII(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		switch {
		case r < utf8.RuneSelf && r != 0x7f:
			out = append(out, byte(r))
		case r > 0xffff:
			r1, r2 := utf16.EncodeRune(r)
			out = fmt.Appendf(out, `\u%04x\u%04x`, r1, r2)
		default:
			out = fmt.Appendf(out, `\u%04x`, r)
		}
	}
	return out
}

func decodeCatalog(data []byte) ([]Video, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: not a JSON array", ErrCorruptCatalog)
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()

	var videos []Video
	if err := decoder.Decode(&videos); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after array", ErrCorruptCatalog)
	}

	for i, v := range videos {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrCorruptCatalog, i+1, err)
		}
	}
	if videos == nil {
		videos = []Video{}
	}
	return videos, nil
}
