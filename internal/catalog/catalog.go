// Package catalog keeps the ordered video catalog in memory and reconciles it
// with metadata fetches and the durable store.
//
// Callers address records by 1-based position. Each record also carries a
// surrogate key that stays with it across updates and position shifts; keys
// live only in memory and are never persisted.
package catalog

import (
	"slices"

	"github.com/google/uuid"

	"ytcatalog/internal/storage"
)

// Entry is one catalog record with its surrogate key.
type Entry struct {
	Key   uuid.UUID
	Video storage.Video
}

// Listing is an entry together with its current position.
type Listing struct {
	Position int
	Key      uuid.UUID
	Video    storage.Video
}

// Catalog is an ordered sequence of entries. It is not safe for concurrent
// use; Manager serializes access.
type Catalog struct {
	entries []Entry
}

// New builds a catalog from stored records, assigning a fresh key to each.
func New(videos []storage.Video) *Catalog {
	c := &Catalog{entries: make([]Entry, 0, len(videos))}
	c.Append(videos...)
	return c
}

// Len returns the number of records.
func (c *Catalog) Len() int { return len(c.entries) }

// List projects the catalog into positioned listings.
func (c *Catalog) List() []Listing {
	out := make([]Listing, len(c.entries))
	for i, e := range c.entries {
		out[i] = Listing{Position: i + 1, Key: e.Key, Video: e.Video}
	}
	return out
}

// At returns the listing at position.
func (c *Catalog) At(position int) (Listing, error) {
	if err := c.checkPosition(position); err != nil {
		return Listing{}, err
	}
	e := c.entries[position-1]
	return Listing{Position: position, Key: e.Key, Video: e.Video}, nil
}

// Videos returns the plain records in order, ready to be saved.
func (c *Catalog) Videos() []storage.Video {
	out := make([]storage.Video, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Video
	}
	return out
}

// Contains reports whether a record with url is present.
func (c *Catalog) Contains(url string) bool {
	for _, e := range c.entries {
		if e.Video.URL == url {
			return true
		}
	}
	return false
}

// Append adds records at the end and returns their listings.
func (c *Catalog) Append(videos ...storage.Video) []Listing {
	out := make([]Listing, 0, len(videos))
	for _, v := range videos {
		e := Entry{Key: uuid.New(), Video: v}
		c.entries = append(c.entries, e)
		out = append(out, Listing{Position: len(c.entries), Key: e.Key, Video: v})
	}
	return out
}

// Replace overwrites the record at position, keeping its key.
func (c *Catalog) Replace(position int, v storage.Video) (Listing, error) {
	if err := c.checkPosition(position); err != nil {
		return Listing{}, err
	}
	c.entries[position-1].Video = v
	return Listing{Position: position, Key: c.entries[position-1].Key, Video: v}, nil
}

// Remove deletes the record at position. Later records move up by one.
func (c *Catalog) Remove(position int) (Entry, error) {
	if err := c.checkPosition(position); err != nil {
		return Entry{}, err
	}
	removed := c.entries[position-1]
	c.entries = slices.Delete(c.entries, position-1, position)
	return removed, nil
}

// Clone returns an independent copy with the same keys.
func (c *Catalog) Clone() *Catalog {
	return &Catalog{entries: slices.Clone(c.entries)}
}

func (c *Catalog) checkPosition(position int) error {
	if position < 1 || position > len(c.entries) {
		return &PositionError{Position: position, Len: len(c.entries)}
	}
	return nil
}
