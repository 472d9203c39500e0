package catalog

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcatalog/internal/storage"
)

func threeVideos() []storage.Video {
	return []storage.Video{
		{Name: "One", Time: "00:01:00", URL: "https://www.youtube.com/watch?v=one00000000"},
		{Name: "Two", Time: "00:02:00", URL: "https://www.youtube.com/watch?v=two00000000"},
		{Name: "Three", Time: "00:03:00", URL: "https://www.youtube.com/watch?v=three000000"},
	}
}

func TestNew_AssignsDistinctKeys(t *testing.T) {
	c := New(threeVideos())
	require.Equal(t, 3, c.Len())

	seen := map[string]bool{}
	for i, l := range c.List() {
		assert.Equal(t, i+1, l.Position)
		assert.False(t, seen[l.Key.String()], "duplicate key")
		seen[l.Key.String()] = true
	}
	if diff := cmp.Diff(threeVideos(), c.Videos()); diff != "" {
		t.Errorf("Videos() mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalog_RemoveShiftsPositions(t *testing.T) {
	c := New(threeVideos())
	before := c.List()

	removed, err := c.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "One", removed.Video.Name)
	assert.Equal(t, before[0].Key, removed.Key)

	after := c.List()
	require.Len(t, after, 2)
	assert.Equal(t, before[1].Key, after[0].Key)
	assert.Equal(t, 1, after[0].Position)
	assert.Equal(t, before[2].Key, after[1].Key)
	assert.Equal(t, 2, after[1].Position)
	for _, l := range after {
		assert.NotEqual(t, before[0].Key, l.Key, "removed key must not reappear")
	}
}

func TestCatalog_ReplaceKeepsKey(t *testing.T) {
	c := New(threeVideos())
	key := c.List()[1].Key

	l, err := c.Replace(2, storage.Video{Name: "X", Time: "00:00:01", URL: "https://youtu.be/x"})
	require.NoError(t, err)
	assert.Equal(t, key, l.Key)
	assert.Equal(t, 2, l.Position)
	assert.Equal(t, "X", c.Videos()[1].Name)
	assert.Equal(t, "One", c.Videos()[0].Name)
	assert.Equal(t, "Three", c.Videos()[2].Name)
}

func TestCatalog_PositionBounds(t *testing.T) {
	c := New(threeVideos())
	for _, p := range []int{-1, 0, 4, 100} {
		_, err := c.At(p)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "At(%d)", p)

		_, err = c.Replace(p, storage.Video{})
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "Replace(%d)", p)

		_, err = c.Remove(p)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "Remove(%d)", p)
	}
	assert.Equal(t, 3, c.Len())

	var posErr *PositionError
	_, err := c.At(4)
	require.True(t, errors.As(err, &posErr))
	assert.Equal(t, 4, posErr.Position)
	assert.Equal(t, 3, posErr.Len)
	assert.Equal(t, "catalog: position 4 out of range [1, 3]", err.Error())

	_, err = New(nil).At(1)
	assert.EqualError(t, err, "catalog: position 1 out of range (catalog is empty)")
}

func TestCatalog_CloneIsIndependent(t *testing.T) {
	c := New(threeVideos())
	clone := c.Clone()

	_, err := clone.Remove(1)
	require.NoError(t, err)
	clone.Append(storage.Video{Name: "New", Time: "00:00:00", URL: "https://youtu.be/new"})

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, "One", c.Videos()[0].Name)
	assert.Equal(t, c.List()[1].Key, clone.List()[0].Key)
}

func TestCatalog_Contains(t *testing.T) {
	c := New(threeVideos())
	assert.True(t, c.Contains("https://www.youtube.com/watch?v=two00000000"))
	assert.False(t, c.Contains("https://www.youtube.com/watch?v=four0000000"))
}
