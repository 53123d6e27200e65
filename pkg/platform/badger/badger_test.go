package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxfs/fluxfs/pkg/platform"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	cache, err := New(context.Background(), Config{DBPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCache_RoundTrip(t *testing.T) {
	cache := newCache(t)

	md := platform.Metadata{
		ID:        "file-1",
		Container: "project-a",
		Name:      "reads.bam",
		Folder:    "/data",
		Size:      1234,
		Version:   "2",
		Created:   time.Unix(1700000000, 0).UTC(),
	}
	cache.Put("file-1", "project-a", md)

	got, ok := cache.Get("file-1", "project-a")
	require.True(t, ok)
	assert.Equal(t, md, got)
}

func TestCache_DescribedFlag(t *testing.T) {
	cache := newCache(t)

	assert.False(t, cache.Described("file-1", "project-a"))

	// An empty-attribute record still counts as described.
	cache.Put("file-1", "project-a", platform.Metadata{ID: "file-1", Container: "project-a"})
	assert.True(t, cache.Described("file-1", "project-a"))
}

func TestCache_ContainerScoping(t *testing.T) {
	cache := newCache(t)
	cache.Put("file-1", "project-a", platform.Metadata{ID: "file-1", Container: "project-a", Name: "a.txt"})

	_, ok := cache.Get("file-1", "project-b")
	assert.False(t, ok)
	assert.False(t, cache.Described("file-1", "project-b"))
}

func TestCache_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	first, err := New(context.Background(), Config{DBPath: dir})
	require.NoError(t, err)
	first.Put("file-1", "project-a", platform.Metadata{ID: "file-1", Container: "project-a", Name: "a.txt"})
	require.NoError(t, first.Close())

	second, err := New(context.Background(), Config{DBPath: dir})
	require.NoError(t, err)
	defer second.Close()

	md, ok := second.Get("file-1", "project-a")
	require.True(t, ok)
	assert.Equal(t, "a.txt", md.Name)
}
