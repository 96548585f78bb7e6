package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueband-db/blueband/internal/storage"
)

type fakeSource struct {
	vectors map[string][]storage.Vector
	calls   int
}

func (f *fakeSource) GetCollectionVectors(collectionID string) ([]storage.Vector, error) {
	f.calls++
	return f.vectors[collectionID], nil
}

func TestLoader_PopulatesOnMiss(t *testing.T) {
	source := &fakeSource{vectors: map[string][]storage.Vector{
		"docs": testVectors("doc_a", 3, 4),
	}}
	loader := NewLoader(New(DefaultConfig()), source)

	// First read goes to storage.
	got, err := loader.Get("docs")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, source.calls)

	// Second read is served from cache.
	got, err = loader.Get("docs")
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 1, source.calls)
}

func TestLoader_EmptyCollectionNotCached(t *testing.T) {
	source := &fakeSource{vectors: map[string][]storage.Vector{}}
	loader := NewLoader(New(DefaultConfig()), source)

	got, err := loader.Get("empty")
	require.NoError(t, err)
	assert.Empty(t, got)

	// The first vectors stored later must be visible immediately.
	source.vectors["empty"] = testVectors("doc_a", 1, 4)
	got, err = loader.Get("empty")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestLoader_InvalidateObservesAuthoritativeSet(t *testing.T) {
	source := &fakeSource{vectors: map[string][]storage.Vector{
		"docs": testVectors("doc_a", 2, 4),
	}}
	loader := NewLoader(New(DefaultConfig()), source)

	_, err := loader.Get("docs")
	require.NoError(t, err)

	// Storage changes behind the cache.
	source.vectors["docs"] = testVectors("doc_a", 5, 4)

	// Without invalidation the stale set is served.
	got, err := loader.Get("docs")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// After invalidation the next read observes storage.
	loader.Invalidate("docs")
	got, err = loader.Get("docs")
	require.NoError(t, err)
	assert.Len(t, got, 5)
}
