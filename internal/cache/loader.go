package cache

import (
	"golang.org/x/sync/singleflight"

	"github.com/blueband-db/blueband/internal/storage"
)

// VectorSource is the authoritative store the loader falls back to on miss.
type VectorSource interface {
	GetCollectionVectors(collectionID string) ([]storage.Vector, error)
}

// Loader combines the cache with its authoritative source. Concurrent misses
// for the same collection collapse into one storage read.
type Loader struct {
	cache  *Cache
	source VectorSource
	group  singleflight.Group
}

// NewLoader wires a cache to its vector source.
func NewLoader(c *Cache, source VectorSource) *Loader {
	return &Loader{cache: c, source: source}
}

// Get returns the collection's vectors, populating the cache on miss. Empty
// collections are not cached so a later first insert is seen immediately.
func (l *Loader) Get(collectionID string) ([]storage.Vector, error) {
	if vectors, ok := l.cache.Get(collectionID); ok {
		return vectors, nil
	}

	result, err, _ := l.group.Do(collectionID, func() (any, error) {
		vectors, err := l.source.GetCollectionVectors(collectionID)
		if err != nil {
			return nil, err
		}
		if len(vectors) > 0 {
			l.cache.Insert(collectionID, vectors)
		}
		return vectors, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]storage.Vector), nil
}

// Invalidate drops the collection from the cache; the next Get observes the
// authoritative vector set.
func (l *Loader) Invalidate(collectionID string) {
	l.cache.Remove(collectionID)
}

// Cache exposes the underlying cache for admin operations.
func (l *Loader) Cache() *Cache {
	return l.cache
}
