// Package cache keeps hot collections' vectors resident under memory and
// entry bounds so search does not re-read storage on every query.
package cache

import (
	"sync"
	"time"

	"github.com/blueband-db/blueband/internal/storage"
)

// Compile-time defaults; the host may override via Config.
const (
	DefaultMaxMemoryBytes = 100 * 1024 * 1024
	DefaultMaxEntries     = 1000
	DefaultTTL            = 24 * time.Hour
)

// Config bounds the cache.
type Config struct {
	MaxMemoryBytes int
	MaxEntries     int
	TTL            time.Duration

	// Now is the clock used for TTL decisions; defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the compile-time bounds.
func DefaultConfig() Config {
	return Config{
		MaxMemoryBytes: DefaultMaxMemoryBytes,
		MaxEntries:     DefaultMaxEntries,
		TTL:            DefaultTTL,
	}
}

type entry struct {
	vectors      []storage.Vector
	insertedAt   time.Time
	lastAccessed time.Time
	memorySize   int
}

// Stats is a point-in-time snapshot of cache usage.
type Stats struct {
	EntryCount         int    `json:"entry_count"`
	TotalMemoryBytes   int    `json:"total_memory_bytes"`
	MaxMemoryBytes     int    `json:"max_memory_bytes"`
	MaxEntries         int    `json:"max_entries"`
	MemoryUsagePercent int    `json:"memory_usage_percent"`
	Hits               uint64 `json:"hits"`
	Misses             uint64 `json:"misses"`
}

// Cache is a bounded LRU over per-collection vector sets. The access-order
// list holds exactly the keys present in the entry map, least recent at the
// head. Every mutation runs inside the mutex; no operation suspends.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*entry
	accessOrder []string
	totalMemory int

	maxMemory  int
	maxEntries int
	ttl        time.Duration
	now        func() time.Time

	hits   uint64
	misses uint64
}

// New creates a cache with the given bounds, filling in defaults for zero
// values.
func New(cfg Config) *Cache {
	if cfg.MaxMemoryBytes <= 0 {
		cfg.MaxMemoryBytes = DefaultMaxMemoryBytes
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Cache{
		entries:    make(map[string]*entry),
		maxMemory:  cfg.MaxMemoryBytes,
		maxEntries: cfg.MaxEntries,
		ttl:        cfg.TTL,
		now:        cfg.Now,
	}
}

// Get returns a clone of the cached vectors for the collection, promoting it
// to most-recently-used. Expired entries are evicted and reported as misses.
func (c *Cache) Get(collectionID string) ([]storage.Vector, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e, ok := c.entries[collectionID]
	if !ok {
		c.misses++
		return nil, false
	}
	if now.Sub(e.insertedAt) >= c.ttl {
		c.removeLocked(collectionID)
		c.misses++
		return nil, false
	}

	e.lastAccessed = now
	c.promoteLocked(collectionID)
	c.hits++
	return cloneVectors(e.vectors), true
}

// Insert stores the collection's vectors, evicting expired then
// least-recently-used entries until both bounds hold.
func (c *Cache) Insert(collectionID string, vectors []storage.Vector) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	memorySize := EstimateVectorsMemory(vectors)

	// An entry bigger than the whole budget can never be admitted; skipping
	// it keeps the memory bound intact and the caller just works uncached.
	if memorySize > c.maxMemory {
		c.removeLocked(collectionID)
		return
	}

	if _, ok := c.entries[collectionID]; ok {
		c.removeLocked(collectionID)
	}

	c.makeSpaceLocked(memorySize, 1)

	c.entries[collectionID] = &entry{
		vectors:      cloneVectors(vectors),
		insertedAt:   now,
		lastAccessed: now,
		memorySize:   memorySize,
	}
	c.accessOrder = append(c.accessOrder, collectionID)
	c.totalMemory += memorySize
}

// Remove drops one collection's entry.
func (c *Cache) Remove(collectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(collectionID)
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.accessOrder = nil
	c.totalMemory = 0
}

// Cleanup drops all expired entries and returns how many were evicted.
func (c *Cache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	before := len(c.entries)
	c.removeExpiredLocked()
	return before - len(c.entries)
}

// Stats returns a usage snapshot.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		EntryCount:         len(c.entries),
		TotalMemoryBytes:   c.totalMemory,
		MaxMemoryBytes:     c.maxMemory,
		MaxEntries:         c.maxEntries,
		MemoryUsagePercent: c.totalMemory * 100 / c.maxMemory,
		Hits:               c.hits,
		Misses:             c.misses,
	}
}

// Keys returns the cached collection ids in LRU order (least recent first).
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.accessOrder))
	copy(out, c.accessOrder)
	return out
}

func (c *Cache) removeLocked(collectionID string) {
	e, ok := c.entries[collectionID]
	if !ok {
		return
	}
	delete(c.entries, collectionID)
	c.totalMemory -= e.memorySize
	if c.totalMemory < 0 {
		c.totalMemory = 0
	}
	for i, id := range c.accessOrder {
		if id == collectionID {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			break
		}
	}
}

func (c *Cache) promoteLocked(collectionID string) {
	for i, id := range c.accessOrder {
		if id == collectionID {
			c.accessOrder = append(c.accessOrder[:i], c.accessOrder[i+1:]...)
			c.accessOrder = append(c.accessOrder, collectionID)
			return
		}
	}
}

func (c *Cache) makeSpaceLocked(neededMemory, neededEntries int) {
	c.removeExpiredLocked()

	for (c.totalMemory+neededMemory > c.maxMemory ||
		len(c.entries)+neededEntries > c.maxEntries) &&
		len(c.accessOrder) > 0 {
		c.removeLocked(c.accessOrder[0])
	}

	// Re-derive the total from live entries after eviction; the invariant is
	// total == sum of entry sizes.
	c.recalculateMemoryLocked()
}

func (c *Cache) removeExpiredLocked() {
	now := c.now()
	var expired []string
	for id, e := range c.entries {
		if now.Sub(e.insertedAt) >= c.ttl {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		c.removeLocked(id)
	}
}

func (c *Cache) recalculateMemoryLocked() {
	total := 0
	for _, e := range c.entries {
		total += e.memorySize
	}
	c.totalMemory = total
}

// vectorOverheadBytes approximates the fixed per-vector struct cost.
const vectorOverheadBytes = 112

// EstimateVectorsMemory estimates the resident size of a vector set: struct
// overhead, the float32 embedding, and the id/model strings.
func EstimateVectorsMemory(vectors []storage.Vector) int {
	total := 0
	for i := range vectors {
		v := &vectors[i]
		total += vectorOverheadBytes
		total += len(v.Embedding) * 4
		total += len(v.ID) + len(v.DocumentID) + len(v.ChunkID) + len(v.Model)
	}
	return total
}

func cloneVectors(vectors []storage.Vector) []storage.Vector {
	out := make([]storage.Vector, len(vectors))
	copy(out, vectors)
	for i := range out {
		emb := make([]float32, len(out[i].Embedding))
		copy(emb, out[i].Embedding)
		out[i].Embedding = emb
	}
	return out
}
