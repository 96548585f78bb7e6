package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueband-db/blueband/internal/storage"
)

func testVectors(documentID string, count, dim int) []storage.Vector {
	vectors := make([]storage.Vector, count)
	for i := range vectors {
		embedding := make([]float32, dim)
		embedding[i%dim] = 1
		vectors[i] = storage.Vector{
			ID:         fmt.Sprintf("vec_%s_%d", documentID, i),
			DocumentID: documentID,
			ChunkID:    fmt.Sprintf("chunk_%d", i),
			Embedding:  embedding,
			Norm:       1,
			Model:      "test-model",
		}
	}
	return vectors
}

func TestCache_GetMissThenHit(t *testing.T) {
	c := New(DefaultConfig())

	// Given: an empty cache
	_, ok := c.Get("docs")
	assert.False(t, ok)

	// When: vectors are inserted
	c.Insert("docs", testVectors("doc_a", 3, 4))

	// Then: Get returns them and counts a hit
	got, ok := c.Get("docs")
	require.True(t, ok)
	assert.Len(t, got, 3)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCache_GetReturnsClone(t *testing.T) {
	c := New(DefaultConfig())
	c.Insert("docs", testVectors("doc_a", 1, 4))

	got, ok := c.Get("docs")
	require.True(t, ok)

	// Mutating the returned slice must not leak into the cache.
	got[0].Embedding[0] = 42

	again, ok := c.Get("docs")
	require.True(t, ok)
	assert.Equal(t, float32(1), again[0].Embedding[0])
}

func TestCache_TTLExpiry(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	cfg.Now = func() time.Time { return now }
	c := New(cfg)

	c.Insert("docs", testVectors("doc_a", 2, 4))

	// Still fresh just before the TTL.
	now = now.Add(59 * time.Minute)
	_, ok := c.Get("docs")
	assert.True(t, ok)

	// Expired entries are evicted on access.
	now = now.Add(2 * time.Minute)
	_, ok = c.Get("docs")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().EntryCount)
}

func TestCache_EvictionOrderIsLRU(t *testing.T) {
	// Given: max_entries=2 with collections A and B resident
	cfg := DefaultConfig()
	cfg.MaxEntries = 2
	c := New(cfg)

	c.Insert("A", testVectors("doc_a", 1, 4))
	c.Insert("B", testVectors("doc_b", 1, 4))

	// When: C is inserted (evicting A, the least recent), then A is re-read
	c.Insert("C", testVectors("doc_c", 1, 4))

	_, okA := c.Get("A")
	_, okB := c.Get("B")
	_, okC := c.Get("C")

	// Then: A was evicted, B and C remain
	assert.False(t, okA)
	assert.True(t, okB)
	assert.True(t, okC)

	// And: after reading B last, inserting D evicts C
	_, ok := c.Get("B")
	require.True(t, ok)
	c.Insert("D", testVectors("doc_d", 1, 4))
	_, okC = c.Get("C")
	_, okB = c.Get("B")
	assert.False(t, okC)
	assert.True(t, okB)
}

func TestCache_ReadPromotes(t *testing.T) {
	// Scenario: A, B inserted with max_entries=2, then A is read, promoting it;
	// inserting C evicts B, the least recent, while A and C stay resident.
	cfg := DefaultConfig()
	cfg.MaxEntries = 2
	c := New(cfg)

	c.Insert("A", testVectors("doc_a", 1, 4))
	c.Insert("B", testVectors("doc_b", 1, 4))
	_, ok := c.Get("A")
	require.True(t, ok)

	// A is now most recent; inserting C evicts B.
	c.Insert("C", testVectors("doc_c", 1, 4))

	_, okA := c.Get("A")
	_, okB := c.Get("B")
	_, okC := c.Get("C")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
}

func TestCache_MemoryBound(t *testing.T) {
	vectors := testVectors("doc_a", 10, 64)
	entrySize := EstimateVectorsMemory(vectors)

	cfg := DefaultConfig()
	cfg.MaxMemoryBytes = entrySize*2 + entrySize/2 // room for two entries, not three
	c := New(cfg)

	c.Insert("A", vectors)
	c.Insert("B", testVectors("doc_b", 10, 64))
	c.Insert("C", testVectors("doc_c", 10, 64))

	stats := c.Stats()
	assert.LessOrEqual(t, stats.TotalMemoryBytes, cfg.MaxMemoryBytes)
	assert.Equal(t, 2, stats.EntryCount)

	// A was the least recently used entry.
	_, okA := c.Get("A")
	assert.False(t, okA)
}

func TestCache_MemoryAccountingMatchesEntries(t *testing.T) {
	c := New(DefaultConfig())

	a := testVectors("doc_a", 5, 8)
	b := testVectors("doc_b", 7, 8)
	c.Insert("A", a)
	c.Insert("B", b)

	want := EstimateVectorsMemory(a) + EstimateVectorsMemory(b)
	assert.Equal(t, want, c.Stats().TotalMemoryBytes)

	c.Remove("A")
	assert.Equal(t, EstimateVectorsMemory(b), c.Stats().TotalMemoryBytes)

	c.Clear()
	assert.Equal(t, 0, c.Stats().TotalMemoryBytes)
	assert.Equal(t, 0, c.Stats().EntryCount)
}

func TestCache_ReinsertReplaces(t *testing.T) {
	c := New(DefaultConfig())

	c.Insert("A", testVectors("doc_a", 5, 8))
	c.Insert("A", testVectors("doc_a", 2, 8))

	got, ok := c.Get("A")
	require.True(t, ok)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, c.Stats().EntryCount)
	assert.Equal(t, []string{"A"}, c.Keys())
}

func TestCache_Cleanup(t *testing.T) {
	now := time.Now()
	cfg := DefaultConfig()
	cfg.TTL = time.Hour
	cfg.Now = func() time.Time { return now }
	c := New(cfg)

	c.Insert("old", testVectors("doc_a", 1, 4))
	now = now.Add(30 * time.Minute)
	c.Insert("fresh", testVectors("doc_b", 1, 4))
	now = now.Add(45 * time.Minute)

	evicted := c.Cleanup()
	assert.Equal(t, 1, evicted)

	_, okOld := c.Get("old")
	_, okFresh := c.Get("fresh")
	assert.False(t, okOld)
	assert.True(t, okFresh)
}

func TestCache_StatsPercent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMemoryBytes = 1000
	c := New(cfg)

	vectors := testVectors("doc_a", 1, 4)
	c.Insert("A", vectors)

	stats := c.Stats()
	assert.Equal(t, EstimateVectorsMemory(vectors)*100/1000, stats.MemoryUsagePercent)
	assert.Equal(t, 1000, stats.MaxMemoryBytes)
}
