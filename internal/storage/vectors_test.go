package storage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berrors "github.com/blueband-db/blueband/internal/errors"
)

func addTestDocument(t *testing.T, store *Store, collectionID, title string) *DocumentMetadata {
	t.Helper()
	meta, err := store.AddDocument(AddDocumentRequest{
		CollectionID: collectionID,
		Title:        title,
		Content:      "content for " + title,
	})
	require.NoError(t, err)
	return meta
}

func vectorFor(docID, id string, embedding []float32) Vector {
	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}
	return Vector{
		ID:         id,
		DocumentID: docID,
		ChunkID:    "chunk_0",
		Embedding:  embedding,
		Norm:       float32(math.Sqrt(sum)),
		Model:      "test-model",
	}
}

func TestStoreVector_ResolvesCollectionAndIndexes(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	meta := addTestDocument(t, store, "docs", "alpha")

	require.NoError(t, store.StoreVector(vectorFor(meta.ID, "vec_1", []float32{1, 0, 0})))

	vectors, err := store.GetCollectionVectors("docs")
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, "vec_1", vectors[0].ID)
	assert.Equal(t, meta.ID, vectors[0].DocumentID)
}

func TestStoreVector_RejectsInvalid(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	meta := addTestDocument(t, store, "docs", "alpha")

	tests := []struct {
		name   string
		vector Vector
	}{
		{"empty embedding", Vector{ID: "v", DocumentID: meta.ID, ChunkID: "c", Norm: 1}},
		{"zero norm", Vector{ID: "v", DocumentID: meta.ID, ChunkID: "c", Embedding: []float32{1}, Norm: 0}},
		{"nan value", Vector{ID: "v", DocumentID: meta.ID, ChunkID: "c",
			Embedding: []float32{float32(math.NaN())}, Norm: 1}},
		{"unknown document", vectorFor("doc_missing", "v", []float32{1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, store.StoreVector(tt.vector))
		})
	}
	assert.Equal(t, 0, store.CountVectors())
}

func TestStoreVectorsBatch_Idempotent(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	meta := addTestDocument(t, store, "docs", "alpha")

	batch := []Vector{
		vectorFor(meta.ID, "vec_1", []float32{1, 0}),
		vectorFor(meta.ID, "vec_2", []float32{0, 1}),
	}

	require.NoError(t, store.StoreVectorsBatch(batch))
	require.NoError(t, store.StoreVectorsBatch(batch))

	// Upsert semantics: the store and the index match the first call.
	assert.Equal(t, 2, store.CountVectors())
	ids, _ := store.vectorIndex.Get("docs")
	assert.Equal(t, []string{"vec_1", "vec_2"}, ids)
}

func TestStoreVectorsBatch_FailFastValidation(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	meta := addTestDocument(t, store, "docs", "alpha")

	batch := []Vector{
		vectorFor(meta.ID, "vec_1", []float32{1, 0}),
		{ID: "vec_bad", DocumentID: meta.ID, ChunkID: "c", Embedding: nil, Norm: 1},
	}

	err := store.StoreVectorsBatch(batch)
	require.Error(t, err)

	// Nothing was written: validation precedes any mutation.
	assert.Equal(t, 0, store.CountVectors())
	ids, _ := store.vectorIndex.Get("docs")
	assert.Empty(t, ids)
}

func TestStoreVectorsBatch_GroupsByCollection(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "one", "alice")
	createTestCollection(t, store, "two", "alice")
	docOne := addTestDocument(t, store, "one", "a")
	docTwo := addTestDocument(t, store, "two", "b")

	require.NoError(t, store.StoreVectorsBatch([]Vector{
		vectorFor(docOne.ID, "vec_1", []float32{1}),
		vectorFor(docTwo.ID, "vec_2", []float32{1}),
	}))

	one, _ := store.vectorIndex.Get("one")
	two, _ := store.vectorIndex.Get("two")
	assert.Equal(t, []string{"vec_1"}, one)
	assert.Equal(t, []string{"vec_2"}, two)
}

func TestDeleteVector(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	meta := addTestDocument(t, store, "docs", "alpha")

	require.NoError(t, store.StoreVector(vectorFor(meta.ID, "vec_1", []float32{1})))
	require.NoError(t, store.DeleteVector("vec_1"))

	_, err := store.GetVector("vec_1")
	assert.Equal(t, berrors.ErrCodeVectorNotFound, errCode(err))
	ids, _ := store.vectorIndex.Get("docs")
	assert.Empty(t, ids)

	err = store.DeleteVector("vec_1")
	assert.Equal(t, berrors.ErrCodeVectorNotFound, errCode(err))
}

func TestDeleteDocumentVectors(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	alpha := addTestDocument(t, store, "docs", "alpha")
	beta := addTestDocument(t, store, "docs", "beta")

	require.NoError(t, store.StoreVectorsBatch([]Vector{
		vectorFor(alpha.ID, "vec_a1", []float32{1, 0}),
		vectorFor(alpha.ID, "vec_a2", []float32{0, 1}),
		vectorFor(beta.ID, "vec_b1", []float32{1, 1}),
	}))

	removed, err := store.DeleteDocumentVectors(alpha.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	// Only beta's vector remains, in both the map and the index.
	assert.Equal(t, 1, store.CountVectors())
	ids, _ := store.vectorIndex.Get("docs")
	assert.Equal(t, []string{"vec_b1"}, ids)
}

func TestGetCollectionDimensions(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	meta := addTestDocument(t, store, "docs", "alpha")

	assert.Equal(t, 0, store.GetCollectionDimensions("docs"))

	require.NoError(t, store.StoreVector(vectorFor(meta.ID, "vec_1", []float32{1, 2, 3, 4})))
	assert.Equal(t, 4, store.GetCollectionDimensions("docs"))
}

func TestValidateCollectionVectors_ReportAndRepair(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	meta := addTestDocument(t, store, "docs", "alpha")

	require.NoError(t, store.StoreVector(vectorFor(meta.ID, "vec_ok", []float32{1, 0})))

	// Sneak invalid entries past the write-path validation.
	require.NoError(t, store.vectors.Insert("vec_bad_norm", Vector{
		ID: "vec_bad_norm", DocumentID: meta.ID, ChunkID: "c", Embedding: []float32{1}, Norm: 0,
	}))
	require.NoError(t, store.vectors.Insert("vec_orphan", Vector{
		ID: "vec_orphan", DocumentID: "doc_gone", ChunkID: "c", Embedding: []float32{1}, Norm: 1,
	}))
	ids, _ := store.vectorIndex.Get("docs")
	ids = append(ids, "vec_bad_norm", "vec_orphan", "vec_ghost")
	require.NoError(t, store.vectorIndex.Insert("docs", ids))

	report, err := store.ValidateCollectionVectors("docs", false)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 1, report.Valid)
	assert.Equal(t, []string{"vec_bad_norm"}, report.InvalidNorm)
	assert.Equal(t, []string{"vec_orphan"}, report.MissingDocument)
	assert.Equal(t, []string{"vec_ghost"}, report.MissingVector)
	assert.False(t, report.Repaired)

	// Repair rewrites the index to the valid subset.
	report, err = store.ValidateCollectionVectors("docs", true)
	require.NoError(t, err)
	assert.True(t, report.Repaired)

	ids, _ = store.vectorIndex.Get("docs")
	assert.Equal(t, []string{"vec_ok"}, ids)
}

func TestGetDocumentVectors(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	alpha := addTestDocument(t, store, "docs", "alpha")
	beta := addTestDocument(t, store, "docs", "beta")

	require.NoError(t, store.StoreVectorsBatch([]Vector{
		vectorFor(alpha.ID, "vec_a1", []float32{1}),
		vectorFor(beta.ID, "vec_b1", []float32{1}),
	}))

	got := store.GetDocumentVectors(alpha.ID)
	require.Len(t, got, 1)
	assert.Equal(t, "vec_a1", got[0].ID)
}

// Invariant: every vector returned by GetCollectionVectors has a positive
// finite norm and a non-empty, finite embedding.
func TestGetCollectionVectors_Invariants(t *testing.T) {
	store := openTestStore(t)
	createTestCollection(t, store, "docs", "alice")
	meta := addTestDocument(t, store, "docs", "alpha")

	require.NoError(t, store.StoreVectorsBatch([]Vector{
		vectorFor(meta.ID, "vec_1", []float32{0.5, 0.5}),
		vectorFor(meta.ID, "vec_2", []float32{0.1, 0.9}),
	}))

	vectors, err := store.GetCollectionVectors("docs")
	require.NoError(t, err)
	for _, v := range vectors {
		assert.Greater(t, v.Norm, float32(0))
		assert.NotEmpty(t, v.Embedding)
		for _, val := range v.Embedding {
			assert.False(t, math.IsNaN(float64(val)))
			assert.False(t, math.IsInf(float64(val), 0))
		}
	}
}
