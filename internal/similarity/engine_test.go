package similarity

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueband-db/blueband/internal/storage"
)

// memorySource serves vectors from memory for engine tests.
type memorySource struct {
	collections map[string][]storage.Vector
}

func (m *memorySource) CollectionVectors(collectionID string) ([]storage.Vector, error) {
	return m.collections[collectionID], nil
}

func (m *memorySource) DocumentVectors(documentID string) []storage.Vector {
	var out []storage.Vector
	for _, vectors := range m.collections {
		for _, v := range vectors {
			if v.DocumentID == documentID {
				out = append(out, v)
			}
		}
	}
	return out
}

// memoryResolver enriches matches from in-memory tables.
type memoryResolver struct {
	titles map[string]string
	chunks map[string]string
}

func (m *memoryResolver) GetDocumentTitle(_, documentID string) (string, bool) {
	title, ok := m.titles[documentID]
	return title, ok
}

func (m *memoryResolver) GetChunkText(documentID, chunkID string) (string, bool) {
	text, ok := m.chunks[documentID+"/"+chunkID]
	return text, ok
}

func newVector(docID, id string, embedding []float32) storage.Vector {
	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}
	return storage.Vector{
		ID:         id,
		DocumentID: docID,
		ChunkID:    "chunk_0",
		Embedding:  embedding,
		Norm:       float32(math.Sqrt(sum)),
		Model:      "test-model",
	}
}

func fruitEngine() *Engine {
	source := &memorySource{collections: map[string][]storage.Vector{
		"fruit": {
			newVector("doc_apple", "vec_apple", []float32{1, 0, 0}),
			newVector("doc_apricot", "vec_apricot", []float32{0.9, 0.1, 0}),
			newVector("doc_banana", "vec_banana", []float32{0, 1, 0}),
		},
	}}
	resolver := &memoryResolver{
		titles: map[string]string{
			"doc_apple":   "apple",
			"doc_apricot": "apricot",
			"doc_banana":  "banana",
		},
		chunks: map[string]string{
			"doc_apple/chunk_0":   "apple text",
			"doc_apricot/chunk_0": "apricot text",
			"doc_banana/chunk_0":  "banana text",
		},
	}
	return NewEngine(source, resolver)
}

func TestSearch_OrderingAndScores(t *testing.T) {
	// Scenario: querying "apple" [1,0,0] ranks apple > apricot > banana with
	// scores ~ [1.000, 0.994, 0.000].
	engine := fruitEngine()

	matches, err := engine.Search([]float32{1, 0, 0}, "fruit", DefaultConfig())
	require.NoError(t, err)
	require.Len(t, matches, 3)

	assert.Equal(t, "doc_apple", matches[0].DocumentID)
	assert.Equal(t, "doc_apricot", matches[1].DocumentID)
	assert.Equal(t, "doc_banana", matches[2].DocumentID)

	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.InDelta(t, 0.9/math.Sqrt(0.81+0.01), matches[1].Score, 1e-6)
	assert.InDelta(t, 0.0, matches[2].Score, 1e-6)

	// Enrichment carries title and chunk text.
	assert.Equal(t, "apple", matches[0].DocumentTitle)
	assert.Equal(t, "apple text", matches[0].ChunkText)
}

func TestSearch_EmptyCollection(t *testing.T) {
	engine := NewEngine(&memorySource{collections: map[string][]storage.Vector{}}, nil)

	matches, err := engine.Search([]float32{1, 0}, "missing", DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearch_InvalidQuery(t *testing.T) {
	engine := fruitEngine()

	_, err := engine.Search(nil, "fruit", DefaultConfig())
	assert.Error(t, err)

	_, err = engine.Search([]float32{float32(math.NaN())}, "fruit", DefaultConfig())
	assert.Error(t, err)
}

func TestSearch_SkipsDimensionMismatch(t *testing.T) {
	source := &memorySource{collections: map[string][]storage.Vector{
		"mixed": {
			newVector("doc_a", "vec_a", []float32{1, 0}),
			newVector("doc_b", "vec_b", []float32{1, 0, 0}), // different dimension
		},
	}}
	engine := NewEngine(source, nil)

	matches, err := engine.Search([]float32{1, 0}, "mixed", DefaultConfig())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc_a", matches[0].DocumentID)
}

func TestSearch_MinScoreAndLimit(t *testing.T) {
	engine := fruitEngine()

	minScore := 0.5
	cfg := DefaultConfig()
	cfg.MinScore = &minScore
	matches, err := engine.Search([]float32{1, 0, 0}, "fruit", cfg)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	cfg = DefaultConfig()
	cfg.MaxResults = 1
	matches, err = engine.Search([]float32{1, 0, 0}, "fruit", cfg)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc_apple", matches[0].DocumentID)
}

func TestSearchFiltered_Allowlist(t *testing.T) {
	engine := fruitEngine()

	matches, err := engine.SearchFiltered([]float32{1, 0, 0}, "fruit",
		[]string{"doc_banana"}, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc_banana", matches[0].DocumentID)

	// An empty (non-nil) allowlist matches nothing.
	matches, err = engine.SearchFiltered([]float32{1, 0, 0}, "fruit",
		[]string{}, DefaultConfig())
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindSimilarDocuments_ExcludesSource(t *testing.T) {
	engine := fruitEngine()

	matches, err := engine.FindSimilarDocuments("doc_apple", "fruit", DefaultConfig())
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	for _, m := range matches {
		assert.NotEqual(t, "doc_apple", m.DocumentID)
	}
	assert.Equal(t, "doc_apricot", matches[0].DocumentID)
}

func TestFindSimilarDocuments_NoVectors(t *testing.T) {
	engine := fruitEngine()

	_, err := engine.FindSimilarDocuments("doc_unknown", "fruit", DefaultConfig())
	assert.Error(t, err)
}

func TestSearchBatch(t *testing.T) {
	engine := fruitEngine()

	results, err := engine.SearchBatch([][]float32{
		{1, 0, 0},
		{0, 1, 0},
	}, "fruit", DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc_apple", results[0][0].DocumentID)
	assert.Equal(t, "doc_banana", results[1][0].DocumentID)
}

func randomVectors(rng *rand.Rand, count, dim int) []storage.Vector {
	vectors := make([]storage.Vector, count)
	for i := range vectors {
		embedding := make([]float32, dim)
		for d := range embedding {
			embedding[d] = rng.Float32()*2 - 1
		}
		vectors[i] = newVector(
			fmt.Sprintf("doc_%d", i),
			fmt.Sprintf("vec_%d", i),
			embedding,
		)
	}
	return vectors
}

func clusteredVectors(rng *rand.Rand, count, dim, centers int) []storage.Vector {
	centerEmbeddings := make([][]float32, centers)
	for c := range centerEmbeddings {
		center := make([]float32, dim)
		for d := range center {
			center[d] = rng.Float32()*2 - 1
		}
		centerEmbeddings[c] = center
	}

	vectors := make([]storage.Vector, count)
	for i := range vectors {
		center := centerEmbeddings[rng.Intn(centers)]
		embedding := make([]float32, dim)
		for d := range embedding {
			embedding[d] = center[d] + float32(rng.NormFloat64())*0.1
		}
		vectors[i] = newVector(
			fmt.Sprintf("doc_%d", i),
			fmt.Sprintf("vec_%d", i),
			embedding,
		)
	}
	return vectors
}

func TestSearch_ApproximatePathTriggers(t *testing.T) {
	// Scenario: 1001 random 8-dimensional vectors trip the approximate path;
	// results are exactly 10 with no duplicates.
	rng := rand.New(rand.NewSource(7))
	source := &memorySource{collections: map[string][]storage.Vector{
		"big": randomVectors(rng, 1001, 8),
	}}
	engine := NewEngine(source, nil)

	query := make([]float32, 8)
	for d := range query {
		query[d] = rng.Float32()*2 - 1
	}

	cfg := Config{MaxResults: 10, UseApproximate: true, CandidateFactor: 3.0}
	matches, err := engine.Search(query, "big", cfg)
	require.NoError(t, err)
	require.Len(t, matches, 10)

	seen := map[string]bool{}
	for _, m := range matches {
		key := m.DocumentID + "/" + m.ChunkID
		assert.False(t, seen[key], "duplicate match %s", key)
		seen[key] = true
	}

	// Scores are sorted descending.
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestSearch_ApproximateRecall(t *testing.T) {
	// Property: against 5000 vectors, the approximate path recovers at least
	// 80% of the exact top-10 on average. The corpus is drawn around cluster
	// centers the way real embeddings group by topic.
	rng := rand.New(rand.NewSource(42))
	vectors := clusteredVectors(rng, 5000, 16, 20)
	source := &memorySource{collections: map[string][]storage.Vector{"big": vectors}}
	engine := NewEngine(source, nil)

	const trials = 5
	totalRecall := 0.0
	for trial := 0; trial < trials; trial++ {
		query := make([]float32, 16)
		for d := range query {
			query[d] = rng.Float32()*2 - 1
		}

		exactCfg := Config{MaxResults: 10, UseApproximate: false}
		exact, err := engine.Search(query, "big", exactCfg)
		require.NoError(t, err)

		approxCfg := Config{MaxResults: 10, UseApproximate: true, CandidateFactor: 3.0}
		approx, err := engine.Search(query, "big", approxCfg)
		require.NoError(t, err)

		exactSet := map[string]bool{}
		for _, m := range exact {
			exactSet[m.DocumentID] = true
		}
		found := 0
		for _, m := range approx {
			if exactSet[m.DocumentID] {
				found++
			}
		}
		totalRecall += float64(found) / float64(len(exact))
	}

	assert.GreaterOrEqual(t, totalRecall/trials, 0.8)
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name       string
		a, b       []float32
		normA      float32
		normB      float32
		wantOK     bool
		wantScore  float64
		scoreDelta float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1, 1, true, 1, 1e-9},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1, 1, true, 0, 1e-9},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 1, 1, true, -1, 1e-9},
		{"dimension mismatch", []float32{1, 0}, []float32{1}, 1, 1, false, 0, 0},
		{"zero norm", []float32{1, 0}, []float32{1, 0}, 0, 1, false, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, ok := CosineSimilarity(tt.a, tt.b, tt.normA, tt.normB)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.InDelta(t, tt.wantScore, score, tt.scoreDelta)
			}
		})
	}
}

func TestCalculateNorm(t *testing.T) {
	norm, err := CalculateNorm([]float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, float64(norm), 1e-6)

	_, err = CalculateNorm(nil)
	assert.Error(t, err)
	_, err = CalculateNorm([]float32{0, 0})
	assert.Error(t, err)
}
