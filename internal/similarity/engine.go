// Package similarity implements the two-tier nearest-neighbour search:
// exact cosine scoring over a collection's vectors, and an approximate path
// that ranks k-means centroids first and refines inside the best clusters.
package similarity

import (
	"math"
	"sort"

	berrors "github.com/blueband-db/blueband/internal/errors"
	"github.com/blueband-db/blueband/internal/storage"
)

// ApproximateThreshold is the collection size above which the approximate
// path kicks in when requested.
const ApproximateThreshold = 1000

// Config tunes one search invocation.
type Config struct {
	// MinScore drops matches below the threshold when set.
	MinScore *float64 `json:"min_score,omitempty"`
	// MaxResults caps the number of matches returned.
	MaxResults int `json:"max_results"`
	// UseApproximate enables the coarse-index path for large collections.
	UseApproximate bool `json:"use_approximate"`
	// CandidateFactor scales how many in-cluster candidates the coarse pass
	// accumulates relative to MaxResults.
	CandidateFactor float32 `json:"candidate_factor"`
}

// DefaultConfig mirrors the production defaults: top 10, approximate allowed,
// 3x candidates for accuracy.
func DefaultConfig() Config {
	return Config{
		MaxResults:      10,
		UseApproximate:  true,
		CandidateFactor: 3.0,
	}
}

func (c *Config) normalize() {
	if c.MaxResults <= 0 {
		c.MaxResults = 10
	}
	if c.CandidateFactor <= 0 {
		c.CandidateFactor = 3.0
	}
}

// Match is one scored search hit, optionally enriched with document title
// and chunk text.
type Match struct {
	Score         float64 `json:"score"`
	DocumentID    string  `json:"document_id"`
	ChunkID       string  `json:"chunk_id"`
	DocumentTitle string  `json:"document_title,omitempty"`
	ChunkText     string  `json:"chunk_text,omitempty"`
}

// VectorSource supplies the vectors the engine searches over.
type VectorSource interface {
	// CollectionVectors returns all vectors of a collection (cached).
	CollectionVectors(collectionID string) ([]storage.Vector, error)
	// DocumentVectors returns all vectors of one document.
	DocumentVectors(documentID string) []storage.Vector
}

// DocumentResolver enriches matches with document and chunk content.
type DocumentResolver interface {
	GetDocumentTitle(collectionID, documentID string) (string, bool)
	GetChunkText(documentID, chunkID string) (string, bool)
}

// Engine runs similarity searches over a vector source.
type Engine struct {
	vectors  VectorSource
	resolver DocumentResolver
}

// NewEngine builds an engine over the given source and resolver.
func NewEngine(vectors VectorSource, resolver DocumentResolver) *Engine {
	return &Engine{vectors: vectors, resolver: resolver}
}

// Search scores the query against a collection and returns enriched matches
// sorted by score descending, truncated to MaxResults. Collections with no
// vectors yield an empty result, not an error.
func (e *Engine) Search(query []float32, collectionID string, cfg Config) ([]Match, error) {
	cfg.normalize()
	if err := ValidateEmbedding(query); err != nil {
		return nil, err
	}

	vectors, err := e.vectors.CollectionVectors(collectionID)
	if err != nil {
		return nil, err
	}
	return e.searchVectors(query, collectionID, vectors, cfg)
}

// SearchFiltered pre-filters the collection's vectors by a document-id
// allowlist, then applies the same search logic.
func (e *Engine) SearchFiltered(query []float32, collectionID string, documentIDs []string, cfg Config) ([]Match, error) {
	cfg.normalize()
	if err := ValidateEmbedding(query); err != nil {
		return nil, err
	}

	vectors, err := e.vectors.CollectionVectors(collectionID)
	if err != nil {
		return nil, err
	}

	if documentIDs != nil {
		allowed := make(map[string]bool, len(documentIDs))
		for _, id := range documentIDs {
			allowed[id] = true
		}
		filtered := make([]storage.Vector, 0, len(vectors))
		for _, v := range vectors {
			if allowed[v.DocumentID] {
				filtered = append(filtered, v)
			}
		}
		vectors = filtered
	}

	return e.searchVectors(query, collectionID, vectors, cfg)
}

// FindSimilarDocuments searches with the centroid of the source document's
// vectors and drops matches from the source document itself.
func (e *Engine) FindSimilarDocuments(sourceDocumentID, collectionID string, cfg Config) ([]Match, error) {
	cfg.normalize()

	sourceVectors := e.vectors.DocumentVectors(sourceDocumentID)
	if len(sourceVectors) == 0 {
		return nil, berrors.NotFoundError(berrors.ErrCodeVectorNotFound, "document vectors", sourceDocumentID)
	}

	centroid, err := documentCentroid(sourceVectors)
	if err != nil {
		return nil, err
	}

	matches, err := e.Search(centroid, collectionID, cfg)
	if err != nil {
		return nil, err
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.DocumentID != sourceDocumentID {
			kept = append(kept, m)
		}
	}
	return kept, nil
}

// SearchBatch applies Search per query; the cache makes the repeated
// collection fetch cheap.
func (e *Engine) SearchBatch(queries [][]float32, collectionID string, cfg Config) ([][]Match, error) {
	results := make([][]Match, 0, len(queries))
	for _, query := range queries {
		matches, err := e.Search(query, collectionID, cfg)
		if err != nil {
			return nil, err
		}
		results = append(results, matches)
	}
	return results, nil
}

type scored struct {
	score  float64
	vector *storage.Vector
}

func (e *Engine) searchVectors(query []float32, collectionID string, vectors []storage.Vector, cfg Config) ([]Match, error) {
	if len(vectors) == 0 {
		return []Match{}, nil
	}

	var hits []scored
	var err error
	if cfg.UseApproximate && len(vectors) > ApproximateThreshold {
		targetClusters := clamp(len(vectors)/100, 10, 100)
		index := buildIndex(vectors, targetClusters)
		hits, err = index.searchApproximate(query, cfg)
	} else {
		hits, err = exactSearch(query, vectors, cfg)
	}
	if err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		m := Match{
			Score:      h.score,
			DocumentID: h.vector.DocumentID,
			ChunkID:    h.vector.ChunkID,
		}
		if e.resolver != nil {
			if title, ok := e.resolver.GetDocumentTitle(collectionID, h.vector.DocumentID); ok {
				m.DocumentTitle = title
			}
			if text, ok := e.resolver.GetChunkText(h.vector.DocumentID, h.vector.ChunkID); ok {
				m.ChunkText = text
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// exactSearch is the linear scan: every vector scored, mismatched dimensions
// and sub-threshold entries skipped.
func exactSearch(query []float32, vectors []storage.Vector, cfg Config) ([]scored, error) {
	queryNorm, err := CalculateNorm(query)
	if err != nil {
		return nil, err
	}

	var hits []scored
	for i := range vectors {
		v := &vectors[i]
		if len(v.Embedding) != len(query) {
			continue
		}
		score, ok := CosineSimilarity(query, v.Embedding, queryNorm, v.Norm)
		if !ok {
			continue
		}
		if cfg.MinScore != nil && score < *cfg.MinScore {
			continue
		}
		hits = append(hits, scored{score: score, vector: v})
	}

	sortHits(hits)
	if len(hits) > cfg.MaxResults {
		hits = hits[:cfg.MaxResults]
	}
	return hits, nil
}

func sortHits(hits []scored) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].score > hits[j].score
	})
}

// ValidateEmbedding rejects empty embeddings and non-finite values.
func ValidateEmbedding(embedding []float32) error {
	if len(embedding) == 0 {
		return berrors.New(berrors.ErrCodeInvalidEmbedding, "embedding is empty", nil)
	}
	for i, v := range embedding {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return berrors.Newf(berrors.ErrCodeInvalidEmbedding,
				"embedding has non-finite value at position %d", i)
		}
	}
	return nil
}

// CalculateNorm returns the L2 norm of a validated embedding.
func CalculateNorm(embedding []float32) (float32, error) {
	if err := ValidateEmbedding(embedding); err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm <= 0 || math.IsInf(norm, 0) || math.IsNaN(norm) {
		return 0, berrors.Newf(berrors.ErrCodeInvalidEmbedding, "invalid norm %v", norm)
	}
	return float32(norm), nil
}

// CosineSimilarity computes dot(a,b)/(normA*normB) with precomputed norms.
// Dimension mismatches and non-finite results report ok=false so callers can
// skip the vector without failing the search.
func CosineSimilarity(a, b []float32, normA, normB float32) (float64, bool) {
	if len(a) != len(b) || normA <= 0 || normB <= 0 {
		return 0, false
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	score := dot / (float64(normA) * float64(normB))
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return score, true
}

// documentCentroid averages a document's vectors per dimension.
func documentCentroid(vectors []storage.Vector) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, berrors.New(berrors.ErrCodeInvalidEmbedding,
			"cannot compute centroid of empty vector set", nil)
	}

	dim := len(vectors[0].Embedding)
	for i := range vectors {
		if len(vectors[i].Embedding) != dim {
			return nil, berrors.Newf(berrors.ErrCodeDimensionMismatch,
				"centroid dimension mismatch: expected %d, got %d", dim, len(vectors[i].Embedding))
		}
	}

	centroid := make([]float32, dim)
	for i := range vectors {
		for d, val := range vectors[i].Embedding {
			centroid[d] += val
		}
	}
	count := float32(len(vectors))
	for d := range centroid {
		centroid[d] /= count
	}

	if err := ValidateEmbedding(centroid); err != nil {
		return nil, err
	}
	return centroid, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
