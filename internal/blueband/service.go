// Package blueband is the public operations façade: it wires storage, the
// vector cache, the similarity engine, and the embedding collaborator into
// the operations the dispatch surfaces expose.
package blueband

import (
	"context"
	"log/slog"

	"github.com/blueband-db/blueband/internal/cache"
	"github.com/blueband-db/blueband/internal/embed"
	berrors "github.com/blueband-db/blueband/internal/errors"
	"github.com/blueband-db/blueband/internal/similarity"
	"github.com/blueband-db/blueband/internal/storage"
)

// Service owns the core components. Storage mutations and similarity
// computations run synchronously; the only awaits are the embedding calls,
// and no storage or cache critical section spans one.
type Service struct {
	store    *storage.Store
	loader   *cache.Loader
	engine   *similarity.Engine
	embedder embed.Client
}

// engineSource adapts the store + cache loader to the engine's VectorSource.
type engineSource struct {
	store  *storage.Store
	loader *cache.Loader
}

func (s engineSource) CollectionVectors(collectionID string) ([]storage.Vector, error) {
	return s.loader.Get(collectionID)
}

func (s engineSource) DocumentVectors(documentID string) []storage.Vector {
	return s.store.GetDocumentVectors(documentID)
}

// New wires a Service from its components.
func New(store *storage.Store, vectorCache *cache.Cache, embedder embed.Client) *Service {
	loader := cache.NewLoader(vectorCache, store)
	return &Service{
		store:    store,
		loader:   loader,
		engine:   similarity.NewEngine(engineSource{store: store, loader: loader}, store),
		embedder: embedder,
	}
}

// Store exposes the underlying store for collection and document admin.
func (s *Service) Store() *storage.Store {
	return s.store
}

// SearchRequest is one semantic search invocation.
type SearchRequest struct {
	CollectionID string   `json:"collection_id"`
	Query        string   `json:"query"`
	Limit        int      `json:"limit,omitempty"`
	MinScore     *float64 `json:"min_score,omitempty"`
	// Exact forces the linear-scan path regardless of collection size.
	Exact bool `json:"exact,omitempty"`
	// DocumentIDs restricts matches to the listed documents when non-nil.
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// SearchResponse carries the scored matches.
type SearchResponse struct {
	Matches []similarity.Match `json:"matches"`
}

func (r SearchRequest) config() similarity.Config {
	cfg := similarity.DefaultConfig()
	if r.Limit > 0 {
		cfg.MaxResults = r.Limit
	}
	cfg.MinScore = r.MinScore
	cfg.UseApproximate = !r.Exact
	return cfg
}

// Search embeds the query (the one await on this path) and runs the
// similarity search over the collection.
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	col, queryEmbedding, err := s.embedQuery(ctx, req.CollectionID, req.Query)
	if err != nil {
		return nil, err
	}

	matches, err := s.engine.Search(queryEmbedding, col.ID, req.config())
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Matches: matches}, nil
}

// SearchFiltered is Search restricted to a document-id allowlist.
func (s *Service) SearchFiltered(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	col, queryEmbedding, err := s.embedQuery(ctx, req.CollectionID, req.Query)
	if err != nil {
		return nil, err
	}

	matches, err := s.engine.SearchFiltered(queryEmbedding, col.ID, req.DocumentIDs, req.config())
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Matches: matches}, nil
}

// BatchSimilaritySearch runs one search per query string against the same
// collection; the cache makes the repeated vector fetch cheap.
func (s *Service) BatchSimilaritySearch(ctx context.Context, collectionID string, queries []string, limit int) ([][]similarity.Match, error) {
	if len(queries) == 0 {
		return nil, berrors.ValidationError("at least one query is required")
	}

	results := make([][]similarity.Match, 0, len(queries))
	for _, query := range queries {
		response, err := s.Search(ctx, SearchRequest{
			CollectionID: collectionID,
			Query:        query,
			Limit:        limit,
		})
		if err != nil {
			return nil, err
		}
		results = append(results, response.Matches)
	}
	return results, nil
}

// FindSimilarDocuments searches with the centroid of the source document's
// vectors; the source document is excluded from the matches.
func (s *Service) FindSimilarDocuments(collectionID, documentID string, limit int) ([]similarity.Match, error) {
	if _, err := s.store.GetDocument(collectionID, documentID); err != nil {
		return nil, err
	}

	cfg := similarity.DefaultConfig()
	if limit > 0 {
		cfg.MaxResults = limit
	}
	return s.engine.FindSimilarDocuments(documentID, collectionID, cfg)
}

// embedQuery resolves the collection and embeds the query text, reusing the
// collection's model and proxy settings.
func (s *Service) embedQuery(ctx context.Context, collectionID, query string) (*storage.Collection, []float32, error) {
	col, err := s.store.GetCollection(collectionID)
	if err != nil {
		return nil, nil, err
	}
	if query == "" {
		return nil, nil, berrors.ValidationError("query must not be empty")
	}

	embedding, _, err := embed.EmbedQuery(ctx, s.embedder, query, col.Settings)
	if err != nil {
		return nil, nil, err
	}
	return col, embedding, nil
}

// InvalidateCollectionCache drops a collection's cached vectors; the next
// read observes the authoritative vector set.
func (s *Service) InvalidateCollectionCache(collectionID string) {
	s.loader.Invalidate(collectionID)
}

// ClearCache drops every cached collection.
func (s *Service) ClearCache() {
	s.loader.Cache().Clear()
}

// CleanupCache drops expired entries, returning how many were evicted.
func (s *Service) CleanupCache() int {
	return s.loader.Cache().Cleanup()
}

// CacheStats returns the cache usage snapshot.
func (s *Service) CacheStats() cache.Stats {
	return s.loader.Cache().Stats()
}

// ValidateVectors audits a collection's vectors; with repair the vector-id
// index is rewritten to the valid subset and the cache invalidated.
func (s *Service) ValidateVectors(collectionID string, repair bool) (*storage.VectorValidationReport, error) {
	report, err := s.store.ValidateCollectionVectors(collectionID, repair)
	if err != nil {
		return nil, err
	}
	if report.Repaired {
		s.loader.Invalidate(collectionID)
	}
	return report, nil
}

// DeleteDocument removes a document with its chunks and vectors, then
// invalidates the collection cache.
func (s *Service) DeleteDocument(collectionID, documentID string) error {
	if err := s.store.DeleteDocument(collectionID, documentID); err != nil {
		return err
	}
	s.loader.Invalidate(collectionID)
	return nil
}

// DeleteCollection removes a collection with all dependents and drops its
// cache entry. Genesis only.
func (s *Service) DeleteCollection(collectionID, caller string) error {
	if err := s.store.DeleteCollection(collectionID, caller); err != nil {
		return err
	}
	s.loader.Invalidate(collectionID)
	return nil
}

func logCompensation(collectionID, documentID string, cause error) {
	slog.Warn("ingest_compensated",
		slog.String("collection_id", collectionID),
		slog.String("document_id", documentID),
		slog.String("cause", cause.Error()))
}
