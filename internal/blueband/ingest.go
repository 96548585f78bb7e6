package blueband

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blueband-db/blueband/internal/embed"
	berrors "github.com/blueband-db/blueband/internal/errors"
	"github.com/blueband-db/blueband/internal/storage"
)

// IngestResult reports one document ingest.
type IngestResult struct {
	Document    storage.DocumentMetadata `json:"document"`
	VectorCount int                      `json:"vector_count"`
	Embedded    bool                     `json:"embedded"`
}

// AddDocument stores a document without embedding it.
func (s *Service) AddDocument(req storage.AddDocumentRequest) (*storage.DocumentMetadata, error) {
	return s.store.AddDocument(req)
}

// AddDocumentAndEmbed runs the transactional ingest: add document, embed its
// chunks, batch-store the vectors, mark the document embedded, invalidate
// the cache. The embedding call is a suspension point — other handlers may
// touch the collection meanwhile — so the post-await steps revalidate, and
// any failure after the document exists compensates by deleting it.
func (s *Service) AddDocumentAndEmbed(ctx context.Context, req storage.AddDocumentRequest) (*IngestResult, error) {
	meta, err := s.store.AddDocument(req)
	if err != nil {
		return nil, err
	}

	result, err := s.embedStoredDocument(ctx, meta.CollectionID, meta.ID)
	if err != nil {
		logCompensation(meta.CollectionID, meta.ID, err)
		if delErr := s.store.DeleteDocument(meta.CollectionID, meta.ID); delErr != nil {
			slog.Error("ingest_compensation_failed",
				slog.String("collection_id", meta.CollectionID),
				slog.String("document_id", meta.ID),
				slog.String("error", delErr.Error()))
		}
		s.loader.Invalidate(meta.CollectionID)
		return nil, err
	}
	return result, nil
}

// EmbedExistingDocument embeds a previously added document. Documents that
// are already embedded are a Conflict.
func (s *Service) EmbedExistingDocument(ctx context.Context, collectionID, documentID string) (*IngestResult, error) {
	meta, err := s.store.GetDocument(collectionID, documentID)
	if err != nil {
		return nil, err
	}
	if meta.IsEmbedded {
		return nil, berrors.Newf(berrors.ErrCodeAlreadyEmbedded,
			"document %s is already embedded", documentID)
	}
	return s.embedStoredDocument(ctx, collectionID, documentID)
}

// embedStoredDocument embeds chunks (the await), revalidates that the
// document still exists, then stores vectors and marks the document inside
// non-suspending storage scopes.
func (s *Service) embedStoredDocument(ctx context.Context, collectionID, documentID string) (*IngestResult, error) {
	col, err := s.store.GetCollection(collectionID)
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.GetDocumentChunks(documentID)
	if err != nil {
		return nil, err
	}

	vectors, err := embed.EmbedChunks(ctx, s.embedder, chunks, col.Settings)
	if err != nil {
		return nil, err
	}

	// Back from the await: the collection or document may have been deleted
	// while suspended.
	meta, err := s.store.GetDocument(collectionID, documentID)
	if err != nil {
		return nil, err
	}

	if err := s.store.StoreVectorsBatch(vectors); err != nil {
		return nil, err
	}
	if err := s.store.MarkDocumentEmbedded(collectionID, documentID); err != nil {
		return nil, err
	}
	s.loader.Invalidate(collectionID)

	meta.IsEmbedded = true
	slog.Info("document_embedded",
		slog.String("collection_id", collectionID),
		slog.String("document_id", documentID),
		slog.Int("vectors", len(vectors)))
	return &IngestResult{
		Document:    *meta,
		VectorCount: len(vectors),
		Embedded:    true,
	}, nil
}

// BulkEmbedResult summarises a collection-wide embed pass.
type BulkEmbedResult struct {
	Embedded int      `json:"embedded"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// BulkEmbedCollection embeds every document that is not embedded yet.
// Per-document failures are accumulated and the pass continues.
func (s *Service) BulkEmbedCollection(ctx context.Context, collectionID string) (*BulkEmbedResult, error) {
	docs, err := s.store.ListDocuments(collectionID)
	if err != nil {
		return nil, err
	}

	result := &BulkEmbedResult{}
	for _, doc := range docs {
		if doc.IsEmbedded {
			result.Skipped++
			continue
		}
		if _, err := s.embedStoredDocument(ctx, collectionID, doc.ID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", doc.ID, err))
			continue
		}
		result.Embedded++
	}

	slog.Info("bulk_embed_finished",
		slog.String("collection_id", collectionID),
		slog.Int("embedded", result.Embedded),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return result, nil
}
