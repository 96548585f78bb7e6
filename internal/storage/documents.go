package storage

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/blueband-db/blueband/internal/chunk"
	berrors "github.com/blueband-db/blueband/internal/errors"
)

// AddDocumentRequest carries the inputs for AddDocument.
type AddDocumentRequest struct {
	CollectionID string      `json:"collection_id"`
	Title        string      `json:"title"`
	Content      string      `json:"content"`
	ContentType  ContentType `json:"content_type,omitempty"`
	SourceURL    string      `json:"source_url,omitempty"`
	Author       string      `json:"author,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
}

func (r AddDocumentRequest) validate() error {
	title := strings.TrimSpace(r.Title)
	if title == "" || len(title) > MaxTitleLen {
		return berrors.Newf(berrors.ErrCodeInvalidInput, "title must be 1-%d chars", MaxTitleLen)
	}
	if strings.TrimSpace(r.Content) == "" {
		return berrors.ValidationError("content must not be empty")
	}
	if len(r.Content) > MaxContentBytes {
		return berrors.Newf(berrors.ErrCodeContentTooLarge,
			"content is %d bytes (max %d)", len(r.Content), MaxContentBytes)
	}
	if len(r.Tags) > MaxTags {
		return berrors.Newf(berrors.ErrCodeInvalidInput, "at most %d tags allowed", MaxTags)
	}
	for _, tag := range r.Tags {
		if tag == "" || len(tag) > MaxTagLen {
			return berrors.Newf(berrors.ErrCodeInvalidInput, "tags must be 1-%d chars", MaxTagLen)
		}
	}
	return nil
}

// AddDocument validates the request, chunks the content with the collection's
// window settings, and persists metadata, chunk list, and the document-index
// entry in one scope.
func (s *Store) AddDocument(req AddDocumentRequest) (*DocumentMetadata, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	col, err := s.GetCollection(req.CollectionID)
	if err != nil {
		return nil, err
	}

	docIDs, _ := s.documentIndex.Get(col.ID)
	if col.Settings.MaxDocuments != nil && len(docIDs) >= *col.Settings.MaxDocuments {
		return nil, berrors.Newf(berrors.ErrCodeDocumentCap,
			"collection %q is at its document cap (%d)", col.ID, *col.Settings.MaxDocuments)
	}

	now := time.Now()
	docID := GenerateID("doc", req.Title, now)

	windows := chunk.SlidingWindow(req.Content, col.Settings.ChunkSize, col.Settings.ChunkOverlap)
	if len(windows) == 0 {
		return nil, berrors.ValidationError("content produced no chunks")
	}

	chunks := make([]SemanticChunk, len(windows))
	for i, w := range windows {
		chunks[i] = SemanticChunk{
			ID:         chunkID(w.Position),
			DocumentID: docID,
			Text:       w.Text,
			Position:   w.Position,
			CharStart:  w.ByteStart,
			CharEnd:    w.ByteEnd,
			TokenCount: w.TokenCount,
		}
	}

	meta := DocumentMetadata{
		ID:           docID,
		CollectionID: col.ID,
		Title:        strings.TrimSpace(req.Title),
		ContentType:  ParseContentType(string(req.ContentType)),
		SourceURL:    req.SourceURL,
		Timestamp:    now.UnixNano(),
		TotalChunks:  len(chunks),
		ContentSize:  len(req.Content),
		Checksum:     Checksum(req.Content),
		Author:       req.Author,
		Tags:         req.Tags,
	}

	err = s.Update(func(tx *Tx) error {
		if err := s.documents.InsertIn(tx, DocumentKey(col.ID, docID), meta); err != nil {
			return err
		}
		if err := s.chunks.InsertIn(tx, docID, chunks); err != nil {
			return err
		}
		ids, _ := s.documentIndex.GetIn(tx, col.ID)
		return s.documentIndex.InsertIn(tx, col.ID, append(ids, docID))
	})
	if err != nil {
		return nil, err
	}

	slog.Info("document_added",
		slog.String("collection_id", col.ID),
		slog.String("document_id", docID),
		slog.Int("chunks", len(chunks)),
		slog.Int("content_bytes", meta.ContentSize))
	return &meta, nil
}

func chunkID(position int) string {
	return "chunk_" + strconv.Itoa(position)
}

// GetDocument returns metadata for a document. The collection's document
// index is authoritative: a stray entry in the documents region that is not
// indexed is invisible.
func (s *Store) GetDocument(collectionID, documentID string) (*DocumentMetadata, error) {
	ids, ok := s.documentIndex.Get(collectionID)
	if !ok {
		return nil, berrors.NotFoundError(berrors.ErrCodeCollectionNotFound, "collection", collectionID)
	}
	indexed := false
	for _, id := range ids {
		if id == documentID {
			indexed = true
			break
		}
	}
	if !indexed {
		return nil, berrors.NotFoundError(berrors.ErrCodeDocumentNotFound, "document", documentID)
	}

	meta, ok := s.documents.Get(DocumentKey(collectionID, documentID))
	if !ok {
		return nil, berrors.NotFoundError(berrors.ErrCodeDocumentNotFound, "document", documentID)
	}
	return &meta, nil
}

// ListDocuments returns metadata for every indexed document in the collection.
func (s *Store) ListDocuments(collectionID string) ([]DocumentMetadata, error) {
	if !s.collections.Contains(collectionID) {
		return nil, berrors.NotFoundError(berrors.ErrCodeCollectionNotFound, "collection", collectionID)
	}
	ids, _ := s.documentIndex.Get(collectionID)

	out := make([]DocumentMetadata, 0, len(ids))
	for _, id := range ids {
		if meta, ok := s.documents.Get(DocumentKey(collectionID, id)); ok {
			out = append(out, meta)
		}
	}
	return out, nil
}

// GetDocumentChunks returns the chunk list for a document.
func (s *Store) GetDocumentChunks(documentID string) ([]SemanticChunk, error) {
	chunks, ok := s.chunks.Get(documentID)
	if !ok {
		return nil, berrors.NotFoundError(berrors.ErrCodeDocumentNotFound, "document", documentID)
	}
	return chunks, nil
}

// GetChunkText scans the document's chunk list for the chunk id. Chunk lists
// are small (tens of entries) so the linear scan is fine.
func (s *Store) GetChunkText(documentID, chunkID string) (string, bool) {
	chunks, ok := s.chunks.Get(documentID)
	if !ok {
		return "", false
	}
	for _, c := range chunks {
		if c.ID == chunkID {
			return c.Text, true
		}
	}
	return "", false
}

// GetDocumentTitle returns the title stored under the document's composite
// key. The collection's document index is not consulted.
func (s *Store) GetDocumentTitle(collectionID, documentID string) (string, bool) {
	meta, ok := s.documents.Get(DocumentKey(collectionID, documentID))
	if !ok {
		return "", false
	}
	return meta.Title, true
}

// GetDocumentContent reassembles the original content from the chunk list:
// the first chunk contributes wholly, each later chunk contributes everything
// past the window overlap.
func (s *Store) GetDocumentContent(collectionID, documentID string) (string, error) {
	if _, err := s.GetDocument(collectionID, documentID); err != nil {
		return "", err
	}
	col, err := s.GetCollection(collectionID)
	if err != nil {
		return "", err
	}
	chunks, err := s.GetDocumentChunks(documentID)
	if err != nil {
		return "", err
	}

	overlap := col.Settings.ChunkOverlap
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c.Text)
			continue
		}
		runes := []rune(c.Text)
		if overlap < len(runes) {
			b.WriteString(string(runes[overlap:]))
		}
	}
	return b.String(), nil
}

// MarkDocumentEmbedded flips is_embedded. Search and its result enrichment
// do not check this flag: a stored vector is searchable and enriched whether
// or not its document has been marked.
func (s *Store) MarkDocumentEmbedded(collectionID, documentID string) error {
	meta, err := s.GetDocument(collectionID, documentID)
	if err != nil {
		return err
	}
	meta.IsEmbedded = true
	return s.documents.Insert(DocumentKey(collectionID, documentID), *meta)
}

// DeleteDocument removes the chunk list, the document's vectors, the
// metadata, and the document-index entry in one scope.
func (s *Store) DeleteDocument(collectionID, documentID string) error {
	if _, err := s.GetDocument(collectionID, documentID); err != nil {
		return err
	}

	vectorIDs := s.vectorIDsForDocument(documentID)

	return s.Update(func(tx *Tx) error {
		if err := s.chunks.RemoveIn(tx, documentID); err != nil {
			return err
		}

		for _, vecID := range vectorIDs {
			if err := s.vectors.RemoveIn(tx, vecID); err != nil {
				return err
			}
		}
		if len(vectorIDs) > 0 {
			drop := make(map[string]bool, len(vectorIDs))
			for _, id := range vectorIDs {
				drop[id] = true
			}
			ids, _ := s.vectorIndex.GetIn(tx, collectionID)
			kept := ids[:0]
			for _, id := range ids {
				if !drop[id] {
					kept = append(kept, id)
				}
			}
			if err := s.vectorIndex.InsertIn(tx, collectionID, kept); err != nil {
				return err
			}
		}

		if err := s.documents.RemoveIn(tx, DocumentKey(collectionID, documentID)); err != nil {
			return err
		}

		docIDs, _ := s.documentIndex.GetIn(tx, collectionID)
		kept := docIDs[:0]
		for _, id := range docIDs {
			if id != documentID {
				kept = append(kept, id)
			}
		}
		return s.documentIndex.InsertIn(tx, collectionID, kept)
	})
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments() int {
	return s.documents.Len()
}

// CountChunks returns the total number of chunks across all documents.
func (s *Store) CountChunks() int {
	total := 0
	s.chunks.ForEach(func(_ string, list []SemanticChunk) bool {
		total += len(list)
		return true
	})
	return total
}
