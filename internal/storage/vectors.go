package storage

import (
	"log/slog"

	berrors "github.com/blueband-db/blueband/internal/errors"
)

// resolveCollectionForDocument finds the collection owning documentID by
// probing each collection's composite document key. Returns "" when no
// collection holds the document.
func (s *Store) resolveCollectionForDocument(documentID string) string {
	for _, collectionID := range s.collections.Keys() {
		if s.documents.Contains(DocumentKey(collectionID, documentID)) {
			return collectionID
		}
	}
	return ""
}

// vectorIDsForDocument enumerates vector ids whose document_id matches.
func (s *Store) vectorIDsForDocument(documentID string) []string {
	var ids []string
	s.vectors.ForEach(func(id string, v Vector) bool {
		if v.DocumentID == documentID {
			ids = append(ids, id)
		}
		return true
	})
	return ids
}

// StoreVector validates and upserts one vector, appending its id to the
// owning collection's vector index when new. Both maps mutate in one scope.
func (s *Store) StoreVector(v Vector) error {
	if err := v.Validate(); err != nil {
		return err
	}

	collectionID := s.resolveCollectionForDocument(v.DocumentID)
	if collectionID == "" {
		return berrors.NotFoundError(berrors.ErrCodeDocumentNotFound, "document", v.DocumentID)
	}
	if !s.collections.Contains(collectionID) {
		return berrors.NotFoundError(berrors.ErrCodeCollectionNotFound, "collection", collectionID)
	}

	return s.Update(func(tx *Tx) error {
		isNew := !s.vectors.ContainsIn(tx, v.ID)
		if err := s.vectors.InsertIn(tx, v.ID, v); err != nil {
			return err
		}
		if isNew {
			ids, _ := s.vectorIndex.GetIn(tx, collectionID)
			return s.vectorIndex.InsertIn(tx, collectionID, append(ids, v.ID))
		}
		return nil
	})
}

// StoreVectorsBatch validates every vector first (fail-fast), groups them by
// owning collection, and inserts each group in one scope: all vectors
// upserted and the collection's id list extended once.
func (s *Store) StoreVectorsBatch(vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	for i := range vectors {
		if err := vectors[i].Validate(); err != nil {
			return err
		}
	}

	// Group by collection before mutating anything.
	groups := make(map[string][]Vector)
	collectionByDoc := make(map[string]string)
	for _, v := range vectors {
		collectionID, ok := collectionByDoc[v.DocumentID]
		if !ok {
			collectionID = s.resolveCollectionForDocument(v.DocumentID)
			if collectionID == "" {
				return berrors.NotFoundError(berrors.ErrCodeDocumentNotFound, "document", v.DocumentID)
			}
			collectionByDoc[v.DocumentID] = collectionID
		}
		groups[collectionID] = append(groups[collectionID], v)
	}

	for collectionID, group := range groups {
		err := s.Update(func(tx *Tx) error {
			ids, _ := s.vectorIndex.GetIn(tx, collectionID)
			present := make(map[string]bool, len(ids))
			for _, id := range ids {
				present[id] = true
			}

			appended := false
			for _, v := range group {
				if err := s.vectors.InsertIn(tx, v.ID, v); err != nil {
					return err
				}
				if !present[v.ID] {
					ids = append(ids, v.ID)
					present[v.ID] = true
					appended = true
				}
			}
			if appended {
				return s.vectorIndex.InsertIn(tx, collectionID, ids)
			}
			return nil
		})
		if err != nil {
			return err
		}
		slog.Debug("vectors_stored",
			slog.String("collection_id", collectionID),
			slog.Int("count", len(group)))
	}
	return nil
}

// GetVector returns one vector by id.
func (s *Store) GetVector(id string) (*Vector, error) {
	v, ok := s.vectors.Get(id)
	if !ok {
		return nil, berrors.NotFoundError(berrors.ErrCodeVectorNotFound, "vector", id)
	}
	return &v, nil
}

// DeleteVector removes the vector and strips its id from the owning
// collection's index in one scope.
func (s *Store) DeleteVector(id string) error {
	v, ok := s.vectors.Get(id)
	if !ok {
		return berrors.NotFoundError(berrors.ErrCodeVectorNotFound, "vector", id)
	}
	collectionID := s.resolveCollectionForDocument(v.DocumentID)

	return s.Update(func(tx *Tx) error {
		if err := s.vectors.RemoveIn(tx, id); err != nil {
			return err
		}
		if collectionID == "" {
			return nil
		}
		ids, _ := s.vectorIndex.GetIn(tx, collectionID)
		kept := ids[:0]
		for _, existing := range ids {
			if existing != id {
				kept = append(kept, existing)
			}
		}
		return s.vectorIndex.InsertIn(tx, collectionID, kept)
	})
}

// DeleteDocumentVectors removes every vector belonging to the document and
// rewrites the owning collection's id list in one scope. Returns the number
// of vectors removed.
func (s *Store) DeleteDocumentVectors(documentID string) (int, error) {
	vectorIDs := s.vectorIDsForDocument(documentID)
	if len(vectorIDs) == 0 {
		return 0, nil
	}
	collectionID := s.resolveCollectionForDocument(documentID)

	err := s.Update(func(tx *Tx) error {
		drop := make(map[string]bool, len(vectorIDs))
		for _, id := range vectorIDs {
			if err := s.vectors.RemoveIn(tx, id); err != nil {
				return err
			}
			drop[id] = true
		}
		if collectionID == "" {
			return nil
		}
		ids, _ := s.vectorIndex.GetIn(tx, collectionID)
		kept := ids[:0]
		for _, id := range ids {
			if !drop[id] {
				kept = append(kept, id)
			}
		}
		return s.vectorIndex.InsertIn(tx, collectionID, kept)
	})
	if err != nil {
		return 0, err
	}
	return len(vectorIDs), nil
}

// GetCollectionVectors fetches the collection's vectors through its index.
func (s *Store) GetCollectionVectors(collectionID string) ([]Vector, error) {
	if !s.collections.Contains(collectionID) {
		return nil, berrors.NotFoundError(berrors.ErrCodeCollectionNotFound, "collection", collectionID)
	}
	ids, _ := s.vectorIndex.Get(collectionID)

	out := make([]Vector, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.vectors.Get(id); ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// GetDocumentVectors returns every vector for one document.
func (s *Store) GetDocumentVectors(documentID string) []Vector {
	var out []Vector
	s.vectors.ForEach(func(_ string, v Vector) bool {
		if v.DocumentID == documentID {
			out = append(out, v)
		}
		return true
	})
	return out
}

// CountVectors returns the number of stored vectors.
func (s *Store) CountVectors() int {
	return s.vectors.Len()
}

// GetCollectionDimensions infers the collection's embedding dimension from
// its first stored vector. Returns 0 when the collection has no vectors.
func (s *Store) GetCollectionDimensions(collectionID string) int {
	ids, _ := s.vectorIndex.Get(collectionID)
	for _, id := range ids {
		if v, ok := s.vectors.Get(id); ok && len(v.Embedding) > 0 {
			return len(v.Embedding)
		}
	}
	return 0
}

// VectorValidationReport summarises a validation pass over one collection.
type VectorValidationReport struct {
	Checked         int      `json:"checked"`
	Valid           int      `json:"valid"`
	EmptyEmbedding  []string `json:"empty_embedding,omitempty"`
	InvalidNorm     []string `json:"invalid_norm,omitempty"`
	MissingDocument []string `json:"missing_document,omitempty"`
	MissingVector   []string `json:"missing_vector,omitempty"`
	Repaired        bool     `json:"repaired"`
}

// ValidateCollectionVectors checks every indexed vector for empty embeddings,
// invalid norms, and dangling document references. With repair=true the
// collection's vector-id list is rewritten to the valid subset.
func (s *Store) ValidateCollectionVectors(collectionID string, repair bool) (*VectorValidationReport, error) {
	if !s.collections.Contains(collectionID) {
		return nil, berrors.NotFoundError(berrors.ErrCodeCollectionNotFound, "collection", collectionID)
	}

	ids, _ := s.vectorIndex.Get(collectionID)
	report := &VectorValidationReport{Checked: len(ids)}
	validIDs := make([]string, 0, len(ids))

	for _, id := range ids {
		v, ok := s.vectors.Get(id)
		if !ok {
			report.MissingVector = append(report.MissingVector, id)
			continue
		}

		healthy := true
		if len(v.Embedding) == 0 {
			report.EmptyEmbedding = append(report.EmptyEmbedding, id)
			healthy = false
		}
		if !(v.Norm > 0) || !isFinite32(v.Norm) {
			report.InvalidNorm = append(report.InvalidNorm, id)
			healthy = false
		}
		if !s.documents.Contains(DocumentKey(collectionID, v.DocumentID)) {
			report.MissingDocument = append(report.MissingDocument, id)
			healthy = false
		}

		if healthy {
			report.Valid++
			validIDs = append(validIDs, id)
		}
	}

	if repair && report.Valid != report.Checked {
		if err := s.vectorIndex.Insert(collectionID, validIDs); err != nil {
			return nil, err
		}
		report.Repaired = true
		slog.Warn("vector_index_repaired",
			slog.String("collection_id", collectionID),
			slog.Int("kept", report.Valid),
			slog.Int("dropped", report.Checked-report.Valid))
	}

	return report, nil
}
