package storage

import (
	"log/slog"
	"strings"
	"time"

	berrors "github.com/blueband-db/blueband/internal/errors"
)

// CreateCollectionRequest carries the inputs for CreateCollection.
type CreateCollectionRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Settings    *CollectionSettings `json:"settings,omitempty"`
}

// CreateCollection validates the request and creates the collection together
// with its empty document and vector indices in one scope. The creator
// becomes the genesis admin.
func (s *Store) CreateCollection(req CreateCollectionRequest, creator string) (*Collection, error) {
	if err := ValidateCollectionID(req.ID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > MaxCollectionName {
		return nil, berrors.Newf(berrors.ErrCodeInvalidInput,
			"collection name must be 1-%d chars", MaxCollectionName)
	}
	if len(req.Description) > MaxDescriptionLen {
		return nil, berrors.Newf(berrors.ErrCodeInvalidInput,
			"description exceeds %d chars", MaxDescriptionLen)
	}
	if creator == "" {
		return nil, berrors.ValidationError("creator principal must not be empty")
	}

	settings := DefaultCollectionSettings()
	if req.Settings != nil {
		settings = *req.Settings
		if settings.EmbeddingModel == "" {
			settings.EmbeddingModel = DefaultModelName
		}
		if settings.ChunkSize == 0 {
			settings.ChunkSize = DefaultChunkSize
		}
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	if s.collections.Contains(req.ID) {
		return nil, berrors.Newf(berrors.ErrCodeCollectionExists, "collection %q already exists", req.ID)
	}

	now := time.Now().UnixNano()
	col := Collection{
		ID:           req.ID,
		Name:         name,
		Description:  req.Description,
		CreatedAt:    now,
		UpdatedAt:    now,
		GenesisAdmin: creator,
		Admins:       []string{creator},
		Settings:     settings,
	}

	err := s.Update(func(tx *Tx) error {
		if err := s.collections.InsertIn(tx, col.ID, col); err != nil {
			return err
		}
		if err := s.documentIndex.InsertIn(tx, col.ID, []string{}); err != nil {
			return err
		}
		return s.vectorIndex.InsertIn(tx, col.ID, []string{})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("collection_created",
		slog.String("collection_id", col.ID),
		slog.String("genesis_admin", creator))
	return &col, nil
}

// GetCollection returns the collection or a NotFound error.
func (s *Store) GetCollection(id string) (*Collection, error) {
	col, ok := s.collections.Get(id)
	if !ok {
		return nil, berrors.NotFoundError(berrors.ErrCodeCollectionNotFound, "collection", id)
	}
	return &col, nil
}

// ListCollections returns all collections ordered by id.
func (s *Store) ListCollections() []Collection {
	var out []Collection
	s.collections.ForEach(func(_ string, col Collection) bool {
		out = append(out, col)
		return true
	})
	return out
}

// CountCollections returns the number of collections.
func (s *Store) CountCollections() int {
	return s.collections.Len()
}

// GetCollectionWithStats returns the collection with on-demand document and
// vector counts (index list lengths, not map scans).
func (s *Store) GetCollectionWithStats(id string) (*CollectionWithStats, error) {
	col, err := s.GetCollection(id)
	if err != nil {
		return nil, err
	}
	docIDs, _ := s.documentIndex.Get(id)
	vecIDs, _ := s.vectorIndex.Get(id)
	return &CollectionWithStats{
		Collection:    *col,
		DocumentCount: len(docIDs),
		VectorCount:   len(vecIDs),
	}, nil
}

// ListCollectionsWithStats returns every collection with its counts.
func (s *Store) ListCollectionsWithStats() []CollectionWithStats {
	var out []CollectionWithStats
	for _, col := range s.ListCollections() {
		docIDs, _ := s.documentIndex.Get(col.ID)
		vecIDs, _ := s.vectorIndex.Get(col.ID)
		out = append(out, CollectionWithStats{
			Collection:    col,
			DocumentCount: len(docIDs),
			VectorCount:   len(vecIDs),
		})
	}
	return out
}

// IsCollectionAdmin reports whether principal administers the collection.
// Unknown collections are never administered.
func (s *Store) IsCollectionAdmin(id, principal string) bool {
	col, ok := s.collections.Get(id)
	if !ok {
		return false
	}
	return col.IsAdmin(principal)
}

// UpdateCollectionMetadata updates name and/or description. Any admin may
// call it; nil fields are left unchanged.
func (s *Store) UpdateCollectionMetadata(id string, name, description *string, caller string) (*Collection, error) {
	col, err := s.GetCollection(id)
	if err != nil {
		return nil, err
	}
	if !col.IsAdmin(caller) {
		return nil, berrors.PermissionError(berrors.ErrCodeNotAdmin,
			"only collection admins may update metadata")
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" || len(trimmed) > MaxCollectionName {
			return nil, berrors.Newf(berrors.ErrCodeInvalidInput,
				"collection name must be 1-%d chars", MaxCollectionName)
		}
		col.Name = trimmed
	}
	if description != nil {
		if len(*description) > MaxDescriptionLen {
			return nil, berrors.Newf(berrors.ErrCodeInvalidInput,
				"description exceeds %d chars", MaxDescriptionLen)
		}
		col.Description = *description
	}
	col.UpdatedAt = time.Now().UnixNano()

	if err := s.collections.Insert(id, *col); err != nil {
		return nil, err
	}
	return col, nil
}

// UpdateCollectionSettings replaces the settings. Any admin may call it.
func (s *Store) UpdateCollectionSettings(id string, settings CollectionSettings, caller string) (*Collection, error) {
	col, err := s.GetCollection(id)
	if err != nil {
		return nil, err
	}
	if !col.IsAdmin(caller) {
		return nil, berrors.PermissionError(berrors.ErrCodeNotAdmin,
			"only collection admins may update settings")
	}
	if settings.EmbeddingModel == "" {
		settings.EmbeddingModel = col.Settings.EmbeddingModel
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	col.Settings = settings
	col.UpdatedAt = time.Now().UnixNano()
	if err := s.collections.Insert(id, *col); err != nil {
		return nil, err
	}
	return col, nil
}

// AddCollectionAdmin grants regular admin rights. Genesis only.
func (s *Store) AddCollectionAdmin(id, admin, caller string) error {
	col, err := s.GetCollection(id)
	if err != nil {
		return err
	}
	if caller != col.GenesisAdmin {
		return berrors.PermissionError(berrors.ErrCodeGenesisOnly,
			"only the genesis admin may add admins")
	}
	if admin == "" {
		return berrors.ValidationError("admin principal must not be empty")
	}
	if col.IsAdmin(admin) {
		return nil
	}

	col.Admins = append(col.Admins, admin)
	col.UpdatedAt = time.Now().UnixNano()
	return s.collections.Insert(id, *col)
}

// RemoveCollectionAdmin revokes regular admin rights. Genesis only; the
// genesis admin itself can never be removed.
func (s *Store) RemoveCollectionAdmin(id, admin, caller string) error {
	col, err := s.GetCollection(id)
	if err != nil {
		return err
	}
	if caller != col.GenesisAdmin {
		return berrors.PermissionError(berrors.ErrCodeGenesisOnly,
			"only the genesis admin may remove admins")
	}
	if admin == col.GenesisAdmin {
		return berrors.PermissionError(berrors.ErrCodeGenesisOnly,
			"the genesis admin cannot be removed")
	}

	kept := col.Admins[:0]
	for _, a := range col.Admins {
		if a != admin {
			kept = append(kept, a)
		}
	}
	col.Admins = kept
	col.UpdatedAt = time.Now().UnixNano()
	return s.collections.Insert(id, *col)
}

// TransferGenesisAdmin hands genesis authority to an existing regular admin.
func (s *Store) TransferGenesisAdmin(id, newGenesis, caller string) error {
	col, err := s.GetCollection(id)
	if err != nil {
		return err
	}
	if caller != col.GenesisAdmin {
		return berrors.PermissionError(berrors.ErrCodeGenesisOnly,
			"only the genesis admin may transfer genesis authority")
	}

	isRegular := false
	for _, a := range col.Admins {
		if a == newGenesis {
			isRegular = true
			break
		}
	}
	if !isRegular {
		return berrors.Newf(berrors.ErrCodeInvalidInput,
			"genesis transfer target %q must already be a regular admin", newGenesis)
	}

	col.GenesisAdmin = newGenesis
	col.UpdatedAt = time.Now().UnixNano()

	slog.Info("genesis_admin_transferred",
		slog.String("collection_id", id),
		slog.String("from", caller),
		slog.String("to", newGenesis))
	return s.collections.Insert(id, *col)
}

// DeleteCollection removes the collection and cascades to its documents,
// chunks, vectors, and both index entries. Genesis only.
func (s *Store) DeleteCollection(id, caller string) error {
	col, err := s.GetCollection(id)
	if err != nil {
		return err
	}
	if caller != col.GenesisAdmin {
		return berrors.PermissionError(berrors.ErrCodeGenesisOnly,
			"only the genesis admin may delete a collection")
	}

	docIDs, _ := s.documentIndex.Get(id)
	vecIDs, _ := s.vectorIndex.Get(id)

	err = s.Update(func(tx *Tx) error {
		for _, docID := range docIDs {
			if err := s.documents.RemoveIn(tx, DocumentKey(id, docID)); err != nil {
				return err
			}
			if err := s.chunks.RemoveIn(tx, docID); err != nil {
				return err
			}
		}
		for _, vecID := range vecIDs {
			if err := s.vectors.RemoveIn(tx, vecID); err != nil {
				return err
			}
		}
		if err := s.documentIndex.RemoveIn(tx, id); err != nil {
			return err
		}
		if err := s.vectorIndex.RemoveIn(tx, id); err != nil {
			return err
		}
		return s.collections.RemoveIn(tx, id)
	})
	if err != nil {
		return err
	}

	slog.Info("collection_deleted",
		slog.String("collection_id", id),
		slog.Int("documents", len(docIDs)),
		slog.Int("vectors", len(vecIDs)))
	return nil
}
