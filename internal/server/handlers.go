package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blueband-db/blueband/internal/blueband"
	berrors "github.com/blueband-db/blueband/internal/errors"
	"github.com/blueband-db/blueband/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	store := s.service.Store()
	writeJSON(w, http.StatusOK, map[string]any{
		"storage": store.GetStorageStats(),
		"memory":  store.GetMemoryStats(),
		"cache":   s.service.CacheStats(),
	})
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	var req storage.CreateCollectionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	col, err := s.service.Store().CreateCollection(req, principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, col)
}

func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("stats") == "true" {
		writeJSON(w, http.StatusOK, s.service.Store().ListCollectionsWithStats())
		return
	}
	writeJSON(w, http.StatusOK, s.service.Store().ListCollections())
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	col, err := s.service.Store().GetCollectionWithStats(chi.URLParam(r, "collectionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteCollection(chi.URLParam(r, "collectionID"), principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name        *string `json:"name,omitempty"`
		Description *string `json:"description,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	col, err := s.service.Store().UpdateCollectionMetadata(
		chi.URLParam(r, "collectionID"), req.Name, req.Description, principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings storage.CollectionSettings
	if err := decodeBody(r, &settings); err != nil {
		writeError(w, err)
		return
	}

	col, err := s.service.Store().UpdateCollectionSettings(
		chi.URLParam(r, "collectionID"), settings, principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, col)
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Principal string `json:"principal"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := s.service.Store().AddCollectionAdmin(chi.URLParam(r, "collectionID"), req.Principal, principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": true})
}

func (s *Server) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	err := s.service.Store().RemoveCollectionAdmin(
		chi.URLParam(r, "collectionID"), chi.URLParam(r, "principal"), principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) handleTransferGenesis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Principal string `json:"principal"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	err := s.service.Store().TransferGenesisAdmin(chi.URLParam(r, "collectionID"), req.Principal, principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"transferred": true})
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	var req storage.AddDocumentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.CollectionID = chi.URLParam(r, "collectionID")

	if r.URL.Query().Get("embed") == "true" {
		result, err := s.service.AddDocumentAndEmbed(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, result)
		return
	}

	meta, err := s.service.AddDocument(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, meta)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.Store().ListDocuments(chi.URLParam(r, "collectionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionID")
	documentID := chi.URLParam(r, "documentID")

	meta, err := s.service.Store().GetDocument(collectionID, documentID)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("content") == "true" {
		content, err := s.service.Store().GetDocumentContent(collectionID, documentID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"metadata": meta, "content": content})
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := s.service.DeleteDocument(chi.URLParam(r, "collectionID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) handleEmbedDocument(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.EmbedExistingDocument(
		r.Context(), chi.URLParam(r, "collectionID"), chi.URLParam(r, "documentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleBulkEmbed(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.BulkEmbedCollection(r.Context(), chi.URLParam(r, "collectionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSimilarDocuments(w http.ResponseWriter, r *http.Request) {
	matches, err := s.service.FindSimilarDocuments(
		chi.URLParam(r, "collectionID"), chi.URLParam(r, "documentID"), 0)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req blueband.SearchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.CollectionID = chi.URLParam(r, "collectionID")

	var (
		response *blueband.SearchResponse
		err      error
	)
	if req.DocumentIDs != nil {
		response, err = s.service.SearchFiltered(r.Context(), req)
	} else {
		response, err = s.service.Search(r.Context(), req)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleBatchSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Queries []string `json:"queries"`
		Limit   int      `json:"limit,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	results, err := s.service.BatchSimilaritySearch(
		r.Context(), chi.URLParam(r, "collectionID"), req.Queries, req.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleValidateVectors(w http.ResponseWriter, r *http.Request) {
	collectionID := chi.URLParam(r, "collectionID")
	if !s.service.Store().IsCollectionAdmin(collectionID, principal(r)) {
		writeError(w, berrors.PermissionError(berrors.ErrCodeNotAdmin,
			"only collection admins may validate vectors"))
		return
	}

	repair := r.URL.Query().Get("repair") == "true"
	report, err := s.service.ValidateVectors(collectionID, repair)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleInvalidateCache(w http.ResponseWriter, r *http.Request) {
	s.service.InvalidateCollectionCache(chi.URLParam(r, "collectionID"))
	writeJSON(w, http.StatusOK, map[string]bool{"invalidated": true})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.CacheStats())
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.service.ClearCache()
	writeJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (s *Server) handleCleanupCache(w http.ResponseWriter, r *http.Request) {
	evicted := s.service.CleanupCache()
	writeJSON(w, http.StatusOK, map[string]int{"evicted": evicted})
}
