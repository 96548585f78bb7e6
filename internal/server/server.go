// Package server exposes the Blueband operations over HTTP. The caller
// principal arrives in the X-Principal header; the surrounding platform owns
// authentication, this surface only enforces the collection admin model.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/blueband-db/blueband/internal/blueband"
	berrors "github.com/blueband-db/blueband/internal/errors"
)

// Server wires HTTP handlers to the operations façade.
type Server struct {
	service *blueband.Service
	router  http.Handler
}

// New constructs a Server over the given service.
func New(service *blueband.Service) *Server {
	mux := chi.NewRouter()
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(requestLogger)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Principal"},
		MaxAge:         300,
	}))

	s := &Server{service: service, router: mux}

	mux.Get("/healthz", s.handleHealth)
	mux.Get("/stats", s.handleStats)

	mux.Route("/collections", func(r chi.Router) {
		r.Post("/", s.handleCreateCollection)
		r.Get("/", s.handleListCollections)

		r.Route("/{collectionID}", func(r chi.Router) {
			r.Get("/", s.handleGetCollection)
			r.Delete("/", s.handleDeleteCollection)
			r.Patch("/metadata", s.handleUpdateMetadata)
			r.Patch("/settings", s.handleUpdateSettings)

			r.Post("/admins", s.handleAddAdmin)
			r.Delete("/admins/{principal}", s.handleRemoveAdmin)
			r.Post("/genesis-transfer", s.handleTransferGenesis)

			r.Post("/documents", s.handleAddDocument)
			r.Get("/documents", s.handleListDocuments)
			r.Get("/documents/{documentID}", s.handleGetDocument)
			r.Delete("/documents/{documentID}", s.handleDeleteDocument)
			r.Post("/documents/{documentID}/embed", s.handleEmbedDocument)
			r.Get("/documents/{documentID}/similar", s.handleSimilarDocuments)
			r.Post("/embed", s.handleBulkEmbed)

			r.Post("/search", s.handleSearch)
			r.Post("/search/batch", s.handleBatchSearch)

			r.Post("/vectors/validate", s.handleValidateVectors)
			r.Delete("/cache", s.handleInvalidateCache)
		})
	})

	mux.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.handleCacheStats)
		r.Delete("/", s.handleClearCache)
		r.Post("/cleanup", s.handleCleanupCache)
	})

	return s
}

// ServeHTTP exposes the router so Server satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requestLogger logs one line per request with a generated request id.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http_request",
			slog.String("request_id", requestID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()))
	})
}

// principal extracts the caller principal; empty when the header is absent.
func principal(r *http.Request) string {
	return r.Header.Get("X-Principal")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	Category string `json:"category,omitempty"`
}

// writeError maps error categories onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch berrors.GetCategory(err) {
	case berrors.CategoryValidation:
		status = http.StatusBadRequest
	case berrors.CategoryNotFound:
		status = http.StatusNotFound
	case berrors.CategoryConflict:
		status = http.StatusConflict
	case berrors.CategoryPermission:
		status = http.StatusForbidden
	case berrors.CategoryCapacity:
		status = http.StatusRequestEntityTooLarge
	case berrors.CategoryUpstream:
		status = http.StatusBadGateway
	case berrors.CategoryTransient:
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, errorResponse{
		Error:    err.Error(),
		Code:     berrors.GetCode(err),
		Category: string(berrors.GetCategory(err)),
	})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return berrors.Wrap(berrors.ErrCodeInvalidInput, err)
	}
	return nil
}
