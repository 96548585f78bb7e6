// Package storage is the persistence layer for Blueband: collections,
// documents, chunks, vectors, and their per-collection indices, kept in
// isolated regions of a single SQLite database.
package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	berrors "github.com/blueband-db/blueband/internal/errors"
)

// RegionID identifies an isolated storage region. Each entity class gets its
// own region so mutations to one class cannot corrupt another's pages.
type RegionID uint8

const (
	RegionCollections   RegionID = 0
	RegionDocuments     RegionID = 1
	RegionChunks        RegionID = 2
	RegionVectors       RegionID = 3
	RegionVectorIndex   RegionID = 4
	RegionConfig        RegionID = 5
	RegionDocumentIndex RegionID = 6
)

// allRegions lists every region that Open initializes.
var allRegions = []RegionID{
	RegionCollections,
	RegionDocuments,
	RegionChunks,
	RegionVectors,
	RegionVectorIndex,
	RegionConfig,
	RegionDocumentIndex,
}

func (r RegionID) table() string {
	return fmt.Sprintf("region_%d", r)
}

// Store owns the SQLite database and the typed maps bound to its regions.
// All cross-map writes go through Update so the per-collection indices and
// their primary maps mutate inside a single transaction.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock

	collections   *Map[Collection]
	documents     *Map[DocumentMetadata]
	chunks        *Map[[]SemanticChunk]
	vectors       *Map[Vector]
	vectorIndex   *Map[[]string]
	documentIndex *Map[[]string]
	config        *Map[string]
}

// Open opens (or creates) the store under dir. The directory is guarded by a
// file lock: a second process gets a Conflict error instead of sharing the
// writer.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, berrors.Wrap(berrors.ErrCodeStorage, err)
	}

	lock := flock.New(filepath.Join(dir, ".blueband.lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, berrors.Wrap(berrors.ErrCodeStorage, err)
	}
	if !acquired {
		return nil, berrors.Newf(berrors.ErrCodeStorageLocked,
			"storage directory %s is locked by another process", dir)
	}

	dbPath := filepath.Join(dir, "blueband.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, berrors.Wrap(berrors.ErrCodeStorage, err)
	}

	// Single writer; the host serialises request handlers, this enforces it
	// at the connection level too.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, berrors.Wrap(berrors.ErrCodeStorage, err)
		}
	}

	for _, region := range allRegions {
		schema := fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (k TEXT PRIMARY KEY, v BLOB NOT NULL)",
			region.table())
		if _, err := db.Exec(schema); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, berrors.Wrap(berrors.ErrCodeStorage, err)
		}
	}

	s := &Store{db: db, path: dir, lock: lock}
	s.collections = NewMap[Collection](s, RegionCollections, "collection", MaxCollectionBytes)
	s.documents = NewMap[DocumentMetadata](s, RegionDocuments, "document", MaxDocumentBytes)
	s.chunks = NewMap[[]SemanticChunk](s, RegionChunks, "chunk_list", MaxChunkListBytes)
	s.vectors = NewMap[Vector](s, RegionVectors, "vector", MaxVectorBytes)
	s.vectorIndex = NewMap[[]string](s, RegionVectorIndex, "vector_index", MaxIDListBytes)
	s.documentIndex = NewMap[[]string](s, RegionDocumentIndex, "document_index", MaxIDListBytes)
	s.config = NewMap[string](s, RegionConfig, "config", MaxIDListBytes)

	return s, nil
}

// Close closes the database and releases the directory lock.
func (s *Store) Close() error {
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
		err = unlockErr
	}
	return err
}

// Path returns the storage directory.
func (s *Store) Path() string {
	return s.path
}

// Tx is a single-scope mutation: every map touched inside the scope commits
// or rolls back together.
type Tx struct {
	tx *sql.Tx
}

// Update runs fn inside one transaction. This is the atomicity primitive
// backing all cross-map writes (vector map + vector index, document map +
// document index, cascading deletes).
func (s *Store) Update(fn func(tx *Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return berrors.Wrap(berrors.ErrCodeStorage, err)
	}

	if err := fn(&Tx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("storage_rollback_failed", slog.String("error", rbErr.Error()))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return berrors.Wrap(berrors.ErrCodeStorage, err)
	}
	return nil
}

// SetConfig stores a string value in the config region.
func (s *Store) SetConfig(key, value string) error {
	return s.config.Insert(key, value)
}

// GetConfig reads a string value from the config region.
func (s *Store) GetConfig(key string) (string, bool) {
	return s.config.Get(key)
}

// MemoryStats reports page-level storage usage.
type MemoryStats struct {
	TotalPages     int64 `json:"total_pages"`
	FreePages      int64 `json:"free_pages"`
	PageSize       int64 `json:"page_size"`
	TotalBytes     int64 `json:"total_bytes"`
	AvailableBytes int64 `json:"available_bytes"`
}

// GetMemoryStats returns page counts and byte totals for the database.
func (s *Store) GetMemoryStats() MemoryStats {
	var stats MemoryStats
	_ = s.db.QueryRow("PRAGMA page_count").Scan(&stats.TotalPages)
	_ = s.db.QueryRow("PRAGMA freelist_count").Scan(&stats.FreePages)
	_ = s.db.QueryRow("PRAGMA page_size").Scan(&stats.PageSize)
	stats.TotalBytes = stats.TotalPages * stats.PageSize
	stats.AvailableBytes = stats.FreePages * stats.PageSize
	return stats
}

// StorageStats reports entity counts across all regions.
type StorageStats struct {
	Collections int `json:"collections"`
	Documents   int `json:"documents"`
	Chunks      int `json:"chunks"`
	Vectors     int `json:"vectors"`
}

// GetStorageStats counts entities in each primary region.
func (s *Store) GetStorageStats() StorageStats {
	return StorageStats{
		Collections: s.collections.Len(),
		Documents:   s.documents.Len(),
		Chunks:      s.CountChunks(),
		Vectors:     s.vectors.Len(),
	}
}
