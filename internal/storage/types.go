package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math"
	"net/url"
	"regexp"
	"strings"
	"time"

	berrors "github.com/blueband-db/blueband/internal/errors"
)

// Serialized size bounds per region. Values above the bound are rejected at
// insert time so a single record can never exhaust a region.
const (
	MaxCollectionBytes = 8 * 1024
	MaxDocumentBytes   = 16 * 1024
	MaxVectorBytes     = 256 * 1024
	MaxIDListBytes     = 64 * 1024
	MaxChunkListBytes  = 1024 * 1024

	// MaxContentBytes caps raw document content.
	MaxContentBytes = 10 * 1024 * 1024
)

// Collection identifier and field limits.
const (
	MaxCollectionIDLen  = 64
	MaxCollectionName   = 100
	MaxDescriptionLen   = 500
	MaxTitleLen         = 200
	MaxTags             = 20
	MaxTagLen           = 50
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 64
	DefaultModelName    = "text-embedding-ada-002"
)

var collectionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// reservedCollectionIDs are ids claimed by the API surface.
var reservedCollectionIDs = map[string]bool{
	"new": true, "list": true, "admin": true, "config": true, "stats": true,
}

// ContentType is the declared format of a document's raw content. Values
// outside the known set pass through as-is (the Other variant).
type ContentType string

const (
	ContentTypePlainText ContentType = "plain_text"
	ContentTypeMarkdown  ContentType = "markdown"
	ContentTypeHTML      ContentType = "html"
	ContentTypePDF       ContentType = "pdf"
)

// ParseContentType maps a wire string to a ContentType, defaulting to
// plain text for the empty string.
func ParseContentType(s string) ContentType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain_text", "text", "plaintext":
		return ContentTypePlainText
	case "markdown", "md":
		return ContentTypeMarkdown
	case "html":
		return ContentTypeHTML
	case "pdf":
		return ContentTypePDF
	default:
		return ContentType(s)
	}
}

// CollectionSettings configures chunking and embedding for a collection.
type CollectionSettings struct {
	EmbeddingModel string `json:"embedding_model"`
	ProxyURL       string `json:"proxy_url"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
	MaxDocuments   *int   `json:"max_documents,omitempty"`
	AutoEmbed      bool   `json:"auto_embed"`
}

// DefaultCollectionSettings returns the settings applied when a collection is
// created without explicit overrides.
func DefaultCollectionSettings() CollectionSettings {
	return CollectionSettings{
		EmbeddingModel: DefaultModelName,
		ChunkSize:      DefaultChunkSize,
		ChunkOverlap:   DefaultChunkOverlap,
		AutoEmbed:      true,
	}
}

// Validate checks settings invariants.
func (s CollectionSettings) Validate() error {
	if s.EmbeddingModel == "" {
		return berrors.New(berrors.ErrCodeInvalidSettings, "embedding model must not be empty", nil)
	}
	if s.ChunkSize <= 0 {
		return berrors.New(berrors.ErrCodeInvalidSettings, "chunk size must be positive", nil)
	}
	if s.ChunkOverlap < 0 || s.ChunkOverlap >= s.ChunkSize {
		return berrors.Newf(berrors.ErrCodeInvalidSettings,
			"chunk overlap %d must be in [0, chunk size %d)", s.ChunkOverlap, s.ChunkSize)
	}
	if s.MaxDocuments != nil && *s.MaxDocuments <= 0 {
		return berrors.New(berrors.ErrCodeInvalidSettings, "max documents must be positive when set", nil)
	}
	if s.ProxyURL != "" {
		if err := ValidateProxyURL(s.ProxyURL); err != nil {
			return err
		}
	}
	return nil
}

// ValidateProxyURL requires an absolute HTTPS URL.
func ValidateProxyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return berrors.Newf(berrors.ErrCodeInvalidURLScheme, "proxy URL must be HTTPS: %q", raw)
	}
	return nil
}

// Collection is a named namespace holding documents, chunks, and vectors.
// It is the unit of admin control and cache residency.
type Collection struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	CreatedAt    int64              `json:"created_at"`
	UpdatedAt    int64              `json:"updated_at"`
	GenesisAdmin string             `json:"genesis_admin"`
	Admins       []string           `json:"admins"`
	Settings     CollectionSettings `json:"settings"`
}

// IsAdmin reports whether principal is the genesis admin or a regular admin.
func (c *Collection) IsAdmin(principal string) bool {
	if principal == c.GenesisAdmin {
		return true
	}
	for _, a := range c.Admins {
		if a == principal {
			return true
		}
	}
	return false
}

// CollectionWithStats pairs a collection with on-demand counts.
type CollectionWithStats struct {
	Collection    Collection `json:"collection"`
	DocumentCount int        `json:"document_count"`
	VectorCount   int        `json:"vector_count"`
}

// DocumentMetadata describes one ingested document. The raw content itself
// lives in the chunk region; metadata carries its checksum and size.
type DocumentMetadata struct {
	ID           string      `json:"id"`
	CollectionID string      `json:"collection_id"`
	Title        string      `json:"title"`
	ContentType  ContentType `json:"content_type"`
	SourceURL    string      `json:"source_url,omitempty"`
	Timestamp    int64       `json:"timestamp"`
	TotalChunks  int         `json:"total_chunks"`
	ContentSize  int         `json:"content_size"`
	IsEmbedded   bool        `json:"is_embedded"`
	Checksum     string      `json:"checksum"`
	Author       string      `json:"author,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
}

// SemanticChunk is one sliding-window slice of a document's content, the
// atomic unit of embedding.
type SemanticChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Text       string `json:"text"`
	Position   int    `json:"position"`
	CharStart  int    `json:"char_start"`
	CharEnd    int    `json:"char_end"`
	TokenCount int    `json:"token_count,omitempty"`
}

// Vector is one embedded chunk with its precomputed L2 norm.
type Vector struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ChunkID    string    `json:"chunk_id"`
	Embedding  []float32 `json:"embedding"`
	Norm       float32   `json:"norm"`
	Model      string    `json:"model"`
	CreatedAt  int64     `json:"created_at"`
}

// Validate checks the vector invariants that must hold at rest.
func (v *Vector) Validate() error {
	if v.ID == "" || v.DocumentID == "" || v.ChunkID == "" {
		return berrors.New(berrors.ErrCodeVectorInvalid, "vector ids must not be empty", nil)
	}
	if len(v.Embedding) == 0 {
		return berrors.Newf(berrors.ErrCodeVectorInvalid, "vector %s has empty embedding", v.ID)
	}
	for i, val := range v.Embedding {
		if !isFinite32(val) {
			return berrors.Newf(berrors.ErrCodeVectorInvalid,
				"vector %s has non-finite value at position %d", v.ID, i)
		}
	}
	if !(v.Norm > 0) || !isFinite32(v.Norm) {
		return berrors.Newf(berrors.ErrCodeVectorInvalid, "vector %s has invalid norm %v", v.ID, v.Norm)
	}
	return nil
}

func isFinite32(f float32) bool {
	v := float64(f)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ValidateCollectionID enforces the id grammar and reserved-name list.
func ValidateCollectionID(id string) error {
	if !collectionIDPattern.MatchString(id) {
		return berrors.Newf(berrors.ErrCodeInvalidCollection,
			"collection id %q must be 1-64 chars of [A-Za-z0-9_-]", id)
	}
	if reservedCollectionIDs[strings.ToLower(id)] {
		return berrors.Newf(berrors.ErrCodeReservedID, "collection id %q is reserved", id)
	}
	return nil
}

// DocumentKey builds the composite storage key for a document.
func DocumentKey(collectionID, documentID string) string {
	return fmt.Sprintf("%s::%s", collectionID, documentID)
}

// GenerateID produces ids of the form "{prefix}_{16 hex}" from a 64-bit hash
// of the seed mixed with the current time, so identical seeds in different
// timestamp ticks yield distinct ids.
func GenerateID(prefix, seed string, now time.Time) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now.UnixNano()))
	_, _ = h.Write(ts[:])
	return fmt.Sprintf("%s_%016x", prefix, h.Sum64())
}

// Checksum returns the lowercase hex SHA-256 of content.
func Checksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
