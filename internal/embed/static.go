package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
)

// StaticDimensions is the embedding dimension of the offline embedder.
const StaticDimensions = 256

// Term weights for vector generation.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// tokenPattern matches alphanumeric sequences.
var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// StaticClient produces deterministic hash-based embeddings without any
// network dependency. Semantic quality is reduced; it exists for offline
// operation and for tests that need a real Client.
type StaticClient struct{}

// Compile-time interface check.
var _ Client = (*StaticClient)(nil)

// NewStaticClient creates the offline embedder.
func NewStaticClient() *StaticClient {
	return &StaticClient{}
}

// Embed generates one deterministic embedding per input text. Unlike the
// HTTP client it accepts any proxy URL, since nothing leaves the process.
func (c *StaticClient) Embed(ctx context.Context, req Request) (*Response, error) {
	if len(req.Texts) == 0 {
		return nil, ValidateRequest(Request{Texts: nil, ProxyURL: "https://offline"})
	}

	embeddings := make([][]float32, len(req.Texts))
	for i, text := range req.Texts {
		embeddings[i] = normalizeVector(generateVector(strings.TrimSpace(text)))
	}

	return &Response{
		Embeddings: embeddings,
		Model:      req.Model.Name(),
	}, nil
}

// generateVector hashes tokens and character n-grams into a fixed-width
// vector.
func generateVector(text string) []float32 {
	vector := make([]float32, StaticDimensions)
	if text == "" {
		vector[0] = 1
		return vector
	}

	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		vector[hashToIndex(token)] += tokenWeight
	}

	compact := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	runes := []rune(compact)
	for i := 0; i+ngramSize <= len(runes); i++ {
		vector[hashToIndex(string(runes[i:i+ngramSize]))] += ngramWeight
	}

	return vector
}

func hashToIndex(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % StaticDimensions)
}
