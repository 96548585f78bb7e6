package embed

import (
	"context"
	"log/slog"
	"time"

	berrors "github.com/blueband-db/blueband/internal/errors"
	"github.com/blueband-db/blueband/internal/similarity"
	"github.com/blueband-db/blueband/internal/storage"
)

// EmbedChunks embeds a document's chunks in small batches and returns ready
// Vector records. Batches stay small so serialized request bodies remain
// under the proxy's body cap.
func EmbedChunks(ctx context.Context, client Client, chunks []storage.SemanticChunk, settings storage.CollectionSettings) ([]storage.Vector, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	model := ParseModel(settings.EmbeddingModel)
	vectors := make([]storage.Vector, 0, len(chunks))

	for start := 0; start < len(chunks); start += DefaultChunkBatchSize {
		end := start + DefaultChunkBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		response, err := client.Embed(ctx, Request{
			Texts:    texts,
			Model:    model,
			ProxyURL: settings.ProxyURL,
		})
		if err != nil {
			return nil, err
		}
		if len(response.Embeddings) != len(batch) {
			return nil, berrors.Newf(berrors.ErrCodeMalformedResponse,
				"embedding count mismatch: expected %d, got %d", len(batch), len(response.Embeddings))
		}

		now := time.Now()
		for i, c := range batch {
			norm, err := similarity.CalculateNorm(response.Embeddings[i])
			if err != nil {
				return nil, err
			}
			vectors = append(vectors, storage.Vector{
				ID:         storage.GenerateID("vec", c.ID+c.Text, now),
				DocumentID: c.DocumentID,
				ChunkID:    c.ID,
				Embedding:  response.Embeddings[i],
				Norm:       norm,
				Model:      response.Model,
				CreatedAt:  now.UnixNano(),
			})
		}

		slog.Debug("chunks_embedded",
			slog.Int("batch", start/DefaultChunkBatchSize),
			slog.Int("count", len(batch)),
			slog.Int("usage_tokens", response.UsageTokens))
	}

	return vectors, nil
}

// EmbedQuery embeds one query string and returns the embedding with its norm.
func EmbedQuery(ctx context.Context, client Client, query string, settings storage.CollectionSettings) ([]float32, float32, error) {
	response, err := client.Embed(ctx, Request{
		Texts:    []string{query},
		Model:    ParseModel(settings.EmbeddingModel),
		ProxyURL: settings.ProxyURL,
	})
	if err != nil {
		return nil, 0, err
	}
	if len(response.Embeddings) == 0 {
		return nil, 0, berrors.New(berrors.ErrCodeMalformedResponse, "no embedding returned for query", nil)
	}

	embedding := response.Embeddings[0]
	norm, err := similarity.CalculateNorm(embedding)
	if err != nil {
		return nil, 0, err
	}
	return embedding, norm, nil
}
