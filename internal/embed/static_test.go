package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticClient_Deterministic(t *testing.T) {
	client := NewStaticClient()
	req := Request{Texts: []string{"the quick brown fox"}, Model: ParseModel("static")}

	first, err := client.Embed(context.Background(), req)
	require.NoError(t, err)
	second, err := client.Embed(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Embeddings, second.Embeddings)
	assert.Len(t, first.Embeddings[0], StaticDimensions)
}

func TestStaticClient_UnitNorm(t *testing.T) {
	client := NewStaticClient()

	response, err := client.Embed(context.Background(), Request{Texts: []string{"hello world"}})
	require.NoError(t, err)

	var sum float64
	for _, v := range response.Embeddings[0] {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestStaticClient_SimilarTextsScoreHigher(t *testing.T) {
	client := NewStaticClient()

	response, err := client.Embed(context.Background(), Request{
		Texts: []string{
			"postgres database connection pooling",
			"database connection pooling in postgres",
			"chocolate cake recipe",
		},
	})
	require.NoError(t, err)
	require.Len(t, response.Embeddings, 3)

	dot := func(a, b []float32) float64 {
		var sum float64
		for i := range a {
			sum += float64(a[i]) * float64(b[i])
		}
		return sum
	}

	related := dot(response.Embeddings[0], response.Embeddings[1])
	unrelated := dot(response.Embeddings[0], response.Embeddings[2])
	assert.Greater(t, related, unrelated)
}

func TestCachedClient_MemoisesQueries(t *testing.T) {
	inner := &countingClient{inner: NewStaticClient()}
	client := NewCachedClient(inner, 10)

	req := Request{Texts: []string{"repeated query"}, Model: ParseModel("static")}

	_, err := client.Embed(context.Background(), req)
	require.NoError(t, err)
	_, err = client.Embed(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, inner.calls)

	// A different proxy URL is a different cache key.
	other := req
	other.ProxyURL = "https://other.example.com"
	_, err = client.Embed(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	// Multi-text requests bypass the memo.
	_, err = client.Embed(context.Background(), Request{Texts: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)
}

type countingClient struct {
	inner Client
	calls int
}

func (c *countingClient) Embed(ctx context.Context, req Request) (*Response, error) {
	c.calls++
	return c.inner.Embed(ctx, req)
}
