package embed

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	berrors "github.com/blueband-db/blueband/internal/errors"
	"github.com/blueband-db/blueband/internal/similarity"
)

// HTTPClientConfig tunes the proxy client.
type HTTPClientConfig struct {
	Timeout    time.Duration
	MaxRetries int

	// Transport overrides the default pooled transport (used in tests to
	// trust a local TLS server).
	Transport http.RoundTripper
}

// HTTPClient calls the embedding proxy over HTTPS POST with the JSON wire
// format {input, model, encoding_format: "float"}.
type HTTPClient struct {
	client *http.Client
	cfg    HTTPClientConfig
}

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// NewHTTPClient creates a proxy client with pooled connections.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	var transport http.RoundTripper = &http.Transport{
		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}
	if cfg.Transport != nil {
		transport = cfg.Transport
	}

	return &HTTPClient{
		// Per-request context timeouts control cancellation; no static
		// client timeout that would override them.
		client: &http.Client{Transport: transport},
		cfg:    cfg,
	}
}

// wire types for the proxy exchange.
type proxyRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type proxyResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage *struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error json.RawMessage `json:"error"`
}

// Embed validates the request, posts it to the proxy, and parses the reply.
// Transient failures (timeouts, exhausted call budget) are retried with
// exponential backoff; all other failures return immediately.
func (c *HTTPClient) Embed(ctx context.Context, req Request) (*Response, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	body, err := json.Marshal(proxyRequest{
		Input:          req.Texts,
		Model:          req.Model.Name(),
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, berrors.Wrap(berrors.ErrCodeInternal, err)
	}
	if len(body) > MaxRequestBodyBytes {
		return nil, berrors.Newf(berrors.ErrCodeRequestTooLarge,
			"request body is %d bytes (max %d); reduce batch or chunk size", len(body), MaxRequestBodyBytes)
	}

	idempotencyKey := IdempotencyKey(req)

	retryCfg := berrors.DefaultRetryConfig()
	retryCfg.MaxRetries = c.cfg.MaxRetries

	return berrors.RetryWithResult(ctx, retryCfg, func() (*Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
		return c.doEmbed(callCtx, req, body, idempotencyKey)
	})
}

func (c *HTTPClient) doEmbed(ctx context.Context, req Request, body []byte, idempotencyKey string) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.ProxyURL, bytes.NewReader(body))
	if err != nil {
		return nil, berrors.Wrap(berrors.ErrCodeInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", "IC-VectorDB/1.0")
	httpReq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if len(respBody) > MaxResponseBytes {
		return nil, berrors.New(berrors.ErrCodeMalformedResponse, "response body too large", nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, berrors.Newf(berrors.ErrCodeProxyHTTP,
			"proxy returned HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	return ParseResponse(respBody, req.Model)
}

// classifyTransportError distinguishes retryable transient failures from
// hard upstream failures.
func classifyTransportError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "cycles") || strings.Contains(msg, "OutOfCycles") {
		return berrors.Wrap(berrors.ErrCodeOutOfCycles, err)
	}
	if strings.Contains(msg, "SysTransient") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF") {
		return berrors.Wrap(berrors.ErrCodeNetworkTimeout, err)
	}
	return berrors.Wrap(berrors.ErrCodeProxyHTTP, err)
}

// ValidateRequest enforces the collaborator contract: bounded non-empty
// texts and an HTTPS proxy.
func ValidateRequest(req Request) error {
	if len(req.Texts) == 0 {
		return berrors.New(berrors.ErrCodeInvalidInput, "no texts provided for embedding", nil)
	}
	if len(req.Texts) > MaxTextsPerRequest {
		return berrors.Newf(berrors.ErrCodeInvalidInput,
			"too many texts in one request: %d (max %d)", len(req.Texts), MaxTextsPerRequest)
	}

	total := 0
	for i, text := range req.Texts {
		if strings.TrimSpace(text) == "" {
			return berrors.Newf(berrors.ErrCodeInvalidInput, "text at index %d is empty", i)
		}
		if len(text) > MaxTextChars {
			return berrors.Newf(berrors.ErrCodeInvalidInput,
				"text at index %d is %d chars (max %d)", i, len(text), MaxTextChars)
		}
		total += len(text)
	}
	if total > MaxTotalChars {
		return berrors.Newf(berrors.ErrCodeInvalidInput,
			"total text content is %d chars (max %d)", total, MaxTotalChars)
	}

	if !strings.HasPrefix(req.ProxyURL, "https://") {
		return berrors.Newf(berrors.ErrCodeInvalidURLScheme, "proxy URL must use HTTPS: %q", req.ProxyURL)
	}
	return nil
}

// ParseResponse decodes the proxy JSON, propagates its error field, and
// validates every embedding against the model's expected dimension.
func ParseResponse(body []byte, model Model) (*Response, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, berrors.New(berrors.ErrCodeMalformedResponse, "empty response body", nil)
	}

	var parsed proxyResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, berrors.Wrap(berrors.ErrCodeMalformedResponse, err)
	}

	if len(parsed.Error) > 0 && string(parsed.Error) != "null" {
		return nil, berrors.Newf(berrors.ErrCodeProxyHTTP,
			"proxy error: %s", truncate(string(parsed.Error), 200))
	}
	if parsed.Data == nil {
		return nil, berrors.New(berrors.ErrCodeMalformedResponse, "missing data field in response", nil)
	}

	expectedDim := model.ExpectedDimensions()
	embeddings := make([][]float32, len(parsed.Data))
	for i, item := range parsed.Data {
		if len(item.Embedding) == 0 {
			return nil, berrors.Newf(berrors.ErrCodeMalformedResponse, "empty embedding for item %d", i)
		}
		if expectedDim > 0 && len(item.Embedding) != expectedDim {
			return nil, berrors.Newf(berrors.ErrCodeDimensionMismatch,
				"embedding %d has %d dimensions, expected %d", i, len(item.Embedding), expectedDim)
		}

		embedding := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			embedding[j] = float32(v)
		}
		if err := similarity.ValidateEmbedding(embedding); err != nil {
			return nil, err
		}
		embeddings[i] = embedding
	}

	response := &Response{
		Embeddings: embeddings,
		Model:      model.Name(),
	}
	if parsed.Usage != nil {
		response.UsageTokens = parsed.Usage.TotalTokens
	}
	return response, nil
}

// IdempotencyKey derives a stable content hash over model, proxy URL, and
// each input text, so a retried call is recognisable upstream.
func IdempotencyKey(req Request) string {
	h := sha256.New()
	h.Write([]byte(req.Model.Name()))
	h.Write([]byte(req.ProxyURL))
	for _, text := range req.Texts {
		h.Write([]byte(text))
		h.Write([]byte("|"))
	}
	sum := h.Sum(nil)
	return fmt.Sprintf("icp-vdb-%016x", binary.BigEndian.Uint64(sum[:8]))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
