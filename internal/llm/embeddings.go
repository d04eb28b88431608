package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"docuchat/internal/contextutil"
)

// Retry policy for the embedding service. The backoff grows linearly with the
// attempt number (1s, 2s) so a briefly rate-limited provider gets room to
// recover without stalling indexing for long.
const (
	embedMaxAttempts  = 3
	embedBackoffUnit  = time.Second
	embedRequestLimit = rate.Limit(4) // requests per second against the provider
	embedBurst        = 1
)

// EmbeddingError wraps the final attempt's error after retries are exhausted.
type EmbeddingError struct {
	Attempts int
	Err      error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// statusError marks an HTTP failure so the retry loop can tell transient
// statuses (429, 5xx) from permanent ones (4xx).
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("bad status %d: %s", e.code, e.body)
}

// EmbeddingsClient is a client for an OpenAI-compatible embeddings API.
// It retries transient failures with backoff and rate-limits outgoing
// requests to bound external-service concurrency.
type EmbeddingsClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	ExpectedSize int // Expected vector size for validation
	client       *http.Client
	limiter      *rate.Limiter
}

// NewEmbeddingsClient creates a new embeddings client.
// expectedSize is the configured vector dimensionality; every returned vector
// is validated against it. Vectors are never padded or truncated.
func NewEmbeddingsClient(baseURL, apiKey, model string, expectedSize int) *EmbeddingsClient {
	return &EmbeddingsClient{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Model:        model,
		ExpectedSize: expectedSize,
		client:       &http.Client{Timeout: 30 * time.Second},
		limiter:      rate.NewLimiter(embedRequestLimit, embedBurst),
	}
}

// EmbeddingsRequest represents the request payload for embeddings API.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse represents the response from the embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// Embed generates an embedding for a single text. It retries transient
// failures (timeouts, 5xx, rate limits) up to embedMaxAttempts times with
// linear backoff, then surfaces the final attempt's error as *EmbeddingError.
func (c *EmbeddingsClient) Embed(ctx context.Context, text string) ([]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= embedMaxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		vec, err := c.embedOnce(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err

		if !retryableError(err) {
			return nil, &EmbeddingError{Attempts: attempt, Err: err}
		}

		if attempt == embedMaxAttempts {
			break
		}

		delay := embedBackoffUnit * time.Duration(attempt)
		logger.WarnContext(ctx, "embedding attempt failed, retrying",
			"attempt", attempt, "max_attempts", embedMaxAttempts, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return nil, &EmbeddingError{Attempts: embedMaxAttempts, Err: lastErr}
}

// EmbedTexts generates embeddings for the given texts, one vector per input.
// Each text goes through the same retry policy as Embed.
func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("empty input array")
	}

	result := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := c.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding %d: %w", i, err)
		}
		result[i] = vec
	}
	return result, nil
}

// embedOnce performs a single embeddings API call.
func (c *EmbeddingsClient) embedOnce(ctx context.Context, text string) ([]float32, error) {
	url := fmt.Sprintf("%s/v1/embeddings", c.BaseURL)

	payload := EmbeddingsRequest{
		Model: c.Model,
		Input: []string{text},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &statusError{code: resp.StatusCode, body: string(raw)}
	}

	var embeddingsResp EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingsResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embeddingsResp.Data) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddingsResp.Data))
	}

	data := embeddingsResp.Data[0]
	if len(data.Embedding) != c.ExpectedSize {
		return nil, fmt.Errorf("embedding has size %d, expected %d", len(data.Embedding), c.ExpectedSize)
	}

	// Convert []float64 to []float32
	vec := make([]float32, len(data.Embedding))
	for j, v := range data.Embedding {
		vec[j] = float32(v)
	}
	return vec, nil
}

// retryableError reports whether err is transient and worth another attempt.
func retryableError(err error) bool {
	var sErr *statusError
	if errors.As(err, &sErr) {
		return sErr.code == http.StatusTooManyRequests || sErr.code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Connection-level failures arrive wrapped in *url.Error without a
	// status code; treat them as transient.
	var uErr *url.Error
	if errors.As(err, &uErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}
