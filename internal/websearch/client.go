package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"docuchat/internal/contextutil"
)

const (
	defaultResultLimit = 5
	providerTimeout    = 15 * time.Second
)

// Result is a single web search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Client queries Firecrawl-compatible search providers. Providers are tried
// in order; the first one that answers wins. Without an API key the client
// is disabled and every search returns no results.
type Client struct {
	providers []string
	apiKey    string
	client    *http.Client
}

// NewClient creates a search client over the given ranked provider base URLs.
func NewClient(providers []string, apiKey string) *Client {
	cleaned := make([]string, 0, len(providers))
	for _, p := range providers {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return &Client{
		providers: cleaned,
		apiKey:    apiKey,
		client: &http.Client{
			Timeout: providerTimeout,
		},
	}
}

// Enabled reports whether the client can perform searches.
func (c *Client) Enabled() bool {
	return c.apiKey != "" && len(c.providers) > 0
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Data []struct {
		URL      string `json:"url"`
		Title    string `json:"title"`
		Markdown string `json:"markdown"`
	} `json:"data"`
}

// Search runs the query against the providers in rank order and returns the
// first provider's results. A disabled client returns an empty slice, not an
// error, so callers can treat web context as best-effort.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if !c.Enabled() {
		logger.DebugContext(ctx, "web search disabled, skipping", "query", query)
		return nil, nil
	}

	var lastErr error
	for _, provider := range c.providers {
		results, err := c.searchProvider(ctx, provider, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WarnContext(ctx, "search provider failed", "provider", provider, "error", err)
			lastErr = err
			continue
		}
		logger.DebugContext(ctx, "web search completed", "provider", provider, "results", len(results))
		return results, nil
	}

	return nil, fmt.Errorf("all search providers failed: %w", lastErr)
}

func (c *Client) searchProvider(ctx context.Context, provider, query string) ([]Result, error) {
	reqBody, err := json.Marshal(searchRequest{
		Query: query,
		Limit: defaultResultLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, providerTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, provider+"/v1/search", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("search returned status %d: %s", resp.StatusCode, string(body))
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(searchResp.Data))
	for _, item := range searchResp.Data {
		if item.URL == "" {
			continue
		}
		results = append(results, Result{
			URL:     item.URL,
			Title:   item.Title,
			Content: item.Markdown,
		})
	}
	return results, nil
}
