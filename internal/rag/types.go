package rag

import (
	"context"

	"docuchat/internal/websearch"
)

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_rag.go -package=mocks docuchat/internal/rag Embedder,Searcher

// Embedder turns a query into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs a web search. A disabled searcher returns no results.
type Searcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
	Enabled() bool
}

// Scope restricts retrieval to one document or one workspace, always within
// a single owner's corpus. Exactly one of DocumentID and WorkspaceID is set.
type Scope struct {
	OwnerID     string
	DocumentID  string
	WorkspaceID string
	WebSearch   bool
}

// Passage is one retrieved chunk with its source document and distance.
type Passage struct {
	DocumentID   string
	DocumentName string
	ChunkIndex   int
	Text         string
	Distance     float32
}

// Context is everything retrieval gathered for one question.
type Context struct {
	Passages        []Passage
	WebResults      []websearch.Result
	WebSearchFailed bool
	// Broadened is true when the scoped search was weak and results come
	// from the owner's whole corpus instead.
	Broadened bool
}

// HasPassages reports whether any document context was found.
func (c *Context) HasPassages() bool {
	return len(c.Passages) > 0
}
