package rag

import (
	"context"
	"fmt"

	"docuchat/internal/contextutil"
	"docuchat/internal/storage"
	"docuchat/internal/vectorstore"
)

const (
	// topK is how many chunks each vector search returns.
	topK = 5

	// fallbackThreshold is the cosine distance above which scoped results
	// are considered weak enough to try the owner's whole corpus.
	fallbackThreshold = 0.75
)

// Retriever gathers context for a question: vector search over the scoped
// documents, an owner-wide fallback when the scoped results are weak, and
// an optional web search.
type Retriever struct {
	embedder    Embedder
	vectorStore vectorstore.VectorStore
	docRepo     storage.DocumentStore
	searcher    Searcher
	collection  string
}

// NewRetriever creates a new retriever.
func NewRetriever(
	embedder Embedder,
	vectorStore vectorstore.VectorStore,
	docRepo storage.DocumentStore,
	searcher Searcher,
	collection string,
) *Retriever {
	return &Retriever{
		embedder:    embedder,
		vectorStore: vectorStore,
		docRepo:     docRepo,
		searcher:    searcher,
		collection:  collection,
	}
}

// Retrieve searches the scoped documents for chunks relevant to the query.
// For workspace scopes, when the best scoped hit is weaker than the fallback
// threshold the owner's whole corpus is searched as well, and the broader
// results are adopted only when they are strictly better than the scoped
// ones. Document scopes never broaden. Web search failures never fail
// retrieval; they are recorded on the returned Context.
func (r *Retriever) Retrieve(ctx context.Context, query string, scope Scope) (*Context, error) {
	logger := contextutil.LoggerFromContext(ctx)

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	filter, err := r.scopeFilter(ctx, scope)
	if err != nil {
		return nil, err
	}

	scoped, err := r.vectorStore.Search(ctx, r.collection, queryVec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	result := &Context{}
	chosen := scoped

	// The owner-wide fallback applies to workspace scope only; a chat
	// pinned to one document must never answer from another.
	if scope.WorkspaceID != "" && shouldBroaden(scoped) {
		broader, err := r.vectorStore.Search(ctx, r.collection, queryVec, topK,
			vectorstore.Filter{OwnerID: scope.OwnerID})
		if err != nil {
			logger.WarnContext(ctx, "owner-wide fallback search failed", "error", err)
		} else if strictlyBetter(broader, scoped) {
			chosen = broader
			result.Broadened = true
			logger.DebugContext(ctx, "adopted owner-wide results",
				"scoped", len(scoped), "broader", len(broader))
		}
	}

	result.Passages = toPassages(chosen)

	if scope.WebSearch && r.searcher != nil && r.searcher.Enabled() {
		webResults, err := r.searcher.Search(ctx, query)
		if err != nil {
			logger.WarnContext(ctx, "web search failed", "error", err)
			result.WebSearchFailed = true
		} else {
			result.WebResults = webResults
		}
	}

	return result, nil
}

// scopeFilter builds the vector filter for the scope. Workspace scopes are
// resolved to the workspace's document IDs; a workspace with no documents
// matches nothing rather than everything, so the filter keeps a placeholder
// ID that cannot exist.
func (r *Retriever) scopeFilter(ctx context.Context, scope Scope) (vectorstore.Filter, error) {
	filter := vectorstore.Filter{OwnerID: scope.OwnerID}

	switch {
	case scope.DocumentID != "":
		filter.DocumentIDs = []string{scope.DocumentID}
	case scope.WorkspaceID != "":
		ids, err := r.docRepo.ListIDsByWorkspace(ctx, scope.WorkspaceID)
		if err != nil {
			return filter, fmt.Errorf("failed to list workspace documents: %w", err)
		}
		if len(ids) == 0 {
			ids = []string{"none"}
		}
		filter.DocumentIDs = ids
	}

	return filter, nil
}

// shouldBroaden reports whether the scoped results are weak enough to try
// the owner's whole corpus. Results arrive ranked by distance ascending, so
// only the first entry matters.
func shouldBroaden(scoped []vectorstore.SearchResult) bool {
	if len(scoped) == 0 {
		return true
	}
	return scoped[0].Distance > fallbackThreshold
}

// strictlyBetter reports whether the broader results beat the scoped ones:
// the broader search found something where the scoped search found nothing,
// or its best hit is strictly closer.
func strictlyBetter(broader, scoped []vectorstore.SearchResult) bool {
	if len(broader) == 0 {
		return false
	}
	if len(scoped) == 0 {
		return true
	}
	return broader[0].Distance < scoped[0].Distance
}

// toPassages converts search results to passages, dropping duplicate points.
func toPassages(results []vectorstore.SearchResult) []Passage {
	seen := make(map[string]struct{}, len(results))
	passages := make([]Passage, 0, len(results))

	for _, res := range results {
		if _, dup := seen[res.PointID]; dup {
			continue
		}
		seen[res.PointID] = struct{}{}

		passages = append(passages, Passage{
			DocumentID:   metaString(res.Meta, "document_id"),
			DocumentName: metaString(res.Meta, "document_name"),
			ChunkIndex:   metaInt(res.Meta, "chunk_index"),
			Text:         metaString(res.Meta, "text"),
			Distance:     res.Distance,
		})
	}

	return passages
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func metaInt(meta map[string]any, key string) int {
	switch v := meta[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
