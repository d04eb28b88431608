package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks docuchat/internal/vectorstore VectorStore

import "context"

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// Filter restricts a similarity search. Exactly one of DocumentIDs or
// OwnerID is normally set: DocumentIDs scopes the search to specific
// documents, OwnerID scopes it to everything a user owns.
type Filter struct {
	DocumentIDs []string
	OwnerID     string
}

// SearchResult represents a search result from vector search.
// Distance is cosine distance: lower values mean more similar vectors.
type SearchResult struct {
	PointID  string
	Distance float32
	Meta     map[string]any
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Upsert inserts or updates points in the collection. The whole batch
	// goes out in one call, so callers can treat a batch as the unit of
	// durable progress.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search restricted by filter, returning
	// up to k results in ascending distance order.
	Search(ctx context.Context, collection string, query []float32, k int, filter Filter) ([]SearchResult, error)

	// Delete removes points by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// DeleteByDocument removes all points belonging to a document.
	DeleteByDocument(ctx context.Context, collection string, documentID string) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)
}
