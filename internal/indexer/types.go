package indexer

import "context"

// Chunk is a single piece of split document text.
type Chunk struct {
	Index int
	Text  string
}

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks docuchat/internal/indexer Embedder

// Embedder generates embedding vectors for chunk text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
