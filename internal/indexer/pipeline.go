package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"docuchat/internal/contextutil"
	"docuchat/internal/storage"
	"docuchat/internal/vectorstore"
)

// insertBatchSize is how many chunks are flushed to the stores at a time,
// so long documents become searchable while indexing is still running.
const insertBatchSize = 5

var (
	// ErrEmptyContent means the document had no extractable text to index.
	ErrEmptyContent = errors.New("document has no extractable content")

	// ErrNotIndexable means the document is in a state that does not permit
	// (re-)indexing, e.g. a retry on a document that is still indexing.
	ErrNotIndexable = errors.New("document is not in an indexable state")
)

// Pipeline orchestrates indexing of documents into SQLite and Qdrant.
type Pipeline struct {
	docRepo     storage.DocumentStore
	chunkRepo   storage.ChunkStore
	embedder    Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	splitter    *Splitter
}

// NewPipeline creates a new indexing pipeline.
func NewPipeline(
	docRepo storage.DocumentStore,
	chunkRepo storage.ChunkStore,
	embedder Embedder,
	vectorStore vectorstore.VectorStore,
	collection string,
) *Pipeline {
	return &Pipeline{
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		splitter:    NewSplitter(),
	}
}

// Process indexes a newly ingested document. The status transition to
// indexing is a single conditional update, so concurrent attempts on the
// same document cannot both proceed.
func (p *Pipeline) Process(ctx context.Context, documentID string) error {
	moved, err := p.docRepo.UpdateStatusIf(ctx, documentID, storage.StatusIndexing,
		storage.StatusPending, storage.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to transition document to indexing: %w", err)
	}
	if !moved {
		return ErrNotIndexable
	}

	return p.index(ctx, documentID)
}

// ClaimRetry moves a previously finished document back into indexing. Only
// failed and completed documents are eligible; anything else reports
// ErrNotIndexable. The transition is a single conditional update, so two
// concurrent retries cannot both claim the document. The caller follows up
// with Reindex, typically in the background.
func (p *Pipeline) ClaimRetry(ctx context.Context, documentID string) error {
	moved, err := p.docRepo.UpdateStatusIf(ctx, documentID, storage.StatusIndexing,
		storage.StatusFailed, storage.StatusCompleted)
	if err != nil {
		return fmt.Errorf("failed to transition document to indexing: %w", err)
	}
	if !moved {
		return ErrNotIndexable
	}

	if err := p.docRepo.SetStatusAndChunkCount(ctx, documentID, storage.StatusIndexing, 0); err != nil {
		return fmt.Errorf("failed to reset chunk count: %w", err)
	}
	return nil
}

// Reindex runs the indexing stages for a document already claimed via
// ClaimRetry. Old chunks and vectors are cleared first, so a retry never
// leaves stale embeddings behind.
func (p *Pipeline) Reindex(ctx context.Context, documentID string) error {
	return p.index(ctx, documentID)
}

// index runs the chunk/embed/store stages. The caller has already moved the
// document into the indexing status.
func (p *Pipeline) index(ctx context.Context, documentID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	doc, err := p.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return p.fail(ctx, documentID, fmt.Errorf("failed to load document: %w", err))
	}

	if err := p.clearExisting(ctx, documentID); err != nil {
		return p.fail(ctx, documentID, err)
	}

	plain := NormalizeMarkdown([]byte(doc.Content))
	if plain == "" {
		return p.fail(ctx, documentID, ErrEmptyContent)
	}

	var (
		batchRecords []storage.ChunkRecord
		batchPoints  []vectorstore.Point
		stored       int
		skipped      int
	)

	flush := func() error {
		if len(batchRecords) == 0 {
			return nil
		}
		if err := p.chunkRepo.InsertBatch(ctx, batchRecords); err != nil {
			return fmt.Errorf("failed to insert chunk batch: %w", err)
		}
		if err := p.vectorStore.Upsert(ctx, p.collection, batchPoints); err != nil {
			return fmt.Errorf("failed to upsert vectors: %w", err)
		}
		stored += len(batchRecords)
		batchRecords = batchRecords[:0]
		batchPoints = batchPoints[:0]
		return nil
	}

	for _, chunk := range p.splitter.Chunks(plain) {
		select {
		case <-ctx.Done():
			return p.fail(ctx, documentID, ctx.Err())
		default:
		}

		vec, err := p.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			// One bad chunk does not sink the document; it is skipped and
			// the rest are still indexed.
			skipped++
			logger.WarnContext(ctx, "skipping chunk after embedding failure",
				"document_id", documentID, "chunk_index", chunk.Index, "error", err)
			continue
		}

		chunkID := uuid.New().String()
		batchRecords = append(batchRecords, storage.ChunkRecord{
			ID:         chunkID,
			DocumentID: documentID,
			ChunkIndex: chunk.Index,
			Content:    chunk.Text,
		})
		batchPoints = append(batchPoints, vectorstore.Point{
			ID:  chunkID,
			Vec: vec,
			Meta: map[string]any{
				"document_id":   documentID,
				"owner_id":      doc.OwnerID,
				"workspace_id":  doc.WorkspaceID,
				"document_name": doc.Name,
				"chunk_index":   chunk.Index,
				"text":          chunk.Text,
			},
		})

		if len(batchRecords) >= insertBatchSize {
			if err := flush(); err != nil {
				return p.fail(ctx, documentID, err)
			}
		}
	}

	if err := flush(); err != nil {
		return p.fail(ctx, documentID, err)
	}

	if stored == 0 {
		return p.fail(ctx, documentID, fmt.Errorf("all %d chunks failed to embed", skipped))
	}

	// The database is the source of truth for the final count; a reindex may
	// have left rows from an interrupted earlier run.
	count, err := p.chunkRepo.CountByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to count stored chunks: %w", err)
	}
	if err := p.docRepo.SetStatusAndChunkCount(ctx, documentID, storage.StatusCompleted, count); err != nil {
		return fmt.Errorf("failed to mark document completed: %w", err)
	}

	logger.InfoContext(ctx, "indexed document",
		"document_id", documentID, "chunks", count, "skipped", skipped)
	return nil
}

// clearExisting removes any previously stored chunks and vectors for the
// document from both stores.
func (p *Pipeline) clearExisting(ctx context.Context, documentID string) error {
	logger := contextutil.LoggerFromContext(ctx)

	chunkIDs, err := p.chunkRepo.ListIDsByDocument(ctx, documentID)
	if err != nil {
		return fmt.Errorf("failed to list existing chunks: %w", err)
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	if err := p.vectorStore.Delete(ctx, p.collection, chunkIDs); err != nil {
		// Vectors will be overwritten or orphaned; the relational side is
		// authoritative, so keep going.
		logger.WarnContext(ctx, "failed to delete old vectors",
			"document_id", documentID, "count", len(chunkIDs), "error", err)
	}

	if err := p.chunkRepo.DeleteByDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete old chunks: %w", err)
	}
	return nil
}

// fail marks the document failed and returns the original error. Status
// update failures are logged, not returned, so the root cause surfaces.
func (p *Pipeline) fail(ctx context.Context, documentID string, cause error) error {
	logger := contextutil.LoggerFromContext(ctx)

	if err := p.docRepo.SetStatus(context.WithoutCancel(ctx), documentID, storage.StatusFailed); err != nil {
		logger.ErrorContext(ctx, "failed to mark document failed",
			"document_id", documentID, "error", err)
	}

	logger.ErrorContext(ctx, "document indexing failed",
		"document_id", documentID, "error", cause)
	return cause
}
