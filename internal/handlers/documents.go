package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"docuchat/internal/contextutil"
	"docuchat/internal/indexer"
	"docuchat/internal/storage"
	"docuchat/internal/vectorstore"
)

// DocumentsHandler handles HTTP requests for documents.
type DocumentsHandler struct {
	docRepo     storage.DocumentStore
	chunkRepo   storage.ChunkStore
	vectorStore vectorstore.VectorStore
	pipeline    *indexer.Pipeline
	collection  string
}

// NewDocumentsHandler creates a new DocumentsHandler.
func NewDocumentsHandler(
	docRepo storage.DocumentStore,
	chunkRepo storage.ChunkStore,
	vectorStore vectorstore.VectorStore,
	pipeline *indexer.Pipeline,
	collection string,
) *DocumentsHandler {
	return &DocumentsHandler{
		docRepo:     docRepo,
		chunkRepo:   chunkRepo,
		vectorStore: vectorStore,
		pipeline:    pipeline,
		collection:  collection,
	}
}

// CreateDocumentRequest is the ingestion payload. Content is the extracted
// plain text or markdown of the source.
type CreateDocumentRequest struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	SourceKind  string `json:"sourceKind,omitempty"`
}

// DocumentResponse is the API shape of a document.
type DocumentResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	WorkspaceID string    `json:"workspaceId,omitempty"`
	SourceKind  string    `json:"sourceKind"`
	Status      string    `json:"status"`
	ChunkCount  int       `json:"chunkCount"`
	CreatedAt   time.Time `json:"createdAt"`
}

func toDocumentResponse(doc *storage.Document) DocumentResponse {
	return DocumentResponse{
		ID:          doc.ID,
		Name:        doc.Name,
		WorkspaceID: doc.WorkspaceID,
		SourceKind:  doc.SourceKind,
		Status:      doc.Status,
		ChunkCount:  doc.ChunkCount,
		CreatedAt:   doc.CreatedAt,
	}
}

// deriveDocumentName names a document that was uploaded without one: the
// first markdown heading if the content has any, otherwise its opening words.
func deriveDocumentName(content string) string {
	words := strings.Fields(content)
	if len(words) > 6 {
		words = words[:6]
	}
	return indexer.ExtractTitle([]byte(content), strings.Join(words, " "))
}

// Create ingests a document and kicks off indexing in the background.
// The response is 202 Accepted; callers poll the document status.
func (h *DocumentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Content is required")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = deriveDocumentName(req.Content)
	}
	sourceKind := req.SourceKind
	if sourceKind == "" {
		sourceKind = "upload"
	}

	doc := &storage.Document{
		ID:          uuid.New().String(),
		OwnerID:     owner,
		WorkspaceID: req.WorkspaceID,
		Name:        name,
		Content:     req.Content,
		SourceKind:  sourceKind,
		Status:      storage.StatusPending,
	}
	if err := h.docRepo.Insert(ctx, doc); err != nil {
		logger.ErrorContext(ctx, "failed to insert document", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create document")
		return
	}

	// Index in the background, detached from the request lifetime.
	go func() {
		bgCtx := contextutil.WithLogger(context.Background(), logger)
		if err := h.pipeline.Process(bgCtx, doc.ID); err != nil {
			logger.Error("background indexing failed", "document_id", doc.ID, "error", err)
		}
	}()

	logger.InfoContext(ctx, "document accepted for indexing",
		"document_id", doc.ID, "name", doc.Name, "source_kind", sourceKind)
	writeJSON(w, http.StatusAccepted, toDocumentResponse(doc))
}

// List returns all of the caller's documents, newest first.
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	docs, err := h.docRepo.ListByOwner(ctx, owner)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list documents")
		return
	}

	resp := make([]DocumentResponse, 0, len(docs))
	for i := range docs {
		resp = append(resp, toDocumentResponse(&docs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns one document owned by the caller.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	doc, err := h.docRepo.GetByIDForOwner(ctx, chi.URLParam(r, "id"), owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		handleServiceError(ctx, w, err, "Failed to get document")
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// Delete removes a document, its chunks, and its vectors.
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	doc, err := h.docRepo.GetByIDForOwner(ctx, id, owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		handleServiceError(ctx, w, err, "Failed to get document")
		return
	}

	if err := h.vectorStore.DeleteByDocument(ctx, h.collection, doc.ID); err != nil {
		// The relational delete cascades to chunks either way; orphaned
		// vectors stay invisible behind the owner filter.
		logger.WarnContext(ctx, "failed to delete document vectors", "document_id", doc.ID, "error", err)
	}

	if err := h.docRepo.Delete(ctx, doc.ID); err != nil {
		handleServiceError(ctx, w, err, "Failed to delete document")
		return
	}

	logger.InfoContext(ctx, "document deleted", "document_id", doc.ID)
	w.WriteHeader(http.StatusNoContent)
}

// Retry re-indexes a failed or completed document. Documents that are
// pending or already indexing are rejected with 409.
func (h *DocumentsHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	doc, err := h.docRepo.GetByIDForOwner(ctx, id, owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Document not found")
			return
		}
		handleServiceError(ctx, w, err, "Failed to get document")
		return
	}

	if strings.TrimSpace(doc.Content) == "" {
		writeError(w, http.StatusBadRequest, "Document content not available. Please delete and re-upload.")
		return
	}

	if err := h.pipeline.ClaimRetry(ctx, doc.ID); err != nil {
		if errors.Is(err, indexer.ErrNotIndexable) {
			writeError(w, http.StatusConflict, "Document is already being indexed")
			return
		}
		handleServiceError(ctx, w, err, "Failed to retry document")
		return
	}

	go func() {
		bgCtx := contextutil.WithLogger(context.Background(), logger)
		if err := h.pipeline.Reindex(bgCtx, doc.ID); err != nil {
			logger.Error("retry indexing failed", "document_id", doc.ID, "error", err)
		}
	}()

	logger.InfoContext(ctx, "document retry accepted", "document_id", doc.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Retry initiated"})
}
