package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"docuchat/internal/contextutil"
	"docuchat/internal/storage"
)

// WorkspacesHandler handles HTTP requests for workspaces.
type WorkspacesHandler struct {
	workspaceRepo storage.WorkspaceStore
	docRepo       storage.DocumentStore
}

// NewWorkspacesHandler creates a new WorkspacesHandler.
func NewWorkspacesHandler(workspaceRepo storage.WorkspaceStore, docRepo storage.DocumentStore) *WorkspacesHandler {
	return &WorkspacesHandler{
		workspaceRepo: workspaceRepo,
		docRepo:       docRepo,
	}
}

// CreateWorkspaceRequest is the workspace creation payload.
type CreateWorkspaceRequest struct {
	Name string `json:"name"`
}

// WorkspaceResponse is the API shape of a workspace.
type WorkspaceResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

func toWorkspaceResponse(ws *storage.Workspace) WorkspaceResponse {
	return WorkspaceResponse{
		ID:        ws.ID,
		Name:      ws.Name,
		CreatedAt: ws.CreatedAt,
	}
}

// Create creates a workspace for the caller.
func (h *WorkspacesHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	ws := &storage.Workspace{
		ID:      uuid.New().String(),
		OwnerID: owner,
		Name:    req.Name,
	}
	if err := h.workspaceRepo.Insert(ctx, ws); err != nil {
		logger.ErrorContext(ctx, "failed to insert workspace", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to create workspace")
		return
	}

	writeJSON(w, http.StatusCreated, toWorkspaceResponse(ws))
}

// List returns the caller's workspaces.
func (h *WorkspacesHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	workspaces, err := h.workspaceRepo.ListByOwner(ctx, owner)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list workspaces")
		return
	}

	resp := make([]WorkspaceResponse, 0, len(workspaces))
	for i := range workspaces {
		resp = append(resp, toWorkspaceResponse(&workspaces[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns one workspace and the IDs of its documents.
func (h *WorkspacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	ws, err := h.workspaceRepo.GetByIDForOwner(ctx, chi.URLParam(r, "id"), owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Workspace not found")
			return
		}
		handleServiceError(ctx, w, err, "Failed to get workspace")
		return
	}

	docIDs, err := h.docRepo.ListIDsByWorkspace(ctx, ws.ID)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list workspace documents")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		WorkspaceResponse
		DocumentIDs []string `json:"documentIds"`
	}{
		WorkspaceResponse: toWorkspaceResponse(ws),
		DocumentIDs:       docIDs,
	})
}

// Delete removes a workspace. Its documents survive and become unattached.
func (h *WorkspacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	ws, err := h.workspaceRepo.GetByIDForOwner(ctx, chi.URLParam(r, "id"), owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Workspace not found")
			return
		}
		handleServiceError(ctx, w, err, "Failed to get workspace")
		return
	}

	if err := h.workspaceRepo.Delete(ctx, ws.ID); err != nil {
		handleServiceError(ctx, w, err, "Failed to delete workspace")
		return
	}

	logger.InfoContext(ctx, "workspace deleted", "workspace_id", ws.ID)
	w.WriteHeader(http.StatusNoContent)
}
