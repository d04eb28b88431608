package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// WorkspaceStore defines the interface for workspace storage operations.
type WorkspaceStore interface {
	// Insert inserts a new workspace. The workspace.ID must be set (UUID).
	Insert(ctx context.Context, ws *Workspace) error
	// GetByIDForOwner gets a workspace by ID, restricted to an owner.
	GetByIDForOwner(ctx context.Context, id, ownerID string) (*Workspace, error)
	// ListByOwner lists all workspaces owned by a user, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Workspace, error)
	// Delete removes a workspace. Documents are detached, not deleted.
	Delete(ctx context.Context, id string) error
}

// WorkspaceRepo provides methods for workspace operations.
// It implements the WorkspaceStore interface.
type WorkspaceRepo struct {
	db *sql.DB
}

// NewWorkspaceRepo creates a new WorkspaceRepo.
func NewWorkspaceRepo(db *sql.DB) *WorkspaceRepo {
	return &WorkspaceRepo{db: db}
}

// Insert inserts a new workspace.
func (r *WorkspaceRepo) Insert(ctx context.Context, ws *Workspace) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO workspaces (id, owner_id, name) VALUES (?, ?, ?)",
		ws.ID, ws.OwnerID, ws.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workspace: %w", err)
	}
	return nil
}

// GetByIDForOwner gets a workspace by ID, restricted to an owner.
// Returns ErrNotFound when missing or owned by someone else.
func (r *WorkspaceRepo) GetByIDForOwner(ctx context.Context, id, ownerID string) (*Workspace, error) {
	var ws Workspace
	err := r.db.QueryRowContext(ctx,
		"SELECT id, owner_id, name, created_at FROM workspaces WHERE id = ? AND owner_id = ?",
		id, ownerID,
	).Scan(&ws.ID, &ws.OwnerID, &ws.Name, &ws.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &ws, nil
}

// ListByOwner lists all workspaces owned by a user, newest first.
func (r *WorkspaceRepo) ListByOwner(ctx context.Context, ownerID string) ([]Workspace, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, owner_id, name, created_at FROM workspaces WHERE owner_id = ? ORDER BY created_at DESC",
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var workspaces []Workspace
	for rows.Next() {
		var ws Workspace
		if err := rows.Scan(&ws.ID, &ws.OwnerID, &ws.Name, &ws.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}
	return workspaces, rows.Err()
}

// Delete removes a workspace. The documents FK is ON DELETE SET NULL, so
// documents survive with workspace_id cleared.
func (r *WorkspaceRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM workspaces WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	return requireRowAffected(res)
}
