package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_stores.go -package=mocks docuchat/internal/storage DocumentStore,ChunkStore,WorkspaceStore,ChatStore

import (
	"context"
	"database/sql"
	"fmt"
)

// DocumentStore defines the interface for document storage operations.
type DocumentStore interface {
	// Insert inserts a new document. The document.ID must be set (UUID).
	Insert(ctx context.Context, doc *Document) error
	// GetByID gets a document by ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*Document, error)
	// GetByIDForOwner gets a document by ID, restricted to an owner.
	// Returns ErrNotFound when the document does not exist or belongs to
	// a different owner.
	GetByIDForOwner(ctx context.Context, id, ownerID string) (*Document, error)
	// ListByOwner lists all documents owned by a user, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Document, error)
	// ListIDsByWorkspace returns the IDs of all documents in a workspace.
	ListIDsByWorkspace(ctx context.Context, workspaceID string) ([]string, error)
	// SetStatus updates a document's lifecycle status.
	SetStatus(ctx context.Context, id, status string) error
	// SetStatusAndChunkCount updates status and chunk count together.
	SetStatusAndChunkCount(ctx context.Context, id, status string, chunkCount int) error
	// UpdateStatusIf atomically transitions status only when the current
	// status is one of the allowed values. Returns false when the guard
	// did not match (e.g. another indexing run is in flight).
	UpdateStatusIf(ctx context.Context, id, newStatus string, allowedCurrent ...string) (bool, error)
	// Delete removes a document. Chunk rows cascade.
	Delete(ctx context.Context, id string) error
}

// DocumentRepo provides methods for document operations.
// It implements the DocumentStore interface.
type DocumentRepo struct {
	db *sql.DB
}

// NewDocumentRepo creates a new DocumentRepo.
func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

// Insert inserts a new document.
func (r *DocumentRepo) Insert(ctx context.Context, doc *Document) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (id, owner_id, workspace_id, name, content, source_kind, status, chunk_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.OwnerID, nullString(doc.WorkspaceID), doc.Name, nullString(doc.Content),
		doc.SourceKind, doc.Status, doc.ChunkCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetByID gets a document by ID. Returns ErrNotFound if not found.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, workspace_id, name, content, source_kind, status, chunk_count, created_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

// GetByIDForOwner gets a document by ID, restricted to an owner.
func (r *DocumentRepo) GetByIDForOwner(ctx context.Context, id, ownerID string) (*Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, workspace_id, name, content, source_kind, status, chunk_count, created_at
		 FROM documents WHERE id = ? AND owner_id = ?`, id, ownerID)
	return scanDocument(row)
}

// ListByOwner lists all documents owned by a user, newest first.
func (r *DocumentRepo) ListByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, workspace_id, name, content, source_kind, status, chunk_count, created_at
		 FROM documents WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocumentRows(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// ListIDsByWorkspace returns the IDs of all documents in a workspace.
func (r *DocumentRepo) ListIDsByWorkspace(ctx context.Context, workspaceID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM documents WHERE workspace_id = ?", workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspace document IDs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStatus updates a document's lifecycle status.
func (r *DocumentRepo) SetStatus(ctx context.Context, id, status string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE documents SET status = ? WHERE id = ?", status, id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return requireRowAffected(res)
}

// SetStatusAndChunkCount updates status and chunk count together.
func (r *DocumentRepo) SetStatusAndChunkCount(ctx context.Context, id, status string, chunkCount int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE documents SET status = ?, chunk_count = ? WHERE id = ?", status, chunkCount, id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	return requireRowAffected(res)
}

// UpdateStatusIf atomically transitions status only when the current status
// is one of the allowed values. The single UPDATE makes the check-and-set
// atomic, which is what fences two concurrent indexing runs.
func (r *DocumentRepo) UpdateStatusIf(ctx context.Context, id, newStatus string, allowedCurrent ...string) (bool, error) {
	if len(allowedCurrent) == 0 {
		return false, fmt.Errorf("at least one allowed status is required")
	}

	query := "UPDATE documents SET status = ? WHERE id = ? AND status IN (?"
	args := []any{newStatus, id, allowedCurrent[0]}
	for _, s := range allowedCurrent[1:] {
		query += ", ?"
		args = append(args, s)
	}
	query += ")"

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to transition document status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// Delete removes a document. Chunk rows cascade via the foreign key.
func (r *DocumentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return requireRowAffected(res)
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row *sql.Row) (*Document, error) {
	doc, err := scanDocumentRows(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return doc, err
}

func scanDocumentRows(s scanner) (*Document, error) {
	var doc Document
	var workspaceID, content sql.NullString
	err := s.Scan(&doc.ID, &doc.OwnerID, &workspaceID, &doc.Name, &content,
		&doc.SourceKind, &doc.Status, &doc.ChunkCount, &doc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan document: %w", err)
	}
	doc.WorkspaceID = workspaceID.String
	doc.Content = content.String
	return &doc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
