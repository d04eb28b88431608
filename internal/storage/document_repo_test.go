package storage

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func insertTestDocument(t *testing.T, repo *DocumentRepo, id, owner, status string) *Document {
	t.Helper()

	doc := &Document{
		ID:         id,
		OwnerID:    owner,
		Name:       "doc " + id,
		Content:    "some content",
		SourceKind: "upload",
		Status:     status,
	}
	if err := repo.Insert(context.Background(), doc); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	return doc
}

func TestDocumentRepo_InsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDocumentRepo(db)

	insertTestDocument(t, repo, "doc-1", "user-1", StatusPending)

	got, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.OwnerID != "user-1" {
		t.Errorf("OwnerID = %q, want %q", got.OwnerID, "user-1")
	}
	if got.Status != StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, StatusPending)
	}
	if got.Content != "some content" {
		t.Errorf("Content = %q, want %q", got.Content, "some content")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt is zero")
	}
}

func TestDocumentRepo_GetByID_NotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDocumentRepo(db)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestDocumentRepo_GetByIDForOwner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDocumentRepo(db)

	insertTestDocument(t, repo, "doc-1", "user-1", StatusCompleted)

	if _, err := repo.GetByIDForOwner(context.Background(), "doc-1", "user-1"); err != nil {
		t.Fatalf("GetByIDForOwner() error = %v", err)
	}

	// Another owner must not see the document.
	_, err := repo.GetByIDForOwner(context.Background(), "doc-1", "user-2")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByIDForOwner() with wrong owner error = %v, want ErrNotFound", err)
	}
}

func TestDocumentRepo_ListByOwner(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDocumentRepo(db)

	insertTestDocument(t, repo, "doc-1", "user-1", StatusCompleted)
	insertTestDocument(t, repo, "doc-2", "user-1", StatusPending)
	insertTestDocument(t, repo, "doc-3", "user-2", StatusPending)

	docs, err := repo.ListByOwner(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("ListByOwner() returned %d documents, want 2", len(docs))
	}
	for _, doc := range docs {
		if doc.OwnerID != "user-1" {
			t.Errorf("ListByOwner() returned document owned by %q", doc.OwnerID)
		}
	}
}

func TestDocumentRepo_ListIDsByWorkspace(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDocumentRepo(db)
	wsRepo := NewWorkspaceRepo(db)

	ws := &Workspace{ID: "ws-1", OwnerID: "user-1", Name: "research"}
	if err := wsRepo.Insert(context.Background(), ws); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	doc := &Document{
		ID:          "doc-1",
		OwnerID:     "user-1",
		WorkspaceID: "ws-1",
		Name:        "attached",
		Content:     "text",
		SourceKind:  "upload",
		Status:      StatusPending,
	}
	if err := repo.Insert(context.Background(), doc); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	insertTestDocument(t, repo, "doc-2", "user-1", StatusPending)

	ids, err := repo.ListIDsByWorkspace(context.Background(), "ws-1")
	if err != nil {
		t.Fatalf("ListIDsByWorkspace() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != "doc-1" {
		t.Errorf("ListIDsByWorkspace() = %v, want [doc-1]", ids)
	}
}

func TestDocumentRepo_UpdateStatusIf(t *testing.T) {
	tests := []struct {
		name      string
		current   string
		newStatus string
		allowed   []string
		want      bool
	}{
		{
			name:      "pending to indexing",
			current:   StatusPending,
			newStatus: StatusIndexing,
			allowed:   []string{StatusPending, StatusFailed},
			want:      true,
		},
		{
			name:      "failed to indexing",
			current:   StatusFailed,
			newStatus: StatusIndexing,
			allowed:   []string{StatusFailed, StatusCompleted},
			want:      true,
		},
		{
			name:      "indexing rejected",
			current:   StatusIndexing,
			newStatus: StatusIndexing,
			allowed:   []string{StatusFailed, StatusCompleted},
			want:      false,
		},
		{
			name:      "pending rejected for retry",
			current:   StatusPending,
			newStatus: StatusIndexing,
			allowed:   []string{StatusFailed, StatusCompleted},
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			repo := NewDocumentRepo(db)

			insertTestDocument(t, repo, "doc-1", "user-1", tt.current)

			moved, err := repo.UpdateStatusIf(context.Background(), "doc-1", tt.newStatus, tt.allowed...)
			if err != nil {
				t.Fatalf("UpdateStatusIf() error = %v", err)
			}
			if moved != tt.want {
				t.Errorf("UpdateStatusIf() = %v, want %v", moved, tt.want)
			}

			got, err := repo.GetByID(context.Background(), "doc-1")
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			wantStatus := tt.current
			if tt.want {
				wantStatus = tt.newStatus
			}
			if got.Status != wantStatus {
				t.Errorf("Status = %q, want %q", got.Status, wantStatus)
			}
		})
	}
}

func TestDocumentRepo_SetStatusAndChunkCount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDocumentRepo(db)

	insertTestDocument(t, repo, "doc-1", "user-1", StatusIndexing)

	if err := repo.SetStatusAndChunkCount(context.Background(), "doc-1", StatusCompleted, 7); err != nil {
		t.Fatalf("SetStatusAndChunkCount() error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", got.Status, StatusCompleted)
	}
	if got.ChunkCount != 7 {
		t.Errorf("ChunkCount = %d, want 7", got.ChunkCount)
	}
}

func TestDocumentRepo_DeleteCascadesChunks(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDocumentRepo(db)
	chunkRepo := NewChunkRepo(db)

	insertTestDocument(t, repo, "doc-1", "user-1", StatusCompleted)

	chunks := []ChunkRecord{
		{ID: "chunk-1", DocumentID: "doc-1", ChunkIndex: 0, Content: "first"},
		{ID: "chunk-2", DocumentID: "doc-1", ChunkIndex: 1, Content: "second"},
	}
	if err := chunkRepo.InsertBatch(context.Background(), chunks); err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}

	if err := repo.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	count, err := chunkRepo.CountByDocument(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("CountByDocument() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountByDocument() = %d after delete, want 0", count)
	}

	if err := repo.Delete(context.Background(), "doc-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() on missing document error = %v, want ErrNotFound", err)
	}
}
