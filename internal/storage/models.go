package storage

import "time"

// Document lifecycle statuses. A document enters the system as pending,
// moves to indexing when the pipeline picks it up, and ends in completed
// or failed. Retry re-enters at indexing.
const (
	StatusPending   = "pending"
	StatusIndexing  = "indexing"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Workspace is a named grouping of documents owned by one user.
type Workspace struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

// Document represents one ingested source (uploaded file or scraped URL).
// Content holds the extracted plain text and is retained after indexing so
// the document can be re-indexed without re-upload.
type Document struct {
	ID          string
	OwnerID     string
	WorkspaceID string // empty = not attached to a workspace
	Name        string
	Content     string // empty until text extraction has run
	SourceKind  string // e.g. "upload", "url"
	Status      string
	ChunkCount  int
	CreatedAt   time.Time
}

// ChunkRecord is the relational mirror of one embedded chunk. Its ID doubles
// as the vector store point ID so the two stores can be kept in sync.
type ChunkRecord struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Content    string
	Page       int // source page when known, 0 otherwise
}

// Chat is a conversation scoped to either one document or one workspace.
type Chat struct {
	ID          string
	OwnerID     string
	DocumentID  string // set for document-scoped chats
	WorkspaceID string // set for workspace-scoped chats
	Title       string
	CreatedAt   time.Time
}

// Message is one turn in a chat.
type Message struct {
	ID        string
	ChatID    string
	Role      string
	Content   string
	CreatedAt time.Time
}
