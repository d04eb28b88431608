package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// ChatStore defines the interface for chat and message storage operations.
type ChatStore interface {
	// InsertChat inserts a new chat. The chat.ID must be set (UUID).
	InsertChat(ctx context.Context, chat *Chat) error
	// GetChatForOwner gets a chat by ID, restricted to an owner.
	GetChatForOwner(ctx context.Context, id, ownerID string) (*Chat, error)
	// InsertMessage appends a message to a chat.
	InsertMessage(ctx context.Context, msg *Message) error
	// RecentMessages returns the most recent limit messages of a chat in
	// chronological order.
	RecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error)
	// ListMessages returns all messages of a chat in chronological order.
	ListMessages(ctx context.Context, chatID string) ([]Message, error)
}

// ChatRepo provides methods for chat and message operations.
// It implements the ChatStore interface.
type ChatRepo struct {
	db *sql.DB
}

// NewChatRepo creates a new ChatRepo.
func NewChatRepo(db *sql.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// InsertChat inserts a new chat.
func (r *ChatRepo) InsertChat(ctx context.Context, chat *Chat) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO chats (id, owner_id, document_id, workspace_id, title) VALUES (?, ?, ?, ?, ?)",
		chat.ID, chat.OwnerID, nullString(chat.DocumentID), nullString(chat.WorkspaceID), chat.Title,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat: %w", err)
	}
	return nil
}

// GetChatForOwner gets a chat by ID, restricted to an owner.
// Returns ErrNotFound when missing or owned by someone else.
func (r *ChatRepo) GetChatForOwner(ctx context.Context, id, ownerID string) (*Chat, error) {
	var chat Chat
	var documentID, workspaceID sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT id, owner_id, document_id, workspace_id, title, created_at FROM chats WHERE id = ? AND owner_id = ?",
		id, ownerID,
	).Scan(&chat.ID, &chat.OwnerID, &documentID, &workspaceID, &chat.Title, &chat.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	chat.DocumentID = documentID.String
	chat.WorkspaceID = workspaceID.String
	return &chat, nil
}

// InsertMessage appends a message to a chat.
func (r *ChatRepo) InsertMessage(ctx context.Context, msg *Message) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO messages (id, chat_id, role, content) VALUES (?, ?, ?, ?)",
		msg.ID, msg.ChatID, msg.Role, msg.Content,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// RecentMessages returns the most recent limit messages of a chat in
// chronological order. The inner query selects newest-first; the outer
// query restores chronological order for prompt assembly.
func (r *ChatRepo) RecentMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, created_at FROM (
			SELECT id, chat_id, role, content, created_at, rowid
			FROM messages WHERE chat_id = ?
			ORDER BY created_at DESC, rowid DESC LIMIT ?
		) ORDER BY created_at ASC, rowid ASC`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	return scanMessages(rows)
}

// ListMessages returns all messages of a chat in chronological order.
func (r *ChatRepo) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY created_at ASC, rowid ASC",
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer func() {
		_ = rows.Close()
	}()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
