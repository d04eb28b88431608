package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func insertTestChat(t *testing.T, repo *ChatRepo, id, owner string) *Chat {
	t.Helper()

	chat := &Chat{
		ID:         id,
		OwnerID:    owner,
		DocumentID: "doc-1",
		Title:      "test chat",
	}
	if err := repo.InsertChat(context.Background(), chat); err != nil {
		t.Fatalf("InsertChat() error = %v", err)
	}
	return chat
}

func TestChatRepo_InsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	docRepo := NewDocumentRepo(db)
	repo := NewChatRepo(db)

	insertTestDocument(t, docRepo, "doc-1", "user-1", StatusCompleted)
	insertTestChat(t, repo, "chat-1", "user-1")

	got, err := repo.GetChatForOwner(context.Background(), "chat-1", "user-1")
	if err != nil {
		t.Fatalf("GetChatForOwner() error = %v", err)
	}
	if got.Title != "test chat" {
		t.Errorf("Title = %q, want %q", got.Title, "test chat")
	}
	if got.DocumentID != "doc-1" {
		t.Errorf("DocumentID = %q, want %q", got.DocumentID, "doc-1")
	}

	_, err = repo.GetChatForOwner(context.Background(), "chat-1", "user-2")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetChatForOwner() with wrong owner error = %v, want ErrNotFound", err)
	}
}

func TestChatRepo_RecentMessages(t *testing.T) {
	db := setupTestDB(t)
	docRepo := NewDocumentRepo(db)
	repo := NewChatRepo(db)

	insertTestDocument(t, docRepo, "doc-1", "user-1", StatusCompleted)
	insertTestChat(t, repo, "chat-1", "user-1")

	for i := 0; i < 15; i++ {
		msg := &Message{
			ID:      fmt.Sprintf("msg-%02d", i),
			ChatID:  "chat-1",
			Role:    RoleUser,
			Content: fmt.Sprintf("message %d", i),
		}
		if err := repo.InsertMessage(context.Background(), msg); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}

	messages, err := repo.RecentMessages(context.Background(), "chat-1", 10)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(messages) != 10 {
		t.Fatalf("RecentMessages() returned %d messages, want 10", len(messages))
	}

	// The window holds the newest 10, in chronological order.
	if messages[0].Content != "message 5" {
		t.Errorf("first message = %q, want %q", messages[0].Content, "message 5")
	}
	if messages[9].Content != "message 14" {
		t.Errorf("last message = %q, want %q", messages[9].Content, "message 14")
	}
}

func TestChatRepo_ListMessages(t *testing.T) {
	db := setupTestDB(t)
	docRepo := NewDocumentRepo(db)
	repo := NewChatRepo(db)

	insertTestDocument(t, docRepo, "doc-1", "user-1", StatusCompleted)
	insertTestChat(t, repo, "chat-1", "user-1")

	roles := []string{RoleUser, RoleAssistant, RoleUser}
	for i, role := range roles {
		msg := &Message{
			ID:      fmt.Sprintf("msg-%d", i),
			ChatID:  "chat-1",
			Role:    role,
			Content: fmt.Sprintf("message %d", i),
		}
		if err := repo.InsertMessage(context.Background(), msg); err != nil {
			t.Fatalf("InsertMessage() error = %v", err)
		}
	}

	messages, err := repo.ListMessages(context.Background(), "chat-1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("ListMessages() returned %d messages, want 3", len(messages))
	}
	for i, msg := range messages {
		if msg.Role != roles[i] {
			t.Errorf("messages[%d].Role = %q, want %q", i, msg.Role, roles[i])
		}
	}
}
