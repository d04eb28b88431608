package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"docuchat/internal/storage"
)

// ChatsHandler serves stored chat transcripts.
type ChatsHandler struct {
	chatRepo storage.ChatStore
}

// NewChatsHandler creates a new ChatsHandler.
func NewChatsHandler(chatRepo storage.ChatStore) *ChatsHandler {
	return &ChatsHandler{chatRepo: chatRepo}
}

// MessageResponse is the API shape of a chat message.
type MessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Messages returns the full transcript of one chat, oldest first.
func (h *ChatsHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	chat, err := h.chatRepo.GetChatForOwner(ctx, chi.URLParam(r, "id"), owner)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Chat not found")
			return
		}
		handleServiceError(ctx, w, err, "Failed to get chat")
		return
	}

	messages, err := h.chatRepo.ListMessages(ctx, chat.ID)
	if err != nil {
		handleServiceError(ctx, w, err, "Failed to list messages")
		return
	}

	resp := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		resp = append(resp, MessageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
