package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"docuchat/internal/contextutil"
	"docuchat/internal/service"
)

// HeaderChatID carries the chat ID of a streamed answer so clients can
// continue the conversation.
const HeaderChatID = "X-Chat-Id"

// ChatHandler handles HTTP requests for chat.
type ChatHandler struct {
	chatService service.ChatService
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chatService service.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// ChatRequest represents the HTTP request payload for chat.
type ChatRequest struct {
	Message     string `json:"message"`
	ChatID      string `json:"chatId,omitempty"`
	DocumentID  string `json:"documentId,omitempty"`
	WorkspaceID string `json:"workspaceId,omitempty"`
	WebSearch   bool   `json:"webSearch,omitempty"`
}

// writeSSEData emits one SSE event for chunk. A chunk with embedded newlines
// becomes one data: line per line; the client rejoins them with newlines.
func writeSSEData(w io.Writer, chunk string) error {
	for _, line := range strings.Split(chunk, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ServeHTTP answers a chat turn as a Server-Sent Events stream. The chat ID
// goes out in the X-Chat-Id header before the first chunk.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.ErrorContext(ctx, "streaming not supported by response writer")
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	svcReq := service.ChatRequest{
		OwnerID:     owner,
		ChatID:      req.ChatID,
		DocumentID:  req.DocumentID,
		WorkspaceID: req.WorkspaceID,
		Message:     req.Message,
		WebSearch:   req.WebSearch,
	}

	streaming := false
	err := h.chatService.StreamChat(ctx, svcReq,
		func(chatID string) error {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			w.Header().Set(HeaderChatID, chatID)
			w.WriteHeader(http.StatusOK)
			streaming = true
			return nil
		},
		func(chunk string) error {
			if err := writeSSEData(w, chunk); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		})

	if err != nil {
		if !streaming {
			// Nothing has been written yet, a normal error response works.
			handleServiceError(ctx, w, err, "Failed to process chat request")
			return
		}
		logger.ErrorContext(ctx, "error streaming chat", "error", err)
		errPayload, _ := json.Marshal(ErrorResponse{Error: err.Error()})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", errPayload)
		flusher.Flush()
		return
	}

	_, _ = fmt.Fprintf(w, "data: [DONE]\n\n")
	flusher.Flush()
}
