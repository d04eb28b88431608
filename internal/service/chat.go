package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_completion_client.go -package=mocks docuchat/internal/service CompletionClient
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_retriever.go -package=mocks docuchat/internal/service Retriever
//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_service.go -package=mocks -mock_names=ChatService=MockChatService docuchat/internal/service ChatService

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"docuchat/internal/contextutil"
	"docuchat/internal/llm"
	"docuchat/internal/rag"
	"docuchat/internal/storage"
)

const (
	// historyLimit is how many prior messages go into the prompt.
	historyLimit = 10

	// titleMaxLen is how much of the first message becomes the chat title.
	titleMaxLen = 50
)

// documentPromptTemplate grounds the model strictly in the retrieved
// document context. The context block is appended at %s.
const documentPromptTemplate = `You are a helpful AI assistant. Answer the user's question based strictly on the provided context.
If the answer is not in the context, say you don't know.
Cite the source documents by name when you use them.

Context:
%s
`

// synthesisPromptTemplate is used when the turn requested web search: the
// model blends document and web context instead of refusing outright.
const synthesisPromptTemplate = `You are a helpful AI assistant. Answer the user's question using both the provided document context and the web search results.
Prefer the documents for specific facts and the web results for recent or general information. If the sources contradict each other, point out the contradiction instead of silently picking one side.
If neither source contains the answer, say you don't know.
Cite source documents by name and web sources by title when you use them.

Context:
%s
`

// CompletionClient is the LLM surface the chat service needs, defined from
// the consumer's side.
type CompletionClient interface {
	ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error)
	StreamChatMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams, callback func(chunk string) error) error
}

// Retriever gathers document and web context for a question.
type Retriever interface {
	Retrieve(ctx context.Context, query string, scope rag.Scope) (*rag.Context, error)
}

// ChatRequest represents one user turn. Exactly one of DocumentID and
// WorkspaceID scopes the chat; ChatID is empty for a new conversation.
type ChatRequest struct {
	OwnerID     string
	ChatID      string
	DocumentID  string
	WorkspaceID string
	Message     string
	WebSearch   bool
}

// ChatResult is the outcome of a non-streaming chat turn.
type ChatResult struct {
	ChatID string
	Reply  string
}

// ChatService answers questions over a user's documents.
type ChatService interface {
	// ProcessChat answers a chat turn and returns the full reply.
	ProcessChat(ctx context.Context, req ChatRequest) (ChatResult, error)
	// StreamChat answers a chat turn, streaming the reply via callback.
	// start runs once the chat is resolved and before the first chunk, so
	// callers can expose the chat ID ahead of the stream.
	StreamChat(ctx context.Context, req ChatRequest, start func(chatID string) error, callback func(chunk string) error) error
}

type chatService struct {
	chatRepo  storage.ChatStore
	retriever Retriever
	llmClient CompletionClient
	params    llm.ChatParams
}

// NewChatService creates a new ChatService.
func NewChatService(chatRepo storage.ChatStore, retriever Retriever, llmClient CompletionClient, params llm.ChatParams) ChatService {
	return &chatService{
		chatRepo:  chatRepo,
		retriever: retriever,
		llmClient: llmClient,
		params:    params,
	}
}

// ProcessChat answers a chat turn and returns the full reply.
func (s *chatService) ProcessChat(ctx context.Context, req ChatRequest) (ChatResult, error) {
	chat, prompt, err := s.prepare(ctx, req)
	if err != nil {
		return ChatResult{}, err
	}

	reply, err := s.llmClient.ChatWithMessages(ctx, prompt, s.params)
	if err != nil {
		return ChatResult{ChatID: chat.ID}, WrapError(err, "failed to get LLM response")
	}

	if err := s.saveAssistantMessage(ctx, chat.ID, reply); err != nil {
		return ChatResult{ChatID: chat.ID}, err
	}

	return ChatResult{ChatID: chat.ID, Reply: reply}, nil
}

// StreamChat answers a chat turn, streaming the reply chunk by chunk. The
// accumulated reply is persisted even when the stream breaks partway, so
// the transcript keeps whatever the user already saw.
func (s *chatService) StreamChat(ctx context.Context, req ChatRequest, start func(chatID string) error, callback func(chunk string) error) error {
	logger := contextutil.LoggerFromContext(ctx)

	chat, prompt, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}

	if start != nil {
		if err := start(chat.ID); err != nil {
			return WrapError(err, "stream start failed")
		}
	}

	var full string
	streamErr := s.llmClient.StreamChatMessages(ctx, prompt, s.params, func(chunk string) error {
		full += chunk
		return callback(chunk)
	})

	if full != "" {
		if err := s.saveAssistantMessage(context.WithoutCancel(ctx), chat.ID, full); err != nil {
			logger.ErrorContext(ctx, "failed to persist assistant message", "chat_id", chat.ID, "error", err)
		}
	}

	if streamErr != nil {
		return WrapError(streamErr, "failed to stream LLM response")
	}

	logger.InfoContext(ctx, "chat turn completed", "chat_id", chat.ID, "reply_length", len(full))
	return nil
}

// prepare validates the request, loads or creates the chat, persists the
// user message, retrieves context, and assembles the model prompt.
func (s *chatService) prepare(ctx context.Context, req ChatRequest) (*storage.Chat, []llm.Message, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if req.Message == "" {
		return nil, nil, &ValidationError{Field: "message", Message: "cannot be empty"}
	}
	if (req.DocumentID == "") == (req.WorkspaceID == "") {
		return nil, nil, &ValidationError{Field: "documentId", Message: "exactly one of documentId and workspaceId is required"}
	}

	chat, err := s.loadOrCreateChat(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	userMsgID := uuid.New().String()
	if err := s.chatRepo.InsertMessage(ctx, &storage.Message{
		ID:      userMsgID,
		ChatID:  chat.ID,
		Role:    storage.RoleUser,
		Content: req.Message,
	}); err != nil {
		return nil, nil, WrapError(err, "failed to save user message")
	}

	retrieved, err := s.retriever.Retrieve(ctx, req.Message, rag.Scope{
		OwnerID:     req.OwnerID,
		DocumentID:  chat.DocumentID,
		WorkspaceID: chat.WorkspaceID,
		WebSearch:   req.WebSearch,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	history, err := s.chatRepo.RecentMessages(ctx, chat.ID, historyLimit)
	if err != nil {
		return nil, nil, WrapError(err, "failed to load chat history")
	}

	template := documentPromptTemplate
	if req.WebSearch {
		template = synthesisPromptTemplate
	}

	prompt := make([]llm.Message, 0, len(history)+2)
	prompt = append(prompt, llm.Message{
		Role:    "system",
		Content: fmt.Sprintf(template, retrieved.ContextBlock()),
	})
	for _, msg := range history {
		// The just-saved user message comes back in history; it goes at
		// the end instead. Earlier turns that happen to repeat the same
		// question stay.
		if msg.ID == userMsgID {
			continue
		}
		prompt = append(prompt, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	prompt = append(prompt, llm.Message{Role: storage.RoleUser, Content: req.Message})

	logger.DebugContext(ctx, "prepared chat prompt",
		"chat_id", chat.ID, "history", len(history), "passages", len(retrieved.Passages),
		"web_results", len(retrieved.WebResults), "broadened", retrieved.Broadened)

	return chat, prompt, nil
}

func (s *chatService) loadOrCreateChat(ctx context.Context, req ChatRequest) (*storage.Chat, error) {
	if req.ChatID != "" {
		chat, err := s.chatRepo.GetChatForOwner(ctx, req.ChatID, req.OwnerID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w: chat %s", ErrNotFound, req.ChatID)
			}
			return nil, WrapError(err, "failed to load chat")
		}
		return chat, nil
	}

	chat := &storage.Chat{
		ID:          uuid.New().String(),
		OwnerID:     req.OwnerID,
		DocumentID:  req.DocumentID,
		WorkspaceID: req.WorkspaceID,
		Title:       chatTitle(req.Message),
	}
	if err := s.chatRepo.InsertChat(ctx, chat); err != nil {
		return nil, WrapError(err, "failed to create chat")
	}
	return chat, nil
}

func (s *chatService) saveAssistantMessage(ctx context.Context, chatID, content string) error {
	return WrapError(s.chatRepo.InsertMessage(ctx, &storage.Message{
		ID:      uuid.New().String(),
		ChatID:  chatID,
		Role:    storage.RoleAssistant,
		Content: content,
	}), "failed to save assistant message")
}

// chatTitle derives a chat title from the first message.
func chatTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleMaxLen {
		return message
	}
	return string(runes[:titleMaxLen]) + "..."
}
