package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"docuchat/internal/llm"
	"docuchat/internal/rag"
	"docuchat/internal/service"
	"docuchat/internal/service/mocks"
	"docuchat/internal/storage"
	storemocks "docuchat/internal/storage/mocks"
)

func setupChatTest(t *testing.T) (*storemocks.MockChatStore, *mocks.MockRetriever, *mocks.MockCompletionClient, service.ChatService) {
	t.Helper()

	ctrl := gomock.NewController(t)
	chatRepo := storemocks.NewMockChatStore(ctrl)
	retriever := mocks.NewMockRetriever(ctrl)
	llmClient := mocks.NewMockCompletionClient(ctrl)

	svc := service.NewChatService(chatRepo, retriever, llmClient, llm.ChatParams{Model: "test-model"})
	return chatRepo, retriever, llmClient, svc
}

func retrievedContext(text string) *rag.Context {
	return &rag.Context{
		Passages: []rag.Passage{{DocumentID: "doc-1", DocumentName: "Guide", Text: text}},
	}
}

func TestProcessChat_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  service.ChatRequest
	}{
		{
			name: "empty message",
			req:  service.ChatRequest{OwnerID: "user-1", DocumentID: "doc-1"},
		},
		{
			name: "no scope",
			req:  service.ChatRequest{OwnerID: "user-1", Message: "hello"},
		},
		{
			name: "both scopes",
			req: service.ChatRequest{
				OwnerID: "user-1", Message: "hello",
				DocumentID: "doc-1", WorkspaceID: "ws-1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, _, svc := setupChatTest(t)

			_, err := svc.ProcessChat(context.Background(), tt.req)
			var validationErr *service.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("ProcessChat() error = %v, want ValidationError", err)
			}
		})
	}
}

func TestProcessChat_NewChat(t *testing.T) {
	chatRepo, retriever, llmClient, svc := setupChatTest(t)

	req := service.ChatRequest{
		OwnerID:    "user-1",
		DocumentID: "doc-1",
		Message:    "what is the refund policy?",
	}

	var createdChat *storage.Chat
	chatRepo.EXPECT().InsertChat(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, chat *storage.Chat) error {
			createdChat = chat
			return nil
		})
	var userMsgID string
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *storage.Message) error {
			if msg.Role != storage.RoleUser || msg.Content != req.Message {
				t.Errorf("user message = (%s, %q)", msg.Role, msg.Content)
			}
			userMsgID = msg.ID
			return nil
		})
	retriever.EXPECT().
		Retrieve(gomock.Any(), req.Message, rag.Scope{OwnerID: "user-1", DocumentID: "doc-1"}).
		Return(retrievedContext("refunds take 14 days"), nil)
	chatRepo.EXPECT().RecentMessages(gomock.Any(), gomock.Any(), 10).
		DoAndReturn(func(_ context.Context, chatID string, _ int) ([]storage.Message, error) {
			return []storage.Message{
				{ID: userMsgID, ChatID: chatID, Role: storage.RoleUser, Content: req.Message},
			}, nil
		})

	var prompt []llm.Message
	llmClient.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), llm.ChatParams{Model: "test-model"}).
		DoAndReturn(func(_ context.Context, messages []llm.Message, _ llm.ChatParams) (string, error) {
			prompt = messages
			return "Refunds take 14 days.", nil
		})
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *storage.Message) error {
			if msg.Role != storage.RoleAssistant || msg.Content != "Refunds take 14 days." {
				t.Errorf("assistant message = (%s, %q)", msg.Role, msg.Content)
			}
			return nil
		})

	result, err := svc.ProcessChat(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessChat() error = %v", err)
	}
	if result.Reply != "Refunds take 14 days." {
		t.Errorf("Reply = %q", result.Reply)
	}
	if createdChat == nil {
		t.Fatal("no chat was created")
	}
	if result.ChatID != createdChat.ID {
		t.Errorf("ChatID = %q, want %q", result.ChatID, createdChat.ID)
	}
	if createdChat.Title != req.Message {
		t.Errorf("Title = %q, want %q", createdChat.Title, req.Message)
	}

	if len(prompt) != 2 {
		t.Fatalf("prompt has %d messages, want 2 (system + user)", len(prompt))
	}
	if prompt[0].Role != "system" || !strings.Contains(prompt[0].Content, "refunds take 14 days") {
		t.Errorf("system prompt missing retrieved context:\n%s", prompt[0].Content)
	}
	if !strings.Contains(prompt[0].Content, "[Guide]") {
		t.Errorf("system prompt missing document label:\n%s", prompt[0].Content)
	}
	if prompt[1].Role != storage.RoleUser || prompt[1].Content != req.Message {
		t.Errorf("prompt[1] = %+v, want the user message", prompt[1])
	}
}

func TestProcessChat_TruncatesLongTitle(t *testing.T) {
	chatRepo, retriever, llmClient, svc := setupChatTest(t)

	message := strings.Repeat("a", 80)
	req := service.ChatRequest{OwnerID: "user-1", DocumentID: "doc-1", Message: message}

	var title string
	chatRepo.EXPECT().InsertChat(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, chat *storage.Chat) error {
			title = chat.Title
			return nil
		})
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&rag.Context{}, nil)
	chatRepo.EXPECT().RecentMessages(gomock.Any(), gomock.Any(), 10).Return(nil, nil)
	llmClient.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("reply", nil)

	if _, err := svc.ProcessChat(context.Background(), req); err != nil {
		t.Fatalf("ProcessChat() error = %v", err)
	}

	want := strings.Repeat("a", 50) + "..."
	if title != want {
		t.Errorf("Title = %q, want %q", title, want)
	}
}

func TestProcessChat_ExistingChatNotOwned(t *testing.T) {
	chatRepo, _, _, svc := setupChatTest(t)

	chatRepo.EXPECT().GetChatForOwner(gomock.Any(), "chat-1", "user-2").
		Return(nil, storage.ErrNotFound)

	_, err := svc.ProcessChat(context.Background(), service.ChatRequest{
		OwnerID: "user-2", ChatID: "chat-1", DocumentID: "doc-1", Message: "hello",
	})
	if !errors.Is(err, service.ErrNotFound) {
		t.Fatalf("ProcessChat() error = %v, want ErrNotFound", err)
	}
}

func TestProcessChat_RetrievalFailure(t *testing.T) {
	chatRepo, retriever, _, svc := setupChatTest(t)

	chatRepo.EXPECT().InsertChat(gomock.Any(), gomock.Any()).Return(nil)
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).Return(nil)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("qdrant unavailable"))

	_, err := svc.ProcessChat(context.Background(), service.ChatRequest{
		OwnerID: "user-1", DocumentID: "doc-1", Message: "hello",
	})
	if !errors.Is(err, service.ErrExternalService) {
		t.Fatalf("ProcessChat() error = %v, want ErrExternalService", err)
	}
}

func TestProcessChat_ExistingChatHistory(t *testing.T) {
	chatRepo, retriever, llmClient, svc := setupChatTest(t)

	chat := &storage.Chat{ID: "chat-1", OwnerID: "user-1", DocumentID: "doc-1", Title: "earlier"}
	req := service.ChatRequest{OwnerID: "user-1", ChatID: "chat-1", DocumentID: "doc-1", Message: "and then?"}

	chatRepo.EXPECT().GetChatForOwner(gomock.Any(), "chat-1", "user-1").Return(chat, nil)
	var userMsgID string
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *storage.Message) error {
			if msg.Role == storage.RoleUser {
				userMsgID = msg.ID
			}
			return nil
		}).Times(2)
	retriever.EXPECT().
		Retrieve(gomock.Any(), req.Message, rag.Scope{OwnerID: "user-1", DocumentID: "doc-1"}).
		Return(retrievedContext("context"), nil)
	chatRepo.EXPECT().RecentMessages(gomock.Any(), "chat-1", 10).
		DoAndReturn(func(context.Context, string, int) ([]storage.Message, error) {
			return []storage.Message{
				{ID: "msg-1", ChatID: "chat-1", Role: storage.RoleUser, Content: "first question"},
				{ID: "msg-2", ChatID: "chat-1", Role: storage.RoleAssistant, Content: "first answer"},
				{ID: userMsgID, ChatID: "chat-1", Role: storage.RoleUser, Content: "and then?"},
			}, nil
		})

	var prompt []llm.Message
	llmClient.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, messages []llm.Message, _ llm.ChatParams) (string, error) {
			prompt = messages
			return "reply", nil
		})

	result, err := svc.ProcessChat(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessChat() error = %v", err)
	}
	if result.ChatID != "chat-1" {
		t.Errorf("ChatID = %q, want chat-1", result.ChatID)
	}

	// system, two history messages, then the current question exactly once.
	wantRoles := []string{"system", storage.RoleUser, storage.RoleAssistant, storage.RoleUser}
	if len(prompt) != len(wantRoles) {
		t.Fatalf("prompt has %d messages, want %d: %+v", len(prompt), len(wantRoles), prompt)
	}
	for i, role := range wantRoles {
		if prompt[i].Role != role {
			t.Errorf("prompt[%d].Role = %q, want %q", i, prompt[i].Role, role)
		}
	}
	if prompt[3].Content != "and then?" {
		t.Errorf("prompt[3].Content = %q, want the current question", prompt[3].Content)
	}
}

func TestProcessChat_RepeatedQuestionKeptInHistory(t *testing.T) {
	chatRepo, retriever, llmClient, svc := setupChatTest(t)

	chat := &storage.Chat{ID: "chat-1", OwnerID: "user-1", DocumentID: "doc-1", Title: "earlier"}
	req := service.ChatRequest{OwnerID: "user-1", ChatID: "chat-1", DocumentID: "doc-1", Message: "what changed?"}

	chatRepo.EXPECT().GetChatForOwner(gomock.Any(), "chat-1", "user-1").Return(chat, nil)
	var userMsgID string
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *storage.Message) error {
			if msg.Role == storage.RoleUser {
				userMsgID = msg.ID
			}
			return nil
		}).Times(2)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(retrievedContext("context"), nil)
	// An earlier turn asked the same question. Only the row just inserted for
	// this turn gets dropped from history.
	chatRepo.EXPECT().RecentMessages(gomock.Any(), "chat-1", 10).
		DoAndReturn(func(context.Context, string, int) ([]storage.Message, error) {
			return []storage.Message{
				{ID: "msg-1", ChatID: "chat-1", Role: storage.RoleUser, Content: "what changed?"},
				{ID: "msg-2", ChatID: "chat-1", Role: storage.RoleAssistant, Content: "the pricing"},
				{ID: userMsgID, ChatID: "chat-1", Role: storage.RoleUser, Content: "what changed?"},
			}, nil
		})

	var prompt []llm.Message
	llmClient.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, messages []llm.Message, _ llm.ChatParams) (string, error) {
			prompt = messages
			return "reply", nil
		})

	if _, err := svc.ProcessChat(context.Background(), req); err != nil {
		t.Fatalf("ProcessChat() error = %v", err)
	}

	wantRoles := []string{"system", storage.RoleUser, storage.RoleAssistant, storage.RoleUser}
	if len(prompt) != len(wantRoles) {
		t.Fatalf("prompt has %d messages, want %d: %+v", len(prompt), len(wantRoles), prompt)
	}
	if prompt[1].Content != "what changed?" {
		t.Errorf("prompt[1].Content = %q, want the earlier question kept", prompt[1].Content)
	}
}

func TestProcessChat_WebSearchUsesSynthesisPrompt(t *testing.T) {
	chatRepo, retriever, llmClient, svc := setupChatTest(t)

	req := service.ChatRequest{OwnerID: "user-1", DocumentID: "doc-1", Message: "latest news?", WebSearch: true}

	chatRepo.EXPECT().InsertChat(gomock.Any(), gomock.Any()).Return(nil)
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).Return(nil).Times(2)
	retriever.EXPECT().
		Retrieve(gomock.Any(), req.Message, rag.Scope{OwnerID: "user-1", DocumentID: "doc-1", WebSearch: true}).
		Return(retrievedContext("context"), nil)
	chatRepo.EXPECT().RecentMessages(gomock.Any(), gomock.Any(), 10).Return(nil, nil)

	var system string
	llmClient.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, messages []llm.Message, _ llm.ChatParams) (string, error) {
			system = messages[0].Content
			return "reply", nil
		})

	if _, err := svc.ProcessChat(context.Background(), req); err != nil {
		t.Fatalf("ProcessChat() error = %v", err)
	}

	if !strings.Contains(system, "web search results") {
		t.Errorf("system prompt should blend web results:\n%s", system)
	}
	if strings.Contains(system, "based strictly") {
		t.Errorf("system prompt should not be the document-only one:\n%s", system)
	}
}

func TestStreamChat(t *testing.T) {
	chatRepo, retriever, llmClient, svc := setupChatTest(t)

	req := service.ChatRequest{OwnerID: "user-1", DocumentID: "doc-1", Message: "hello"}

	chatRepo.EXPECT().InsertChat(gomock.Any(), gomock.Any()).Return(nil)
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).Return(nil)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&rag.Context{}, nil)
	chatRepo.EXPECT().RecentMessages(gomock.Any(), gomock.Any(), 10).Return(nil, nil)
	llmClient.EXPECT().StreamChatMessages(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ []llm.Message, _ llm.ChatParams, callback func(chunk string) error) error {
			for _, chunk := range []string{"Hel", "lo ", "there"} {
				if err := callback(chunk); err != nil {
					return err
				}
			}
			return nil
		})

	var saved string
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *storage.Message) error {
			saved = msg.Content
			return nil
		})

	var startedChatID string
	var chunks []string
	err := svc.StreamChat(context.Background(), req,
		func(chatID string) error {
			if len(chunks) > 0 {
				t.Error("start hook ran after the first chunk")
			}
			startedChatID = chatID
			return nil
		},
		func(chunk string) error {
			chunks = append(chunks, chunk)
			return nil
		})
	if err != nil {
		t.Fatalf("StreamChat() error = %v", err)
	}

	if startedChatID == "" {
		t.Error("start hook was not called")
	}
	if got := strings.Join(chunks, ""); got != "Hello there" {
		t.Errorf("streamed %q, want %q", got, "Hello there")
	}
	if saved != "Hello there" {
		t.Errorf("persisted assistant message = %q, want %q", saved, "Hello there")
	}
}

func TestStreamChat_PersistsPartialReplyOnError(t *testing.T) {
	chatRepo, retriever, llmClient, svc := setupChatTest(t)

	req := service.ChatRequest{OwnerID: "user-1", DocumentID: "doc-1", Message: "hello"}

	chatRepo.EXPECT().InsertChat(gomock.Any(), gomock.Any()).Return(nil)
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).Return(nil)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&rag.Context{}, nil)
	chatRepo.EXPECT().RecentMessages(gomock.Any(), gomock.Any(), 10).Return(nil, nil)
	llmClient.EXPECT().StreamChatMessages(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ []llm.Message, _ llm.ChatParams, callback func(chunk string) error) error {
			if err := callback("partial "); err != nil {
				return err
			}
			return errors.New("connection reset")
		})

	var saved string
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *storage.Message) error {
			saved = msg.Content
			return nil
		})

	err := svc.StreamChat(context.Background(), req,
		func(string) error { return nil },
		func(string) error { return nil })
	if err == nil {
		t.Fatal("StreamChat() expected error, got nil")
	}
	if saved != "partial " {
		t.Errorf("persisted assistant message = %q, want %q", saved, "partial ")
	}
}

func TestStreamChat_StartHookFailure(t *testing.T) {
	chatRepo, retriever, _, svc := setupChatTest(t)

	chatRepo.EXPECT().InsertChat(gomock.Any(), gomock.Any()).Return(nil)
	chatRepo.EXPECT().InsertMessage(gomock.Any(), gomock.Any()).Return(nil)
	retriever.EXPECT().Retrieve(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(&rag.Context{}, nil)
	chatRepo.EXPECT().RecentMessages(gomock.Any(), gomock.Any(), 10).Return(nil, nil)

	err := svc.StreamChat(context.Background(),
		service.ChatRequest{OwnerID: "user-1", DocumentID: "doc-1", Message: "hello"},
		func(string) error { return errors.New("client went away") },
		func(string) error {
			t.Error("callback ran after start hook failure")
			return nil
		})
	if err == nil {
		t.Fatal("StreamChat() expected error, got nil")
	}
}
