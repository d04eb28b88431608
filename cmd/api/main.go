package main

import (
	"context"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"

	"docuchat/internal/config"
	"docuchat/internal/http"
	"docuchat/internal/indexer"
	"docuchat/internal/llm"
	"docuchat/internal/rag"
	"docuchat/internal/service"
	"docuchat/internal/storage"
	"docuchat/internal/vectorstore"
	"docuchat/internal/websearch"
)

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Configure structured logging with configurable level and format
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	// Initialize database
	db, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		_ = db.Close()
	}()

	if err := storage.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	slog.Info("Database initialized", "path", cfg.DBPath)

	// Create repository instances
	docRepo := storage.NewDocumentRepo(db)
	chunkRepo := storage.NewChunkRepo(db)
	workspaceRepo := storage.NewWorkspaceRepo(db)
	chatRepo := storage.NewChatRepo(db)

	ctx := context.Background()

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
	if err != nil {
		log.Fatalf("Failed to create Qdrant client: %v", err)
	}

	// Ensure collection exists with correct vector size
	if err := vectorStore.EnsureCollection(ctx, cfg.QdrantCollection, cfg.VectorSize); err != nil {
		log.Fatalf("Failed to ensure Qdrant collection: %v", err)
	}
	slog.Info("Qdrant collection ready", "collection", cfg.QdrantCollection, "vector_size", cfg.VectorSize)

	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.VectorSize)

	// Create indexing pipeline
	pipeline := indexer.NewPipeline(
		docRepo,
		chunkRepo,
		embedder,
		vectorStore,
		cfg.QdrantCollection,
	)

	// Create web search client (disabled without an API key)
	searcher := websearch.NewClient(cfg.SearchProviders, cfg.SearchAPIKey)
	if searcher.Enabled() {
		slog.Info("Web search enabled", "providers", len(cfg.SearchProviders))
	} else {
		slog.Info("Web search disabled")
	}

	// Create retriever and chat service
	retriever := rag.NewRetriever(embedder, vectorStore, docRepo, searcher, cfg.QdrantCollection)
	llmClient := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	chatService := service.NewChatService(chatRepo, retriever, llmClient, llm.ChatParams{
		Model: cfg.LLMModelName,
	})
	slog.Info("Chat service initialized", "model", cfg.LLMModelName)

	// Create router with dependencies
	deps := &http.Deps{
		DB:            db,
		DocRepo:       docRepo,
		ChunkRepo:     chunkRepo,
		WorkspaceRepo: workspaceRepo,
		ChatRepo:      chatRepo,
		VectorStore:   vectorStore,
		Pipeline:      pipeline,
		ChatService:   chatService,
		Collection:    cfg.QdrantCollection,
	}
	router := http.NewRouter(deps)

	// Start API server
	addr := ":" + cfg.APIPort
	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := nethttp.ListenAndServe(addr, router); err != nil {
		log.Fatalf("API server failed to start: %v", err)
	}
}
