package http

import (
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docuchat/internal/handlers"
	"docuchat/internal/indexer"
	"docuchat/internal/service"
	"docuchat/internal/storage"
	"docuchat/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	DB            *sql.DB
	DocRepo       storage.DocumentStore
	ChunkRepo     storage.ChunkStore
	WorkspaceRepo storage.WorkspaceStore
	ChatRepo      storage.ChatStore
	VectorStore   vectorstore.VectorStore
	Pipeline      *indexer.Pipeline
	ChatService   service.ChatService
	Collection    string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(CORS)

	documentsHandler := handlers.NewDocumentsHandler(
		deps.DocRepo, deps.ChunkRepo, deps.VectorStore, deps.Pipeline, deps.Collection)
	workspacesHandler := handlers.NewWorkspacesHandler(deps.WorkspaceRepo, deps.DocRepo)
	chatHandler := handlers.NewChatHandler(deps.ChatService)
	chatsHandler := handlers.NewChatsHandler(deps.ChatRepo)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.VectorStore, deps.Collection)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/", documentsHandler.Create)
			r.Get("/", documentsHandler.List)
			r.Get("/{id}", documentsHandler.Get)
			r.Delete("/{id}", documentsHandler.Delete)
			r.Post("/{id}/retry", documentsHandler.Retry)
		})

		r.Route("/workspaces", func(r chi.Router) {
			r.Post("/", workspacesHandler.Create)
			r.Get("/", workspacesHandler.List)
			r.Get("/{id}", workspacesHandler.Get)
			r.Delete("/{id}", workspacesHandler.Delete)
		})

		r.Method(http.MethodPost, "/chat", chatHandler)
		r.Get("/chats/{id}/messages", chatsHandler.Messages)
	})

	return r
}
