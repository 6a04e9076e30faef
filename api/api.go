package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/forkyhq/forky/pkg/service"
)

// Server is the HTTP API server for the forky system.
type Server struct {
	config Config
	svc    *service.ConversationService
	logger *zap.Logger
	app    *fiber.App
}

// NewServer creates a new API server over the given service.
func NewServer(config Config, svc *service.ConversationService, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		svc:    svc,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/models", s.handleModels)
	app.Get("/search", s.handleSearch)

	app.Get("/conversations", s.handleListConversations)
	app.Post("/conversations", s.handleCreateConversation)
	app.Delete("/conversations/:id", s.handleDeleteConversation)
	app.Patch("/conversations/:id", s.handleRenameConversation)
	app.Post("/conversations/:id/load", s.handleLoadConversation)

	app.Get("/conversations/:id/graph", s.handleGetGraph)
	app.Get("/conversations/:id/history", s.handleGetHistory)
	app.Post("/conversations/:id/checkout", s.handleCheckout)
	app.Post("/conversations/:id/fork", s.handleFork)
	app.Delete("/conversations/:id/nodes/:nodeID", s.handleDeleteNode)

	app.Get("/conversations/:id/merge/eligibility", s.handleMergeEligibility)
	app.Post("/conversations/:id/merge", s.handleMerge)

	app.Post("/conversations/:id/chat", s.handleChat)

	return s
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
