package server

import (
	"context"
	"net/http"

	"github.com/rumor-ml/commons.systems/banksync/internal/bog"
	"github.com/rumor-ml/commons.systems/banksync/internal/config"
	"github.com/rumor-ml/commons.systems/banksync/internal/firestore"
	"github.com/rumor-ml/commons.systems/banksync/internal/handlers"
	"github.com/rumor-ml/commons.systems/banksync/internal/middleware"
	"github.com/rumor-ml/commons.systems/banksync/internal/streaming"
)

// Server represents the banksync API server
type Server struct {
	fsClient *firestore.Client
	mux      *http.ServeMux
}

// New creates a new server instance
func New(ctx context.Context, projectID string, cfg *config.Config) (*Server, error) {
	fsClient, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, err
	}

	s := &Server{
		fsClient: fsClient,
		mux:      http.NewServeMux(),
	}

	s.setupRoutes(cfg)

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg *config.Config) {
	// Health check (no auth required)
	s.mux.HandleFunc("/health", handlers.HealthCheck)

	apiHandler := handlers.NewAPIHandler(s.fsClient)
	authMiddleware := middleware.NewAuthMiddleware(s.fsClient.Auth)

	// Sync handlers with streaming hub
	hub := streaming.NewStreamHub()
	source := bog.NewClient(cfg.API.BaseURL, cfg.API.Token)
	syncHandler := handlers.NewSyncHandlers(s.fsClient, hub, source, cfg.BankAccounts(), cfg.IsExcluded)

	// Protected API routes
	s.mux.Handle("/api/transactions", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.GetTransactions)))
	s.mux.Handle("/api/accounts", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.GetAccounts)))
	s.mux.Handle("/api/sessions", authMiddleware.RequireAuth(http.HandlerFunc(apiHandler.GetSessions)))

	// Sync endpoints
	s.mux.Handle("/api/sync/start", authMiddleware.RequireAuth(http.HandlerFunc(syncHandler.StartSync)))
	s.mux.Handle("/api/sync/{id}/cancel", authMiddleware.RequireAuth(http.HandlerFunc(syncHandler.CancelSync)))
	s.mux.Handle("/api/sync/{id}/stream", authMiddleware.RequireAuth(http.HandlerFunc(syncHandler.StreamSync)))
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.mux)
}

// Close closes the server resources
func (s *Server) Close() error {
	return s.fsClient.Close()
}
