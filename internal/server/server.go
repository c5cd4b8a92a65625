package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/lexora-ai/lexora/internal/auth"
)

// Server is the Lexora HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds all dependencies and configuration for creating a Server.
type Config struct {
	Store    Store
	JWTMgr   *auth.JWTManager
	Analyzer Analyzer
	Logger   *slog.Logger

	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Version        string
	MaxUploadBytes int64
}

// New creates a new HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		Store:          cfg.Store,
		JWTMgr:         cfg.JWTMgr,
		Analyzer:       cfg.Analyzer,
		Logger:         cfg.Logger,
		Version:        cfg.Version,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	mux := http.NewServeMux()

	// Auth endpoint (no auth required).
	mux.HandleFunc("POST /auth/token", h.HandleAuthToken)

	// Document upload and analysis.
	mux.HandleFunc("POST /v1/documents", h.HandleUploadDocument)
	mux.HandleFunc("GET /v1/documents", h.HandleListDocuments)

	// Discovery review.
	mux.HandleFunc("GET /v1/discoveries", h.HandleListDiscoveries)
	mux.HandleFunc("GET /v1/discoveries/{discovery_id}", h.HandleGetDiscovery)
	mux.HandleFunc("PATCH /v1/discoveries/{discovery_id}/status", h.HandleUpdateDiscoveryStatus)

	// Health (no auth).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	// Uploads can be large and analysis runs inline, so the write timeout
	// covers the whole pipeline.
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Minute
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: writeTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
