// Package api exposes the document question-answering service over HTTP:
// an SSE streaming ask endpoint, conversation CRUD, client configuration,
// and health probes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tomeworks/tome/internal/config"
	"github.com/tomeworks/tome/internal/history"
	"github.com/tomeworks/tome/internal/rag"
)

// Asker generates a streamed answer for one question.
type Asker interface {
	Ask(ctx context.Context, req rag.Request, handler rag.Handler) (*rag.Answer, error)
}

// ConversationStore persists users and their conversation history.
type ConversationStore interface {
	GetOrCreateUser(ctx context.Context, apiKey, userIdentity string) (string, error)
	SaveConversation(ctx context.Context, userID string, conv *history.Conversation) error
	ListConversations(ctx context.Context, userID string, limit int) ([]*history.Conversation, error)
	GetConversation(ctx context.Context, userID, conversationID string) (*history.Conversation, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error
	ClearConversations(ctx context.Context, userID string) error
	Ping(ctx context.Context) error
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger  *slog.Logger
	Config  *config.Config    // Required
	Engine  Asker             // Required
	History ConversationStore // Required
	Vectors HealthChecker     // Optional: nil disables the vector store check in /ready
}

// Server is the JSON/SSE API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if cfg.History == nil {
		return nil, errors.New("history store is required")
	}
	if cfg.Config.APIKey == "" {
		return nil, errors.New("API key is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &askHandler{
		engine:           cfg.Engine,
		logger:           logger,
		maxQueryLength:   cfg.Config.MaxQueryLength,
		defaultDatastore: cfg.Config.DefaultDatastore,
		collectionPrefix: cfg.Config.CollectionPrefix,
	}

	ch := &conversationHandler{
		store:  cfg.History,
		logger: logger,
	}

	mux := http.NewServeMux()

	// Ask (SSE)
	mux.HandleFunc("POST /api/v1/ask", ah.ask)

	// Client configuration
	mux.HandleFunc("GET /api/v1/config", clientConfig(cfg.Config, logger))

	// Conversation CRUD
	mux.HandleFunc("GET /api/v1/conversations", ch.list)
	mux.HandleFunc("POST /api/v1/conversations", ch.save)
	mux.HandleFunc("DELETE /api/v1/conversations", ch.clear)
	mux.HandleFunc("GET /api/v1/conversations/{id}", ch.get)
	mux.HandleFunc("PUT /api/v1/conversations/{id}", ch.update)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", ch.delete)

	// Rate limiter: per-IP token bucket, refill rate and burst from config
	burst := cfg.Config.RateBurst
	if burst <= 0 {
		burst = 60
	}
	refill := cfg.Config.RateLimit
	if refill <= 0 {
		refill = 1.0
	}
	rl := newIPLimiter(refill, burst)

	// Build middleware stack (outermost first):
	//   Recovery → RequestID → Logging → CORS → RateLimit → APIKey → Routes
	// RequestID must be before Logging so request_id is available in log attributes.
	// CORS must be before RateLimit so preflight OPTIONS gets proper CORS headers,
	// and before APIKey so preflight requests are never rejected.
	var handler http.Handler = mux
	handler = apiKeyMiddleware(cfg.Config.APIKey, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.Config.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.Config.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Use a top-level mux to separate health probes from middleware stack
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.History, cfg.Vectors, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
