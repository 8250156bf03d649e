// Package api exposes the conversation and handoff operations as a JSON HTTP
// API. Customers drive conversations through /api/v1/conversations; human
// agents work the escalation queue through /api/v1/handoff.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caspar0/caspar/internal/agent"
	"github.com/caspar0/caspar/internal/log"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      log.Logger
	Agent       *agent.Agent  // Required
	Pool        *pgxpool.Pool // Optional: nil disables the database readiness check
	CORSOrigins []string      // Allowed origins for CORS
	IsDev       bool          // Disables HSTS
	TrustProxy  bool          // Trust X-Real-IP/X-Forwarded-For headers
	RateBurst   int           // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Agent == nil {
		return nil, errors.New("agent is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Config{})
	}

	ch := &conversationHandler{agent: cfg.Agent, logger: logger}
	hh := &handoffHandler{agent: cfg.Agent, queue: cfg.Agent.Queue(), logger: logger}

	mux := http.NewServeMux()

	// Conversation lifecycle
	mux.HandleFunc("POST /api/v1/conversations", ch.create)
	mux.HandleFunc("GET /api/v1/conversations/{id}", ch.get)
	mux.HandleFunc("POST /api/v1/conversations/{id}/messages", ch.sendMessage)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", ch.end)

	// Handoff queue for human agents
	mux.HandleFunc("GET /api/v1/handoff/queue", hh.listQueue)
	mux.HandleFunc("GET /api/v1/handoff/cases/{id}", hh.getCase)
	mux.HandleFunc("POST /api/v1/handoff/cases/{id}/claim", hh.claimCase)
	mux.HandleFunc("POST /api/v1/handoff/cases/{id}/resolve", hh.resolveCase)

	// Response approval: drafts held for human review
	mux.HandleFunc("POST /api/v1/handoff/cases/{id}/drafts", hh.submitDraft)
	mux.HandleFunc("POST /api/v1/handoff/approvals/{id}/approve", hh.approveDraft)
	mux.HandleFunc("POST /api/v1/handoff/approvals/{id}/reject", hh.rejectDraft)

	// Per-IP token bucket, 1 token/sec refill.
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery -> RequestID -> Logging -> CORS -> RateLimit -> Routes
	// RequestID sits before Logging so request_id is available in the log
	// attributes; CORS sits before RateLimit so preflight OPTIONS gets
	// proper CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
