// Package api exposes question answering over HTTP as a small JSON API.
//
// Routes:
//   - POST /ask        blocking answer with ranked sources
//   - POST /ask/stream same, streamed as SSE fragments
//   - GET  /health     liveness probe
//
// The caller is trusted to have authorized the request already; there
// is no auth layer here.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tutorly/tutorly/internal/answer"
)

// QuestionAnswerer is the slice of answering capability the API needs.
type QuestionAnswerer interface {
	Ask(ctx context.Context, question string, opts answer.Options) (*answer.Response, error)
	AskStream(ctx context.Context, question string, opts answer.Options, onFragment func(string)) (*answer.Response, error)
}

// ServerConfig configures the API server.
type ServerConfig struct {
	Logger     *slog.Logger
	Answerer   QuestionAnswerer // required
	TrustProxy bool             // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst  int              // per-IP burst size (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer creates the server with all routes and middleware wired.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Answerer == nil {
		return nil, errors.New("answerer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &askHandler{answerer: cfg.Answerer, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health(logger))
	mux.HandleFunc("POST /ask", ah.ask)
	mux.HandleFunc("POST /ask/stream", ah.askStream)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID before Logging so request_id appears in log attributes.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler}, nil
}

// Handler returns the root handler for http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
