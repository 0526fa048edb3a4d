// Package api provides HTTP handlers for the counselor API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sevenedu/counselor/internal/convlog"
	"github.com/sevenedu/counselor/internal/llm"
	"github.com/sevenedu/counselor/internal/prompt"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Handler serves the chat and analysis routes. It keeps no state between
// requests beyond its collaborators.
type Handler struct {
	openai      llm.Provider
	together    llm.Provider
	builder     *prompt.Builder
	log         convlog.Logger
	maxBodySize int64
}

// Option customizes a Handler.
type Option func(*Handler)

// WithConversationLogger records every turn and reply through l.
func WithConversationLogger(l convlog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithMaxBodySize caps request bodies at n bytes.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// NewHandler creates a Handler. together may be nil, in which case the
// Together route answers 503.
func NewHandler(openai, together llm.Provider, builder *prompt.Builder, opts ...Option) *Handler {
	h := &Handler{
		openai:      openai,
		together:    together,
		builder:     builder,
		log:         convlog.Noop{},
		maxBodySize: defaultMaxRequestBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the counselor routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.HandleGuidedChat)
		r.Post("/post-onboarding-chat", h.HandleCounselorChat)
		r.Post("/together-ai-chat", h.HandleTogetherChat)
		r.Post("/student-analysis", h.HandleAnalysis)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
