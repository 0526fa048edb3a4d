package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sevenedu/counselor/internal/convlog"
	"github.com/sevenedu/counselor/internal/domain"
	"github.com/sevenedu/counselor/internal/identity"
	"github.com/sevenedu/counselor/internal/llm"
	"github.com/sevenedu/counselor/internal/markdown"
	"github.com/sevenedu/counselor/internal/prompt"
)

// User-facing error messages.
const (
	msgInvalidRequest     = "Invalid request format"
	msgInvalidMessages    = "Invalid messages format"
	msgProfileRequired    = "User profile is required"
	msgOnboardingRequired = "Onboarding must be completed before using this chat endpoint"
	msgUserTurnRequired   = "At least one user message is required"
	msgGenerateFailed     = "Failed to generate response. Please try again."
	msgBodyTooLarge       = "request body too large"
	msgProviderDisabled   = "This chat provider is not configured"
	emptyReplyFallback    = "I apologize, but I couldn't generate a response. Please try asking your question again."
)

var (
	guidedOptions = llm.Options{
		Temperature:      0.7,
		MaxTokens:        1500,
		PresencePenalty:  0.6,
		FrequencyPenalty: 0.3,
	}
	counselorOptions = llm.Options{
		Temperature:      0.8,
		MaxTokens:        2000,
		PresencePenalty:  0.7,
		FrequencyPenalty: 0.5,
	}
	togetherOptions = llm.Options{
		Temperature:      0.8,
		MaxTokens:        2000,
		TopP:             0.9,
		PresencePenalty:  0.5,
		FrequencyPenalty: 0.5,
	}
)

// streamTemperature replaces the route temperature on streaming requests.
const streamTemperature = 0.7

// ChatRequest is the inbound body of every chat route.
type ChatRequest struct {
	Messages     json.RawMessage `json:"messages"`
	UserProfile  json.RawMessage `json:"userProfile"`
	Stream       bool            `json:"stream"`
	AdvancedMode *bool           `json:"advancedMode"`
	Model        string          `json:"model"`
}

// ChatResponse is the non-streaming reply.
type ChatResponse struct {
	Message          string `json:"message"`
	FormattedMessage string `json:"formattedMessage"`
}

type wireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatInput is a validated chat request.
type chatInput struct {
	turns   []domain.ChatTurn
	profile *domain.UserProfile
	stream  bool
	mode    prompt.Mode
	model   string
}

// HandleGuidedChat handles POST /api/chat, the onboarding interview.
func (h *Handler) HandleGuidedChat(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeChat(w, r, false)
	if !ok {
		return
	}
	slog.Info("Guided chat request", "name", in.profile.Name, "messages", len(in.turns), "stream", in.stream)
	h.respond(w, r, h.openai, in, h.builder.Guided(in.turns, in.profile), guidedOptions)
}

// HandleCounselorChat handles POST /api/post-onboarding-chat.
func (h *Handler) HandleCounselorChat(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodeChat(w, r, true)
	if !ok {
		return
	}
	slog.Info("Counselor chat request", "name", in.profile.Name, "messages", len(in.turns), "stream", in.stream, "mode", in.mode.String())
	h.respond(w, r, h.openai, in, h.builder.Apply(in.turns, in.profile, in.mode), counselorOptions)
}

// HandleTogetherChat handles POST /api/together-ai-chat.
func (h *Handler) HandleTogetherChat(w http.ResponseWriter, r *http.Request) {
	if h.together == nil {
		Error(w, http.StatusServiceUnavailable, msgProviderDisabled)
		return
	}
	in, ok := h.decodeChat(w, r, true)
	if !ok {
		return
	}
	opts := togetherOptions
	opts.Model = in.model
	slog.Info("Together chat request", "name", in.profile.Name, "messages", len(in.turns), "stream", in.stream, "model", in.model)
	h.respond(w, r, h.together, in, h.builder.Apply(in.turns, in.profile, in.mode), opts)
}

// decodeChat validates the request and writes the 4xx response itself when
// it fails. Failures are checked in a fixed order so the first problem is
// the one reported.
func (h *Handler) decodeChat(w http.ResponseWriter, r *http.Request, requireOnboarding bool) (*chatInput, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
			return nil, false
		}
		Error(w, http.StatusBadRequest, msgInvalidRequest)
		return nil, false
	}

	var raw []wireTurn
	if isNull(req.Messages) || json.Unmarshal(req.Messages, &raw) != nil || len(raw) == 0 {
		Error(w, http.StatusBadRequest, msgInvalidMessages)
		return nil, false
	}
	turns := make([]domain.ChatTurn, 0, len(raw))
	for _, t := range raw {
		role, err := domain.ParseRole(t.Role)
		if err != nil {
			Error(w, http.StatusBadRequest, msgInvalidMessages)
			return nil, false
		}
		turns = append(turns, domain.ChatTurn{Role: role, Content: t.Content})
	}

	if isNull(req.UserProfile) {
		Error(w, http.StatusBadRequest, msgProfileRequired)
		return nil, false
	}
	var profile domain.UserProfile
	if err := json.Unmarshal(req.UserProfile, &profile); err != nil {
		Error(w, http.StatusBadRequest, msgInvalidRequest)
		return nil, false
	}
	if missing := profile.MissingRequiredFields(); len(missing) > 0 {
		Error(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return nil, false
	}
	if requireOnboarding && !profile.IsOnboardingComplete() {
		Error(w, http.StatusBadRequest, msgOnboardingRequired)
		return nil, false
	}

	if !domain.HasUserTurn(turns) {
		Error(w, http.StatusBadRequest, msgUserTurnRequired)
		return nil, false
	}
	if !domain.LastIsUser(turns) {
		slog.Warn("The most recent non-system message should be from the user", "messages", len(turns))
	}

	advanced := true
	if req.AdvancedMode != nil {
		advanced = *req.AdvancedMode
	}

	return &chatInput{
		turns:   turns,
		profile: &profile,
		stream:  req.Stream,
		mode:    prompt.ModeFor(advanced),
		model:   strings.TrimSpace(req.Model),
	}, true
}

// respond sends the prepared turns to the provider using the branch the
// client asked for.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, provider llm.Provider, in *chatInput, turns []domain.ChatTurn, opts llm.Options) {
	h.logUserTurn(r, in.turns)
	if in.stream {
		opts.Temperature = streamTemperature
		h.streamReply(w, r, provider, turns, opts)
		return
	}

	reply, err := provider.Complete(r.Context(), turns, opts)
	if err != nil {
		slog.Error("Provider completion failed", "provider", provider.Name(), "error", err)
		h.logAssistantReply(r, "", 0, true, err.Error())
		Error(w, http.StatusInternalServerError, msgGenerateFailed)
		return
	}
	if strings.TrimSpace(reply) == "" {
		reply = emptyReplyFallback
	}
	h.logAssistantReply(r, reply, 1, false, "")
	JSON(w, http.StatusOK, ChatResponse{Message: reply, FormattedMessage: markdown.Render(reply)})
}

// streamReply forwards provider deltas as raw UTF-8 text. Headers are
// committed on the first delta, so a provider failure before any output
// still gets a JSON 500. A failure after output aborts the connection so
// the client sees a broken stream instead of a silently short reply.
func (h *Handler) streamReply(w http.ResponseWriter, r *http.Request, provider llm.Provider, turns []domain.ChatTurn, opts llm.Options) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var content strings.Builder
	chunks := 0
	started := false
	start := func() {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		started = true
	}

	for delta, err := range provider.Stream(r.Context(), turns, opts) {
		if err != nil {
			slog.Error("Provider stream failed", "provider", provider.Name(), "chunks", chunks, "error", err)
			h.logAssistantReply(r, content.String(), chunks, true, err.Error())
			if !started {
				Error(w, http.StatusInternalServerError, msgGenerateFailed)
				return
			}
			panic(http.ErrAbortHandler)
		}

		if !started {
			start()
		}
		if _, err := io.WriteString(w, delta); err != nil {
			slog.Warn("Client disconnected mid-stream", "chunks", chunks, "error", err)
			h.logAssistantReply(r, content.String(), chunks, true, err.Error())
			return
		}
		flusher.Flush()
		chunks++
		content.WriteString(delta)
	}

	if !started {
		start()
	}
	h.logAssistantReply(r, content.String(), chunks, false, "")
}

func (h *Handler) logUserTurn(r *http.Request, turns []domain.ChatTurn) {
	var last string
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == domain.RoleUser {
			last = turns[i].Content
			break
		}
	}
	h.log.Log(convlog.Event{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ClientID:   identity.ClientIDFromContext(r.Context()),
		ChatID:     identity.ChatIDFromContext(r.Context()),
		Route:      r.URL.Path,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: last,
		Meta: map[string]any{
			"request_id": chiMiddleware.GetReqID(r.Context()),
			"messages":   len(turns),
		},
	})
}

func (h *Handler) logAssistantReply(r *http.Request, content string, chunks int, partial bool, errMsg string) {
	h.log.Log(convlog.Event{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		ClientID:   identity.ClientIDFromContext(r.Context()),
		ChatID:     identity.ChatIDFromContext(r.Context()),
		Route:      r.URL.Path,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: content,
		Meta: map[string]any{
			"request_id":    chiMiddleware.GetReqID(r.Context()),
			"stream_chunks": chunks,
			"partial":       partial,
			"stream_error":  errMsg,
		},
	})
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
