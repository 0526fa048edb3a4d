// Package client sends chat and analysis requests to the counselor API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sevenedu/counselor/internal/domain"
	"github.com/sevenedu/counselor/internal/markdown"
	"github.com/sevenedu/counselor/internal/stream"
)

// DefaultTimeout bounds every request, including the whole of a stream.
const DefaultTimeout = 30 * time.Second

// API paths.
const (
	GuidedPath    = "/api/chat"
	CounselorPath = "/api/post-onboarding-chat"
	TogetherPath  = "/api/together-ai-chat"
	AnalysisPath  = "/api/student-analysis"
)

const (
	msgNoMessages   = "No messages to send"
	msgNoUserTurn   = "Cannot send a request without a user message. Please type a message first."
	msgSendFailed   = "Failed to send chat request"
	msgBadResponse  = "Invalid response from server"
	msgTimedOut     = "The request timed out. Please try again."
	maxErrorBodyLen = 64 << 10
)

// Provider selects which backend route serves onboarded students.
type Provider int

const (
	ProviderOpenAI Provider = iota
	ProviderTogether
)

// ChatRequestError is a failed request. Err carries the cause when there
// is one, so timeouts still match context.DeadlineExceeded.
type ChatRequestError struct {
	Message string
	Status  int
	Err     error
}

func (e *ChatRequestError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s (status %d): %v", e.Message, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ChatRequestError) Unwrap() error {
	return e.Err
}

// Request is one chat exchange.
type Request struct {
	Messages     []domain.ChatTurn
	Profile      domain.UserProfile
	AdvancedMode bool
}

// Reply is a complete assistant response.
type Reply struct {
	Message          string `json:"message"`
	FormattedMessage string `json:"formattedMessage"`
}

type chatBody struct {
	Messages     []domain.ChatTurn  `json:"messages"`
	UserProfile  domain.UserProfile `json:"userProfile"`
	Stream       bool               `json:"stream"`
	AdvancedMode bool               `json:"advancedMode"`
}

// Client talks to one counselor API base URL.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        *slog.Logger
	provider   Provider
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for warnings.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithProvider picks the route used once onboarding is complete.
func WithProvider(p Provider) Option {
	return func(c *Client) { c.provider = p }
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the chat route for a profile.
func (c *Client) Endpoint(p *domain.UserProfile) string {
	if !p.IsOnboardingComplete() {
		return GuidedPath
	}
	if c.provider == ProviderTogether {
		return TogetherPath
	}
	return CounselorPath
}

// Send performs a non-streaming chat request.
func (c *Client) Send(ctx context.Context, req Request) (*Reply, error) {
	if err := c.validate(req); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, c.Endpoint(&req.Profile), c.body(req, false))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reply Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, decodeError(ctx, resp.StatusCode, err)
	}
	if reply.FormattedMessage == "" {
		reply.FormattedMessage = markdown.Render(reply.Message)
	}
	return &reply, nil
}

// Stream performs a streaming chat request and relays the decoded text
// to h. Failures before the body starts arrive at OnError as a
// *ChatRequestError.
func (c *Client) Stream(ctx context.Context, req Request, h stream.Handler) {
	fail := func(err error) {
		if h.OnError != nil {
			h.OnError(err)
		}
	}
	if err := c.validate(req); err != nil {
		fail(err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, c.Endpoint(&req.Profile), c.body(req, true))
	if err != nil {
		fail(err)
		return
	}
	defer resp.Body.Close()

	stream.Consume(ctx, resp.Body, h)
}

// Analyze requests the college-readiness report for a profile.
func (c *Client) Analyze(ctx context.Context, p domain.UserProfile) (*domain.Analysis, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.post(ctx, AnalysisPath, map[string]any{"userProfile": p})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Analysis domain.Analysis `json:"analysis"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, decodeError(ctx, resp.StatusCode, err)
	}
	return &out.Analysis, nil
}

func (c *Client) validate(req Request) error {
	if len(req.Messages) == 0 {
		return &ChatRequestError{Message: msgNoMessages}
	}
	if !domain.HasUserTurn(req.Messages) {
		return &ChatRequestError{Message: msgNoUserTurn}
	}
	if !domain.LastIsUser(req.Messages) {
		c.log.Warn("The most recent non-system message is not from the user", "messages", len(req.Messages))
	}
	return nil
}

func (c *Client) body(req Request, streaming bool) chatBody {
	return chatBody{
		Messages:     req.Messages,
		UserProfile:  req.Profile,
		Stream:       streaming,
		AdvancedMode: req.AdvancedMode,
	}
}

// post sends a JSON body and returns the response when it is 2xx. The
// caller closes the body.
func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &ChatRequestError{Message: msgSendFailed, Err: fmt.Errorf("encode request: %w", err)}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, &ChatRequestError{Message: msgSendFailed, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ChatRequestError{Message: msgTimedOut, Err: &stream.TimeoutError{}}
		}
		return nil, &ChatRequestError{Message: msgSendFailed, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	msg := msgSendFailed
	var apiErr struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
		msg = apiErr.Error
	}
	return nil, &ChatRequestError{Message: msg, Status: resp.StatusCode}
}

// decodeError classifies a failed read of a JSON reply.
func decodeError(ctx context.Context, status int, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ChatRequestError{Message: msgTimedOut, Status: status, Err: &stream.TimeoutError{}}
	}
	return &ChatRequestError{Message: msgBadResponse, Status: status, Err: err}
}
