package llm

import (
	"context"
	"errors"
	"io"
	"iter"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sevenedu/counselor/internal/domain"
)

// Profile describes one OpenAI-compatible provider endpoint.
type Profile struct {
	Name    string
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client implements Provider for any OpenAI-compatible chat API.
type Client struct {
	name    string
	model   string
	timeout time.Duration
	api     *openai.Client
}

// NewClient creates a provider client. A nil httpClient uses http.DefaultClient.
func NewClient(p Profile, httpClient *http.Client) *Client {
	cfg := openai.DefaultConfig(p.APIKey)
	if p.BaseURL != "" {
		cfg.BaseURL = p.BaseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &Client{
		name:    p.Name,
		model:   p.Model,
		timeout: p.Timeout,
		api:     openai.NewClientWithConfig(cfg),
	}
}

// Ensure Client implements Provider.
var _ Provider = (*Client)(nil)

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// Complete returns the full assistant reply.
func (c *Client) Complete(ctx context.Context, turns []domain.ChatTurn, opts Options) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, c.request(turns, opts))
	if err != nil {
		return "", c.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream yields text deltas as the provider produces them. Empty deltas
// (role announcements, finish markers) are skipped.
func (c *Client) Stream(ctx context.Context, turns []domain.ChatTurn, opts Options) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := c.withTimeout(ctx)
		defer cancel()

		req := c.request(turns, opts)
		req.Stream = true
		stream, err := c.api.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", c.wrap(err))
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", c.wrap(err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta, nil) {
				return
			}
		}
	}
}

func (c *Client) request(turns []domain.ChatTurn, opts Options) openai.ChatCompletionRequest {
	model := opts.Model
	if model == "" {
		model = c.model
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:            model,
		Messages:         msgs,
		Temperature:      opts.Temperature,
		MaxTokens:        opts.MaxTokens,
		TopP:             opts.TopP,
		PresencePenalty:  opts.PresencePenalty,
		FrequencyPenalty: opts.FrequencyPenalty,
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Client) wrap(err error) error {
	pe := &ProviderError{Provider: c.name, Err: err}
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		pe.Status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		pe.Status = reqErr.HTTPStatusCode
	}
	return pe
}
