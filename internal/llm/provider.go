// Package llm talks to hosted chat-completion providers.
package llm

import (
	"context"
	"fmt"
	"iter"

	"github.com/sevenedu/counselor/internal/domain"
)

// Options tunes a single completion request.
type Options struct {
	Model            string
	Temperature      float32
	MaxTokens        int
	TopP             float32
	PresencePenalty  float32
	FrequencyPenalty float32
	// JSON asks the provider for a single JSON object response.
	JSON bool
}

// Provider generates assistant replies from a conversation.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	// Complete returns the full assistant reply.
	Complete(ctx context.Context, turns []domain.ChatTurn, opts Options) (string, error)

	// Stream yields text deltas in the order the provider emits them.
	// A non-nil error ends the sequence.
	Stream(ctx context.Context, turns []domain.ChatTurn, opts Options) iter.Seq2[string, error]
}

// ProviderError wraps a failed provider call.
type ProviderError struct {
	Provider string
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
