package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/sevenedu/counselor/internal/domain"
)

type recordedRequest struct {
	mu   sync.Mutex
	body map[string]any
}

func (r *recordedRequest) set(body map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = body
}

func (r *recordedRequest) get() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body
}

func newProviderServer(t *testing.T, rec *recordedRequest, handler func(w http.ResponseWriter, stream bool)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(data, &body)
		rec.set(body)
		stream, _ := body["stream"].(bool)
		handler(w, stream)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(srv *httptest.Server) *Client {
	return NewClient(Profile{
		Name:    "openai",
		APIKey:  "test-key",
		BaseURL: srv.URL + "/v1",
		Model:   "default-model",
	}, srv.Client())
}

var testTurns = []domain.ChatTurn{
	{Role: domain.RoleSystem, Content: "context"},
	{Role: domain.RoleUser, Content: "Hi"},
}

func TestCompleteSendsOptions(t *testing.T) {
	t.Parallel()

	rec := &recordedRequest{}
	srv := newProviderServer(t, rec, func(w http.ResponseWriter, _ bool) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hello there"},"finish_reason":"stop"}]}`)
	})

	got, err := testClient(srv).Complete(context.Background(), testTurns, Options{
		Temperature: 0.8,
		MaxTokens:   2000,
		JSON:        true,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "Hello there" {
		t.Fatalf("unexpected reply %q", got)
	}

	body := rec.get()
	if body["model"] != "default-model" {
		t.Fatalf("expected default model, got %v", body["model"])
	}
	if body["max_tokens"] != float64(2000) {
		t.Fatalf("expected max_tokens 2000, got %v", body["max_tokens"])
	}
	format, _ := body["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", body["response_format"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestStreamYieldsDeltasInOrder(t *testing.T) {
	t.Parallel()

	rec := &recordedRequest{}
	srv := newProviderServer(t, rec, func(w http.ResponseWriter, stream bool) {
		if !stream {
			http.Error(w, "expected stream", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"", "Hel", "lo ", "wörld"} {
			_, _ = fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	})

	var parts []string
	for delta, err := range testClient(srv).Stream(context.Background(), testTurns, Options{Model: "override"}) {
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
		parts = append(parts, delta)
	}

	if strings.Join(parts, "|") != "Hel|lo |wörld" {
		t.Fatalf("unexpected deltas %q", parts)
	}
	if rec.get()["model"] != "override" {
		t.Fatalf("expected model override, got %v", rec.get()["model"])
	}
}

func TestProviderErrorCarriesStatus(t *testing.T) {
	t.Parallel()

	rec := &recordedRequest{}
	srv := newProviderServer(t, rec, func(w http.ResponseWriter, _ bool) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := testClient(srv).Complete(context.Background(), testTurns, Options{})
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if pe.Status != http.StatusUnauthorized || pe.Provider != "openai" {
		t.Fatalf("unexpected provider error %+v", pe)
	}

	for _, err := range testClient(srv).Stream(context.Background(), testTurns, Options{}) {
		if !errors.As(err, &pe) {
			t.Fatalf("expected ProviderError from stream, got %v", err)
		}
	}
}
