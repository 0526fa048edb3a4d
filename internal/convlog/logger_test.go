package convlog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoggerWritesPerChatNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := New(Config{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(Event{
		ClientID:   "client-1",
		ChatID:     "chat-1",
		Route:      "/api/post-onboarding-chat",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: "Which  schools\nfit me?",
	})

	path := filepath.Join(dir, "client-1", "chat-1.ndjson")
	line := waitForLogLine(t, path)
	var got Event
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.ContentRaw != "Which  schools\nfit me?" {
		t.Fatalf("unexpected ContentRaw: %q", got.ContentRaw)
	}
	if got.Content != "Which schools fit me?" {
		t.Fatalf("expected cleaned content, got %q", got.Content)
	}
	if got.Timestamp == "" {
		t.Fatal("expected timestamp to be populated")
	}
}

func TestLoggerWritesGlobalFile(t *testing.T) {
	t.Parallel()

	global := filepath.Join(t.TempDir(), "all", "all.ndjson")
	logger, err := New(Config{GlobalEnabled: true, GlobalPath: global, QueueSize: 4}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Log(Event{ClientID: "c", ChatID: "x", EventType: "chat_assistant_message", ContentRaw: "hello"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(global)
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	if !strings.Contains(string(data), `"event_type":"chat_assistant_message"`) {
		t.Fatalf("global log missing event: %s", data)
	}

	// Logging after Close must not panic.
	logger.Log(Event{ContentRaw: "late"})
}

func TestNewDisabledReturnsNoop(t *testing.T) {
	t.Parallel()

	logger, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := logger.(Noop); !ok {
		t.Fatalf("expected Noop logger, got %T", logger)
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain"
	clean := CleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if clean != "error plain" {
		t.Fatalf("expected readable text to remain: %q", clean)
	}
}

func TestCleanForReadabilityNormalizes(t *testing.T) {
	t.Parallel()

	decomposed := "Universite\u0301"
	if got := CleanForReadability(decomposed); got != "Universit\u00e9" {
		t.Fatalf("expected NFC form, got %q", got)
	}
}

func TestSafeName(t *testing.T) {
	t.Parallel()

	if got := safeName("../etc/passwd", "x"); strings.Contains(got, "/") {
		t.Fatalf("path separators must be replaced: %q", got)
	}
	if got := safeName("", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
