// Package convlog records counseling conversations as NDJSON files.
package convlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Event is a single logged conversation event.
type Event struct {
	Timestamp  string         `json:"ts"`
	ClientID   string         `json:"client_id"`
	ChatID     string         `json:"chat_id"`
	Route      string         `json:"route"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger accepts conversation events.
type Logger interface {
	Log(event Event)
	Close() error
}

// Config controls conversation logging.
type Config struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Noop discards every event.
type Noop struct{}

// Log discards the event.
func (Noop) Log(Event) {}

// Close does nothing.
func (Noop) Close() error { return nil }

// fileLogger writes events from a bounded queue on a single goroutine.
type fileLogger struct {
	cfg    Config
	log    *slog.Logger
	queue  chan Event
	done   chan struct{}
	files  map[string]*os.File
	global *os.File

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// New creates a Logger. A disabled config returns Noop.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled && !cfg.GlobalEnabled {
		return Noop{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &fileLogger{
		cfg:   cfg,
		log:   logger,
		queue: make(chan Event, cfg.QueueSize),
		done:  make(chan struct{}),
		files: make(map[string]*os.File),
	}

	if cfg.Enabled {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation log dir: %w", err)
		}
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0o755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.run()
	return l, nil
}

// Log queues an event. Events are dropped when the queue is full.
func (l *fileLogger) Log(event Event) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = CleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.log.Warn("conversation log queue full, dropping event", "client_id", event.ClientID, "event_type", event.EventType)
	}
}

// Close drains the queue and closes every open file.
func (l *fileLogger) Close() error {
	var firstErr error
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()

		<-l.done
		for _, f := range l.files {
			if err := f.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if l.global != nil {
			if err := l.global.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	})
	return firstErr
}

func (l *fileLogger) run() {
	defer close(l.done)
	for event := range l.queue {
		line, err := json.Marshal(event)
		if err != nil {
			l.log.Warn("failed to marshal conversation event", "error", err)
			continue
		}
		line = append(line, '\n')

		if l.cfg.Enabled {
			if err := l.writeChat(event, line); err != nil {
				l.log.Warn("failed to write conversation log", "client_id", event.ClientID, "chat_id", event.ChatID, "error", err)
			}
		}
		if l.global != nil {
			if _, err := l.global.Write(line); err != nil {
				l.log.Warn("failed to write global conversation log", "error", err)
			}
		}
	}
}

func (l *fileLogger) writeChat(event Event, line []byte) error {
	client := safeName(event.ClientID, "anonymous")
	chat := safeName(event.ChatID, "default")
	key := client + "/" + chat

	f, ok := l.files[key]
	if !ok {
		dir := filepath.Join(l.cfg.Dir, client)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create client log dir: %w", err)
		}
		var err error
		f, err = os.OpenFile(filepath.Join(dir, chat+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open chat log: %w", err)
		}
		l.files[key] = f
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("append chat log: %w", err)
	}
	return nil
}

var (
	ansiPattern     = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)
	unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)
)

// CleanForReadability strips terminal escapes, normalizes to NFC and
// collapses whitespace.
func CleanForReadability(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

func safeName(s, fallback string) string {
	s = unsafeNameChars.ReplaceAllString(s, "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return fallback
	}
	return s
}
