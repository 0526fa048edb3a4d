// Package identity provides anonymous per-device identity primitives.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	ClientCookieName   = "counsel_client_id"
	ChatHeaderName     = "X-Counsel-Chat-ID"
	DefaultChatIDValue = "default"
	clientCookieMaxAge = 30 * 24 * time.Hour
)

type contextKey int

const (
	clientIDKey contextKey = iota
	chatIDKey
)

var (
	clientIDPattern = regexp.MustCompile(`^client_[a-f0-9]{32}$`)
	chatIDPattern   = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)
)

// ClientIDFromContext extracts the anonymous client ID from the request context.
func ClientIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(clientIDKey).(string); ok {
		return v
	}
	return ""
}

// ChatIDFromContext extracts the chat ID from the request context.
func ChatIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(chatIDKey).(string); ok {
		return v
	}
	return DefaultChatIDValue
}

// WithIdentity returns a context carrying the given client and chat IDs.
func WithIdentity(ctx context.Context, clientID, chatID string) context.Context {
	ctx = context.WithValue(ctx, clientIDKey, clientID)
	return context.WithValue(ctx, chatIDKey, sanitizeChatID(chatID))
}

func generateClientID() string {
	return "client_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func isValidClientID(id string) bool {
	return clientIDPattern.MatchString(id)
}

func sanitizeChatID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || !chatIDPattern.MatchString(id) {
		return DefaultChatIDValue
	}
	return id
}

func clientIDCookie(w http.ResponseWriter, r *http.Request, isDev bool) string {
	id := ""
	if c, err := r.Cookie(ClientCookieName); err == nil && isValidClientID(c.Value) {
		id = c.Value
	} else {
		id = generateClientID()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     ClientCookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(clientCookieMaxAge.Seconds()),
		Expires:  time.Now().Add(clientCookieMaxAge),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   !isDev,
	})
	return id
}

func chatIDFromRequest(r *http.Request) string {
	id := r.Header.Get(ChatHeaderName)
	if id == "" {
		id = r.URL.Query().Get("chat_id")
	}
	return sanitizeChatID(id)
}

// Middleware injects an anonymous per-device client ID and the chat ID of
// the request. Nothing is stored server-side.
func Middleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientIDCookie(w, r, isDev)
			ctx := WithIdentity(r.Context(), clientID, chatIDFromRequest(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
