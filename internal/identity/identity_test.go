package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddlewareIssuesClientID(t *testing.T) {
	t.Parallel()

	var gotClient, gotChat string
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotClient = ClientIDFromContext(r.Context())
		gotChat = ChatIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.Header.Set(ChatHeaderName, "chat-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if !isValidClientID(gotClient) {
		t.Fatalf("expected generated client id, got %q", gotClient)
	}
	if gotChat != "chat-123" {
		t.Fatalf("expected chat id from header, got %q", gotChat)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != gotClient {
		t.Fatalf("expected client cookie to be set, got %v", cookies)
	}
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	t.Parallel()

	existing := generateClientID()
	var got string
	h := Middleware(true)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = ClientIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.AddCookie(&http.Cookie{Name: ClientCookieName, Value: existing})
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != existing {
		t.Fatalf("expected %q, got %q", existing, got)
	}
}

func TestSanitizeChatID(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"":             DefaultChatIDValue,
		"../../etc":    DefaultChatIDValue,
		"chat_1.a:b-c": "chat_1.a:b-c",
	} {
		if got := sanitizeChatID(in); got != want {
			t.Fatalf("sanitizeChatID(%q) = %q, want %q", in, got, want)
		}
	}
}
