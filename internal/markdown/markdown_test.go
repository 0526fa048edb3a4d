package markdown

import (
	"strings"
	"testing"
)

func TestRenderInlineFormatting(t *testing.T) {
	t.Parallel()

	got := Render("**bold** and `code`")
	for _, want := range []string{"<strong>bold</strong>", "<code>code</code>"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

func TestRenderEscapesRawHTML(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"block", "<script>alert(1)</script>"},
		{"inline", "hello <script>alert(1)</script> world"},
		{"attribute", `click <img src=x onerror="alert(1)">`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Render(tt.input)
			if strings.Contains(got, "<script") || strings.Contains(got, "<img") {
				t.Fatalf("raw HTML survived rendering: %q", got)
			}
			if !strings.Contains(got, "&lt;") {
				t.Fatalf("expected escaped markup in %q", got)
			}
		})
	}
}

func TestRenderStructure(t *testing.T) {
	t.Parallel()

	got := Render("## Plan\n\n- one\n- two\n\nline one\nline two")
	for _, want := range []string{"<h2", "<li>one</li>", "<br"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

func TestRenderEmpty(t *testing.T) {
	t.Parallel()

	if got := Render(""); strings.TrimSpace(got) != "" {
		t.Fatalf("expected empty output, got %q", got)
	}
}
