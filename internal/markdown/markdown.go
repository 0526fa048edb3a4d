// Package markdown renders counselor replies as sanitized HTML.
package markdown

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

var (
	converter = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithASTTransformers(util.Prioritized(rawHTMLAsText{}, 100)),
		),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
	policy = bluemonday.UGCPolicy()
)

// Render converts markdown to HTML that is safe to embed in a page.
// Raw HTML in the input is shown as literal text, never interpreted.
func Render(md string) string {
	var buf bytes.Buffer
	if err := converter.Convert([]byte(md), &buf); err != nil {
		slog.Warn("markdown conversion failed", "error", err)
		return "<p>" + escape(md) + "</p>"
	}
	return policy.Sanitize(buf.String())
}

// rawHTMLAsText replaces raw HTML nodes with plain string nodes so the
// renderer escapes them like any other text.
type rawHTMLAsText struct{}

func (rawHTMLAsText) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()

	var targets []ast.Node
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.Kind() {
		case ast.KindRawHTML, ast.KindHTMLBlock:
			targets = append(targets, n)
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for _, n := range targets {
		parent := n.Parent()
		if parent == nil {
			continue
		}
		switch node := n.(type) {
		case *ast.RawHTML:
			var raw []byte
			for i := 0; i < node.Segments.Len(); i++ {
				seg := node.Segments.At(i)
				raw = append(raw, seg.Value(source)...)
			}
			parent.ReplaceChild(parent, n, ast.NewString(raw))
		case *ast.HTMLBlock:
			var raw []byte
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				raw = append(raw, seg.Value(source)...)
			}
			if node.HasClosure() {
				raw = append(raw, node.ClosureLine.Value(source)...)
			}
			para := ast.NewParagraph()
			para.AppendChild(para, ast.NewString(bytes.TrimRight(raw, "\n")))
			parent.ReplaceChild(parent, n, para)
		}
	}
}

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

func escape(s string) string {
	return htmlEscaper.Replace(s)
}
