// Package render turns generated newsletter markdown into an HTML fragment
// that is safe to embed in an email body.
package render

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"NewsletterWorkflow/internal/ports"
)

const strippedElements = "script, style, iframe, object, embed, form, input, button, link, meta, base"

// Markdown renders markdown via goldmark and sanitizes the result.
type Markdown struct {
	md     goldmark.Markdown
	logger *slog.Logger
}

var _ ports.Renderer = (*Markdown)(nil)

// NewMarkdown builds a renderer with GitHub-flavoured extensions.
func NewMarkdown(logger *slog.Logger) *Markdown {
	return &Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
		logger: logger,
	}
}

// Render never fails: if conversion or sanitizing breaks, the original text is
// returned escaped inside a <pre> block.
func (m *Markdown) Render(text string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			m.warn("render panicked", "panic", fmt.Sprint(r))
			out = Fallback(text)
		}
	}()

	var buf bytes.Buffer
	if err := m.md.Convert([]byte(text), &buf); err != nil {
		m.warn("markdown conversion failed", "error", err)
		return Fallback(text)
	}

	clean, err := Sanitize(buf.String())
	if err != nil {
		m.warn("sanitize failed", "error", err)
		return Fallback(text)
	}
	if strings.TrimSpace(clean) == "" && strings.TrimSpace(text) != "" {
		return Fallback(text)
	}
	return clean
}

// Sanitize strips active content from an HTML fragment.
func Sanitize(fragment string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("parse fragment: %w", err)
	}

	doc.Find(strippedElements).Remove()

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		node := sel.Get(0)
		var unsafe []string
		for _, attr := range node.Attr {
			name := strings.ToLower(attr.Key)
			if strings.HasPrefix(name, "on") || name == "style" || name == "srcdoc" {
				unsafe = append(unsafe, attr.Key)
				continue
			}
			if (name == "href" || name == "src") && !safeURL(attr.Val) {
				unsafe = append(unsafe, attr.Key)
			}
		}
		for _, key := range unsafe {
			sel.RemoveAttr(key)
		}
	})

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		sel.SetAttr("target", "_blank")
		sel.SetAttr("rel", "noopener noreferrer")
	})

	out, err := doc.Find("body").Html()
	if err != nil {
		return "", fmt.Errorf("serialize fragment: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Fallback preserves text verbatim as escaped preformatted content.
func Fallback(text string) string {
	return "<pre>" + html.EscapeString(text) + "</pre>"
}

func safeURL(raw string) bool {
	value := strings.ToLower(strings.TrimSpace(raw))
	value = strings.Join(strings.Fields(value), "")
	for _, scheme := range []string{"javascript:", "vbscript:", "data:"} {
		if strings.HasPrefix(value, scheme) {
			return false
		}
	}
	return true
}

func (m *Markdown) warn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}
