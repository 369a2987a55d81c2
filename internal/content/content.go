package content

import (
	"bytes"
	"html/template"
	"strings"
	"unicode/utf8"

	"devcollab/internal/models"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

const (
	MaxMessageLength = 2000
	MaxNameLength    = 100
)

var (
	policy   = bluemonday.UGCPolicy()
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)
)

// Sanitize removes unsafe HTML from text that arrives already formatted,
// such as notification text pushed through the emit bridge.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// Escape escapes special characters like "<" to become "&lt;".
// It matches the behavior of html/template and is safe for use in HTML attributes.
func Escape(input string) string {
	return template.HTMLEscapeString(input)
}

// RenderMarkdown renders chat text as GitHub flavoured markdown and
// sanitizes the result. Raw HTML in the source is never passed through.
func RenderMarkdown(text string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return Escape(text)
	}
	return policy.Sanitize(buf.String())
}

// ValidateMessageText trims the text and checks it is non-empty and at most
// MaxMessageLength characters.
func ValidateMessageText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", models.Invalid("message text cannot be empty")
	}
	if n := utf8.RuneCountInString(text); n > MaxMessageLength {
		return "", models.Invalid("message text is %d characters, limit is %d", n, MaxMessageLength)
	}
	return text, nil
}

// ValidateName checks user, workspace and project names.
func ValidateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", models.Invalid("name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", models.Invalid("name is longer than %d characters", MaxNameLength)
	}
	if strings.ContainsAny(name, "<>") {
		return "", models.Invalid("name contains markup")
	}
	return name, nil
}

// NormalizeMentions drops blanks and duplicates, keeping first-seen order.
func NormalizeMentions(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
