package document

import (
	"bytes"
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var (
	markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))
	policy   = bluemonday.UGCPolicy()
)

// Document is an editable plan document. The generator's markdown seeds
// the HTML exactly once; from then on the HTML string is authoritative
// and markdown is never re-derived from it except for export.
type Document struct {
	html string
}

// FromMarkdown renders the plan markdown to sanitized HTML and wraps it
// in a Document.
func FromMarkdown(source string) (*Document, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return &Document{html: policy.Sanitize(buf.String())}, nil
}

// FromHTML wraps already-rendered (possibly user-edited) HTML, sanitized.
func FromHTML(html string) *Document {
	return &Document{html: policy.Sanitize(html)}
}

// HTML returns the document's current content.
func (d *Document) HTML() string {
	return d.html
}

// SetHTML replaces the content with user-edited HTML, re-sanitized.
func (d *Document) SetHTML(html string) {
	d.html = policy.Sanitize(html)
}

// Markdown converts the current (possibly edited) HTML back to markdown,
// used when the activity description is patched server-side.
func (d *Document) Markdown() (string, error) {
	md, err := htmltomarkdown.ConvertString(d.html)
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}
	return md, nil
}
