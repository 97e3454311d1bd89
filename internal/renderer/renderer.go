// Package renderer turns extracted content and an AI summary into a
// Markdown note document plus a derived filename. Rendering is pure string
// substitution: identical inputs always produce identical output.
package renderer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/JohnTocci/KnowledgeHub/internal/models"
)

// DefaultFilenameTemplate mirrors the historical "{title}.md" naming.
const DefaultFilenameTemplate = "{title}.md"

// DefaultBodyTemplate is the built-in note layout: YAML frontmatter the
// reconciler can parse back, then the summary sections.
const DefaultBodyTemplate = `---
title: "{title}"
source: {source_url}
kind: {kind}
created: {date}
tags: [{tags}]
---

# {title}

**Source:** [{source_url}]({source_url})
**Date Processed:** {date}

---

## Summary

{summary}

## Key Takeaways

{key_points}
`

// DefaultDateFormat is a strftime-style pattern (kept from the original
// config surface).
const DefaultDateFormat = "%Y-%m-%d %H:%M"

var (
	placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)
	// Characters not allowed in filenames on common filesystems.
	forbiddenRe = regexp.MustCompile(`[\\/*?:"<>|]`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Renderer renders notes from configurable templates.
type Renderer struct {
	filenameTmpl string
	bodyTmpl     string
	dateFormat   string
}

// New creates a Renderer. Empty template or format arguments fall back to
// the package defaults.
func New(filenameTmpl, bodyTmpl, dateFormat string) *Renderer {
	if filenameTmpl == "" {
		filenameTmpl = DefaultFilenameTemplate
	}
	if bodyTmpl == "" {
		bodyTmpl = DefaultBodyTemplate
	}
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	return &Renderer{
		filenameTmpl: filenameTmpl,
		bodyTmpl:     bodyTmpl,
		dateFormat:   dateFormat,
	}
}

// Render merges content and summary into the body template and derives the
// target filename. processedAt is supplied by the caller so repeated calls
// with the same inputs are byte-identical.
func (r *Renderer) Render(sourceURL string, content *models.ExtractedContent, summary *models.Summary, processedAt time.Time) (*models.Note, error) {
	if content == nil || summary == nil {
		return nil, fmt.Errorf("renderer: content and summary are required")
	}

	title := strings.TrimSpace(content.Title)
	if title == "" {
		title = "Untitled"
	}

	date := strftime.Format(r.dateFormat, processedAt)

	values := map[string]string{
		"{title}":      title,
		"{date}":       date,
		"{tags}":       strings.Join(summary.Tags, ", "),
		"{summary}":    strings.TrimSpace(summary.Text),
		"{key_points}": bulletList(summary.KeyPoints),
		"{source_url}": sourceURL,
		"{author}":     content.Author,
		"{kind}":       string(content.SourceKind),
	}

	body := expand(r.bodyTmpl, values)

	fileValues := map[string]string{
		"{title}":      SanitizeFilename(title),
		"{date}":       SanitizeFilename(date),
		"{kind}":       string(content.SourceKind),
		"{source_url}": "",
		"{tags}":       "",
		"{summary}":    "",
		"{key_points}": "",
		"{author}":     SanitizeFilename(content.Author),
	}
	filename := expand(r.filenameTmpl, fileValues)
	if strings.TrimSpace(strings.TrimSuffix(filename, ".md")) == "" {
		filename = "note.md"
	}
	if !strings.HasSuffix(filename, ".md") {
		filename += ".md"
	}

	return &models.Note{
		FilePath:  filename,
		Content:   body,
		CreatedAt: processedAt,
	}, nil
}

// expand substitutes every known placeholder and blanks unknown ones: an
// unresolved placeholder renders as the empty string, never an error.
func expand(tmpl string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(ph string) string {
		if v, ok := values[ph]; ok {
			return v
		}
		return ""
	})
}

func bulletList(points []string) string {
	if len(points) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range points {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(p)
	}
	return b.String()
}

// SanitizeFilename strips characters invalid on common filesystems and
// collapses whitespace to single hyphens.
func SanitizeFilename(s string) string {
	s = forbiddenRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(strings.TrimSpace(s), "-")
	return s
}
