package renderer

import (
	"strings"
	"testing"
	"time"

	"github.com/JohnTocci/KnowledgeHub/internal/models"
)

var fixedTime = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func sampleInputs() (*models.ExtractedContent, *models.Summary) {
	content := &models.ExtractedContent{
		Text:       "Full article text.",
		Title:      "Article X",
		Author:     "Jane Doe",
		SourceKind: models.SourceArticle,
	}
	summary := &models.Summary{
		Text:      "A concise summary.",
		KeyPoints: []string{"First point", "Second point"},
		Tags:      []string{"ai", "notes"},
	}
	return content, summary
}

func TestRenderDeterministic(t *testing.T) {
	r := New("", "", "")
	content, summary := sampleInputs()

	a, err := r.Render("https://example.com/x", content, summary, fixedTime)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := r.Render("https://example.com/x", content, summary, fixedTime)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if a.Content != b.Content {
		t.Error("identical inputs produced different note bodies")
	}
	if a.FilePath != b.FilePath {
		t.Errorf("filenames differ: %q vs %q", a.FilePath, b.FilePath)
	}
}

func TestRenderDefaultTemplate(t *testing.T) {
	r := New("", "", "")
	content, summary := sampleInputs()

	note, err := r.Render("https://example.com/x", content, summary, fixedTime)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if note.FilePath != "Article-X.md" {
		t.Errorf("FilePath = %q, want Article-X.md", note.FilePath)
	}
	for _, want := range []string{
		`title: "Article X"`,
		"source: https://example.com/x",
		"kind: article",
		"created: 2025-03-10 14:30",
		"tags: [ai, notes]",
		"## Summary",
		"A concise summary.",
		"- First point",
		"- Second point",
	} {
		if !strings.Contains(note.Content, want) {
			t.Errorf("note body missing %q:\n%s", want, note.Content)
		}
	}
}

func TestRenderUnknownPlaceholderIsBlank(t *testing.T) {
	r := New("{title}.md", "X{bogus}Y {title}", "")
	content, summary := sampleInputs()

	note, err := r.Render("https://example.com/x", content, summary, fixedTime)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(note.Content, "XY Article X") {
		t.Errorf("unresolved placeholder not blanked: %q", note.Content)
	}
}

func TestRenderEmptyTitleFallsBack(t *testing.T) {
	r := New("", "", "")
	content, summary := sampleInputs()
	content.Title = "   "

	note, err := r.Render("https://example.com/x", content, summary, fixedTime)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if note.FilePath != "Untitled.md" {
		t.Errorf("FilePath = %q, want Untitled.md", note.FilePath)
	}
}

func TestRenderCustomDateFormat(t *testing.T) {
	r := New("{date}-{title}.md", "", "%Y%m%d")
	content, summary := sampleInputs()

	note, err := r.Render("https://example.com/x", content, summary, fixedTime)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if note.FilePath != "20250310-Article-X.md" {
		t.Errorf("FilePath = %q", note.FilePath)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Article X", "Article-X"},
		{`a/b\c:d*e?f"g<h>i|j`, "abcdefghij"},
		{"  spaced   out  ", "spaced-out"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeFilename(tc.in); got != tc.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
