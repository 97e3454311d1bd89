// Package models defines the domain types for KnowledgeHub.
package models

import "time"

// SourceKind classifies a submitted URL.
type SourceKind string

const (
	SourceArticle SourceKind = "article"
	SourceVideo   SourceKind = "video"
)

// SourceItem is one user-submitted URL to process. It lives only for the
// duration of a single pipeline run.
type SourceItem struct {
	URL         string     `json:"url"`
	Kind        SourceKind `json:"kind"`
	SubmittedAt time.Time  `json:"submitted_at"`
}

// ExtractedContent is raw text plus provenance, produced by the fetcher or
// the transcriber and consumed by the summarizer.
type ExtractedContent struct {
	Text        string     `json:"text"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Language    string     `json:"language,omitempty"`
	SourceKind  SourceKind `json:"source_kind"`
}

// WordCount returns the number of whitespace-separated words in Text.
func (c *ExtractedContent) WordCount() int {
	count := 0
	inWord := false
	for _, r := range c.Text {
		switch r {
		case ' ', '\t', '\n', '\r':
			inWord = false
		default:
			if !inWord {
				count++
			}
			inWord = true
		}
	}
	return count
}

// Summary is the AI-derived artifact, immutable once created.
type Summary struct {
	Text      string   `json:"summary"`
	KeyPoints []string `json:"key_points"`
	Tags      []string `json:"tags"`
}

// Note is the final rendered artifact written into the vault.
type Note struct {
	FilePath  string    `json:"file_path"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Feed is a subscribed RSS or Atom source polled for new items to capture.
type Feed struct {
	ID          int64      `json:"id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	AddedAt     time.Time  `json:"added_at"`
	LastFetched *time.Time `json:"last_fetched,omitempty"`
}

// Record is the persisted metadata row describing one processed item.
type Record struct {
	ID         int64      `json:"id"`
	URL        string     `json:"url"`
	Title      string     `json:"title"`
	Tags       []string   `json:"tags"`
	Summary    string     `json:"summary"`
	KeyPoints  []string   `json:"key_points"`
	FilePath   string     `json:"file_path"`
	SourceKind SourceKind `json:"source_kind"`
	WordCount  int        `json:"word_count"`
	CreatedAt  time.Time  `json:"created_at"`
}
