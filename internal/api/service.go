package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
	"github.com/JohnTocci/KnowledgeHub/internal/models"
	"github.com/JohnTocci/KnowledgeHub/internal/parser"
	"github.com/JohnTocci/KnowledgeHub/internal/pipeline"
	"github.com/JohnTocci/KnowledgeHub/internal/store"
	"github.com/JohnTocci/KnowledgeHub/internal/vault"
)

// Service coordinates the pipeline, record store, feeds, and vault for the
// API layer.
type Service struct {
	runner    *pipeline.Runner
	db        store.RecordStore
	feeds     store.FeedStore
	refresher *pipeline.FeedRefresher
	store     vault.Provider
	cfgView   map[string]any
}

// NewService creates a new API service. cfgView is the redacted configuration
// snapshot served by the config endpoint.
func NewService(runner *pipeline.Runner, db store.RecordStore, feeds store.FeedStore,
	refresher *pipeline.FeedRefresher, v vault.Provider, cfgView map[string]any) *Service {
	return &Service{runner: runner, db: db, feeds: feeds, refresher: refresher, store: v, cfgView: cfgView}
}

// Process runs the capture pipeline for a URL.
func (s *Service) Process(ctx context.Context, rawURL string, forceVideo bool) (*models.Record, error) {
	return s.runner.Process(ctx, rawURL, forceVideo)
}

// ListRecords returns paginated records with optional filters.
func (s *Service) ListRecords(q store.Query) ([]models.Record, int, error) {
	return s.db.List(q)
}

// GetRecord returns a single record by id.
func (s *Service) GetRecord(id int64) (*models.Record, error) {
	return s.db.Get(id)
}

// DeleteRecord removes a record. When deleteFile is set, the vault note is
// removed as well; the row goes first so a file failure leaves no orphan row.
func (s *Service) DeleteRecord(id int64, deleteFile bool) error {
	rec, err := s.db.Get(id)
	if err != nil {
		return err
	}
	if err := s.db.Delete(id); err != nil {
		return err
	}
	if deleteFile && rec.FilePath != "" {
		if err := s.store.Delete(rec.FilePath); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return fmt.Errorf("api: delete note file %s: %w", rec.FilePath, err)
		}
	}
	return nil
}

// Related returns records sharing tags with the given record.
func (s *Service) Related(id int64, limit int) ([]store.RelatedResult, error) {
	return s.db.Related(id, limit)
}

// ListFeeds returns every subscribed feed.
func (s *Service) ListFeeds() ([]models.Feed, error) {
	return s.feeds.ListFeeds()
}

// AddFeed subscribes a new feed URL.
func (s *Service) AddFeed(url string) (*models.Feed, error) {
	return s.feeds.AddFeed(strings.TrimSpace(url))
}

// RemoveFeed unsubscribes a feed.
func (s *Service) RemoveFeed(id int64) error {
	return s.feeds.RemoveFeed(id)
}

// RefreshFeeds polls every subscribed feed and captures new entries.
func (s *Service) RefreshFeeds(ctx context.Context) (*pipeline.FeedReport, error) {
	return s.refresher.Refresh(ctx)
}

// Search delegates to the record store.
func (s *Service) Search(query string, limit int) ([]store.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Tags returns tag usage counts.
func (s *Service) Tags() ([]store.TagCount, error) {
	return s.db.AllTags()
}

// Stats returns content statistics.
func (s *Service) Stats() (*store.Stats, error) {
	return s.db.ContentStats()
}

// NoteDetail is the response payload for a rendered note file.
type NoteDetail struct {
	Path    string   `json:"path"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Source  string   `json:"source,omitempty"`
	Kind    string   `json:"kind,omitempty"`
}

// ReadNote reads a note file from the vault and parses its frontmatter.
func (s *Service) ReadNote(path string) (*NoteDetail, error) {
	data, err := s.store.Read(path)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	tags := res.Tags
	if tags == nil {
		tags = []string{}
	}
	return &NoteDetail{
		Path:    path,
		Title:   res.Title,
		Content: string(data),
		Tags:    tags,
		Source:  res.SourceURL,
		Kind:    res.SourceKind,
	}, nil
}

// ConfigView returns the redacted configuration snapshot. Credential values
// never appear in it.
func (s *Service) ConfigView() map[string]any {
	if s.cfgView == nil {
		return map[string]any{}
	}
	return s.cfgView
}

// validURL rejects obviously malformed process submissions before the
// pipeline spends a fetch on them.
func validURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	return strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
}
