package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/JohnTocci/KnowledgeHub/internal/fetcher"
	"github.com/JohnTocci/KnowledgeHub/internal/models"
	"github.com/JohnTocci/KnowledgeHub/internal/renderer"
	"github.com/JohnTocci/KnowledgeHub/internal/store"
	"github.com/JohnTocci/KnowledgeHub/internal/vault"
)

type stubFeedSource struct {
	snaps map[string]*fetcher.FeedSnapshot
	errs  map[string]error
}

func (s *stubFeedSource) FetchFeed(_ context.Context, rawURL string) (*fetcher.FeedSnapshot, error) {
	if err := s.errs[rawURL]; err != nil {
		return nil, err
	}
	return s.snaps[rawURL], nil
}

func feedTestRefresher(t *testing.T, fs *vault.FS, db *store.DB, source FeedSource, opts FeedOptions) *FeedRefresher {
	t.Helper()
	f := &stubFetcher{
		kind: models.SourceArticle,
		content: &models.ExtractedContent{
			Text:       "Body text for a captured feed entry.",
			Title:      "Feed Entry",
			SourceKind: models.SourceArticle,
		},
	}
	runner, err := NewRunner(f, nil, &stubSummarizer{summary: articleSummary()},
		renderer.New("", "", ""), fs, db, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	fr, err := NewFeedRefresher(runner, db, source, opts)
	if err != nil {
		t.Fatal(err)
	}
	return fr
}

func TestRefreshCapturesUnseenEntries(t *testing.T) {
	fs, db := testEnv(t)
	feed, err := db.AddFeed("https://example.com/feed.xml")
	if err != nil {
		t.Fatal(err)
	}

	source := &stubFeedSource{snaps: map[string]*fetcher.FeedSnapshot{
		"https://example.com/feed.xml": {
			Title: "Example Blog",
			Entries: []fetcher.FeedEntry{
				{Title: "A", URL: "https://example.com/a"},
				{Title: "B", URL: "https://example.com/b"},
			},
		},
	}}
	fr := feedTestRefresher(t, fs, db, source, FeedOptions{})

	report, err := fr.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if report.Feeds != 1 || report.NewItems != 2 || report.Processed != 2 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}

	// The feed title and fetch time are recorded.
	feeds, err := db.ListFeeds()
	if err != nil {
		t.Fatal(err)
	}
	if feeds[0].Title != "Example Blog" || feeds[0].LastFetched == nil {
		t.Errorf("feed after refresh = %+v", feeds[0])
	}

	// Entries are remembered so a second pass captures nothing.
	report, err = fr.Refresh(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.NewItems != 0 || report.Processed != 0 {
		t.Errorf("second refresh report = %+v", report)
	}

	seen, err := db.SeenItem(feed.ID, "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("captured entry not marked seen")
	}
}

func TestRefreshCapsEntriesPerFeed(t *testing.T) {
	fs, db := testEnv(t)
	if _, err := db.AddFeed("https://example.com/feed.xml"); err != nil {
		t.Fatal(err)
	}

	var entries []fetcher.FeedEntry
	for _, s := range []string{"a", "b", "c", "d"} {
		entries = append(entries, fetcher.FeedEntry{Title: s, URL: "https://example.com/" + s})
	}
	source := &stubFeedSource{snaps: map[string]*fetcher.FeedSnapshot{
		"https://example.com/feed.xml": {Title: "Busy Feed", Entries: entries},
	}}
	fr := feedTestRefresher(t, fs, db, source, FeedOptions{MaxItems: 2})

	report, err := fr.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if report.NewItems != 2 || report.Processed != 2 {
		t.Errorf("report = %+v, want only the first 2 entries considered", report)
	}
}

func TestRefreshSkipsBrokenFeed(t *testing.T) {
	fs, db := testEnv(t)
	if _, err := db.AddFeed("https://example.com/broken.xml"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.AddFeed("https://example.com/good.xml"); err != nil {
		t.Fatal(err)
	}

	source := &stubFeedSource{
		snaps: map[string]*fetcher.FeedSnapshot{
			"https://example.com/good.xml": {
				Title:   "Good",
				Entries: []fetcher.FeedEntry{{Title: "A", URL: "https://example.com/a"}},
			},
		},
		errs: map[string]error{
			"https://example.com/broken.xml": errors.New("connection refused"),
		},
	}
	fr := feedTestRefresher(t, fs, db, source, FeedOptions{})

	report, err := fr.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if report.Feeds != 2 || report.Processed != 1 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRefreshRetriesFailedCapture(t *testing.T) {
	fs, db := testEnv(t)
	feed, err := db.AddFeed("https://example.com/feed.xml")
	if err != nil {
		t.Fatal(err)
	}

	source := &stubFeedSource{snaps: map[string]*fetcher.FeedSnapshot{
		"https://example.com/feed.xml": {
			Title:   "Example",
			Entries: []fetcher.FeedEntry{{Title: "A", URL: "https://example.com/a"}},
		},
	}}

	// A summarizer failure leaves the entry unseen for the next refresh.
	f := &stubFetcher{
		kind: models.SourceArticle,
		content: &models.ExtractedContent{
			Text:       "Body text.",
			Title:      "Feed Entry",
			SourceKind: models.SourceArticle,
		},
	}
	runner, err := NewRunner(f, nil, &stubSummarizer{err: errors.New("llm down")},
		renderer.New("", "", ""), fs, db, Options{})
	if err != nil {
		t.Fatal(err)
	}
	fr, err := NewFeedRefresher(runner, db, source, FeedOptions{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}

	report, err := fr.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if report.NewItems != 1 || report.Processed != 0 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
	seen, err := db.SeenItem(feed.ID, "https://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("failed capture marked seen; it would never retry")
	}
}
