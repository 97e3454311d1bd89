package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
	"github.com/JohnTocci/KnowledgeHub/internal/fetcher"
	"github.com/JohnTocci/KnowledgeHub/internal/models"
	"github.com/JohnTocci/KnowledgeHub/internal/renderer"
	"github.com/JohnTocci/KnowledgeHub/internal/store"
	"github.com/JohnTocci/KnowledgeHub/internal/transcriber"
	"github.com/JohnTocci/KnowledgeHub/internal/vault"
)

type stubFetcher struct {
	kind       models.SourceKind
	content    *models.ExtractedContent
	articleErr error
	audio      *fetcher.AudioRef
	audioErr   error
}

func (s *stubFetcher) Classify(string) models.SourceKind { return s.kind }

func (s *stubFetcher) FetchArticle(context.Context, string) (*models.ExtractedContent, error) {
	return s.content, s.articleErr
}

func (s *stubFetcher) FetchAudio(context.Context, string) (*fetcher.AudioRef, error) {
	return s.audio, s.audioErr
}

type stubTranscriber struct {
	text string
	err  error
	got  string // audio path seen
}

func (s *stubTranscriber) Transcribe(_ context.Context, audioPath string, _ transcriber.ModelSize) (*transcriber.Transcript, error) {
	s.got = audioPath
	if s.err != nil {
		return nil, s.err
	}
	return &transcriber.Transcript{Text: s.text, Language: "en"}, nil
}

type stubSummarizer struct {
	summary *models.Summary
	err     error
	seen    []string // content text per invocation
}

func (s *stubSummarizer) Summarize(_ context.Context, content *models.ExtractedContent) (*models.Summary, error) {
	s.seen = append(s.seen, content.Text)
	return s.summary, s.err
}

func testEnv(t *testing.T) (*vault.FS, *store.DB) {
	t.Helper()
	fs, err := vault.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.CreateTemp(t.TempDir(), "khub-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	db, err := store.Open(f.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return fs, db
}

func articleSummary() *models.Summary {
	return &models.Summary{
		Text:      "The article explains things.",
		KeyPoints: []string{"first takeaway", "second takeaway"},
		Tags:      []string{"ai", "notes"},
	}
}

func TestProcessArticleEndToEnd(t *testing.T) {
	fs, db := testEnv(t)

	f := &stubFetcher{
		kind: models.SourceArticle,
		content: &models.ExtractedContent{
			Text:       "Full text of Article X with plenty of words.",
			Title:      "Article X",
			SourceKind: models.SourceArticle,
		},
	}
	sum := &stubSummarizer{summary: articleSummary()}

	var events []Event
	runner, err := NewRunner(f, nil, sum, renderer.New("", "", ""), fs, db, Options{
		Events: func(ev Event) { events = append(events, ev) },
	})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := runner.Process(context.Background(), "https://example.com/x", false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if rec.FilePath != "Article-X.md" {
		t.Errorf("FilePath = %q, want Article-X.md", rec.FilePath)
	}
	if rec.ID == 0 {
		t.Error("record not assigned an id")
	}

	// Note file exists in the vault with the summary content.
	data, err := fs.Read("Article-X.md")
	if err != nil {
		t.Fatalf("note file missing: %v", err)
	}
	note := string(data)
	for _, want := range []string{"Article X", "first takeaway", "second takeaway", "ai, notes"} {
		if !strings.Contains(note, want) {
			t.Errorf("note missing %q", want)
		}
	}

	// Record row matches the note.
	got, err := db.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Article X" || got.URL != "https://example.com/x" {
		t.Errorf("record = %+v", got)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "ai" || got.Tags[1] != "notes" {
		t.Errorf("Tags = %v", got.Tags)
	}
	if len(got.KeyPoints) != 2 {
		t.Errorf("KeyPoints = %v", got.KeyPoints)
	}

	// Progress events bracket the run.
	if len(events) < 2 {
		t.Fatalf("events = %v", events)
	}
	if events[0].Type != "run.started" || events[len(events)-1].Type != "run.completed" {
		t.Errorf("event sequence = %v", events)
	}
}

func TestProcessVideoTranscriptReachesSummarizer(t *testing.T) {
	fs, db := testEnv(t)

	audioDir := t.TempDir()
	audioPath := filepath.Join(audioDir, "audio.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &stubFetcher{
		kind:  models.SourceVideo,
		audio: &fetcher.AudioRef{Path: audioPath, Title: "A Video", Channel: "Chan"},
	}
	tr := &stubTranscriber{text: "hello world"}
	sum := &stubSummarizer{summary: articleSummary()}

	runner, err := NewRunner(f, tr, sum, renderer.New("", "", ""), fs, db, Options{})
	if err != nil {
		t.Fatal(err)
	}

	rec, err := runner.Process(context.Background(), "https://youtu.be/abc", false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if tr.got != audioPath {
		t.Errorf("transcriber saw %q", tr.got)
	}
	if len(sum.seen) != 1 || sum.seen[0] != "hello world" {
		t.Errorf("summarizer input = %v, want transcript text", sum.seen)
	}
	if rec.SourceKind != models.SourceVideo {
		t.Errorf("SourceKind = %v", rec.SourceKind)
	}
	if rec.Title != "A Video" {
		t.Errorf("Title = %q", rec.Title)
	}
}

func TestProcessForceVideoOverridesClassification(t *testing.T) {
	fs, db := testEnv(t)

	audioPath := filepath.Join(t.TempDir(), "audio.mp3")
	if err := os.WriteFile(audioPath, []byte("mp3"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &stubFetcher{
		kind:       models.SourceArticle, // classifier says article
		articleErr: errors.New("FetchArticle must not be called"),
		audio:      &fetcher.AudioRef{Path: audioPath, Title: "Forced"},
	}
	tr := &stubTranscriber{text: "forced transcript"}
	sum := &stubSummarizer{summary: articleSummary()}

	runner, err := NewRunner(f, tr, sum, renderer.New("", "", ""), fs, db, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := runner.Process(context.Background(), "https://example.com/talk", true); err != nil {
		t.Fatalf("Process: %v", err)
	}
}

func TestProcessFailedSummarizationLeavesNothing(t *testing.T) {
	fs, db := testEnv(t)

	f := &stubFetcher{
		kind:    models.SourceArticle,
		content: &models.ExtractedContent{Text: "text", Title: "Doomed"},
	}
	sum := &stubSummarizer{err: apperr.Summarization(errors.New("model down"), true)}

	var failed Event
	runner, err := NewRunner(f, nil, sum, renderer.New("", "", ""), fs, db, Options{
		Events: func(ev Event) {
			if ev.Type == "run.failed" {
				failed = ev
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = runner.Process(context.Background(), "https://example.com/doomed", false)
	if err == nil {
		t.Fatal("want error")
	}
	if stage, _ := apperr.StageOf(err); stage != apperr.StageSummarization {
		t.Errorf("stage = %v", stage)
	}
	if failed.Type != "run.failed" || failed.Stage != apperr.StageSummarization {
		t.Errorf("failed event = %+v", failed)
	}

	// No note file, no record row.
	if _, err := fs.Read("Doomed.md"); err == nil {
		t.Error("note file written despite failure")
	}
	_, total, err := db.List(store.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("records after failed run = %d, want 0", total)
	}
}

func TestProcessReplacesWatcherRow(t *testing.T) {
	fs, db := testEnv(t)

	f := &stubFetcher{
		kind: models.SourceArticle,
		content: &models.ExtractedContent{
			Text:       "Full text of Article X.",
			Title:      "Article X",
			SourceKind: models.SourceArticle,
		},
	}
	sum := &stubSummarizer{summary: articleSummary()}

	runner, err := NewRunner(f, nil, sum, renderer.New("", "", ""), fs, db, Options{})
	if err != nil {
		t.Fatal(err)
	}

	// A concurrent watcher can record the freshly written note from its
	// frontmatter before the run's own insert. Simulate that row: same
	// file_path, no key points, excerpt-grade summary.
	if _, err := db.Insert(&models.Record{
		URL:        "https://example.com/x",
		Title:      "Article X",
		Summary:    "Full text of",
		FilePath:   "Article-X.md",
		SourceKind: models.SourceArticle,
	}); err != nil {
		t.Fatal(err)
	}

	rec, err := runner.Process(context.Background(), "https://example.com/x", false)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.FilePath != "Article-X.md" {
		t.Errorf("FilePath = %q", rec.FilePath)
	}

	// Exactly one row remains and it carries the run's summary detail.
	_, total, err := db.List(store.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Fatalf("rows = %d, want 1", total)
	}
	got, err := db.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.KeyPoints) != 2 || got.Summary != "The article explains things." {
		t.Errorf("row not replaced: %+v", got)
	}
}

func TestProcessVideoWithoutTranscriber(t *testing.T) {
	fs, db := testEnv(t)

	f := &stubFetcher{kind: models.SourceVideo}
	sum := &stubSummarizer{summary: articleSummary()}

	runner, err := NewRunner(f, nil, sum, renderer.New("", "", ""), fs, db, Options{})
	if err != nil {
		t.Fatal(err)
	}

	_, err = runner.Process(context.Background(), "https://youtu.be/x", false)
	if err == nil {
		t.Fatal("want error when no transcriber is configured")
	}
	if stage, _ := apperr.StageOf(err); stage != apperr.StageTranscription {
		t.Errorf("stage = %v", stage)
	}
}

func TestProcessBatchCountsFailures(t *testing.T) {
	fs, db := testEnv(t)

	f := &stubFetcher{
		kind:    models.SourceArticle,
		content: &models.ExtractedContent{Text: "text", Title: "Batch Note"},
	}
	sum := &stubSummarizer{summary: articleSummary()}

	runner, err := NewRunner(f, nil, sum, renderer.New("", "", ""), fs, db, Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Two URLs produce identically-titled notes: WriteUnique keeps both.
	res := runner.ProcessBatch(context.Background(), []string{
		"https://example.com/1",
		"https://example.com/2",
	}, 2)
	if res.Processed != 2 || res.Failed != 0 {
		t.Errorf("batch result = %+v", res)
	}
	_, total, err := db.List(store.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("records = %d, want 2", total)
	}
}

type gatedFetcher struct {
	*stubFetcher
	started chan struct{}
	release chan struct{}
}

func (g *gatedFetcher) FetchArticle(ctx context.Context, rawURL string) (*models.ExtractedContent, error) {
	close(g.started)
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, apperr.FetchTransient(err)
	}
	return &models.ExtractedContent{Text: "text", Title: "Gated"}, nil
}

func TestProcessBatchCancelLetsInFlightFinish(t *testing.T) {
	fs, db := testEnv(t)

	gf := &gatedFetcher{
		stubFetcher: &stubFetcher{kind: models.SourceArticle},
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	sum := &stubSummarizer{summary: articleSummary()}

	runner, err := NewRunner(gf, nil, sum, renderer.New("", "", ""), fs, db, Options{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-gf.started
		cancel()
		close(gf.release)
	}()

	res := runner.ProcessBatch(ctx, []string{"https://example.com/gated"}, 1)
	if res.Processed != 1 || res.Failed != 0 {
		t.Fatalf("batch result = %+v (errors %v): in-flight run must finish after cancel", res, res.Errors)
	}
}

func TestProcessBatchCancelledBeforeStartSubmitsNothing(t *testing.T) {
	fs, db := testEnv(t)

	f := &stubFetcher{
		kind:    models.SourceArticle,
		content: &models.ExtractedContent{Text: "text", Title: "Never"},
	}
	sum := &stubSummarizer{summary: articleSummary()}

	runner, err := NewRunner(f, nil, sum, renderer.New("", "", ""), fs, db, Options{})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := runner.ProcessBatch(ctx, []string{"https://example.com/1", "https://example.com/2"}, 2)
	if res.Processed != 0 || res.Failed != 0 {
		t.Errorf("batch result = %+v, want nothing submitted", res)
	}
	_, total, err := db.List(store.Query{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 0 {
		t.Errorf("records = %d, want 0", total)
	}
}

func TestProcessStageTimeout(t *testing.T) {
	fs, db := testEnv(t)

	f := &stubFetcher{kind: models.SourceArticle}
	slow := &slowFetcher{stubFetcher: f, delay: 200 * time.Millisecond}
	sum := &stubSummarizer{summary: articleSummary()}

	runner, err := NewRunner(slow, nil, sum, renderer.New("", "", ""), fs, db, Options{
		StageTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := runner.Process(context.Background(), "https://example.com/slow", false); err == nil {
		t.Fatal("want timeout error")
	}
}

type slowFetcher struct {
	*stubFetcher
	delay time.Duration
}

func (s *slowFetcher) FetchArticle(ctx context.Context, rawURL string) (*models.ExtractedContent, error) {
	select {
	case <-ctx.Done():
		return nil, apperr.FetchTransient(ctx.Err())
	case <-time.After(s.delay):
		return &models.ExtractedContent{Text: "late", Title: "Late"}, nil
	}
}

func TestParseURLList(t *testing.T) {
	in := strings.NewReader(`
# comment line
https://example.com/a

https://example.com/b
`)
	urls, err := ParseURLList(in)
	if err != nil {
		t.Fatalf("ParseURLList: %v", err)
	}
	if len(urls) != 2 || urls[0] != "https://example.com/a" {
		t.Errorf("urls = %v", urls)
	}
}
