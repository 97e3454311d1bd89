// Package pipeline orchestrates a capture run: fetch or transcribe a
// source, summarize it, render a note into the vault, and index it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/JohnTocci/KnowledgeHub/internal/apperr"
	"github.com/JohnTocci/KnowledgeHub/internal/fetcher"
	"github.com/JohnTocci/KnowledgeHub/internal/models"
	"github.com/JohnTocci/KnowledgeHub/internal/renderer"
	"github.com/JohnTocci/KnowledgeHub/internal/store"
	"github.com/JohnTocci/KnowledgeHub/internal/summarizer"
	"github.com/JohnTocci/KnowledgeHub/internal/transcriber"
	"github.com/JohnTocci/KnowledgeHub/internal/vault"
)

// Event reports pipeline progress for subscribers such as the SSE broker.
type Event struct {
	Type  string // run.started, run.stage, run.completed, run.failed
	URL   string
	Stage apperr.Stage
	Err   string
	Rec   *models.Record
}

// EventFunc receives pipeline events. Implementations must not block.
type EventFunc func(Event)

// Options configures a Runner.
type Options struct {
	// StageTimeout bounds each individual stage. Zero disables the bound.
	StageTimeout time.Duration
	// WhisperModel selects the transcription model size.
	WhisperModel transcriber.ModelSize
	// Events, when set, receives progress notifications.
	Events EventFunc

	Logger *slog.Logger
}

// Runner executes capture runs against a fixed set of collaborators.
type Runner struct {
	fetcher     fetcher.ContentFetcher
	transcriber transcriber.Transcriber
	summarizer  summarizer.Summarizer
	renderer    *renderer.Renderer
	vault       vault.Provider
	store       store.RecordStore
	opts        Options
}

// NewRunner wires up a pipeline. All collaborators are required except the
// transcriber, which may be nil when video capture is disabled.
func NewRunner(f fetcher.ContentFetcher, t transcriber.Transcriber, s summarizer.Summarizer,
	r *renderer.Renderer, v vault.Provider, db store.RecordStore, opts Options) (*Runner, error) {
	if f == nil || s == nil || r == nil || v == nil || db == nil {
		return nil, fmt.Errorf("pipeline: missing collaborator")
	}
	if opts.WhisperModel == "" {
		opts.WhisperModel = transcriber.ModelBase
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return &Runner{
		fetcher:     f,
		transcriber: t,
		summarizer:  s,
		renderer:    r,
		vault:       v,
		store:       db,
		opts:        opts,
	}, nil
}

// Process runs the full pipeline for a single URL. When forceVideo is set
// the URL is treated as a video regardless of host classification. The
// vault file is written before the index row; a failure at any stage
// leaves no partial record behind.
func (r *Runner) Process(ctx context.Context, rawURL string, forceVideo bool) (*models.Record, error) {
	start := time.Now()
	r.emit(Event{Type: "run.started", URL: rawURL})
	rec, err := r.process(ctx, rawURL, forceVideo)
	if err != nil {
		stage, _ := apperr.StageOf(err)
		r.opts.Logger.Error("pipeline: run failed",
			"url", rawURL, "stage", string(stage),
			"transient", apperr.IsTransient(err), "error", err)
		r.emit(Event{Type: "run.failed", URL: rawURL, Stage: stage, Err: err.Error()})
		return nil, err
	}
	r.opts.Logger.Info("pipeline: run completed",
		"url", rawURL, "file", rec.FilePath, "record_id", rec.ID,
		"duration", time.Since(start).String())
	r.emit(Event{Type: "run.completed", URL: rawURL, Rec: rec})
	return rec, nil
}

func (r *Runner) process(ctx context.Context, rawURL string, forceVideo bool) (*models.Record, error) {
	kind := r.fetcher.Classify(rawURL)
	if forceVideo {
		kind = models.SourceVideo
	}

	var (
		content *models.ExtractedContent
		err     error
	)
	switch kind {
	case models.SourceVideo:
		content, err = r.captureVideo(ctx, rawURL)
	default:
		r.emit(Event{Type: "run.stage", URL: rawURL, Stage: apperr.StageFetch})
		content, err = withTimeout(ctx, r.opts.StageTimeout, func(ctx context.Context) (*models.ExtractedContent, error) {
			return r.fetcher.FetchArticle(ctx, rawURL)
		})
	}
	if err != nil {
		return nil, err
	}

	r.emit(Event{Type: "run.stage", URL: rawURL, Stage: apperr.StageSummarization})
	summary, err := withTimeout(ctx, r.opts.StageTimeout, func(ctx context.Context) (*models.Summary, error) {
		return r.summarizer.Summarize(ctx, content)
	})
	if err != nil {
		return nil, err
	}

	note, err := r.renderer.Render(rawURL, content, summary, time.Now())
	if err != nil {
		return nil, apperr.Write(err)
	}

	r.emit(Event{Type: "run.stage", URL: rawURL, Stage: apperr.StageWrite})
	finalPath, err := r.vault.WriteUnique(note.FilePath, []byte(note.Content))
	if err != nil {
		return nil, apperr.Write(err)
	}

	rec := &models.Record{
		URL:        rawURL,
		Title:      content.Title,
		Tags:       summary.Tags,
		Summary:    summary.Text,
		KeyPoints:  summary.KeyPoints,
		FilePath:   finalPath,
		SourceKind: content.SourceKind,
		WordCount:  content.WordCount(),
		CreatedAt:  note.CreatedAt,
	}

	r.emit(Event{Type: "run.stage", URL: rawURL, Stage: apperr.StageStore})
	if _, err := r.store.Insert(rec); err != nil {
		if errors.Is(err, apperr.ErrAlreadyExists) {
			// The vault watcher can see the note file and record a row
			// rebuilt from frontmatter before this insert lands. That row
			// lacks the summary detail only this run has, so replace it.
			if delErr := r.store.DeleteByPath(finalPath); delErr != nil {
				return nil, apperr.Store(fmt.Errorf("index %s: %w", finalPath, delErr))
			}
			if _, insErr := r.store.Insert(rec); insErr != nil {
				return nil, apperr.Store(fmt.Errorf("index %s: %w", finalPath, insErr))
			}
			return rec, nil
		}
		// The note file stays; reconciliation picks it up later.
		return nil, apperr.Store(fmt.Errorf("index %s: %w", finalPath, err))
	}
	return rec, nil
}

// captureVideo downloads the audio track and transcribes it. The temporary
// audio file is removed regardless of outcome.
func (r *Runner) captureVideo(ctx context.Context, rawURL string) (*models.ExtractedContent, error) {
	if r.transcriber == nil {
		return nil, apperr.Transcription(fmt.Errorf("video capture disabled: no transcriber configured"))
	}

	r.emit(Event{Type: "run.stage", URL: rawURL, Stage: apperr.StageFetch})
	audio, err := withTimeout(ctx, r.opts.StageTimeout, func(ctx context.Context) (*fetcher.AudioRef, error) {
		return r.fetcher.FetchAudio(ctx, rawURL)
	})
	if err != nil {
		return nil, err
	}
	defer audio.Cleanup()

	r.emit(Event{Type: "run.stage", URL: rawURL, Stage: apperr.StageTranscription})
	transcript, err := withTimeout(ctx, r.opts.StageTimeout, func(ctx context.Context) (*transcriber.Transcript, error) {
		return r.transcriber.Transcribe(ctx, audio.Path, r.opts.WhisperModel)
	})
	if err != nil {
		return nil, err
	}

	content := &models.ExtractedContent{
		Text:       transcript.Text,
		Title:      audio.Title,
		Author:     audio.Channel,
		Language:   transcript.Language,
		SourceKind: models.SourceVideo,
	}
	if audio.Uploaded != nil {
		content.PublishedAt = audio.Uploaded
	}
	if content.Title == "" {
		content.Title = rawURL
	}
	return content, nil
}

// withTimeout runs fn under an optional per-stage deadline.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	return fn(ctx)
}

func (r *Runner) emit(ev Event) {
	if r.opts.Events != nil {
		r.opts.Events(ev)
	}
}
