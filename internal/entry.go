// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/JohnTocci/KnowledgeHub/internal/api"
	"github.com/JohnTocci/KnowledgeHub/internal/fetcher"
	"github.com/JohnTocci/KnowledgeHub/internal/mcpserver"
	"github.com/JohnTocci/KnowledgeHub/internal/pipeline"
	"github.com/JohnTocci/KnowledgeHub/internal/renderer"
	"github.com/JohnTocci/KnowledgeHub/internal/sse"
	"github.com/JohnTocci/KnowledgeHub/internal/store"
	"github.com/JohnTocci/KnowledgeHub/internal/summarizer"
	"github.com/JohnTocci/KnowledgeHub/internal/transcriber"
	"github.com/JohnTocci/KnowledgeHub/internal/vault"
	"github.com/JohnTocci/KnowledgeHub/pkg/executor"
)

// components holds everything a run mode needs; close releases them.
type components struct {
	cfg       *Config
	logger    *slog.Logger
	store     *vault.FS
	db        *store.DB
	runner    *pipeline.Runner
	refresher *pipeline.FeedRefresher
}

func (c *components) close() {
	if c.db != nil {
		_ = c.db.Close()
	}
}

// setup builds the shared component graph: vault, record store, fetcher,
// transcriber, summarizer, renderer and pipeline runner. events may be nil.
func setup(cfg *Config, logger *slog.Logger, events pipeline.EventFunc) (*components, error) {
	vaultPath := ExpandHome(cfg.Vault.Path)
	fs, err := vault.NewFS(vaultPath)
	if err != nil {
		return nil, fmt.Errorf("init vault: %w", err)
	}

	db, err := store.Open(ExpandHome(cfg.SQLite.Path))
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	apiKey, err := cfg.Summarizer.APIKey()
	if err != nil {
		db.Close()
		return nil, err
	}

	exec := executor.New()

	f := fetcher.New(fetcher.Options{
		MinContentLength: cfg.Pipeline.MinContentLength,
		YTDLPPath:        cfg.Transcriber.YTDLPPath,
		AudioQuality:     cfg.Transcriber.AudioQuality,
	}, exec)

	w := transcriber.New(transcriber.Options{
		BinaryPath: cfg.Transcriber.BinaryPath,
		ModelDir:   ExpandHome(cfg.Transcriber.ModelDir),
		Language:   cfg.Transcriber.Language,
	}, exec)

	sum, err := summarizer.New(summarizer.Options{
		APIKey:        apiKey,
		Model:         cfg.Summarizer.Model,
		SystemPrompt:  cfg.Summarizer.SystemPrompt,
		TaskPrompt:    cfg.Summarizer.TaskPrompt,
		MaxInputChars: cfg.Summarizer.MaxInputChars,
		MaxTokens:     cfg.Summarizer.MaxTokens,
		Temperature:   cfg.Summarizer.Temperature,
		MaxRetries:    cfg.Summarizer.Retries,
		Logger:        logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init summarizer: %w", err)
	}

	rend := renderer.New(cfg.Templates.Filename, cfg.Templates.Markdown, cfg.Templates.DateFormat)

	whisperModel, err := transcriber.ParseModelSize(cfg.Transcriber.Model)
	if err != nil {
		whisperModel = transcriber.ModelBase
	}

	runner, err := pipeline.NewRunner(f, w, sum, rend, fs, db, pipeline.Options{
		StageTimeout: cfg.Pipeline.StageTimeout,
		WhisperModel: whisperModel,
		Events:       events,
		Logger:       logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	refresher, err := pipeline.NewFeedRefresher(runner, db, f, pipeline.FeedOptions{
		MaxItems: cfg.Pipeline.FeedMaxItems,
		Logger:   logger,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init feed refresher: %w", err)
	}

	return &components{cfg: cfg, logger: logger, store: fs, db: db, runner: runner, refresher: refresher}, nil
}

func newLogger(cfg *Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// Run starts the dashboard server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := newLogger(cfg)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker first so the pipeline can publish progress into it.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	comp, err := setup(cfg, logger, broker.PipelineEvents())
	if err != nil {
		return err
	}
	defer comp.close()

	// Rebuild index rows from the vault. Files are the source of truth.
	if err := store.Reconcile(comp.db, comp.store, logger); err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	}

	svc := api.NewService(comp.runner, comp.db, comp.db, comp.refresher, comp.store, cfg.View())
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Vault watcher keeps record rows in line with files on disk.
	g.Go(func() error {
		err := store.Watch(gCtx, comp.db, comp.store, logger, func(kind, path string) {
			broker.PublishRecordEvent(kind, path)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("vault watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunProcess executes a single capture run and prints the resulting record path.
func RunProcess(ctx context.Context, cfg *Config, rawURL string, forceVideo bool) error {
	logger := newLogger(cfg)

	comp, err := setup(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer comp.close()

	rec, err := comp.runner.Process(ctx, rawURL, forceVideo)
	if err != nil {
		return err
	}
	fmt.Printf("saved %s (record %d)\n", rec.FilePath, rec.ID)
	return nil
}

// RunBatch processes every URL in the named file with bounded concurrency.
func RunBatch(ctx context.Context, cfg *Config, listPath string) error {
	logger := newLogger(cfg)

	f, err := os.Open(listPath)
	if err != nil {
		return fmt.Errorf("open url list: %w", err)
	}
	urls, err := pipeline.ParseURLList(f)
	f.Close()
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return fmt.Errorf("no urls in %s", listPath)
	}

	comp, err := setup(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer comp.close()

	res := comp.runner.ProcessBatch(ctx, urls, cfg.Pipeline.Concurrency)
	logger.Info("batch finished",
		slog.Int("processed", res.Processed),
		slog.Int("failed", res.Failed))
	for _, be := range res.Errors {
		fmt.Fprintf(os.Stderr, "failed %s: %v\n", be.URL, be.Err)
	}
	if res.Failed > 0 {
		return fmt.Errorf("batch: %d of %d urls failed", res.Failed, len(urls))
	}
	return nil
}

// RunFeedAdd subscribes a feed URL.
func RunFeedAdd(ctx context.Context, cfg *Config, feedURL string) error {
	logger := newLogger(cfg)

	comp, err := setup(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer comp.close()

	feed, err := comp.db.AddFeed(feedURL)
	if err != nil {
		return err
	}
	fmt.Printf("subscribed %s (feed %d)\n", feed.URL, feed.ID)
	return nil
}

// RunFeedList prints every subscribed feed.
func RunFeedList(ctx context.Context, cfg *Config) error {
	logger := newLogger(cfg)

	comp, err := setup(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer comp.close()

	feeds, err := comp.db.ListFeeds()
	if err != nil {
		return err
	}
	if len(feeds) == 0 {
		fmt.Println("no feeds subscribed")
		return nil
	}
	for _, f := range feeds {
		last := "never"
		if f.LastFetched != nil {
			last = f.LastFetched.Format(time.RFC3339)
		}
		title := f.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%d\t%s\t%s\tlast fetched %s\n", f.ID, title, f.URL, last)
	}
	return nil
}

// RunFeedRemove unsubscribes a feed by id.
func RunFeedRemove(ctx context.Context, cfg *Config, id int64) error {
	logger := newLogger(cfg)

	comp, err := setup(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer comp.close()

	if err := comp.db.RemoveFeed(id); err != nil {
		return err
	}
	fmt.Printf("removed feed %d\n", id)
	return nil
}

// RunFeedRefresh polls every subscribed feed and captures new entries.
func RunFeedRefresh(ctx context.Context, cfg *Config) error {
	logger := newLogger(cfg)

	comp, err := setup(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer comp.close()

	report, err := comp.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	logger.Info("feed refresh finished",
		slog.Int("feeds", report.Feeds),
		slog.Int("new_items", report.NewItems),
		slog.Int("processed", report.Processed),
		slog.Int("failed", report.Failed))
	fmt.Printf("refreshed %d feeds: %d new, %d captured, %d failed\n",
		report.Feeds, report.NewItems, report.Processed, report.Failed)
	return nil
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr so they do not
// corrupt the protocol stream.
func RunMCP(ctx context.Context, cfg *Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	comp, err := setup(cfg, logger, nil)
	if err != nil {
		return err
	}
	defer comp.close()

	if err := store.Reconcile(comp.db, comp.store, logger); err != nil {
		logger.Warn("initial reconcile failed", slog.String("error", err.Error()))
	}

	srv := mcpserver.New(comp.runner, comp.db, comp.store)
	return srv.ServeStdio()
}
