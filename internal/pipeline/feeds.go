package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/JohnTocci/KnowledgeHub/internal/fetcher"
	"github.com/JohnTocci/KnowledgeHub/internal/store"
)

// FeedSource fetches and parses remote feeds.
type FeedSource interface {
	FetchFeed(ctx context.Context, rawURL string) (*fetcher.FeedSnapshot, error)
}

// FeedOptions configures a FeedRefresher.
type FeedOptions struct {
	// MaxItems caps how many entries per feed one refresh considers.
	MaxItems int
	Logger   *slog.Logger
}

// FeedReport summarizes one refresh pass over all subscribed feeds.
type FeedReport struct {
	Feeds     int `json:"feeds"`
	NewItems  int `json:"new_items"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// FeedRefresher polls subscribed feeds and runs new entries through the
// capture pipeline. An entry counts as seen only after a successful run,
// so a failed capture is retried on the next refresh.
type FeedRefresher struct {
	runner *Runner
	feeds  store.FeedStore
	source FeedSource
	opts   FeedOptions
}

// NewFeedRefresher wires a refresher over an existing pipeline runner.
func NewFeedRefresher(runner *Runner, feeds store.FeedStore, source FeedSource, opts FeedOptions) (*FeedRefresher, error) {
	if runner == nil || feeds == nil || source == nil {
		return nil, fmt.Errorf("pipeline: missing feed collaborator")
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = 10
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	return &FeedRefresher{runner: runner, feeds: feeds, source: source, opts: opts}, nil
}

// Refresh fetches every subscribed feed and captures its unseen entries.
// A feed that cannot be fetched is skipped, not fatal; cancellation stops
// between entries, never mid-capture.
func (fr *FeedRefresher) Refresh(ctx context.Context) (*FeedReport, error) {
	feeds, err := fr.feeds.ListFeeds()
	if err != nil {
		return nil, err
	}

	report := &FeedReport{Feeds: len(feeds)}
	runCtx := context.WithoutCancel(ctx)

	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		snap, err := fr.source.FetchFeed(ctx, feed.URL)
		if err != nil {
			fr.opts.Logger.Warn("feed fetch failed",
				slog.String("feed", feed.URL), slog.String("error", err.Error()))
			report.Failed++
			continue
		}
		if err := fr.feeds.TouchFeed(feed.ID, snap.Title); err != nil {
			fr.opts.Logger.Warn("feed touch failed",
				slog.Int64("feed_id", feed.ID), slog.String("error", err.Error()))
		}

		entries := snap.Entries
		if len(entries) > fr.opts.MaxItems {
			entries = entries[:fr.opts.MaxItems]
		}
		for _, entry := range entries {
			if ctx.Err() != nil {
				break
			}
			seen, err := fr.feeds.SeenItem(feed.ID, entry.URL)
			if err != nil {
				return report, err
			}
			if seen {
				continue
			}
			report.NewItems++

			if _, err := fr.runner.Process(runCtx, entry.URL, false); err != nil {
				fr.opts.Logger.Warn("feed item capture failed",
					slog.String("feed", feed.URL),
					slog.String("url", entry.URL),
					slog.String("error", err.Error()))
				report.Failed++
				continue
			}
			if err := fr.feeds.MarkItemSeen(feed.ID, entry.URL); err != nil {
				return report, err
			}
			report.Processed++
		}
	}
	return report, nil
}
