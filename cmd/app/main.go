package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/JohnTocci/KnowledgeHub/internal"
	pkgconfig "github.com/JohnTocci/KnowledgeHub/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if vaultPath := cmd.String("vault"); vaultPath != "" {
		cfg.Vault.Path = vaultPath
	}
	if model := cmd.String("model"); model != "" {
		cfg.Summarizer.Model = model
	}
	if cmd.Bool("verbose") {
		cfg.App.LogLevel = slog.LevelDebug
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func main() {
	globalFlags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to config file",
			DefaultText: "config/config.yaml",
			Value:       "config/config.yaml",
			Sources:     cli.EnvVars("APP_CONFIG_FILE"),
		},
		&cli.StringFlag{
			Name:  "vault",
			Usage: "Override the vault directory",
		},
		&cli.StringFlag{
			Name:  "model",
			Usage: "Override the summarization model id",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable debug logging",
		},
	}

	cmd := &cli.Command{
		Name:  "knowledgehub",
		Usage: "Capture web articles and videos into summarized Markdown notes with a searchable dashboard",
		Flags: globalFlags,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the dashboard HTTP server with the vault watcher",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.Run(ctx, internal.WithConfig(cfg))
				},
			},
			{
				Name:      "process",
				Usage:     "Capture a single URL into the knowledge base",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "video",
						Usage: "Force the video/transcription path",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					rawURL := cmd.Args().First()
					if rawURL == "" {
						return fmt.Errorf("usage: process <url>")
					}
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.RunProcess(ctx, cfg, rawURL, cmd.Bool("video"))
				},
			},
			{
				Name:      "batch",
				Usage:     "Capture every URL listed in a file (one per line, # comments)",
				ArgsUsage: "<file>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					listPath := cmd.Args().First()
					if listPath == "" {
						return fmt.Errorf("usage: batch <file>")
					}
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.RunBatch(ctx, cfg, listPath)
				},
			},
			{
				Name:  "feeds",
				Usage: "Manage RSS/Atom feed subscriptions",
				Commands: []*cli.Command{
					{
						Name:      "add",
						Usage:     "Subscribe a feed URL",
						ArgsUsage: "<url>",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							feedURL := cmd.Args().First()
							if feedURL == "" {
								return fmt.Errorf("usage: feeds add <url>")
							}
							cfg, err := loadConfig(cmd)
							if err != nil {
								return err
							}
							return internal.RunFeedAdd(ctx, cfg, feedURL)
						},
					},
					{
						Name:  "list",
						Usage: "List subscribed feeds",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							cfg, err := loadConfig(cmd)
							if err != nil {
								return err
							}
							return internal.RunFeedList(ctx, cfg)
						},
					},
					{
						Name:      "remove",
						Usage:     "Unsubscribe a feed by id",
						ArgsUsage: "<id>",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							raw := cmd.Args().First()
							if raw == "" {
								return fmt.Errorf("usage: feeds remove <id>")
							}
							id, err := strconv.ParseInt(raw, 10, 64)
							if err != nil {
								return fmt.Errorf("invalid feed id %q", raw)
							}
							cfg, err := loadConfig(cmd)
							if err != nil {
								return err
							}
							return internal.RunFeedRemove(ctx, cfg, id)
						},
					},
					{
						Name:  "refresh",
						Usage: "Poll every subscribed feed and capture new items",
						Action: func(ctx context.Context, cmd *cli.Command) error {
							cfg, err := loadConfig(cmd)
							if err != nil {
								return err
							}
							return internal.RunFeedRefresh(ctx, cfg)
						},
					},
				},
			},
			{
				Name:  "mcp",
				Usage: "Serve MCP tools over stdio for LLM integration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					return internal.RunMCP(ctx, cfg)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
