package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ewintr.nl/vidqa/cache"
	"ewintr.nl/vidqa/config"
	"ewintr.nl/vidqa/fetcher"
	"ewintr.nl/vidqa/handler"
	"ewintr.nl/vidqa/page"
	"ewintr.nl/vidqa/process"
	"ewintr.nl/vidqa/storage"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "vidqa",
	Short: "Summaries and question answering for YouTube videos",
	Long: `vidqa detects YouTube links in text, caches video metadata and transcripts,
generates structured summaries and answers questions about video content.

Run "vidqa serve" for the HTTP API or "vidqa mcp" to expose the same operations
as MCP tools over stdio.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger = cfg.NewLogger(os.Stderr)
		if cfg.ConfigFile != "" {
			logger.Debug("config loaded", slog.String("file", cfg.ConfigFile))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/vidqa/config.toml)")
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app holds the wired services shared by all commands.
type app struct {
	deps    handler.Deps
	memory  *cache.Memory
	closers []io.Closer
}

// newApp wires the services. On error everything opened so far is closed.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{memory: cache.NewMemory(cfg.CacheMaxEntries)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var store cache.Store = a.memory
	var stats handler.StatsReporter = a.memory
	if cfg.RedisURL != "" {
		redis, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, using in-memory cache only", slog.Any("error", err))
		} else {
			tiered := cache.NewTiered(a.memory, redis, cfg.CacheL1TTL, logger)
			store, stats = tiered, tiered
			a.closers = append(a.closers, redis)
			logger.Info("redis cache connected")
		}
	}
	videos := cache.NewVideos(store, cfg.CacheTimeout, logger)

	yt, err := fetcher.NewYouTube(ctx, fetcher.YouTubeInfo{
		APIKey: cfg.YouTubeAPIKey,
		RPS:    cfg.YouTubeRPS,
		Langs:  cfg.TranscriptLangs,
	}, logger)
	if err != nil {
		return nil, err
	}
	openAI := fetcher.NewOpenAI(fetcher.OpenAIInfo{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.OpenAIModel,
		MaxTokens:   cfg.OpenAIMaxTokens,
		Temperature: cfg.OpenAITemperature,
	})
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("no openai api key configured, summaries and answers are unavailable")
	}

	var archive storage.VideoRepository
	if cfg.Postgres.Enabled() {
		pg, err := storage.NewPostgres(ctx, storage.PostgresInfo{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pg)
		archive = storage.NewPostgresVideoRepository(pg)
	}

	var index storage.SummaryIndex
	if cfg.WeaviateHost != "" {
		wv, err := storage.NewWeaviate(storage.WeaviateInfo{
			Scheme:       cfg.WeaviateScheme,
			Host:         cfg.WeaviateHost,
			APIKey:       cfg.WeaviateAPIKey,
			OpenAIAPIKey: cfg.OpenAIAPIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("unable to create weaviate client: %w", err)
		}
		if err := wv.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		index = wv
	}

	var pageOpts []page.Option
	if cfg.PageAllowPrivate {
		pageOpts = append(pageOpts, page.AllowPrivateAddresses())
	}

	opts := processOptions(cfg)
	processor := process.NewProcessor(videos, yt, yt, archive, opts, logger)
	a.deps = handler.Deps{
		Processor:  processor,
		Summarizer: process.NewSummarizer(videos, processor, openAI, archive, index, opts, logger),
		Session:    process.NewSession(openAI, opts, logger),
		Pages:      page.NewFetcher(cfg.PageTimeout, logger, pageOpts...),
		Archive:    archive,
		Index:      index,
		Stats:      stats,
	}

	return a, nil
}

func processOptions(cfg *config.Config) process.Options {
	opts := process.DefaultOptions()
	opts.ProviderTimeout = cfg.ProviderTimeout
	opts.StatusTTL = cfg.StatusTTL
	opts.MetadataTTL = cfg.MetadataTTL
	opts.DegradedTTL = cfg.DegradedTTL
	opts.TranscriptTTL = cfg.TranscriptTTL
	opts.SummaryTTL = cfg.SummaryTTL
	opts.LockMode = process.LockMode(cfg.LockMode)
	opts.QAFallback = cfg.QAFallback
	opts.HistoryWindow = cfg.QAHistoryWindow
	if cfg.MaxTranscript > 0 {
		opts.MaxTranscriptChars = cfg.MaxTranscript
	}
	return opts
}

// cleanup starts the expiry sweep of the in-memory cache tier.
func (a *app) cleanup(ctx context.Context) {
	go a.memory.Cleanup(ctx, time.Minute)
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
