package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"ytdigest/internal/acquire"
	"ytdigest/internal/analysis"
	"ytdigest/internal/article"
	"ytdigest/internal/config"
	"ytdigest/internal/domain"
	"ytdigest/internal/infrastructure/ffmpeg"
	"ytdigest/internal/infrastructure/llm"
	"ytdigest/internal/infrastructure/scheduler"
	"ytdigest/internal/infrastructure/storage"
	"ytdigest/internal/infrastructure/stt"
	"ytdigest/internal/infrastructure/youtube"
	"ytdigest/internal/logging"
	"ytdigest/internal/ports"
	"ytdigest/internal/transcript"
	"ytdigest/internal/usecase"
)

// Application wires configuration to infrastructure and use cases and owns
// their lifecycle.
type Application struct {
	cfg      config.Config
	log      *slog.Logger
	store    *storage.PostgresRepository
	pipeline *usecase.Pipeline
	sched    ports.Scheduler
}

// New builds a runnable application instance. The store connection is
// opened and migrated here so a misconfigured deployment fails at startup.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	store, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	downloader := youtube.NewDownloader(&http.Client{Timeout: 30 * time.Second},
		logging.Component(baseLogger, "youtube"))
	acquirer := acquire.New(downloader, store, cfg.Media.Dir,
		logging.Component(baseLogger, "acquire"))

	resolver := transcript.NewResolver(
		ffmpeg.NewExtractor(),
		stt.NewClient(cfg.STT, logging.Component(baseLogger, "stt")),
		store,
		transcript.Policy{
			CaptionMinCoverage: cfg.Pipeline.CaptionMinCoverage,
			CaptionMaxGap:      cfg.Pipeline.CaptionMaxGap,
			GapThreshold:       cfg.Pipeline.GapThreshold,
		},
		logging.Component(baseLogger, "transcript"))

	generator := article.NewGenerator(
		llm.NewChatGPTClient(cfg.LLM),
		article.NewRegistry(),
		article.Config{
			MaxAttempts: cfg.Pipeline.GenerationMaxAttempts,
			MinLength:   cfg.Pipeline.GenerationMinLength,
		},
		logging.Component(baseLogger, "article"))

	styles, err := parseStyles(cfg.Pipeline.Styles)
	if err != nil {
		return nil, err
	}

	pipeline := usecase.NewPipeline(usecase.Deps{
		Acquirer:  acquirer,
		Resolver:  resolver,
		Analyzer:  analysis.New(analysis.Config{}),
		Generator: generator,
		Store:     store,
		Logger:    baseLogger,
	}, usecase.Config{
		Styles:         styles,
		MaxRetries:     int(cfg.Pipeline.MaxRetries),
		InitialBackoff: cfg.Pipeline.InitialBackoff,
		MaxBackoff:     cfg.Pipeline.MaxBackoff,
		Concurrency:    cfg.Pipeline.Concurrency,
	})

	return &Application{
		cfg:      cfg,
		log:      baseLogger,
		store:    store,
		pipeline: pipeline,
		sched:    scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.Location()),
	}, nil
}

func parseStyles(names []string) ([]domain.Style, error) {
	styles := make([]domain.Style, 0, len(names))
	for _, name := range names {
		s, err := article.ParseStyle(name)
		if err != nil {
			return nil, fmt.Errorf("pipeline.styles: %w", err)
		}
		styles = append(styles, s)
	}
	return styles, nil
}

// ProcessVideo drives one video reference through the pipeline.
func (a *Application) ProcessVideo(ctx context.Context, ref, keywordID, language string) (domain.Run, error) {
	return a.pipeline.ProcessVideo(ctx, ref, keywordID, language)
}

// Run resumes interrupted work on the configured interval until the
// context is canceled.
func (a *Application) Run(ctx context.Context) error {
	err := a.sched.Start(ctx, func(now time.Time) {
		a.log.Info("scheduled resume", "at", now)
		if err := a.pipeline.ResumeIncomplete(ctx); err != nil {
			a.log.Error("scheduled resume", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.sched.Stop(stopCtx); err != nil {
		return err
	}
	return a.store.Close()
}
