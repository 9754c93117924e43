package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ytdigest/internal/acquire"
	"ytdigest/internal/analysis"
	"ytdigest/internal/article"
	"ytdigest/internal/domain"
	"ytdigest/internal/ports"
	"ytdigest/internal/transcript"
)

// Config tunes orchestration behavior.
type Config struct {
	// Styles generated for every unit of work.
	Styles []domain.Style
	// MaxRetries bounds transient-error retries per stage.
	MaxRetries int
	// InitialBackoff and MaxBackoff shape the retry schedule.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Concurrency bounds simultaneous units of work during resume.
	Concurrency int
}

// Deps collects the pipeline's collaborators.
type Deps struct {
	Acquirer  *acquire.Acquirer
	Resolver  *transcript.Resolver
	Analyzer  *analysis.Analyzer
	Generator *article.Generator
	Store     ports.Store
	Logger    *slog.Logger
}

// Pipeline drives one video through acquire, transcribe, analyze, and
// generate. Progress is persisted as a Run after every stage, and each
// stage checks the store before doing work, so a restarted pipeline
// resumes where it stopped instead of redoing stages.
type Pipeline struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
}

func NewPipeline(deps Deps, cfg Config) *Pipeline {
	if len(cfg.Styles) == 0 {
		cfg.Styles = domain.AllStyles()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Pipeline{deps: deps, cfg: cfg, log: deps.Logger.With("component", "pipeline")}
}

// ProcessVideo runs the full pipeline for one video reference found under a
// keyword. Completed runs return immediately without duplicating work.
func (p *Pipeline) ProcessVideo(ctx context.Context, ref, keywordID, language string) (domain.Run, error) {
	var bundle domain.MediaBundle
	err := p.withRetry(ctx, func() error {
		var err error
		bundle, err = p.deps.Acquirer.Acquire(ctx, ref, keywordID, language)
		return err
	})
	if err != nil {
		return domain.Run{}, fmt.Errorf("acquire %q: %w", ref, err)
	}

	run, err := p.deps.Store.RunByVideo(ctx, bundle.Video.ID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		run = domain.Run{
			ID:           uuid.NewString(),
			VideoID:      bundle.Video.ID,
			Language:     language,
			State:        domain.StatePending,
			Styles:       p.cfg.Styles,
			StyleResults: map[domain.Style]domain.StyleResult{},
		}
		if err := p.deps.Store.SaveRun(ctx, &run); err != nil {
			return domain.Run{}, fmt.Errorf("save run: %w", err)
		}
	case err != nil:
		return domain.Run{}, fmt.Errorf("load run: %w", err)
	}
	if run.State == domain.StateComplete {
		p.log.Info("run already complete", "video", run.VideoID)
		return run, nil
	}
	if run.State == domain.StateFailed {
		// An explicit re-invocation restarts a failed run from the stage
		// that failed. The acquire above already succeeded, so an
		// acquire-stage failure restarts from acquired.
		p.log.Info("restarting failed run",
			"video", run.VideoID, "stage", run.FailedStage, "last_error", run.LastError)
		if err := p.advance(ctx, &run, restartState(run.FailedStage)); err != nil {
			return run, err
		}
	}

	if run.State == domain.StatePending {
		if err := p.advance(ctx, &run, domain.StateAcquired); err != nil {
			return run, err
		}
	}
	return p.resume(ctx, run, bundle)
}

// ResumeIncomplete restarts every non-terminal run found in the store,
// bounded by the configured concurrency. Failures are logged per run and
// do not stop the others.
func (p *Pipeline) ResumeIncomplete(ctx context.Context) error {
	runs, err := p.deps.Store.IncompleteRuns(ctx)
	if err != nil {
		return fmt.Errorf("list incomplete runs: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}
	p.log.Info("resuming incomplete runs", "count", len(runs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for _, run := range runs {
		run := run
		g.Go(func() error {
			if _, err := p.resumeRun(gctx, run); err != nil {
				p.log.Error("resume failed", "video", run.VideoID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Pipeline) resumeRun(ctx context.Context, run domain.Run) (domain.Run, error) {
	video, err := p.deps.Store.VideoByID(ctx, run.VideoID)
	if err != nil {
		return run, fmt.Errorf("load video %s: %w", run.VideoID, err)
	}

	var bundle domain.MediaBundle
	if run.State == domain.StatePending || run.State == domain.StateAcquired {
		err := p.withRetry(ctx, func() error {
			var err error
			bundle, err = p.deps.Acquirer.Acquire(ctx, video.YouTubeID, video.KeywordID, run.Language)
			return err
		})
		if err != nil {
			return p.fail(ctx, &run, domain.StageAcquire, err)
		}
		if run.State == domain.StatePending {
			if err := p.advance(ctx, &run, domain.StateAcquired); err != nil {
				return run, err
			}
		}
	} else {
		bundle.Video = video
	}
	return p.resume(ctx, run, bundle)
}

// resume advances a run from its persisted state to a terminal one. The
// bundle must hold the acquired video; captions may be absent when the
// transcript already exists.
func (p *Pipeline) resume(ctx context.Context, run domain.Run, bundle domain.MediaBundle) (domain.Run, error) {
	if run.State == domain.StateAcquired {
		var tr domain.Transcript
		err := p.withRetry(ctx, func() error {
			var err error
			tr, err = p.deps.Resolver.Resolve(ctx, bundle, transcript.Options{Language: run.Language})
			return err
		})
		if err != nil {
			return p.fail(ctx, &run, domain.StageTranscribe, err)
		}
		run.TranscriptID = tr.ID
		run.Language = tr.Language
		if err := p.advance(ctx, &run, domain.StateTranscribed); err != nil {
			return run, err
		}
	}

	var content domain.AnalyzedContent
	if run.State == domain.StateTranscribed || run.State == domain.StateAnalyzed || run.State == domain.StateGenerating {
		tr, err := p.deps.Store.TranscriptByID(ctx, run.TranscriptID)
		if err != nil {
			return run, fmt.Errorf("load transcript %s: %w", run.TranscriptID, err)
		}
		content, err = p.deps.Analyzer.Analyze(tr, bundle.Video.Title)
		if err != nil {
			return p.fail(ctx, &run, domain.StageAnalyze, err)
		}
		if run.State == domain.StateTranscribed {
			if err := p.advance(ctx, &run, domain.StateAnalyzed); err != nil {
				return run, err
			}
		}
	}

	if run.State == domain.StateAnalyzed {
		if err := p.advance(ctx, &run, domain.StateGenerating); err != nil {
			return run, err
		}
	}
	if run.State == domain.StateGenerating {
		return p.generateStyles(ctx, run, content, bundle.Video)
	}
	return run, nil
}

// generateStyles fans generation out across the run's styles. Styles are
// independent: one failing is recorded and does not abort the others, and
// styles already marked done are skipped on resume.
func (p *Pipeline) generateStyles(ctx context.Context, run domain.Run, content domain.AnalyzedContent, video domain.Video) (domain.Run, error) {
	if run.StyleResults == nil {
		run.StyleResults = map[domain.Style]domain.StyleResult{}
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	for _, style := range run.Styles {
		style := style
		if run.StyleResults[style].Status == domain.StyleDone {
			continue
		}
		g.Go(func() error {
			result := p.generateOne(gctx, run, style, content, video)
			mu.Lock()
			defer mu.Unlock()
			run.StyleResults[style] = result
			if result.Status == domain.StyleDone {
				// Persist the article mapping right away so a crash
				// before the terminal save cannot regenerate this style.
				if err := p.deps.Store.SaveRun(gctx, &run); err != nil {
					p.log.Error("persisting style result",
						"video", run.VideoID, "style", style, "error", err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return run, err
	}

	done := 0
	for _, style := range run.Styles {
		if run.StyleResults[style].Status == domain.StyleDone {
			done++
		}
	}
	if done == 0 {
		run.State = domain.StateFailed
		run.FailedStage = domain.StageGenerate
		run.LastError = "all styles failed"
	} else {
		run.State = domain.StateComplete
		run.LastError = ""
	}
	if err := p.deps.Store.SaveRun(ctx, &run); err != nil {
		return run, fmt.Errorf("save run: %w", err)
	}
	p.log.Info("run finished",
		"video", run.VideoID, "state", run.State,
		"styles_done", done, "styles_total", len(run.Styles))
	if run.State == domain.StateFailed {
		return run, fmt.Errorf("video %s: all %d styles failed", run.VideoID, len(run.Styles))
	}
	return run, nil
}

func (p *Pipeline) generateOne(ctx context.Context, run domain.Run, style domain.Style, content domain.AnalyzedContent, video domain.Video) domain.StyleResult {
	var draft domain.Draft
	err := p.withRetry(ctx, func() error {
		var err error
		draft, err = p.deps.Generator.Generate(ctx, style, content)
		return err
	})
	if err != nil {
		p.log.Warn("style failed", "video", run.VideoID, "style", style, "error", err)
		return domain.StyleResult{Status: domain.StyleFailed, Error: err.Error()}
	}

	a := domain.Article{
		ID:           uuid.NewString(),
		KeywordID:    video.KeywordID,
		VideoID:      run.VideoID,
		TranscriptID: run.TranscriptID,
		Style:        style,
		Language:     run.Language,
		Title:        draft.Title,
		Content:      draft.Content,
		Tags:         draft.Tags,
		SEO:          draft.SEO,
	}
	if err := p.deps.Store.InsertArticle(ctx, &a); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			// A previous execution stored the article but stopped before
			// recording the style result. Adopt the stored row.
			if id, ok := p.storedArticleID(ctx, run, style); ok {
				p.log.Info("article already stored", "video", run.VideoID, "style", style, "article", id)
				return domain.StyleResult{Status: domain.StyleDone, ArticleID: id}
			}
		}
		p.log.Warn("article insert failed", "video", run.VideoID, "style", style, "error", err)
		return domain.StyleResult{Status: domain.StyleFailed, Error: err.Error()}
	}
	p.log.Info("article stored", "video", run.VideoID, "style", style, "article", a.ID)
	return domain.StyleResult{Status: domain.StyleDone, ArticleID: a.ID}
}

// storedArticleID finds the live article for the run's transcript and the
// given style.
func (p *Pipeline) storedArticleID(ctx context.Context, run domain.Run, style domain.Style) (string, bool) {
	articles, err := p.deps.Store.ArticlesByVideo(ctx, run.VideoID)
	if err != nil {
		return "", false
	}
	for _, a := range articles {
		if a.TranscriptID == run.TranscriptID && a.Style == style && !a.Superseded {
			return a.ID, true
		}
	}
	return "", false
}

// restartState maps a failed stage to the state that re-attempts it.
func restartState(stage domain.Stage) domain.RunState {
	switch stage {
	case domain.StageAnalyze:
		return domain.StateTranscribed
	case domain.StageGenerate:
		return domain.StateGenerating
	default:
		return domain.StateAcquired
	}
}

// advance persists the state transition before any later stage runs, so a
// crash never loses a completed stage.
func (p *Pipeline) advance(ctx context.Context, run *domain.Run, state domain.RunState) error {
	run.State = state
	run.FailedStage = ""
	run.LastError = ""
	if err := p.deps.Store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run at %s: %w", state, err)
	}
	p.log.Debug("state advanced", "video", run.VideoID, "state", state)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, run *domain.Run, stage domain.Stage, cause error) (domain.Run, error) {
	run.State = domain.StateFailed
	run.FailedStage = stage
	run.LastError = cause.Error()
	if err := p.deps.Store.SaveRun(ctx, run); err != nil {
		p.log.Error("recording failure", "video", run.VideoID, "error", err)
	}
	return *run, fmt.Errorf("%s stage: %w", stage, cause)
}

// withRetry retries op on transient errors with exponential backoff and
// stops immediately on fatal ones.
func (p *Pipeline) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.InitialBackoff
	bo.MaxInterval = p.cfg.MaxBackoff
	bo.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !domain.Retryable(err) {
			return backoff.Permanent(err)
		}
		attempt++
		p.log.Warn("transient error, retrying", "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.cfg.MaxRetries)), ctx))
}
