package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yangwenmai/threadauto/internal/model"
	"github.com/yangwenmai/threadauto/internal/store"
	"github.com/yangwenmai/threadauto/internal/thread"
)

// Stage names, in execution order.
const (
	StageIngest  = "ingest"
	StageSelect  = "select"
	StageClaim   = "claim"
	StageEnrich  = "enrich"
	StageAnalyze = "analyze"
	StageCompose = "compose"
	StagePublish = "publish"
	StageRecord  = "record"
	StageArchive = "archive"
	StagePreview = "preview"
)

// Deps are the collaborators a Pipeline drives. Extractor, Archiver and
// Preview are optional.
type Deps struct {
	Feed      FeedSource
	Images    ImageResolver
	Extractor ContentExtractor
	Analyzer  NarrativeAnalyzer
	Publisher ThreadPublisher
	Ledger    store.Ledger
	Archiver  Archiver
	Preview   PreviewRenderer
}

// Options are the per-run settings.
type Options struct {
	SourceURL string
	DryRun    bool
	Persona   model.Persona
	Thread    thread.Policy
	ClaimTTL  time.Duration

	// PreviewOut receives the dry-run preview. Defaults to io.Discard.
	PreviewOut io.Writer
}

// Pipeline runs one feed-to-thread cycle.
type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	newID  func() string
}

// NewPipeline creates a pipeline with the given dependencies.
func NewPipeline(deps Deps, opts Options, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ClaimTTL <= 0 {
		opts.ClaimTTL = 15 * time.Minute
	}
	if opts.PreviewOut == nil {
		opts.PreviewOut = io.Discard
	}
	opts.Persona = opts.Persona.WithDefaults()
	if opts.Thread == (thread.Policy{}) {
		opts.Thread = thread.PolicyFor(opts.Persona)
	}
	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
}

// Run executes the stages in order and always returns a summary.
//
// The error is nil for published, noop and dry-run runs. Failed and partial
// runs return a *StageError naming the stage that stopped the run.
func (p *Pipeline) Run(ctx context.Context) (model.RunSummary, error) {
	sum := model.NewRunSummary(p.newID())
	log := p.logger.With("run_id", sum.RunID)
	err := p.run(ctx, log, &sum)
	sum.FinishedAt = time.Now().UTC()

	if err != nil && sum.Cause == "" {
		sum.Cause = err.Error()
	}
	log.Info("run finished", "status", sum.Status, "article_id", sum.ArticleID, "units", sum.Units,
		"published", sum.Published, "cause", sum.Cause)
	return sum, err
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, sum *model.RunSummary) error {
	candidates, err := p.ingest(ctx)
	if errors.Is(err, model.ErrSourceUnavailable) {
		log.Warn("feed unavailable, nothing to do", "source", p.opts.SourceURL, "error", err)
		sum.Status = model.StatusNoop
		sum.Cause = err.Error()
		return nil
	}
	if err != nil {
		return &StageError{Stage: StageIngest, Err: err}
	}

	candidate, err := p.selectCandidate(ctx, candidates)
	if errors.Is(err, model.ErrNoCandidate) {
		log.Info("no new articles")
		sum.Status = model.StatusNoop
		sum.Cause = err.Error()
		return nil
	}
	if err != nil {
		return &StageError{Stage: StageSelect, Err: err}
	}
	sum.ArticleID, sum.Title, sum.URL = candidate.ID, candidate.Title, candidate.URL
	log = log.With("article_id", candidate.ID)
	log.Info("selected article", "title", candidate.Title, "url", candidate.URL)

	release, err := p.deps.Ledger.Claim(ctx, candidate.ID, p.opts.ClaimTTL)
	if errors.Is(err, store.ErrClaimed) {
		log.Info("article is being handled by another run")
		sum.Status = model.StatusNoop
		sum.Cause = err.Error()
		return nil
	}
	if err != nil {
		return &StageError{Stage: StageClaim, Err: err}
	}
	defer release()

	// Another run may have published and released between Select and Claim.
	seen, err := p.deps.Ledger.Has(ctx, candidate.ID)
	if err != nil {
		return &StageError{Stage: StageClaim, Err: err}
	}
	if seen {
		log.Info("article was published by another run")
		sum.Status = model.StatusNoop
		sum.Cause = model.ErrNoCandidate.Error()
		return nil
	}

	article := p.enrich(ctx, log, candidate)
	sum.ImageURL = article.ImageURL

	narrative, err := p.deps.Analyzer.Analyze(ctx, article, p.opts.Persona)
	if err != nil {
		return &StageError{Stage: StageAnalyze, Err: err}
	}

	plan := thread.Compose(narrative, article, p.opts.Thread)
	sum.PlanKind, sum.Units, sum.Truncated = plan.Kind, len(plan.Units), plan.Truncated
	if len(plan.Truncated) > 0 {
		log.Warn("units truncated to fit the post limit", "units", plan.Truncated)
	}
	log.Info("thread composed", "kind", plan.Kind, "units", len(plan.Units))

	out := p.deps.Publisher.Publish(ctx, plan, p.opts.DryRun)
	sum.Status, sum.Published = out.Status, out.Published

	if out.Status == model.StatusFailed {
		return &StageError{Stage: StagePublish, Err: out.Err}
	}

	p.archive(log, article, narrative, plan)

	if out.Status == model.StatusDryRun {
		if p.deps.Preview != nil {
			if err := p.deps.Preview(p.opts.PreviewOut, plan, article); err != nil {
				log.Warn("preview failed", "error", err)
			}
		}
		return nil
	}

	// Published or partial: the root is live, so the article is never retried.
	// The record must land even if the run was cancelled mid-publish.
	if err := p.record(context.WithoutCancel(ctx), candidate, out); err != nil {
		log.Error("publication not recorded; article may be posted again", "error", err)
		sum.Status = model.StatusFailed
		return &StageError{Stage: StageRecord, Err: err}
	}
	if out.Status == model.StatusPartial {
		return &StageError{Stage: StagePublish, Err: out.Err}
	}
	return nil
}

// StageError wraps an error with the stage name that failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageName returns the failing stage.
func (e *StageError) StageName() string {
	return e.Stage
}
