package engine

import (
	"context"
	"iter"
	"log/slog"

	"github.com/yangwenmai/threadauto/internal/feed"
	"github.com/yangwenmai/threadauto/internal/model"
)

// ---------------------------------------------------------------------------
// Ingest and select
// ---------------------------------------------------------------------------

func (p *Pipeline) ingest(ctx context.Context) (iter.Seq[model.Candidate], error) {
	return p.deps.Feed.Fetch(ctx, p.opts.SourceURL)
}

func (p *Pipeline) selectCandidate(ctx context.Context, candidates iter.Seq[model.Candidate]) (model.Candidate, error) {
	best, ok, err := feed.Select(candidates, func(id string) (bool, error) {
		return p.deps.Ledger.Has(ctx, id)
	})
	if err != nil {
		return model.Candidate{}, err
	}
	if !ok {
		return model.Candidate{}, model.ErrNoCandidate
	}
	return best, nil
}

// ---------------------------------------------------------------------------
// Enrich
// ---------------------------------------------------------------------------

// enrich never fails: a missing image or body degrades the post, not the run.
func (p *Pipeline) enrich(ctx context.Context, log *slog.Logger, c model.Candidate) model.Enriched {
	article := model.Enriched{Candidate: c}
	if p.deps.Images != nil {
		article.ImageURL = p.deps.Images.Resolve(ctx, c.URL)
	}
	if article.ImageURL == "" {
		log.Info("no preview image, posting text only")
	}

	if p.deps.Extractor == nil {
		return article
	}
	content, err := p.deps.Extractor.Extract(ctx, c.URL)
	if err != nil {
		log.Warn("full text unavailable, using feed summary", "error", err)
		return article
	}
	article.Body = content.NormalizedText
	log.Debug("full text extracted", "words", content.Meta.WordCount)
	return article
}

// ---------------------------------------------------------------------------
// Record and archive
// ---------------------------------------------------------------------------

func (p *Pipeline) record(ctx context.Context, c model.Candidate, out model.Outcome) error {
	rec := model.NewPublicationRecord(p.newID(), c, out)
	return p.deps.Ledger.Record(ctx, rec)
}

func (p *Pipeline) archive(log *slog.Logger, article model.Enriched, n model.Narrative, plan model.ThreadPlan) {
	if p.deps.Archiver == nil {
		return
	}
	path, err := p.deps.Archiver.Save(article, n, plan)
	if err != nil {
		log.Warn("archive not written", "error", err)
		return
	}
	log.Info("archive saved", "path", path)
}
