package engine

import (
	"context"
	"io"
	"iter"

	"github.com/yangwenmai/threadauto/internal/model"
)

// CompletionRequest is one text-generation call.
type CompletionRequest struct {
	System string
	User   string

	// JSON asks the provider for a JSON object response where supported.
	JSON bool

	Temperature float64
	MaxTokens   int
}

// ModelClient abstracts LLM calls. Implementations make exactly one HTTP
// request per call; retries belong to the caller.
type ModelClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// ContentExtractor abstracts web content extraction.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) (*ExtractedContent, error)
}

// ExtractedContent holds the result of content extraction.
type ExtractedContent struct {
	NormalizedText string      `json:"normalized_text"`
	Meta           ContentMeta `json:"content_meta"`
}

// ContentMeta holds metadata about the extracted content.
type ContentMeta struct {
	Author      string `json:"author,omitempty"`
	PublishDate string `json:"publish_date,omitempty"`
	WordCount   int    `json:"word_count"`
}

// FeedSource yields the candidates of one feed.
type FeedSource interface {
	Fetch(ctx context.Context, sourceURL string) (iter.Seq[model.Candidate], error)
}

// ImageResolver finds a preview image. "" means none.
type ImageResolver interface {
	Resolve(ctx context.Context, articleURL string) string
}

// NarrativeAnalyzer turns an article into a Narrative.
type NarrativeAnalyzer interface {
	Analyze(ctx context.Context, article model.Enriched, persona model.Persona) (model.Narrative, error)
}

// ThreadPublisher submits a plan.
type ThreadPublisher interface {
	Publish(ctx context.Context, plan model.ThreadPlan, dryRun bool) model.Outcome
}

// Archiver keeps a copy of each generated thread.
type Archiver interface {
	Save(article model.Enriched, narrative model.Narrative, plan model.ThreadPlan) (string, error)
}

// PreviewRenderer prints a dry-run plan.
type PreviewRenderer func(w io.Writer, plan model.ThreadPlan, article model.Enriched) error
