package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/yangwenmai/threadauto/internal/model"
	"github.com/yangwenmai/threadauto/internal/retry"
)

const (
	analysisTemperature = 0.7
	analysisMaxTokens   = 1000
)

// Analyzer produces a Narrative with a single logical model call.
type Analyzer struct {
	model   ModelClient
	policy  retry.Policy
	maxText int
	logger  *slog.Logger
}

// NewAnalyzer creates an Analyzer. maxText bounds the article runes sent to the model.
func NewAnalyzer(mc ModelClient, policy retry.Policy, maxText int, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{model: mc, policy: policy.WithLogger(logger), maxText: maxText, logger: logger}
}

// Analyze asks the model for a Narrative. Transient provider failures are
// retried; a response that does not decode into a complete Narrative fails
// with model.ErrAnalysisMalformed and is never retried.
func (a *Analyzer) Analyze(ctx context.Context, article model.Enriched, persona model.Persona) (model.Narrative, error) {
	req := CompletionRequest{
		System:      buildSystemPrompt(persona),
		User:        buildUserPrompt(article.Title, article.Text(), a.maxText),
		JSON:        true,
		Temperature: analysisTemperature,
		MaxTokens:   analysisMaxTokens,
	}

	raw, err := retry.Do(ctx, a.policy, "model.complete", func(ctx context.Context) (string, error) {
		return a.model.Complete(ctx, req)
	})
	if err != nil {
		return model.Narrative{}, fmt.Errorf("complete: %w", err)
	}
	a.logger.Debug("model responded", "chars", len(raw))

	return ParseNarrative(raw)
}

// lines accepts either a JSON array of strings or a single newline-separated string.
type lines []string

func (l *lines) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("want string or string array: %w", err)
	}
	*l = strings.Split(s, "\n")
	return nil
}

type narrativeWire struct {
	Headline string       `json:"headline"`
	Hook     lines        `json:"hook"`
	Body     lines        `json:"body"`
	Facts    []model.Fact `json:"facts"`
}

// ParseNarrative decodes and validates a model response.
func ParseNarrative(raw string) (model.Narrative, error) {
	js := ExtractJSON(raw)
	if js == "" {
		return model.Narrative{}, fmt.Errorf("%w: no JSON object in response", model.ErrAnalysisMalformed)
	}

	var w narrativeWire
	if err := json.Unmarshal([]byte(js), &w); err != nil {
		return model.Narrative{}, fmt.Errorf("%w: %v", model.ErrAnalysisMalformed, err)
	}

	n := model.Narrative{
		Headline: strings.TrimSpace(w.Headline),
		Hook:     cleanLines(w.Hook),
		Body:     cleanLines(w.Body),
	}
	for _, f := range w.Facts {
		f.Label = strings.Trim(strings.TrimSpace(f.Label), "[]*")
		f.Text = strings.TrimSpace(f.Text)
		if f.Text != "" {
			n.Facts = append(n.Facts, f)
		}
	}

	switch {
	case len(n.Hook) == 0:
		return n, fmt.Errorf("%w: missing hook", model.ErrAnalysisMalformed)
	case len(n.Body) == 0:
		return n, fmt.Errorf("%w: missing body", model.ErrAnalysisMalformed)
	case len(n.Facts) == 0:
		return n, fmt.Errorf("%w: no supporting facts", model.ErrAnalysisMalformed)
	}
	return n, nil
}

func cleanLines(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
