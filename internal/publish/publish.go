// Package publish submits a thread plan as a chain of posts.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yangwenmai/threadauto/internal/model"
	"github.com/yangwenmai/threadauto/internal/retry"
)

// Poster is the posting API: a root post, then replies parented on a handle.
type Poster interface {
	CreateRoot(ctx context.Context, text, imageURL string) (string, error)
	CreateReply(ctx context.Context, parentHandle, text string) (string, error)
}

// ErrNoPoster is returned for a live publish without a configured Poster.
var ErrNoPoster = errors.New("no poster configured")

// Publisher walks a plan in order, chaining each reply to the previous post.
type Publisher struct {
	poster Poster
	policy retry.Policy
	logger *slog.Logger
}

// NewPublisher creates a Publisher. poster may be nil when only dry runs are made.
func NewPublisher(poster Poster, policy retry.Policy, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{poster: poster, policy: policy.WithLogger(logger), logger: logger}
}

// Publish submits plan. A dry run makes no Poster calls and reports synthetic
// handles "dry-run-<i>" for every unit.
//
// Live: a root failure yields StatusFailed wrapping model.ErrPublishRoot and
// no handles. A reply failure stops the chain and yields StatusPartial
// wrapping model.ErrPublishPartial, with the handles of the published prefix.
func (p *Publisher) Publish(ctx context.Context, plan model.ThreadPlan, dryRun bool) model.Outcome {
	out := model.Outcome{Units: len(plan.Units)}

	if dryRun {
		out.Status = model.StatusDryRun
		for i := range plan.Units {
			out.Handles = append(out.Handles, fmt.Sprintf("dry-run-%d", i))
		}
		out.Published = len(out.Handles)
		return out
	}

	if len(plan.Units) == 0 {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("%w: empty plan", model.ErrPublishRoot)
		return out
	}
	if p.poster == nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("%w: %w", model.ErrPublishRoot, ErrNoPoster)
		return out
	}

	root := plan.Root()
	handle, err := retry.Do(ctx, p.policy, "post.root", func(ctx context.Context) (string, error) {
		return p.poster.CreateRoot(ctx, root.Text, root.ImageURL)
	})
	if err != nil {
		out.Status = model.StatusFailed
		out.Err = fmt.Errorf("%w: %w", model.ErrPublishRoot, err)
		return out
	}
	out.Handles = append(out.Handles, handle)
	p.logger.Info("root published", "handle", handle, "has_image", root.ImageURL != "")

	for _, unit := range plan.Replies() {
		parent := out.Handles[len(out.Handles)-1]
		handle, err := retry.Do(ctx, p.policy, "post.reply", func(ctx context.Context) (string, error) {
			return p.poster.CreateReply(ctx, parent, unit.Text)
		})
		if err != nil {
			out.Status = model.StatusPartial
			out.Published = len(out.Handles)
			out.Err = fmt.Errorf("%w: unit %d of %d: %w", model.ErrPublishPartial, unit.Index, len(plan.Units), err)
			p.logger.Warn("reply failed, chain stopped", "unit", unit.Index, "published", out.Published, "error", err)
			return out
		}
		out.Handles = append(out.Handles, handle)
		p.logger.Debug("reply published", "unit", unit.Index, "handle", handle, "parent", parent)
	}

	out.Status = model.StatusPublished
	out.Published = len(out.Handles)
	return out
}
