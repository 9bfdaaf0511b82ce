package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/threadauto/internal/archive"
	"github.com/yangwenmai/threadauto/internal/config"
	"github.com/yangwenmai/threadauto/internal/engine"
	"github.com/yangwenmai/threadauto/internal/feed"
	"github.com/yangwenmai/threadauto/internal/image"
	"github.com/yangwenmai/threadauto/internal/logging"
	"github.com/yangwenmai/threadauto/internal/model"
	"github.com/yangwenmai/threadauto/internal/publish"
	"github.com/yangwenmai/threadauto/internal/retry"
	"github.com/yangwenmai/threadauto/internal/store"
	"github.com/yangwenmai/threadauto/internal/thread"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailed  = 1
	exitPartial = 2
)

var (
	flagConfig string
	flagDryRun bool
	flagFeed   string
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "threadauto",
		Short: "Publish the newest tech news article as a Threads post chain",
		Long: `threadauto reads a news feed, picks the most recent article it has not
handled before, has a language model write a short narrative in the configured
persona, and posts it to Threads as a root post plus replies.

Runs are dry by default. Set DRY_RUN=false (or dry_run: false in the config
file) and THREADS_ACCESS_TOKEN to post for real.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runPipeline,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default $XDG_CONFIG_HOME/threadauto/config.yaml)")
	root.Flags().BoolVar(&flagDryRun, "dry-run", true, "render the thread instead of posting it")
	root.Flags().StringVar(&flagFeed, "feed", "", "feed URL or preset name (techcrunch, theverge, hackernews, ...)")

	root.AddCommand(newLedgerCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "threadauto %s (commit: %s)\n", version, commit)
		},
	}
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailed
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = flagDryRun
	}
	if flagFeed != "" {
		cfg.FeedURL = flagFeed
	}

	logger := logging.New(cfg.LogLevel)
	if cfg.MissingToken() {
		logger.Warn("THREADS_ACCESS_TOKEN not set, falling back to dry run")
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := store.OpenSQLite(cfg.StateDBPath)
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	defer db.Close()
	ledger, err := store.New(db)
	if err != nil {
		return fmt.Errorf("initializing ledger: %w", err)
	}

	p, err := buildPipeline(cfg, ledger, cmd.OutOrStdout(), logger)
	if err != nil {
		return err
	}

	sum, err := p.Run(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout(), sum.Line())
	logger.Info("run summary", "summary", sum.ToJSON())
	if err != nil {
		return &exitError{code: exitCode(sum), err: err}
	}
	return nil
}

// buildPipeline wires every stage from cfg.
func buildPipeline(cfg config.Config, ledger store.Ledger, out io.Writer, logger *slog.Logger) (*engine.Pipeline, error) {
	hc := &http.Client{Timeout: cfg.HTTPTimeout}
	policy := retryPolicy(cfg)

	mc, err := engine.NewModelClient(cfg, hc)
	if err != nil {
		return nil, err
	}
	logger.Info("model client ready", "provider", cfg.Provider, "model", engine.ModelName(cfg))

	var poster publish.Poster
	if !cfg.DryRun {
		poster = publish.NewThreadsClient(cfg.ThreadsToken, cfg.ThreadsUserID,
			publish.WithThreadsBaseURL(cfg.ThreadsBaseURL),
			publish.WithThreadsHTTPClient(hc),
			publish.WithThreadsRetry(policy.WithLogger(logging.Component(logger, "threads"))),
		)
	}

	deps := engine.Deps{
		Feed:      feed.NewFetcher(hc, policy, logging.Component(logger, "feed")),
		Images:    image.NewResolver(hc, policy, logging.Component(logger, "image")),
		Extractor: engine.NewHTTPExtractor(hc, policy, cfg.MaxTextLength, logging.Component(logger, "extract")),
		Analyzer:  engine.NewAnalyzer(mc, policy, cfg.MaxTextLength, logging.Component(logger, "analyze")),
		Publisher: publish.NewPublisher(poster, policy, logging.Component(logger, "publish")),
		Ledger:    ledger,
		Preview:   publish.RenderPreview,
	}
	if cfg.ArchiveDir != "" {
		deps.Archiver = archive.New(cfg.ArchiveDir)
	}

	opts := engine.Options{
		SourceURL:  feed.ResolveSource(cfg.FeedURL),
		DryRun:     cfg.DryRun,
		Persona:    cfg.Persona,
		Thread:     threadPolicy(cfg),
		ClaimTTL:   cfg.ClaimTTL,
		PreviewOut: out,
	}
	return engine.NewPipeline(deps, opts, logging.Component(logger, "pipeline")), nil
}

func retryPolicy(cfg config.Config) retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = cfg.RetryMaxAttempts
	if cfg.RetryBackoff > 0 {
		p.InitialInterval = cfg.RetryBackoff
	}
	return p
}

// threadPolicy starts from the persona layout and applies the thread section.
func threadPolicy(cfg config.Config) thread.Policy {
	p := thread.PolicyFor(cfg.Persona)
	t := cfg.Thread
	if t.UnitLimit > 0 {
		p.UnitLimit = t.UnitLimit
	}
	if t.ThreadThreshold > 0 {
		p.ThreadThreshold = t.ThreadThreshold
	}
	if t.MaxFactReplies > 0 {
		p.MaxFactReplies = t.MaxFactReplies
	}
	if t.Marker != "" {
		p.Marker = t.Marker
	}
	return p
}

func exitCode(sum model.RunSummary) int {
	switch sum.Status {
	case model.StatusPublished, model.StatusNoop, model.StatusDryRun:
		return exitOK
	case model.StatusPartial:
		return exitPartial
	default:
		return exitFailed
	}
}
