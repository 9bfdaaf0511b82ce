package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/yangwenmai/threadauto/internal/model"
	"github.com/yangwenmai/threadauto/internal/publish"
	"github.com/yangwenmai/threadauto/internal/retry"
	"github.com/yangwenmai/threadauto/internal/store"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeFeed struct {
	items []model.Candidate
	err   error
}

func (f *fakeFeed) Fetch(_ context.Context, _ string) (iter.Seq[model.Candidate], error) {
	if f.err != nil {
		return nil, f.err
	}
	return slices.Values(f.items), nil
}

// memLedger is an in-memory store.Ledger.
type memLedger struct {
	records []model.PublicationRecord
	claims  map[string]bool
	failRec error
	// onClaim runs once at the start of the next Claim.
	onClaim func()
}

func newMemLedger() *memLedger {
	return &memLedger{claims: map[string]bool{}}
}

func (m *memLedger) Has(_ context.Context, id string) (bool, error) {
	for _, r := range m.records {
		if r.ArticleID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memLedger) List(_ context.Context, _ int) ([]model.PublicationRecord, error) {
	return m.records, nil
}

func (m *memLedger) Count(_ context.Context) (int, error) {
	return len(m.records), nil
}

func (m *memLedger) Record(_ context.Context, rec model.PublicationRecord) error {
	if m.failRec != nil {
		return m.failRec
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memLedger) Claim(_ context.Context, id string, _ time.Duration) (func(), error) {
	if hook := m.onClaim; hook != nil {
		m.onClaim = nil
		hook()
	}
	if m.claims[id] {
		return nil, store.ErrClaimed
	}
	m.claims[id] = true
	return func() { delete(m.claims, id) }, nil
}

type fixedImages string

func (f fixedImages) Resolve(context.Context, string) string { return string(f) }

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, string) (*ExtractedContent, error) {
	return nil, errors.New("paywall")
}

// capturingAnalyzer records the article it was given and delegates to inner.
type capturingAnalyzer struct {
	inner NarrativeAnalyzer
	got   []model.Enriched
}

func (c *capturingAnalyzer) Analyze(ctx context.Context, a model.Enriched, p model.Persona) (model.Narrative, error) {
	c.got = append(c.got, a)
	return c.inner.Analyze(ctx, a, p)
}

type rawModel string

func (r rawModel) Complete(context.Context, CompletionRequest) (string, error) { return string(r), nil }

// countingPoster fails the call at index failAt (-1 never).
type countingPoster struct {
	roots   []string // image URL of each root call
	calls   int
	failAt  int
	failErr error
}

func (p *countingPoster) step() (string, error) {
	i := p.calls
	p.calls++
	if i == p.failAt {
		return "", p.failErr
	}
	return fmt.Sprintf("post-%d", i), nil
}

func (p *countingPoster) CreateRoot(_ context.Context, _, imageURL string) (string, error) {
	p.roots = append(p.roots, imageURL)
	return p.step()
}

func (p *countingPoster) CreateReply(context.Context, string, string) (string, error) {
	return p.step()
}

// cancelAfterRoot cancels the run once the root post is live. Replies observe
// the cancelled context.
type cancelAfterRoot struct {
	countingPoster
	cancel context.CancelFunc
}

func (p *cancelAfterRoot) CreateRoot(ctx context.Context, text, imageURL string) (string, error) {
	h, err := p.countingPoster.CreateRoot(ctx, text, imageURL)
	p.cancel()
	return h, err
}

func (p *cancelAfterRoot) CreateReply(ctx context.Context, parent, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.countingPoster.CreateReply(ctx, parent, text)
}

type memArchive struct{ saved []string }

func (m *memArchive) Save(a model.Enriched, _ model.Narrative, _ model.ThreadPlan) (string, error) {
	m.saved = append(m.saved, a.ID)
	return "archive/" + a.ID + ".md", nil
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sampleFeed() *fakeFeed {
	return &fakeFeed{items: []model.Candidate{
		{ID: "old", Title: "Older story", URL: "https://example.com/old", Published: base, Summary: "old summary"},
		{ID: "new", Title: "Newer story", URL: "https://example.com/new", Published: base.Add(time.Hour), Summary: "new summary"},
	}}
}

type harness struct {
	feed     *fakeFeed
	ledger   *memLedger
	poster   *countingPoster
	archive  *memArchive
	analyzer *capturingAnalyzer
	images   ImageResolver
	extract  ContentExtractor
	preview  bytes.Buffer
}

func newHarness() *harness {
	return &harness{
		feed:     sampleFeed(),
		ledger:   newMemLedger(),
		poster:   &countingPoster{failAt: -1},
		archive:  &memArchive{},
		analyzer: &capturingAnalyzer{inner: NewAnalyzer(&StubModelClient{}, retry.Policy{MaxAttempts: 1}, 0, nil)},
		images:   fixedImages("https://cdn.example.com/og.png"),
		extract:  &StubExtractor{},
	}
}

func (h *harness) pipeline(dryRun bool) *Pipeline {
	return NewPipeline(Deps{
		Feed:      h.feed,
		Images:    h.images,
		Extractor: h.extract,
		Analyzer:  h.analyzer,
		Publisher: publish.NewPublisher(h.poster, retry.Policy{MaxAttempts: 1}, nil),
		Ledger:    h.ledger,
		Archiver:  h.archive,
		Preview:   publish.RenderPreview,
	}, Options{SourceURL: "https://example.com/feed", DryRun: dryRun, PreviewOut: &h.preview}, nil)
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestPipeline_PublishesNewestAndRecords(t *testing.T) {
	h := newHarness()

	sum, err := h.pipeline(false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != model.StatusPublished {
		t.Errorf("Status = %q, want published", sum.Status)
	}
	if sum.ArticleID != "new" {
		t.Errorf("ArticleID = %q, want the most recent entry", sum.ArticleID)
	}
	// Two facts: root, two fact replies, source.
	if sum.PlanKind != model.PlanMulti || sum.Units != 4 || sum.Published != 4 {
		t.Errorf("kind/units/published = %s/%d/%d", sum.PlanKind, sum.Units, sum.Published)
	}
	if sum.RunID == "" || sum.FinishedAt.IsZero() {
		t.Error("summary should carry a run id and finish time")
	}

	if len(h.ledger.records) != 1 {
		t.Fatalf("records = %d, want 1", len(h.ledger.records))
	}
	rec := h.ledger.records[0]
	if rec.ArticleID != "new" || rec.Outcome != model.StatusPublished || rec.RootHandle != "post-0" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.ReplyHandles) != 3 {
		t.Errorf("ReplyHandles = %v, want 3", rec.ReplyHandles)
	}
	if len(h.ledger.claims) != 0 {
		t.Error("claim should be released after the run")
	}
	if len(h.archive.saved) != 1 {
		t.Errorf("archives = %d, want 1", len(h.archive.saved))
	}
	if got := h.analyzer.got[0].Body; got == "" || got == "new summary" {
		t.Errorf("analyzer body = %q, want extracted text", got)
	}
}

func TestPipeline_DedupIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.pipeline(false).Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	sum, err := h.pipeline(false).Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if sum.ArticleID != "old" {
		t.Errorf("second run picked %q, want the remaining unseen entry", sum.ArticleID)
	}

	calls := h.poster.calls
	sum, err = h.pipeline(false).Run(ctx)
	if err != nil {
		t.Fatalf("third Run: %v", err)
	}
	if sum.Status != model.StatusNoop {
		t.Errorf("Status = %q, want noop", sum.Status)
	}
	if sum.Cause != model.ErrNoCandidate.Error() {
		t.Errorf("Cause = %q", sum.Cause)
	}
	if h.poster.calls != calls {
		t.Errorf("poster calls grew by %d on a run with nothing new", h.poster.calls-calls)
	}
	if len(h.ledger.records) != 2 {
		t.Errorf("records = %d, want 2", len(h.ledger.records))
	}
}

func TestPipeline_RoundTripWithoutImage(t *testing.T) {
	h := newHarness()
	h.images = fixedImages("")

	sum, err := h.pipeline(false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != model.StatusPublished {
		t.Errorf("Status = %q, want published", sum.Status)
	}
	if sum.ImageURL != "" {
		t.Errorf("ImageURL = %q, want empty", sum.ImageURL)
	}
	if len(h.poster.roots) != 1 || h.poster.roots[0] != "" {
		t.Errorf("root image args = %q, want one text-only root", h.poster.roots)
	}
}

func TestPipeline_PartialIsRecorded(t *testing.T) {
	h := newHarness()
	h.poster.failAt = 2
	h.poster.failErr = &retry.StatusError{StatusCode: 400, Body: "rejected"}

	sum, err := h.pipeline(false).Run(context.Background())

	var se *StageError
	if !errors.As(err, &se) || se.StageName() != StagePublish {
		t.Fatalf("err = %v, want publish StageError", err)
	}
	if !errors.Is(err, model.ErrPublishPartial) {
		t.Errorf("err = %v, want ErrPublishPartial", err)
	}
	if sum.Status != model.StatusPartial || sum.Published != 2 || sum.Units != 4 {
		t.Errorf("status/published/units = %s/%d/%d, want partial/2/4", sum.Status, sum.Published, sum.Units)
	}
	if sum.Cause == "" {
		t.Error("partial run should carry a cause")
	}

	if len(h.ledger.records) != 1 {
		t.Fatalf("records = %d, want 1", len(h.ledger.records))
	}
	rec := h.ledger.records[0]
	if rec.Outcome != model.StatusPartial || rec.PublishedUnits != 2 || rec.TotalUnits != 4 {
		t.Errorf("record = %+v", rec)
	}
	if rec.RootHandle != "post-0" || len(rec.ReplyHandles) != 1 {
		t.Errorf("handles = %q %v", rec.RootHandle, rec.ReplyHandles)
	}

	// The partially published article is never retried.
	sum, _ = h.pipeline(false).Run(context.Background())
	if sum.ArticleID == "new" {
		t.Error("partial article was selected again")
	}
}

func TestPipeline_RootFailureWritesNoRecord(t *testing.T) {
	h := newHarness()
	h.poster.failAt = 0
	h.poster.failErr = &retry.StatusError{StatusCode: 401, Body: "bad token"}

	sum, err := h.pipeline(false).Run(context.Background())
	if !errors.Is(err, model.ErrPublishRoot) {
		t.Errorf("err = %v, want ErrPublishRoot", err)
	}
	if sum.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed", sum.Status)
	}
	if len(h.ledger.records) != 0 {
		t.Errorf("records = %d, want 0", len(h.ledger.records))
	}
	if len(h.archive.saved) != 0 {
		t.Error("nothing should be archived for a failed publish")
	}
}

func TestPipeline_DryRun(t *testing.T) {
	h := newHarness()

	sum, err := h.pipeline(true).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != model.StatusDryRun {
		t.Errorf("Status = %q, want dry_run", sum.Status)
	}
	if h.poster.calls != 0 {
		t.Errorf("poster calls = %d, want 0", h.poster.calls)
	}
	if len(h.ledger.records) != 0 {
		t.Errorf("dry run wrote %d records", len(h.ledger.records))
	}
	if !bytes.Contains(h.preview.Bytes(), []byte("[DRY RUN]")) {
		t.Errorf("preview not rendered: %q", h.preview.String())
	}
	if len(h.archive.saved) != 1 {
		t.Error("dry run should still be archived")
	}

	// A dry run must not block the later live post of the same article.
	sum, err = h.pipeline(false).Run(context.Background())
	if err != nil {
		t.Fatalf("live Run: %v", err)
	}
	if sum.ArticleID != "new" || sum.Status != model.StatusPublished {
		t.Errorf("live run = %s/%s, want new/published", sum.ArticleID, sum.Status)
	}
}

func TestPipeline_DryRunMatchesLiveUnits(t *testing.T) {
	dry := newHarness()
	live := newHarness()

	ds, _ := dry.pipeline(true).Run(context.Background())
	ls, _ := live.pipeline(false).Run(context.Background())

	if ds.Units != ls.Units || ds.PlanKind != ls.PlanKind || ds.Published != ls.Published {
		t.Errorf("dry %d/%s/%d vs live %d/%s/%d", ds.Units, ds.PlanKind, ds.Published, ls.Units, ls.PlanKind, ls.Published)
	}
}

func TestPipeline_SourceUnavailableIsNoop(t *testing.T) {
	h := newHarness()
	h.feed.err = fmt.Errorf("%w: HTTP 503", model.ErrSourceUnavailable)

	sum, err := h.pipeline(false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != model.StatusNoop {
		t.Errorf("Status = %q, want noop", sum.Status)
	}
	if sum.Cause == "" {
		t.Error("noop should carry the cause")
	}
	if h.poster.calls != 0 {
		t.Error("no posting on an unavailable source")
	}
}

func TestPipeline_MalformedAnalysisFails(t *testing.T) {
	h := newHarness()
	h.analyzer.inner = NewAnalyzer(rawModel(`{"hook": ["only a hook"]}`), retry.Policy{MaxAttempts: 3}, 0, nil)

	sum, err := h.pipeline(false).Run(context.Background())

	var se *StageError
	if !errors.As(err, &se) || se.StageName() != StageAnalyze {
		t.Fatalf("err = %v, want analyze StageError", err)
	}
	if !errors.Is(err, model.ErrAnalysisMalformed) {
		t.Errorf("err = %v, want ErrAnalysisMalformed", err)
	}
	if sum.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed", sum.Status)
	}
	if h.poster.calls != 0 || len(h.ledger.records) != 0 {
		t.Error("nothing should be published or recorded")
	}
	if len(h.ledger.claims) != 0 {
		t.Error("claim should be released on failure")
	}
}

func TestPipeline_ClaimedArticleIsNoop(t *testing.T) {
	h := newHarness()
	h.ledger.claims["new"] = true

	sum, err := h.pipeline(false).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Status != model.StatusNoop {
		t.Errorf("Status = %q, want noop", sum.Status)
	}
	if h.poster.calls != 0 {
		t.Errorf("poster calls = %d, want 0", h.poster.calls)
	}
}

func TestPipeline_ExtractionFallsBackToSummary(t *testing.T) {
	h := newHarness()
	h.extract = failingExtractor{}

	if _, err := h.pipeline(false).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := h.analyzer.got[0]
	if got.Body != "" || got.Text() != "new summary" {
		t.Errorf("body/text = %q/%q, want summary fallback", got.Body, got.Text())
	}
}

func TestPipeline_RecordFailure(t *testing.T) {
	h := newHarness()
	h.ledger.failRec = errors.New("disk full")

	sum, err := h.pipeline(false).Run(context.Background())

	var se *StageError
	if !errors.As(err, &se) || se.StageName() != StageRecord {
		t.Fatalf("err = %v, want record StageError", err)
	}
	if sum.Status != model.StatusFailed {
		t.Errorf("Status = %q, want failed", sum.Status)
	}
}

func TestStageError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	se := &StageError{Stage: StageAnalyze, Err: inner}

	if se.Error() != "analyze: root cause" {
		t.Errorf("Error() = %q", se.Error())
	}
	if !errors.Is(se, inner) {
		t.Error("Unwrap should make inner error accessible via errors.Is")
	}
}

func TestPipeline_RecordSurvivesCancellation(t *testing.T) {
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ledger, err := store.New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness()
	poster := &cancelAfterRoot{countingPoster: countingPoster{failAt: -1}, cancel: cancel}

	p := NewPipeline(Deps{
		Feed:      h.feed,
		Images:    h.images,
		Extractor: h.extract,
		Analyzer:  h.analyzer,
		Publisher: publish.NewPublisher(poster, retry.Policy{MaxAttempts: 1}, nil),
		Ledger:    ledger,
	}, Options{SourceURL: "https://example.com/feed"}, nil)

	sum, err := p.Run(ctx)
	if !errors.Is(err, model.ErrPublishPartial) {
		t.Fatalf("Run err = %v, want partial publish", err)
	}
	if sum.Status != model.StatusPartial || sum.Published != 1 {
		t.Errorf("status/published = %s/%d, want partial/1", sum.Status, sum.Published)
	}

	has, err := ledger.Has(context.Background(), "new")
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !has {
		t.Fatal("live root post must be recorded even after cancellation")
	}
	recs, err := ledger.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 1 || recs[0].Outcome != model.StatusPartial || recs[0].RootHandle != "post-0" {
		t.Errorf("records = %+v", recs)
	}
}

func TestPipeline_ClaimRechecksLedger(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	// A complete run finishes between this run's Select and Claim.
	var first model.RunSummary
	h.ledger.onClaim = func() {
		var err error
		if first, err = h.pipeline(false).Run(ctx); err != nil {
			t.Errorf("interleaved Run: %v", err)
		}
	}

	sum, err := h.pipeline(false).Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Status != model.StatusPublished || first.ArticleID != "new" {
		t.Fatalf("interleaved run = %s/%s", first.Status, first.ArticleID)
	}
	if sum.Status != model.StatusNoop || sum.ArticleID != "new" {
		t.Errorf("status/article = %s/%s, want noop/new", sum.Status, sum.ArticleID)
	}
	if len(h.ledger.records) != 1 {
		t.Errorf("records = %d, want 1", len(h.ledger.records))
	}
	if len(h.poster.roots) != 1 {
		t.Errorf("root posts = %d, want 1", len(h.poster.roots))
	}
	if len(h.ledger.claims) != 0 {
		t.Error("claim should be released after a noop")
	}
}
