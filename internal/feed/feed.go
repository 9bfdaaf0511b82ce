// Package feed fetches a syndication feed and turns its entries into candidates.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/yangwenmai/threadauto/internal/model"
	"github.com/yangwenmai/threadauto/internal/retry"
)

const (
	userAgent = "threadauto/1.0 (+https://github.com/yangwenmai/threadauto)"
	// maxFeedSize is the maximum feed body size (10MB).
	maxFeedSize = 10 * 1024 * 1024
)

// Presets are the built-in feed sources, selectable by name.
var Presets = map[string]string{
	"techcrunch": "https://techcrunch.com/feed/",
	"theverge":   "https://www.theverge.com/rss/index.xml",
	"hackernews": "https://news.ycombinator.com/rss",
	"openai":     "https://openai.com/blog/rss/",
	"google":     "https://blog.google/rss/",
}

// ResolveSource maps a preset name to its URL. Anything else is returned as is.
func ResolveSource(source string) string {
	source = strings.TrimSpace(source)
	if u, ok := Presets[strings.ToLower(source)]; ok {
		return u
	}
	return source
}

// Fetcher retrieves and parses feeds.
type Fetcher struct {
	client *http.Client
	policy retry.Policy
	logger *slog.Logger
}

// NewFetcher creates a Fetcher. A nil client uses a 30s timeout.
func NewFetcher(client *http.Client, policy retry.Policy, logger *slog.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{client: client, policy: policy.WithLogger(logger), logger: logger}
}

// Fetch downloads and parses the feed at sourceURL. Any retrieval or parse
// failure is reported as model.ErrSourceUnavailable.
//
// The returned sequence normalizes entries as it is ranged over. Each range
// starts again from the first entry; separate Fetch calls share nothing.
func (f *Fetcher) Fetch(ctx context.Context, sourceURL string) (iter.Seq[model.Candidate], error) {
	body, err := retry.Do(ctx, f.policy, "feed.fetch", func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, sourceURL)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", model.ErrSourceUnavailable, sourceURL, err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", model.ErrSourceUnavailable, sourceURL, err)
	}
	f.logger.Debug("feed parsed", "url", sourceURL, "title", parsed.Title, "entries", len(parsed.Items))

	items := parsed.Items
	return func(yield func(model.Candidate) bool) {
		for _, item := range items {
			c, ok := normalize(item)
			if !ok {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}
	return body, nil
}

// normalize converts a feed item. Items with neither link nor GUID are dropped.
func normalize(item *gofeed.Item) (model.Candidate, bool) {
	link := strings.TrimSpace(item.Link)
	guid := strings.TrimSpace(item.GUID)
	if link == "" && strings.HasPrefix(guid, "http") {
		link = guid
	}
	if link == "" && guid == "" {
		return model.Candidate{}, false
	}

	var published time.Time
	if item.PublishedParsed != nil {
		published = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		published = *item.UpdatedParsed
	}

	summary := item.Description
	if summary == "" {
		summary = item.Content
	}

	return model.Candidate{
		ID:        CandidateID(guid, link),
		Title:     collapse(item.Title),
		URL:       link,
		GUID:      guid,
		Published: published,
		Summary:   StripHTML(summary),
	}, true
}

// StripHTML returns the text content of an HTML fragment with whitespace collapsed.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapse(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapse(s)
	}
	return collapse(doc.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
