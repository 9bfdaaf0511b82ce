// Package image finds a representative preview image for an article page.
package image

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/yangwenmai/threadauto/internal/retry"
)

const (
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	// maxPageSize is the maximum HTML body size (5MB).
	maxPageSize = 5 * 1024 * 1024
)

// lookups are tried in order; the first non-empty match wins.
var lookups = []struct {
	selector string
	attr     string
}{
	{`meta[property="og:image"]`, "content"},
	{`meta[property="og:image:url"]`, "content"},
	{`meta[name="twitter:image"]`, "content"},
	{`meta[name="twitter:image:src"]`, "content"},
	{`article img[src]`, "src"},
}

// Resolver looks up preview images. It never fails; a missing image is "".
type Resolver struct {
	client *http.Client
	policy retry.Policy
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil client uses a 10s timeout.
func NewResolver(client *http.Client, policy retry.Policy, logger *slog.Logger) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{client: client, policy: policy.WithLogger(logger), logger: logger}
}

// Resolve returns the absolute preview image URL for articleURL, or "" when
// the page cannot be fetched or carries no image metadata.
func (r *Resolver) Resolve(ctx context.Context, articleURL string) string {
	doc, err := retry.Do(ctx, r.policy, "image.fetch", func(ctx context.Context) (*goquery.Document, error) {
		return r.fetch(ctx, articleURL)
	})
	if err != nil {
		r.logger.Debug("image lookup failed", "url", articleURL, "error", err)
		return ""
	}
	img := FromDocument(doc, articleURL)
	if img == "" {
		r.logger.Debug("no preview image", "url", articleURL)
	}
	return img
}

func (r *Resolver) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &retry.StatusError{StatusCode: resp.StatusCode, Body: resp.Status}
	}
	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageSize))
}

// FromDocument applies the lookup order to a parsed page. Relative image
// URLs are resolved against pageURL.
func FromDocument(doc *goquery.Document, pageURL string) string {
	for _, l := range lookups {
		var found string
		doc.Find(l.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			v, _ := s.Attr(l.attr)
			found = strings.TrimSpace(v)
			return found == ""
		})
		if found != "" {
			return absolute(found, pageURL)
		}
	}
	return ""
}

func absolute(ref, pageURL string) string {
	base, err := url.Parse(pageURL)
	if err != nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
