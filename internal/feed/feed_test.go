package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/threadauto/internal/model"
	"github.com/yangwenmai/threadauto/internal/retry"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Tech</title>
  <item>
    <title>  OpenAI ships  o3 </title>
    <link>https://example.com/o3?utm_source=rss</link>
    <guid isPermaLink="false">post-1</guid>
    <pubDate>Mon, 02 Mar 2026 09:00:00 GMT</pubDate>
    <description><![CDATA[<p>The <b>new</b> model   is here.</p>]]></description>
  </item>
  <item>
    <title>Chip news</title>
    <link>https://example.com/chips</link>
    <pubDate>Tue, 03 Mar 2026 09:00:00 GMT</pubDate>
    <description>Plain summary</description>
  </item>
  <item>
    <title>No identity</title>
    <description>dropped</description>
  </item>
</channel>
</rss>`

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, Multiplier: 2, MaxInterval: 2 * time.Millisecond}
}

func serve(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func collect(seq func(func(model.Candidate) bool)) []model.Candidate {
	var out []model.Candidate
	for c := range seq {
		out = append(out, c)
	}
	return out
}

func TestFetch_NormalizesEntries(t *testing.T) {
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "threadauto")
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(sampleRSS))
	})

	seq, err := NewFetcher(nil, fastPolicy(), nil).Fetch(context.Background(), url)
	require.NoError(t, err)

	got := collect(seq)
	require.Len(t, got, 2, "entry without link and guid is dropped")

	first := got[0]
	assert.Equal(t, "OpenAI ships o3", first.Title)
	assert.Equal(t, "https://example.com/o3?utm_source=rss", first.URL)
	assert.Equal(t, "post-1", first.GUID)
	assert.Equal(t, CandidateID("post-1", ""), first.ID, "GUID wins over link")
	assert.Equal(t, "The new model is here.", first.Summary)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), first.Published.UTC())

	second := got[1]
	assert.Equal(t, CandidateID("", "https://example.com/chips"), second.ID)
	assert.Equal(t, "Plain summary", second.Summary)
}

func TestFetch_SequenceIsRestartable(t *testing.T) {
	var hits atomic.Int32
	url := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte(sampleRSS))
	})

	f := NewFetcher(nil, fastPolicy(), nil)
	seq, err := f.Fetch(context.Background(), url)
	require.NoError(t, err)

	a := collect(seq)
	b := collect(seq)
	assert.Equal(t, a, b)

	// Early stop does not affect the next range.
	for range seq {
		break
	}
	assert.Len(t, collect(seq), 2)

	seq2, err := f.Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, a, collect(seq2))
	assert.Equal(t, int32(2), hits.Load(), "one request per Fetch")
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	url := serve(t, func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleRSS))
	})

	seq, err := NewFetcher(nil, fastPolicy(), nil).Fetch(context.Background(), url)
	require.NoError(t, err)
	assert.Len(t, collect(seq), 2)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_SourceUnavailable(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantHits int32
	}{
		{"not found", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) }, 1},
		{"server down", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusBadGateway) }, 3},
		{"garbage", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("this is not a feed")) }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			url := serve(t, func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				tt.handler(w, r)
			})

			seq, err := NewFetcher(nil, fastPolicy(), nil).Fetch(context.Background(), url)
			require.Error(t, err)
			assert.Nil(t, seq)
			assert.True(t, errors.Is(err, model.ErrSourceUnavailable), "err = %v", err)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestResolveSource(t *testing.T) {
	assert.Equal(t, "https://techcrunch.com/feed/", ResolveSource("techcrunch"))
	assert.Equal(t, "https://news.ycombinator.com/rss", ResolveSource(" HackerNews "))
	assert.Equal(t, "https://example.com/rss", ResolveSource("https://example.com/rss"))
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"<p>Hello</p>", "Hello"},
		{"<b>Bold</b> and <i>italic</i>", "Bold and italic"},
		{"No tags here", "No tags here"},
		{"<div>  Multiple   spaces  </div>", "Multiple spaces"},
		{"", ""},
		{"Fish &amp; chips", "Fish & chips"},
		{"<a href=\"url\">Link</a> text", "Link text"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripHTML(tt.input), "StripHTML(%q)", tt.input)
	}
}
