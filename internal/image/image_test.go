package image

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yangwenmai/threadauto/internal/retry"
)

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
}

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return d
}

func TestFromDocument(t *testing.T) {
	const page = "https://news.example.com/2026/03/story"
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "og image first",
			html: `<head><meta name="twitter:image" content="https://cdn.example.com/tw.png">
				<meta property="og:image" content="https://cdn.example.com/og.png"></head>`,
			want: "https://cdn.example.com/og.png",
		},
		{
			name: "twitter fallback",
			html: `<head><meta name="twitter:image" content="https://cdn.example.com/tw.png"></head>`,
			want: "https://cdn.example.com/tw.png",
		},
		{
			name: "empty og content skipped",
			html: `<head><meta property="og:image" content="  "><meta name="twitter:image" content="/tw.png"></head>`,
			want: "https://news.example.com/tw.png",
		},
		{
			name: "article image relative",
			html: `<body><img src="/logo.png"><article><p>x</p><img src="img/hero.jpg"></article></body>`,
			want: "https://news.example.com/2026/03/img/hero.jpg",
		},
		{
			name: "protocol relative",
			html: `<head><meta property="og:image" content="//cdn.example.com/a.jpg"></head>`,
			want: "https://cdn.example.com/a.jpg",
		},
		{
			name: "image outside article ignored",
			html: `<body><img src="/logo.png"></body>`,
			want: "",
		},
		{
			name: "data uri rejected",
			html: `<head><meta property="og:image" content="data:image/png;base64,AAAA"></head>`,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromDocument(doc(t, tt.html), page))
		})
	}
}

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla")
		w.Write([]byte(`<html><head><meta property="og:image" content="/og.png"></head></html>`))
	}))
	defer srv.Close()

	got := NewResolver(nil, fastPolicy(), nil).Resolve(context.Background(), srv.URL+"/post")
	assert.Equal(t, srv.URL+"/og.png", got)
}

func TestResolve_FailuresAreAbsent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/down":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Write([]byte(`<html><body>no images</body></html>`))
		}
	}))
	defer srv.Close()

	r := NewResolver(nil, fastPolicy(), nil)
	ctx := context.Background()

	assert.Empty(t, r.Resolve(ctx, srv.URL+"/missing"))
	assert.Empty(t, r.Resolve(ctx, srv.URL+"/down"))
	assert.Empty(t, r.Resolve(ctx, srv.URL+"/plain"))
	assert.Empty(t, r.Resolve(ctx, "http://127.0.0.1:1/unreachable"))
	assert.Empty(t, r.Resolve(ctx, "::not a url"))

	// 404 once, 500 twice (retried), plain once.
	assert.Equal(t, int32(4), hits.Load())
}
