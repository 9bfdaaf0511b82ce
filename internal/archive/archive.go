// Package archive keeps a Markdown copy of every generated thread under
// archive/YYYY-MM-DD/<Title>.md.
package archive

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/yangwenmai/threadauto/internal/model"
)

const (
	maxNameRunes = 50
	untitled     = "Untitled_Article"
)

var bracketTitle = regexp.MustCompile(`\[(.*?)\]`)

// Writer saves archives below a root directory.
type Writer struct {
	dir string
	now func() time.Time
}

// New creates a Writer rooted at dir.
func New(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Save writes the archive file and returns its path. An existing file with
// the same name on the same day is overwritten.
func (w *Writer) Save(article model.Enriched, n model.Narrative, plan model.ThreadPlan) (string, error) {
	day := filepath.Join(w.dir, w.now().Format("2006-01-02"))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	path := filepath.Join(day, FileName(n, plan, article.Title)+".md")
	if err := os.WriteFile(path, []byte(Render(article, plan)), 0o644); err != nil {
		return "", fmt.Errorf("write archive: %w", err)
	}
	return path, nil
}

// FileName picks the archive name: the narrative headline, else the first
// [bracketed] title in the root post, else the feed title.
func FileName(n model.Narrative, plan model.ThreadPlan, feedTitle string) string {
	raw := feedTitle
	switch {
	case strings.TrimSpace(n.Headline) != "":
		raw = n.Headline
	case len(plan.Units) > 0:
		if m := bracketTitle.FindStringSubmatch(plan.Root().Text); m != nil && strings.TrimSpace(m[1]) != "" {
			raw = m[1]
		}
	}
	return Sanitize(raw)
}

// Sanitize keeps letters, digits, Hangul syllables, '-', '_' and whitespace,
// turns whitespace runs into '_' and caps the result at 50 runes.
func Sanitize(raw string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case isASCIIAlnum(r), r >= '가' && r <= '힣', r == '-', r == '_':
		default:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte('_')
		}
		space = false
		b.WriteRune(r)
	}

	name := []rune(b.String())
	if len(name) > maxNameRunes {
		name = name[:maxNameRunes]
	}
	if len(name) == 0 {
		return untitled
	}
	return string(name)
}

func isASCIIAlnum(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

// Render formats the archive body.
func Render(article model.Enriched, plan model.ThreadPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", article.Title)

	b.WriteString("## Main Post\n")
	if len(plan.Units) > 0 {
		root := plan.Root()
		if root.ImageURL != "" {
			fmt.Fprintf(&b, "![Main Image](%s)\n\n", root.ImageURL)
		}
		fmt.Fprintf(&b, "%s\n\n", root.Text)
	}

	var replies []model.PostUnit
	for _, u := range plan.Replies() {
		if u.Role != model.RoleSource {
			replies = append(replies, u)
		}
	}
	if len(replies) > 0 {
		b.WriteString("## Replies\n")
		for i, u := range replies {
			fmt.Fprintf(&b, "### Reply %d\n%s\n\n", i+1, u.Text)
		}
	}

	b.WriteString("## Source\n")
	fmt.Fprintf(&b, "Original Article: %s\n", article.URL)
	return b.String()
}
