package thread

import (
	"strings"
	"unicode/utf8"
)

// Wrap breaks s into lines of at most width runes. Explicit newlines are
// kept, words are packed greedily and a word longer than width is split.
// Blank input lines are dropped.
func Wrap(s string, width int) []string {
	if width <= 0 {
		width = 1
	}
	var out []string
	for _, para := range strings.Split(s, "\n") {
		out = append(out, wrapParagraph(para, width)...)
	}
	return out
}

func wrapParagraph(para string, width int) []string {
	var (
		lines []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if n > 0 {
			lines = append(lines, cur.String())
			cur.Reset()
			n = 0
		}
	}

	for _, word := range strings.Fields(para) {
		wn := utf8.RuneCountInString(word)
		switch {
		case n > 0 && n+1+wn <= width:
			cur.WriteByte(' ')
			cur.WriteString(word)
			n += 1 + wn
			continue
		case n > 0:
			flush()
		}

		for wn > width {
			runes := []rune(word)
			lines = append(lines, string(runes[:width]))
			word = string(runes[width:])
			wn -= width
		}
		cur.WriteString(word)
		n = wn
	}
	flush()
	return lines
}
