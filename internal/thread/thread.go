// Package thread lays out a Narrative as an ordered plan of post units.
// Composition is pure: the same inputs always give the same plan.
package thread

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yangwenmai/threadauto/internal/model"
)

// Policy holds the layout rules.
type Policy struct {
	// WrapWidth is the maximum runes per display line.
	WrapWidth int

	// UnitLimit is the maximum runes per post unit.
	UnitLimit int

	// ThreadThreshold is the fact count from which a multi-post thread is used.
	ThreadThreshold int

	// MaxFactReplies caps the fact replies in a multi plan. 0 means unlimited.
	MaxFactReplies int

	// ThreadMarker closes a multi plan's root.
	ThreadMarker string

	// SourcePrefix precedes the URL in the source unit.
	SourcePrefix string

	// Marker ends a truncated unit.
	Marker string
}

// DefaultPolicy returns the Threads layout for the default persona.
func DefaultPolicy() Policy {
	return PolicyFor(model.DefaultPersona())
}

// PolicyFor returns the default limits with the persona's layout settings.
func PolicyFor(p model.Persona) Policy {
	p = p.WithDefaults()
	return Policy{
		WrapWidth:       p.WrapWidth,
		UnitLimit:       500,
		ThreadThreshold: 2,
		ThreadMarker:    p.ThreadMarker,
		SourcePrefix:    p.SourcePrefix,
		Marker:          "[…]",
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.WrapWidth <= 0 {
		p.WrapWidth = d.WrapWidth
	}
	if p.UnitLimit <= p.WrapWidth {
		p.UnitLimit = max(d.UnitLimit, p.WrapWidth+1)
	}
	if p.ThreadThreshold <= 0 {
		p.ThreadThreshold = d.ThreadThreshold
	}
	if p.Marker == "" {
		p.Marker = d.Marker
	}
	return p
}

// Compose builds the plan. Unit 0 is the root and carries the image; fact
// replies follow in Narrative order; the source unit is always last.
func Compose(n model.Narrative, article model.Enriched, pol Policy) model.ThreadPlan {
	pol = pol.normalized()

	root := headLines(n, pol.WrapWidth)
	var texts []string
	var roles []string

	kind := model.PlanSingle
	if len(n.Facts) >= pol.ThreadThreshold {
		kind = model.PlanMulti
	}

	switch kind {
	case model.PlanSingle:
		for _, f := range n.Facts {
			root = appendBlock(root, Wrap(f.Text, pol.WrapWidth))
		}
		texts, roles = append(texts, join(root)), append(roles, model.RoleRoot)
	case model.PlanMulti:
		if pol.ThreadMarker != "" {
			root = appendBlock(root, Wrap(pol.ThreadMarker, pol.WrapWidth))
		}
		texts, roles = append(texts, join(root)), append(roles, model.RoleRoot)

		facts := n.Facts
		if pol.MaxFactReplies > 0 && len(facts) > pol.MaxFactReplies {
			facts = facts[:pol.MaxFactReplies]
		}
		for i, f := range facts {
			texts = append(texts, join(factLines(i+1, f, pol.WrapWidth)))
			roles = append(roles, model.RoleFact)
		}
	}

	plan := model.ThreadPlan{Kind: kind}
	for i, text := range texts {
		if cut, ok := truncate(text, pol.UnitLimit, pol.Marker); ok {
			text = cut
			plan.Truncated = append(plan.Truncated, i)
		}
		plan.Units = append(plan.Units, model.PostUnit{Index: i, Role: roles[i], Text: text})
	}

	plan.Units = append(plan.Units, model.PostUnit{
		Index: len(plan.Units),
		Role:  model.RoleSource,
		Text:  sourceText(pol.SourcePrefix, article.URL, pol.WrapWidth),
	})
	plan.Units[0].ImageURL = article.ImageURL
	return plan
}

// sourceText keeps prefix and URL on one line when they fit. Otherwise the
// prefix gets its own line; the URL line is never broken, so it may exceed width.
func sourceText(prefix, link string, width int) string {
	line := prefix + link
	if utf8.RuneCountInString(line) <= width {
		return line
	}
	if p := strings.TrimSpace(prefix); p != "" {
		return p + "\n" + link
	}
	return link
}

func headLines(n model.Narrative, width int) []string {
	var out []string
	if n.Headline != "" {
		out = appendBlock(out, Wrap(n.Headline, width))
	}
	out = appendBlock(out, wrapAll(n.Hook, width))
	out = appendBlock(out, wrapAll(n.Body, width))
	return out
}

func factLines(num int, f model.Fact, width int) []string {
	header := fmt.Sprintf("%d/", num)
	if f.Label != "" {
		header += " [" + f.Label + "]"
	}
	return append(Wrap(header, width), Wrap(f.Text, width)...)
}

// appendBlock adds lines as a paragraph separated from dst by one blank line.
func appendBlock(dst, block []string) []string {
	if len(block) == 0 {
		return dst
	}
	if len(dst) > 0 {
		dst = append(dst, "")
	}
	return append(dst, block...)
}

func wrapAll(in []string, width int) []string {
	var out []string
	for _, s := range in {
		out = append(out, Wrap(s, width)...)
	}
	return out
}

func join(lines []string) string {
	return strings.Join(lines, "\n")
}

// truncate cuts text at a line boundary so that the kept lines plus the
// marker line fit in limit runes. ok is false when text already fits.
func truncate(text string, limit int, marker string) (string, bool) {
	if utf8.RuneCountInString(text) <= limit {
		return text, false
	}
	budget := limit - utf8.RuneCountInString(marker) - 1
	var kept []string
	used := 0
	for _, line := range strings.Split(text, "\n") {
		n := utf8.RuneCountInString(line)
		if len(kept) > 0 {
			n++ // newline
		}
		if used+n > budget {
			break
		}
		kept = append(kept, line)
		used += n
	}
	for len(kept) > 0 && kept[len(kept)-1] == "" {
		kept = kept[:len(kept)-1]
	}
	return join(append(kept, marker)), true
}
