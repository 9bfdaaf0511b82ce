package publish

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/yangwenmai/threadauto/internal/model"
)

// RenderPreview writes a dry-run rendering of plan: one numbered section per unit.
func RenderPreview(w io.Writer, plan model.ThreadPlan, article model.Enriched) error {
	r := lipgloss.NewRenderer(w)
	var (
		titleStyle = r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"})
		labelStyle = r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#3D3D3D", Dark: "#ABABAB"})
		dimStyle   = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#626262"})
		boxStyle   = r.NewStyle().Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.AdaptiveColor{Light: "#DBDBDB", Dark: "#383838"}).
				Padding(0, 1)
		okStyle = r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#25D366"})
	)

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("[DRY RUN] 게시물 타입: %s", strings.ToUpper(plan.Kind))))
	b.WriteString("\n")
	if article.Title != "" {
		b.WriteString(dimStyle.Render(article.Title))
		b.WriteString("\n")
	}

	for _, u := range plan.Units {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(fmt.Sprintf("[%d] %s", u.Index+1, sectionName(u.Role))))
		b.WriteString("\n")
		if u.Role == model.RoleRoot {
			img := "없음"
			if u.ImageURL != "" {
				img = u.ImageURL
			}
			b.WriteString(dimStyle.Render("이미지: " + img))
			b.WriteString("\n")
		}
		b.WriteString(boxStyle.Render(u.Text))
		b.WriteString("\n")
	}
	if len(plan.Truncated) > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("잘린 포스트: %v", plan.Truncated)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(okStyle.Render("Dry Run 완료. 실제 Threads에는 업로드되지 않았습니다."))
	b.WriteString("\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func sectionName(role string) string {
	switch role {
	case model.RoleRoot:
		return "메인 포스트"
	case model.RoleSource:
		return "출처 페이지"
	default:
		return "대댓글"
	}
}
