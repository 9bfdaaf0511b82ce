package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/yangwenmai/threadauto/internal/model"
)

const narrativeSchema = `{
  "headline": "명사형 소제목",
  "hook": ["대화하듯 자연스러운 감탄/발견 한두 줄"],
  "body": ["핵심 내용과 함의", "짧게 끊어서 2~3문장"],
  "facts": [
    {"label": "기술적 팩트", "text": "구체적인 사실"},
    {"label": "시장 영향력", "text": "시장에 미치는 의미"}
  ]
}`

func buildSystemPrompt(p model.Persona) string {
	var b strings.Builder
	fmt.Fprintf(&b, "당신은 '%s'입니다.\n", p.Name)
	if p.Voice != "" {
		fmt.Fprintf(&b, "%s입니다.\n", strings.TrimSuffix(p.Voice, "입니다."))
	}
	b.WriteString("테크 뉴스 한 건을 분석하여 아래 JSON 형식으로만 출력하십시오. 설명이나 마크다운은 쓰지 마십시오.\n\n")
	b.WriteString("[출력 포맷 - JSON]\n")
	b.WriteString(narrativeSchema)
	b.WriteString("\n\n[facts 개수 기준]\n")
	b.WriteString("- 단순 업데이트, 짧은 소식, 루머: 1개\n")
	b.WriteString("- 주요 기술 발표, 신제품 출시, 심층 분석이 필요한 뉴스: 2~3개\n")
	b.WriteString("\n[필수 규칙]\n")
	if p.Tone != "" {
		fmt.Fprintf(&b, "- 어조: %s\n", p.Tone)
	}
	for _, r := range p.Rules {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	if p.WrapWidth > 0 {
		fmt.Fprintf(&b, "- hook과 body의 각 항목은 %d자 내외의 한 줄로 작성\n", p.WrapWidth)
	}
	if p.Language != "" && p.Language != "ko" {
		fmt.Fprintf(&b, "- 출력 언어: %s\n", p.Language)
	}
	return b.String()
}

func buildUserPrompt(title, text string, maxRunes int) string {
	return fmt.Sprintf("뉴스 제목: %s\n\n뉴스 내용:\n%s\n", title, truncateRunes(text, maxRunes))
}

// truncateRunes truncates s to maxRunes runes (Unicode-safe).
func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "\n... [truncated]"
}
