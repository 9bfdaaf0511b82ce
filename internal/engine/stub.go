package engine

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/yangwenmai/threadauto/internal/model"
)

// StubExtractor returns mock extraction results (for development/testing).
type StubExtractor struct{}

func (e *StubExtractor) Extract(_ context.Context, url string) (*ExtractedContent, error) {
	text := "This is a stub extracted article about " + url + ". It covers a product launch, the technology behind it and what it means for the market."
	return &ExtractedContent{
		NormalizedText: text,
		Meta: ContentMeta{
			Author:    "Stub Author",
			WordCount: len(strings.Fields(text)),
		},
	}, nil
}

// StubModelClient returns a fixed Narrative as JSON (for development/testing).
// Facts controls how many supporting facts it returns; 0 means two.
type StubModelClient struct {
	Facts int
}

func (m *StubModelClient) Complete(_ context.Context, req CompletionRequest) (string, error) {
	facts := []model.Fact{
		{Label: "기술적 팩트", Text: "새 모델은 이전 세대보다 추론 비용을 절반으로 줄였습니다."},
		{Label: "시장 영향력", Text: "경쟁사들도 가격 정책을 다시 검토해야 하는 상황입니다."},
		{Label: "개발자 관점", Text: "기존 API와 호환되어 바로 교체할 수 있습니다."},
	}
	n := m.Facts
	if n <= 0 {
		n = 2
	}
	if n > len(facts) {
		n = len(facts)
	}

	title := "오늘의 테크 뉴스"
	if _, rest, ok := strings.Cut(req.User, "뉴스 제목: "); ok {
		title, _, _ = strings.Cut(rest, "\n")
	}

	result := model.Narrative{
		Headline: title,
		Hook:     []string{"드디어 올 것이 왔군요."},
		Body:     []string{"핵심은 비용과 속도입니다.", "작은 팀도 같은 도구를 씁니다."},
		Facts:    facts[:n],
	}
	b, _ := json.Marshal(result)
	return string(b), nil
}
