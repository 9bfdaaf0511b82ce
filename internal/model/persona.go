package model

// Persona is the author voice the analyzer writes in and the composer lays out for.
type Persona struct {
	Name     string   `yaml:"name" json:"name"`
	Voice    string   `yaml:"voice" json:"voice"`
	Tone     string   `yaml:"tone" json:"tone"`
	Language string   `yaml:"language" json:"language"`
	Rules    []string `yaml:"rules" json:"rules"`

	// WrapWidth is the line width in runes for mobile readability.
	WrapWidth int `yaml:"wrap_width" json:"wrap_width"`

	// ThreadMarker closes the root post of a multi-post thread.
	ThreadMarker string `yaml:"thread_marker" json:"thread_marker"`

	// SourcePrefix precedes the article URL in the final unit.
	SourcePrefix string `yaml:"source_prefix" json:"source_prefix"`
}

// DefaultPersona returns the "Next Builder" persona.
func DefaultPersona() Persona {
	return Persona{
		Name:     "Next Builder",
		Voice:    "테크 뉴스를 분석하여 개발자와 엔지니어에게 인사이트를 제공하는 빌더",
		Tone:     "정중하고 신뢰감 있는 하십시오체 (~습니다/합니다)",
		Language: "ko",
		Rules: []string{
			"이모지를 사용하지 않습니다 (스레드 예고용 🧵만 허용)",
			"해시태그(#)를 사용하지 않습니다",
			"본문에 URL을 포함하지 않습니다",
			"시처럼 짧게 끊어서 작성합니다",
		},
		WrapWidth:    30,
		ThreadMarker: "핵심만 정리했습니다.🧵",
		SourcePrefix: "출처 : ",
	}
}

// WithDefaults fills zero fields from DefaultPersona.
func (p Persona) WithDefaults() Persona {
	d := DefaultPersona()
	if p.Name == "" {
		p.Name = d.Name
	}
	if p.Voice == "" {
		p.Voice = d.Voice
	}
	if p.Tone == "" {
		p.Tone = d.Tone
	}
	if p.Language == "" {
		p.Language = d.Language
	}
	if p.Rules == nil {
		p.Rules = d.Rules
	}
	if p.WrapWidth <= 0 {
		p.WrapWidth = d.WrapWidth
	}
	if p.ThreadMarker == "" {
		p.ThreadMarker = d.ThreadMarker
	}
	if p.SourcePrefix == "" {
		p.SourcePrefix = d.SourcePrefix
	}
	return p
}
