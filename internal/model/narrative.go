package model

// Fact is one labelled supporting fact, e.g. {"기술적 팩트", "..."}.
type Fact struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Narrative is the model-derived structured content for one article.
type Narrative struct {
	// Headline is the short noun-phrase title line. Optional.
	Headline string   `json:"headline,omitempty"`
	Hook     []string `json:"hook"`
	Body     []string `json:"body"`
	Facts    []Fact   `json:"facts"`
}
