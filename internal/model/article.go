package model

import "time"

// Candidate is a feed entry being considered for publication this run.
// It is created by the feed ingestor and treated as read-only afterwards.
type Candidate struct {
	// ID is the dedup key. At most one publication per ID, ever.
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	GUID      string    `json:"guid,omitempty"`
	Published time.Time `json:"published"`
	Summary   string    `json:"summary"`
}

// Enriched is a Candidate plus best-effort enrichment.
type Enriched struct {
	Candidate

	// ImageURL is empty when no preview image could be resolved.
	ImageURL string `json:"image_url,omitempty"`

	// Body is the extracted article text, or the feed summary when extraction failed.
	Body string `json:"body"`
}

// HasImage reports whether a preview image was resolved.
func (e Enriched) HasImage() bool {
	return e.ImageURL != ""
}

// Text returns the best available article text.
func (e Enriched) Text() string {
	if e.Body != "" {
		return e.Body
	}
	return e.Summary
}
