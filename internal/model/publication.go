package model

import "time"

// Publication outcome constants
const (
	StatusPublished = "published"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusDryRun    = "dry_run"
	StatusNoop      = "noop"
)

// Outcome is what the publisher reports for one plan.
type Outcome struct {
	Status string `json:"status"`

	// Handles holds the post handles of the published prefix, in unit order.
	Handles []string `json:"handles"`

	// Published is the number of units that went live (len(Handles) in live mode).
	Published int `json:"published"`

	// Units is the number of units in the plan.
	Units int `json:"units"`

	Err error `json:"-"`
}

// RootHandle returns the handle of unit 0, or "" when nothing was published.
func (o Outcome) RootHandle() string {
	if len(o.Handles) == 0 {
		return ""
	}
	return o.Handles[0]
}

// ReplyHandles returns the handles after the root.
func (o Outcome) ReplyHandles() []string {
	if len(o.Handles) <= 1 {
		return nil
	}
	return o.Handles[1:]
}

// PublicationRecord is one ledger entry. Written only after the root post succeeded.
type PublicationRecord struct {
	ID             string    `json:"id"`
	ArticleID      string    `json:"article_id"`
	Title          string    `json:"title"`
	URL            string    `json:"url"`
	Outcome        string    `json:"outcome"`
	RootHandle     string    `json:"root_handle"`
	ReplyHandles   []string  `json:"reply_handles"`
	PublishedUnits int       `json:"published_units"`
	TotalUnits     int       `json:"total_units"`
	Detail         string    `json:"detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewPublicationRecord builds a ledger entry from a live publish outcome.
func NewPublicationRecord(id string, c Candidate, o Outcome) PublicationRecord {
	rec := PublicationRecord{
		ID:             id,
		ArticleID:      c.ID,
		Title:          c.Title,
		URL:            c.URL,
		Outcome:        o.Status,
		RootHandle:     o.RootHandle(),
		ReplyHandles:   o.ReplyHandles(),
		PublishedUnits: o.Published,
		TotalUnits:     o.Units,
		CreatedAt:      time.Now().UTC(),
	}
	if o.Err != nil {
		rec.Detail = o.Err.Error()
	}
	return rec
}
