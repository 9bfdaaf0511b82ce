package model

import "errors"

// Run failure taxonomy. Callers match with errors.Is.
var (
	// ErrSourceUnavailable means the feed could not be retrieved or parsed.
	// The run ends as a clean no-op.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNoCandidate means every feed entry is already in the ledger.
	ErrNoCandidate = errors.New("no new candidate")

	// ErrAnalysisMalformed means the model response lacked a required narrative part.
	ErrAnalysisMalformed = errors.New("analysis malformed")

	// ErrPublishRoot means the root post was rejected; nothing was published.
	ErrPublishRoot = errors.New("publish failed: root")

	// ErrPublishPartial means a reply failed after the root went live.
	ErrPublishPartial = errors.New("publish failed: partial")
)
