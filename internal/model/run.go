package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RunSummary is the outcome of one pipeline invocation. Every run produces one.
type RunSummary struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	ArticleID  string    `json:"article_id,omitempty"`
	Title      string    `json:"title,omitempty"`
	URL        string    `json:"url,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	PlanKind   string    `json:"plan_kind,omitempty"`
	Units      int       `json:"units"`
	Published  int       `json:"published"`
	Truncated  []int     `json:"truncated,omitempty"`
	Cause      string    `json:"cause,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// NewRunSummary starts a summary in the failed state; stages upgrade it.
func NewRunSummary(runID string) RunSummary {
	return RunSummary{
		RunID:     runID,
		Status:    StatusFailed,
		StartedAt: time.Now().UTC(),
	}
}

// Succeeded reports whether the run should exit with a success status.
func (s RunSummary) Succeeded() bool {
	switch s.Status {
	case StatusPublished, StatusNoop, StatusDryRun:
		return true
	}
	return false
}

// Line renders a one-line human summary, e.g. "Type: MULTI, Replies: 3, Status: published".
func (s RunSummary) Line() string {
	replies := s.Units - 1
	if replies < 0 {
		replies = 0
	}
	kind := "NONE"
	if s.PlanKind != "" {
		kind = strings.ToUpper(s.PlanKind)
	}
	line := fmt.Sprintf("Type: %s, Replies: %d, Status: %s", kind, replies, s.Status)
	if len(s.Truncated) > 0 {
		line += fmt.Sprintf(", Truncated: %v", s.Truncated)
	}
	if s.Cause != "" {
		line += ", Cause: " + s.Cause
	}
	return line
}

// ToJSON serializes the summary to a JSON string.
func (s RunSummary) ToJSON() string {
	b, _ := json.Marshal(s)
	return string(b)
}
