package model

import (
	"time"

	"github.com/google/uuid"
)

type TriageStatus string

const (
	StatusPendingRelevance TriageStatus = "pending_relevance_check"
	StatusPassedRelevance  TriageStatus = "passed_relevance_check"
	StatusFailedRelevance  TriageStatus = "failed_relevance_check"
	StatusAcceptedForLab   TriageStatus = "accepted_for_lab"
	StatusFlaggedPaywalled TriageStatus = "flagged_paywalled"
	StatusRejectedByHuman  TriageStatus = "rejected_by_human"
)

// TriageStatuses lists every status an article can carry, upstream ones included.
var TriageStatuses = []TriageStatus{
	StatusPendingRelevance,
	StatusPassedRelevance,
	StatusFailedRelevance,
	StatusAcceptedForLab,
	StatusFlaggedPaywalled,
	StatusRejectedByHuman,
}

// Valid reports whether s is a known status.
func (s TriageStatus) Valid() bool {
	for _, known := range TriageStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Final reports whether s is one of the statuses a human reviewer can assign.
func (s TriageStatus) Final() bool {
	switch s {
	case StatusAcceptedForLab, StatusFlaggedPaywalled, StatusRejectedByHuman:
		return true
	}
	return false
}

// Article is a discovered article moving through triage and the content lab.
type Article struct {
	ID             string       `json:"id"`
	Title          string       `json:"original_title"`
	SourceURL      string       `json:"source_url"`
	AlternativeURL string       `json:"alternative_url,omitempty"`
	TriageStatus   TriageStatus `json:"triage_status"`
	DOI            string       `json:"doi,omitempty"`
	Excerpt        string       `json:"excerpt,omitempty"`
	Content        string       `json:"content,omitempty"`
	DiscoveredAt   time.Time    `json:"discovered_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	SnapshotAt     *time.Time   `json:"snapshot_at,omitempty"`
	SnapshotError  string       `json:"snapshot_error,omitempty"`
}

// NewArticle creates a discovered article waiting for human triage.
func NewArticle(title, sourceURL string) Article {
	now := time.Now().UTC()
	return Article{
		ID:           uuid.NewString(),
		Title:        title,
		SourceURL:    sourceURL,
		TriageStatus: StatusPassedRelevance,
		DiscoveredAt: now,
		UpdatedAt:    now,
	}
}

// SnapshotURL is the address the lab snapshot is taken from.
func (a *Article) SnapshotURL() string {
	if a.AlternativeURL != "" {
		return a.AlternativeURL
	}
	return a.SourceURL
}
