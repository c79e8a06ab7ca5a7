// internal/models/posting.go
package models

import "strings"

// JobPosting is sourced metadata for one discovered job. Immutable after
// creation except Description, which discovery may backfill from a detail page.
type JobPosting struct {
	ID          string `json:"id"`
	ExternalID  string `json:"externalId"`
	Platform    string `json:"platform"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PostedAt    string `json:"postedAt,omitempty"`
}

// DedupKey identifies a posting across discovery runs: platform plus external
// id when the source provides one, canonical URL otherwise.
func (p JobPosting) DedupKey() string {
	if p.ExternalID != "" {
		return p.Platform + ":" + p.ExternalID
	}
	url := p.URL
	if i := strings.IndexByte(url, '?'); i != -1 {
		url = url[:i]
	}
	return p.Platform + ":" + url
}

// Confidence buckets for a match decision, derived from how many technology
// buckets the description hit.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// MatchResult is the classifier verdict for one posting. It is a pure function
// of (title, description, location, preference terms) and carries no identity
// of its own.
type MatchResult struct {
	Score         int        `json:"score"`
	IsMatch       bool       `json:"isMatch"`
	Reasons       []string   `json:"reasons"`
	MissingSkills []string   `json:"missingSkills"`
	Confidence    Confidence `json:"confidence"`
	AIScore       *float64   `json:"aiScore,omitempty"`
}
