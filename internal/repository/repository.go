// internal/repository/repository.go
package repository

import (
	"context"

	"apply-engine/internal/models"
)

// Repository is the persistence boundary. Schema and migrations are owned
// upstream; the engine only reads profiles and writes postings, match results
// and application state.
type Repository interface {
	// SeenPosting reports whether a posting with this dedup key was already
	// discovered in an earlier run.
	SeenPosting(ctx context.Context, dedupKey string) (bool, error)

	// SavePosting upserts the posting keyed by its dedup key and returns the
	// stored row id.
	SavePosting(ctx context.Context, posting models.JobPosting) (string, error)

	// BackfillDescription fills in a description fetched from a detail page
	// after the initial listing scrape.
	BackfillDescription(ctx context.Context, postingID, description string) error

	// SaveMatchResult stores the classifier verdict for a posting.
	SaveMatchResult(ctx context.Context, postingID string, result models.MatchResult) error

	// CreateApplication inserts a new application row in QUEUED state.
	CreateApplication(ctx context.Context, job *models.ApplicationJob) error

	// UpdateApplicationState transitions the application, refusing to leave a
	// terminal state. It reports whether a row actually changed.
	UpdateApplicationState(ctx context.Context, applicationID string, state models.ApplicationState, detail string) (bool, error)

	// RecordAttempt persists the current delivery attempt count.
	RecordAttempt(ctx context.Context, applicationID string, attempts int) error

	// Profile reads the candidate profile for a user.
	Profile(ctx context.Context, userID string) (*models.CandidateProfile, error)
}
