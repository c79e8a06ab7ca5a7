// internal/repository/postgres.go
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Postgres implements Repository on a plain SQL connection pool.
type Postgres struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgres(db *sql.DB, log logger.Logger) *Postgres {
	return &Postgres{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "repository"}),
	}
}

func (r *Postgres) SeenPosting(ctx context.Context, dedupKey string) (bool, error) {
	var seen bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM postings WHERE dedup_key = $1)`, dedupKey).Scan(&seen)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("seen posting", err)
	}
	return seen, nil
}

func (r *Postgres) SavePosting(ctx context.Context, posting models.JobPosting) (string, error) {
	id := posting.ID
	if id == "" {
		id = uuid.NewString()
	}

	var storedID string
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO postings (id, dedup_key, platform, external_id, title, company, location, description, url, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (dedup_key) DO UPDATE
		SET title = EXCLUDED.title,
		    company = EXCLUDED.company,
		    location = EXCLUDED.location,
		    url = EXCLUDED.url
		RETURNING id`,
		id, posting.DedupKey(), posting.Platform, posting.ExternalID, posting.Title,
		posting.Company, posting.Location, posting.Description, posting.URL, posting.PostedAt,
	).Scan(&storedID)
	if err != nil {
		return "", errors.NewQueryExecutionFailedError("save posting", err)
	}
	return storedID, nil
}

func (r *Postgres) BackfillDescription(ctx context.Context, postingID, description string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE postings SET description = $1 WHERE id = $2 AND description = ''`,
		description, postingID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("backfill description", err)
	}
	return nil
}

func (r *Postgres) SaveMatchResult(ctx context.Context, postingID string, result models.MatchResult) error {
	reasons, err := json.Marshal(result.Reasons)
	if err != nil {
		return fmt.Errorf("marshal reasons: %w", err)
	}
	missing, err := json.Marshal(result.MissingSkills)
	if err != nil {
		return fmt.Errorf("marshal missing skills: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO match_results (posting_id, score, is_match, reasons, missing_skills, confidence, ai_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (posting_id) DO UPDATE
		SET score = EXCLUDED.score,
		    is_match = EXCLUDED.is_match,
		    reasons = EXCLUDED.reasons,
		    missing_skills = EXCLUDED.missing_skills,
		    confidence = EXCLUDED.confidence,
		    ai_score = EXCLUDED.ai_score`,
		postingID, result.Score, result.IsMatch, reasons, missing, string(result.Confidence), result.AIScore)
	if err != nil {
		return errors.NewQueryExecutionFailedError("save match result", err)
	}
	return nil
}

func (r *Postgres) CreateApplication(ctx context.Context, job *models.ApplicationJob) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO applications (id, job_id, user_id, job_url, platform, state, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, now(), now())`,
		job.ApplicationID, job.JobID, job.UserID, job.JobURL, job.Platform, string(models.StateQueued))
	if err != nil {
		return errors.NewQueryExecutionFailedError("create application", err)
	}
	return nil
}

// UpdateApplicationState guards terminal states in the statement itself, so a
// requeued duplicate delivery can never downgrade APPLIED back to PROCESSING.
func (r *Postgres) UpdateApplicationState(ctx context.Context, applicationID string, state models.ApplicationState, detail string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE applications
		SET state = $1, detail = $2, updated_at = now()
		WHERE id = $3 AND state NOT IN ($4, $5, $6)`,
		string(state), detail, applicationID,
		string(models.StateApplied), string(models.StateFailed), string(models.StateManualIntervention))
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("update application state", err)
	}

	changed, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("update application state", err)
	}
	if changed == 0 {
		r.logger.Warn("state transition refused, application already terminal", map[string]interface{}{
			"application_id": applicationID,
			"target_state":   string(state),
		})
	}
	return changed > 0, nil
}

func (r *Postgres) RecordAttempt(ctx context.Context, applicationID string, attempts int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE applications SET attempts = $1, updated_at = now() WHERE id = $2`,
		attempts, applicationID)
	if err != nil {
		return errors.NewQueryExecutionFailedError("record attempt", err)
	}
	return nil
}

func (r *Postgres) Profile(ctx context.Context, userID string) (*models.CandidateProfile, error) {
	profile := &models.CandidateProfile{UserID: userID}
	var skills pq.StringArray
	var yearsBySkill, answers []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT full_name, email, phone, location, linkedin, website, summary,
		       skills, years_by_skill, total_experience, resume_path, cover_letter_path, answers
		FROM candidate_profiles
		WHERE user_id = $1`, userID).Scan(
		&profile.FullName, &profile.Email, &profile.Phone, &profile.Location,
		&profile.LinkedIn, &profile.Website, &profile.Summary,
		&skills, &yearsBySkill, &profile.TotalExperience,
		&profile.ResumePath, &profile.CoverLetterPath, &answers,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewProfileNotFoundError(userID)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("read profile", err)
	}

	profile.Skills = skills
	if len(yearsBySkill) > 0 {
		if err := json.Unmarshal(yearsBySkill, &profile.YearsBySkill); err != nil {
			return nil, fmt.Errorf("decode years_by_skill: %w", err)
		}
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &profile.Answers); err != nil {
			return nil, fmt.Errorf("decode answers: %w", err)
		}
	}
	return profile, nil
}
