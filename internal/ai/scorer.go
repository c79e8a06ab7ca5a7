// internal/ai/scorer.go
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	stderr "apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/common/metrics"
	"apply-engine/internal/models"
)

// NeutralScore is returned whenever AI scoring is unavailable: budget spent,
// missing description, model failure, or unparseable output. Degrading to a
// neutral relevance beats failing the discovery run.
const NeutralScore = 0.5

const scorePromptTemplate = `You are screening job postings for a candidate.

Candidate summary:
%s

Candidate skills: %s

Job posting:
Title: %s
Company: %s
Description:
%s

Rate how relevant this posting is for the candidate on a continuous scale from
0.0 (irrelevant) to 1.0 (ideal fit). Respond with ONLY a raw JSON object:
{"score": <number between 0 and 1>, "reason": "<one sentence>"}`

// Scorer produces a continuous 0-1 relevance score from the language model,
// bounded by a per-run call budget.
type Scorer struct {
	generator ContentGenerator
	logger    logger.Logger

	mu        sync.Mutex
	remaining int
}

// NewScorer creates a Scorer with a fresh call budget for one discovery run.
func NewScorer(generator ContentGenerator, budget int, log logger.Logger) *Scorer {
	return &Scorer{
		generator: generator,
		logger:    log.WithFields(map[string]interface{}{"component": "ai-scorer"}),
		remaining: budget,
	}
}

// Score rates a posting against the profile. All failure paths return the
// neutral default instead of an error; the caller treats the score as
// advisory, never load-bearing.
func (s *Scorer) Score(ctx context.Context, posting models.JobPosting, profile *models.CandidateProfile) float64 {
	if posting.Description == "" {
		return NeutralScore
	}
	if !s.spendBudget() {
		metrics.AICalls.WithLabelValues("score", "budget_exhausted").Inc()
		return NeutralScore
	}

	skills := ""
	if profile != nil {
		for i, sk := range profile.Skills {
			if i > 0 {
				skills += ", "
			}
			skills += sk
		}
	}
	summary := ""
	if profile != nil {
		summary = profile.Summary
	}

	prompt := fmt.Sprintf(scorePromptTemplate, summary, skills, posting.Title, posting.Company, posting.Description)

	raw, err := s.generator.GenerateContent(ctx, prompt)
	if err != nil {
		metrics.AICalls.WithLabelValues("score", "error").Inc()
		s.logger.WithError(stderr.NewAIScoringFailedError(err)).Warn(
			"ai scoring failed, using neutral default",
			map[string]interface{}{"postingId": posting.ID},
		)
		return NeutralScore
	}

	var parsed struct {
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(extractJSON(raw)), &parsed); err != nil {
		metrics.AICalls.WithLabelValues("score", "parse_error").Inc()
		s.logger.Warn("unparseable ai score, using neutral default", map[string]interface{}{
			"postingId": posting.ID,
			"raw":       truncate(raw, 200),
		})
		return NeutralScore
	}

	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 1 {
		parsed.Score = 1
	}

	metrics.AICalls.WithLabelValues("score", "ok").Inc()
	s.logger.Debug("ai relevance score", map[string]interface{}{
		"postingId": posting.ID,
		"score":     parsed.Score,
		"reason":    parsed.Reason,
	})
	return parsed.Score
}

// Remaining reports how much of the run budget is left.
func (s *Scorer) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

func (s *Scorer) spendBudget() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining <= 0 {
		return false
	}
	s.remaining--
	return true
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
