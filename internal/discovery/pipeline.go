// internal/discovery/pipeline.go
package discovery

import (
	"context"

	"apply-engine/internal/common/config"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/common/metrics"
	"apply-engine/internal/matcher"
	"apply-engine/internal/models"
	"apply-engine/internal/repository"

	"github.com/google/uuid"
)

// RelevanceScorer augments a classifier match with a continuous 0-1 score.
type RelevanceScorer interface {
	Score(ctx context.Context, posting models.JobPosting, profile *models.CandidateProfile) float64
}

// Enqueuer hands an eligible application to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, job models.ApplicationJob) (string, error)
}

// Pipeline runs one discovery pass for a user: fetch from every source,
// dedupe, classify, optionally AI-augment, persist, enqueue the matches.
type Pipeline struct {
	sources    []Source
	repo       repository.Repository
	classifier *matcher.Classifier
	scorer     RelevanceScorer
	queue      Enqueuer
	minScore   float64
	logger     logger.Logger
}

func NewPipeline(sources []Source, repo repository.Repository, classifier *matcher.Classifier, scorer RelevanceScorer, queue Enqueuer, aiCfg config.AIConfig, log logger.Logger) *Pipeline {
	return &Pipeline{
		sources:    sources,
		repo:       repo,
		classifier: classifier,
		scorer:     scorer,
		queue:      queue,
		minScore:   aiCfg.MinScore,
		logger:     log.WithFields(map[string]interface{}{"component": "discovery"}),
	}
}

// Run returns the number of applications enqueued. Source failures are
// isolated: one broken board never stops the others.
func (p *Pipeline) Run(ctx context.Context, userID string) (int, error) {
	profile, err := p.repo.Profile(ctx, userID)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, source := range p.sources {
		postings, err := source.Fetch(ctx)
		if err != nil {
			p.logger.WithError(err).Warn("source fetch failed", map[string]interface{}{"source": source.Name()})
			continue
		}
		for _, posting := range postings {
			ok, err := p.processPosting(ctx, userID, profile, posting)
			if err != nil {
				p.logger.WithError(err).Warn("posting processing failed", map[string]interface{}{
					"source": source.Name(),
					"url":    posting.URL,
				})
				continue
			}
			if ok {
				enqueued++
			}
		}
	}

	p.logger.Info("discovery pass finished", map[string]interface{}{"user_id": userID, "enqueued": enqueued})
	return enqueued, nil
}

// processPosting reports whether the posting ended up enqueued.
func (p *Pipeline) processPosting(ctx context.Context, userID string, profile *models.CandidateProfile, posting models.JobPosting) (bool, error) {
	seen, err := p.repo.SeenPosting(ctx, posting.DedupKey())
	if err != nil {
		return false, err
	}
	if seen {
		return false, nil
	}

	result := p.classifier.Classify(posting.Title, posting.Description, posting.Location)
	if result.IsMatch {
		metrics.ClassifierDecisions.WithLabelValues("match").Inc()
	} else {
		metrics.ClassifierDecisions.WithLabelValues("reject").Inc()
		p.logger.Debug("posting rejected", map[string]interface{}{
			"title":   posting.Title,
			"reasons": result.Reasons,
		})
	}

	postingID, err := p.repo.SavePosting(ctx, posting)
	if err != nil {
		return false, err
	}

	eligible := result.IsMatch
	if eligible && p.scorer != nil && posting.Description != "" {
		score := p.scorer.Score(ctx, posting, profile)
		result.AIScore = &score
		if p.minScore > 0 && score < p.minScore {
			eligible = false
			p.logger.Info("posting below AI relevance floor", map[string]interface{}{
				"title": posting.Title,
				"score": score,
			})
		}
	}

	if err := p.repo.SaveMatchResult(ctx, postingID, result); err != nil {
		return false, err
	}
	if !eligible {
		return false, nil
	}

	job := models.ApplicationJob{
		ApplicationID: uuid.NewString(),
		JobID:         postingID,
		UserID:        userID,
		JobURL:        posting.URL,
		Platform:      posting.Platform,
	}
	if err := p.repo.CreateApplication(ctx, &job); err != nil {
		return false, err
	}
	if _, err := p.queue.Enqueue(ctx, job); err != nil {
		return false, err
	}
	return true, nil
}
