// internal/ai/answerer.go
package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	stderr "apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/common/metrics"
	"apply-engine/internal/models"
)

const answerPromptTemplate = `You are filling a job application form on behalf of a candidate.

Candidate:
Name: %s
Summary: %s
Skills: %s
Total experience: %d years

Form question (field label): %q

Answer the question truthfully from the candidate's perspective. Keep it short:
one sentence for free-text questions, a bare number for numeric questions.
Respond with ONLY the answer text, no preamble and no markdown.`

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// SanitizeAnswer normalizes model or profile output for form input: markup
// stripped, whitespace collapsed, single line.
func SanitizeAnswer(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Answerer produces free-text answers for form questions. Answers are cached
// per normalized label for the lifetime of one application run, so the same
// question never costs two model calls. The cache is not shared across
// applications.
type Answerer struct {
	generator ContentGenerator
	profile   *models.CandidateProfile
	logger    logger.Logger

	budget int

	mu        sync.Mutex
	remaining int
	cache     map[string]string
}

// NewAnswerer creates an Answerer scoped to one application run.
func NewAnswerer(generator ContentGenerator, profile *models.CandidateProfile, budget int, log logger.Logger) *Answerer {
	return &Answerer{
		generator: generator,
		profile:   profile,
		logger:    log.WithFields(map[string]interface{}{"component": "ai-answerer"}),
		budget:    budget,
		remaining: budget,
		cache:     make(map[string]string),
	}
}

// Answer returns a sanitized answer for the labeled question, consulting the
// per-run cache first.
func (a *Answerer) Answer(ctx context.Context, label string) (string, error) {
	key := normalizeLabel(label)
	if key == "" {
		return "", errors.New("empty question label")
	}

	a.mu.Lock()
	if cached, ok := a.cache[key]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	if a.remaining <= 0 {
		a.mu.Unlock()
		metrics.AICalls.WithLabelValues("answer", "budget_exhausted").Inc()
		return "", stderr.NewAIBudgetExhaustedError(a.budget)
	}
	a.remaining--
	a.mu.Unlock()

	name, summary, skills, years := "", "", "", 0
	if a.profile != nil {
		name = a.profile.FullName
		summary = a.profile.Summary
		skills = strings.Join(a.profile.Skills, ", ")
		years = a.profile.TotalExperience
	}

	prompt := fmt.Sprintf(answerPromptTemplate, name, summary, skills, years, label)

	raw, err := a.generator.GenerateContent(ctx, prompt)
	if err != nil {
		metrics.AICalls.WithLabelValues("answer", "error").Inc()
		return "", fmt.Errorf("answer question %q: %w", label, err)
	}

	answer := SanitizeAnswer(raw)
	if answer == "" {
		metrics.AICalls.WithLabelValues("answer", "empty").Inc()
		return "", fmt.Errorf("empty answer for question %q", label)
	}

	metrics.AICalls.WithLabelValues("answer", "ok").Inc()

	a.mu.Lock()
	a.cache[key] = answer
	a.mu.Unlock()

	a.logger.Debug("answered form question", map[string]interface{}{
		"label":  label,
		"answer": truncate(answer, 120),
	})
	return answer, nil
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	label = whitespacePattern.ReplaceAllString(label, " ")
	return strings.Trim(label, " ?:*")
}
