// internal/matcher/classifier.go
package matcher

import (
	"fmt"
	"math"
	"strings"

	"apply-engine/internal/common/config"
	"apply-engine/internal/models"
)

// Classifier is the deterministic eligibility rule engine. Classify is a pure
// function of its inputs: identical (title, description, location) always
// yields an identical MatchResult.
//
// Rules run in strict order and the first failing hard rule short-circuits
// with score 0: remote check, exclusion check, seniority check, title match,
// technology buckets, preference bonus.
type Classifier struct {
	cfg   config.MatcherConfig
	rules *rules
}

func New(cfg config.MatcherConfig) *Classifier {
	return &Classifier{cfg: cfg, rules: compileRules(cfg)}
}

func (c *Classifier) Classify(title, description, location string) models.MatchResult {
	text := strings.ToLower(title + " " + description + " " + location)

	// 1. Remote check. Onsite/hybrid wording always rejects; otherwise a
	// remote keyword must appear somewhere, location included.
	if c.rules.onsite.MatchString(text) {
		return c.reject("location restriction: onsite or hybrid requirement")
	}
	if !c.rules.remote.MatchString(text) {
		if strings.TrimSpace(location) != "" {
			return c.reject(fmt.Sprintf("location restriction: %q has no remote/anywhere/worldwide wording", strings.TrimSpace(location)))
		}
		return c.reject("location restriction: no remote signal found")
	}

	// 2. Exclusion check: out-of-domain stacks and one-sided roles.
	titleAndDesc := strings.ToLower(title + " " + description)
	if hit, ok := c.rules.firstExclusion(titleAndDesc); ok {
		return c.reject(fmt.Sprintf("excluded technology stack: %s", hit))
	}
	lowerTitle := strings.ToLower(title)
	if c.rules.frontOnly.MatchString(lowerTitle) && !c.rules.backTech.MatchString(strings.ToLower(description)) {
		return c.reject("frontend-only role without backend counter-evidence")
	}
	if c.rules.backOnly.MatchString(lowerTitle) && !c.rules.frontTech.MatchString(strings.ToLower(description)) {
		return c.reject("backend-only role without frontend counter-evidence")
	}

	// 3. Seniority check.
	if c.rules.seniorTitle.MatchString(lowerTitle) {
		return c.reject("seniority: staff/principal/lead/architect title")
	}
	if c.rules.seniorYears.MatchString(strings.ToLower(description)) {
		return c.reject("seniority: six or more years required")
	}

	var reasons []string
	score := 0.0

	// 4. Title match.
	titleMatched := false
	for _, p := range c.rules.titles {
		if p.MatchString(lowerTitle) {
			titleMatched = true
			break
		}
	}
	if !titleMatched {
		return c.reject(fmt.Sprintf("title %q matches no target-role pattern", title))
	}
	score += float64(c.cfg.TitleScore)
	reasons = append(reasons, "title matches target role")

	// 5. Technology buckets. Fewer than MinBuckets is a hard floor regardless
	// of the title score.
	matched := c.rules.matchedBuckets(strings.ToLower(description))
	missing := c.rules.missingBuckets(matched)
	if len(matched) < c.cfg.MinBuckets {
		result := c.reject(fmt.Sprintf("only %d of %d required technology buckets matched", len(matched), c.cfg.MinBuckets))
		result.MissingSkills = missing
		return result
	}
	bucketScore := math.Min(float64(len(matched))*c.cfg.BucketScore, float64(c.cfg.BucketScoreCap))
	score += bucketScore
	reasons = append(reasons, fmt.Sprintf("%d technology buckets matched: %s", len(matched), strings.Join(matched, ", ")))

	// 6. Preference bonus.
	prefHits := c.rules.preferenceHits(text)
	prefScore := prefHits * c.cfg.PreferenceScore
	if prefScore > c.cfg.PreferenceCap {
		prefScore = c.cfg.PreferenceCap
	}
	if prefScore > 0 {
		score += float64(prefScore)
		reasons = append(reasons, fmt.Sprintf("%d soft-preference signals", prefHits))
	}

	final := int(math.Round(score))
	if final > 100 {
		final = 100
	}

	return models.MatchResult{
		Score:         final,
		IsMatch:       final >= c.cfg.MatchThreshold,
		Reasons:       reasons,
		MissingSkills: missing,
		Confidence:    confidenceFor(len(matched)),
	}
}

func (c *Classifier) reject(reason string) models.MatchResult {
	return models.MatchResult{
		Score:      0,
		IsMatch:    false,
		Reasons:    []string{reason},
		Confidence: models.ConfidenceLow,
	}
}

func confidenceFor(bucketHits int) models.Confidence {
	switch {
	case bucketHits >= 4:
		return models.ConfidenceHigh
	case bucketHits >= 2:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
