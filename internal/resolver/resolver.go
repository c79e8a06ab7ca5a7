// internal/resolver/resolver.go
package resolver

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"apply-engine/internal/common/logger"
	"apply-engine/internal/models"
)

// AnswerProvider supplies free-text answers for questions the profile cannot
// answer directly. The AI answerer implements it; tests use fakes.
type AnswerProvider interface {
	Answer(ctx context.Context, label string) (string, error)
}

// Resolution is the resolver's verdict for one control.
type Resolution struct {
	Value  string // text to type or option to choose
	Upload string // file path for file controls
	Skip   bool
	Reason string // why the field was skipped, for logging
}

// skipVocabulary names fields filled by the dedicated profile pass; resolving
// them again would double-fill.
var skipVocabulary = []string{
	"email", "e-mail", "phone", "mobile", "first name", "last name", "full name",
	"resume", "cv", "cover letter", "linkedin", "website", "portfolio", "location", "city",
}

var (
	yearsPattern  = regexp.MustCompile(`(?i)\byears?\b|\byrs?\b|\bexperience\b.*\bhow (long|many)\b|\bhow (long|many)\b.*\bexperience\b`)
	salaryPattern = regexp.MustCompile(`(?i)\bsalary\b|\bcompensation\b|\bexpected pay\b|\brate\b|\bctc\b`)
	numberPattern = regexp.MustCompile(`\d+`)
)

// Resolver turns normalized control descriptors into concrete input values
// using the candidate profile first and the answer provider as fallback.
type Resolver struct {
	profile *models.CandidateProfile
	answers AnswerProvider
	logger  logger.Logger
}

func New(profile *models.CandidateProfile, answers AnswerProvider, log logger.Logger) *Resolver {
	return &Resolver{
		profile: profile,
		answers: answers,
		logger:  log.WithFields(map[string]interface{}{"component": "resolver"}),
	}
}

// Resolve decides what, if anything, to put into the control. It never guesses
// blindly: a choice control with no option above the match threshold is
// skipped, as is any control whose label cannot be derived.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor) Resolution {
	if d.Filled {
		return Resolution{Skip: true, Reason: "already filled"}
	}

	label := d.Label()
	if label == "" {
		return Resolution{Skip: true, Reason: "no derivable label"}
	}

	normLabel := strings.ToLower(label)
	if d.Kind == KindFile {
		if r.profile != nil && r.profile.ResumePath != "" {
			return Resolution{Upload: r.profile.ResumePath}
		}
		return Resolution{Skip: true, Reason: "no resume document available"}
	}
	for _, handled := range skipVocabulary {
		if strings.Contains(normLabel, handled) {
			return Resolution{Skip: true, Reason: "handled by profile pass"}
		}
	}

	answer, err := r.answerFor(ctx, d, label)
	if err != nil || answer == "" {
		reason := "no answer available"
		if err != nil {
			reason = err.Error()
		}
		return Resolution{Skip: true, Reason: reason}
	}

	if d.Choice() {
		option, ok := BestOption(answer, d.Options)
		if !ok {
			return Resolution{Skip: true, Reason: "no option matched the answer"}
		}
		return Resolution{Value: option}
	}

	return Resolution{Value: answer}
}

// answerFor produces the raw free-text answer before option matching.
func (r *Resolver) answerFor(ctx context.Context, d Descriptor, label string) (string, error) {
	normLabel := strings.ToLower(label)

	// Numeric/experience floors come before any model call.
	if d.Kind == KindNumber || yearsPattern.MatchString(normLabel) {
		if salaryPattern.MatchString(normLabel) {
			return r.salaryAnswer(), nil
		}
		if years, ok := r.experienceAnswer(normLabel); ok {
			return years, nil
		}
		if d.Kind == KindNumber {
			// Unrecognized numeric question: leave it to the model, but keep
			// the result numeric.
			raw, err := r.providerAnswer(ctx, label)
			if err != nil {
				return "", err
			}
			if n := numberPattern.FindString(raw); n != "" {
				return n, nil
			}
			return "", nil
		}
	}
	if salaryPattern.MatchString(normLabel) {
		return r.salaryAnswer(), nil
	}

	// Stored profile answers win over model calls.
	if r.profile != nil && r.profile.Answers != nil {
		for question, stored := range r.profile.Answers {
			if strings.Contains(normLabel, strings.ToLower(question)) {
				return stored, nil
			}
		}
	}

	return r.providerAnswer(ctx, label)
}

func (r *Resolver) providerAnswer(ctx context.Context, label string) (string, error) {
	if r.answers == nil {
		return "", nil
	}
	return r.answers.Answer(ctx, label)
}

// experienceAnswer answers "years of X" questions from the profile. A known
// skill never answers "0": the floor is "1".
func (r *Resolver) experienceAnswer(normLabel string) (string, bool) {
	if r.profile == nil {
		return "", false
	}
	for _, skill := range r.profile.Skills {
		if strings.Contains(normLabel, strings.ToLower(skill)) {
			years, _ := r.profile.SkillYears(skill)
			return strconv.Itoa(years), true
		}
	}
	if r.profile.TotalExperience > 0 {
		return strconv.Itoa(r.profile.TotalExperience), true
	}
	return "", false
}

// salaryAnswer prefers a stored figure; "0" otherwise, read as negotiable.
func (r *Resolver) salaryAnswer() string {
	if r.profile != nil && r.profile.Answers != nil {
		for question, stored := range r.profile.Answers {
			if salaryPattern.MatchString(strings.ToLower(question)) {
				if n := numberPattern.FindString(stored); n != "" {
					return n
				}
			}
		}
	}
	return "0"
}
