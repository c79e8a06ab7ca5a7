// internal/ai/ai_test.go
package ai

import (
	"context"
	"errors"
	"testing"

	stderr "apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator scripts model responses and counts invocations.
type fakeGenerator struct {
	responses []string
	err       error
	calls     int
}

func (f *fakeGenerator) GenerateContent(_ context.Context, _ string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

func testPosting() models.JobPosting {
	return models.JobPosting{
		ID:          "posting-1",
		Title:       "Full Stack Developer",
		Company:     "Acme",
		Description: "React and Node.js product work.",
	}
}

func testProfile() *models.CandidateProfile {
	return &models.CandidateProfile{
		UserID:          "user-1",
		FullName:        "Jane Roe",
		Summary:         "Full stack developer.",
		Skills:          []string{"React", "Node.js"},
		TotalExperience: 3,
	}
}

func TestScorerParsesFencedJSON(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"```json\n{\"score\": 0.82, \"reason\": \"strong overlap\"}\n```"}}
	s := NewScorer(gen, 5, logger.NewTestLogger(t))

	score := s.Score(context.Background(), testPosting(), testProfile())

	assert.InDelta(t, 0.82, score, 0.0001)
	assert.Equal(t, 4, s.Remaining())
}

func TestScorerNeutralOnError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model unavailable")}
	s := NewScorer(gen, 5, logger.NewTestLogger(t))

	score := s.Score(context.Background(), testPosting(), testProfile())

	assert.Equal(t, NeutralScore, score)
}

func TestScorerNeutralOnUnparseableOutput(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I think this job is great!"}}
	s := NewScorer(gen, 5, logger.NewTestLogger(t))

	assert.Equal(t, NeutralScore, s.Score(context.Background(), testPosting(), testProfile()))
}

func TestScorerSkipsWithoutDescription(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"score": 0.9}`}}
	s := NewScorer(gen, 5, logger.NewTestLogger(t))

	posting := testPosting()
	posting.Description = ""

	assert.Equal(t, NeutralScore, s.Score(context.Background(), posting, testProfile()))
	assert.Zero(t, gen.calls)
}

func TestScorerBudgetExhaustion(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"score": 0.9}`}}
	s := NewScorer(gen, 2, logger.NewTestLogger(t))
	ctx := context.Background()

	assert.InDelta(t, 0.9, s.Score(ctx, testPosting(), testProfile()), 0.0001)
	assert.InDelta(t, 0.9, s.Score(ctx, testPosting(), testProfile()), 0.0001)

	// Third call exceeds the budget and degrades to neutral without a model call.
	assert.Equal(t, NeutralScore, s.Score(ctx, testPosting(), testProfile()))
	assert.Equal(t, 2, gen.calls)
}

func TestScorerClampsOutOfRangeScores(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"score": 3.5}`}}
	s := NewScorer(gen, 5, logger.NewTestLogger(t))

	assert.Equal(t, 1.0, s.Score(context.Background(), testPosting(), testProfile()))
}

func TestAnswererCachesPerNormalizedLabel(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"I have 3 years of React experience."}}
	a := NewAnswerer(gen, testProfile(), 5, logger.NewTestLogger(t))
	ctx := context.Background()

	first, err := a.Answer(ctx, "How many years of React experience?")
	require.NoError(t, err)

	// Same question with different casing/whitespace reuses the cached answer.
	second, err := a.Answer(ctx, "  how many years of react experience ")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gen.calls)
}

func TestAnswererBudgetExhausted(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"yes"}}
	a := NewAnswerer(gen, testProfile(), 1, logger.NewTestLogger(t))
	ctx := context.Background()

	_, err := a.Answer(ctx, "Are you authorized to work?")
	require.NoError(t, err)

	_, err = a.Answer(ctx, "Do you require sponsorship?")
	require.Error(t, err)
	assert.Equal(t, stderr.ErrCodeAIBudgetExhausted, stderr.Code(err))
	assert.False(t, stderr.IsRetryable(err), "an exhausted budget never recovers within the run")
}

func TestAnswererSanitizesOutput(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"<p>I am  excited\nto apply!</p>"}}
	a := NewAnswerer(gen, testProfile(), 5, logger.NewTestLogger(t))

	answer, err := a.Answer(context.Background(), "Why do you want this role?")
	require.NoError(t, err)
	assert.Equal(t, "I am excited to apply!", answer)
}

func TestSanitizeAnswer(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"markup stripped", "<b>hello</b> world", "hello world"},
		{"whitespace collapsed", "a   b\t\tc", "a b c"},
		{"multiline flattened", "line one\nline two", "line one line two"},
		{"already clean", "plain", "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeAnswer(tt.in))
		})
	}
}
