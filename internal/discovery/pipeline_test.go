// internal/discovery/pipeline_test.go
package discovery

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"apply-engine/internal/common/config"
	"apply-engine/internal/common/httpclient"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/matcher"
	"apply-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	seen         map[string]bool
	postings     []models.JobPosting
	results      map[string]models.MatchResult
	applications []*models.ApplicationJob
	profile      *models.CandidateProfile
	saveErr      error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		seen:    map[string]bool{},
		results: map[string]models.MatchResult{},
		profile: &models.CandidateProfile{UserID: "user-1", Skills: []string{"React", "Node.js"}},
	}
}

func (m *memoryRepo) SeenPosting(_ context.Context, dedupKey string) (bool, error) {
	return m.seen[dedupKey], nil
}

func (m *memoryRepo) SavePosting(_ context.Context, posting models.JobPosting) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.seen[posting.DedupKey()] = true
	m.postings = append(m.postings, posting)
	return "posting-" + posting.DedupKey(), nil
}

func (m *memoryRepo) BackfillDescription(context.Context, string, string) error { return nil }

func (m *memoryRepo) SaveMatchResult(_ context.Context, postingID string, result models.MatchResult) error {
	m.results[postingID] = result
	return nil
}

func (m *memoryRepo) CreateApplication(_ context.Context, job *models.ApplicationJob) error {
	m.applications = append(m.applications, job)
	return nil
}

func (m *memoryRepo) UpdateApplicationState(context.Context, string, models.ApplicationState, string) (bool, error) {
	return true, nil
}

func (m *memoryRepo) RecordAttempt(context.Context, string, int) error { return nil }

func (m *memoryRepo) Profile(context.Context, string) (*models.CandidateProfile, error) {
	return m.profile, nil
}

type listSource struct {
	name     string
	postings []models.JobPosting
	err      error
}

func (s *listSource) Name() string { return s.name }

func (s *listSource) Fetch(context.Context) ([]models.JobPosting, error) {
	return s.postings, s.err
}

type fixedScorer struct {
	score float64
	calls int
}

func (s *fixedScorer) Score(context.Context, models.JobPosting, *models.CandidateProfile) float64 {
	s.calls++
	return s.score
}

type memoryQueue struct {
	jobs []models.ApplicationJob
	err  error
}

func (q *memoryQueue) Enqueue(_ context.Context, job models.ApplicationJob) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.jobs = append(q.jobs, job)
	return "1-0", nil
}

func matchingPosting(id string) models.JobPosting {
	return models.JobPosting{
		ExternalID:  id,
		Platform:    "board",
		Title:       "Full Stack Developer",
		Location:    "Remote",
		URL:         "https://board.example.com/jobs/" + id,
		Description: "We use React, Node.js, Express and MongoDB.",
	}
}

func rejectedPosting(id string) models.JobPosting {
	return models.JobPosting{
		ExternalID: id,
		Platform:   "board",
		Title:      "Senior .NET Architect",
		Location:   "Remote",
		URL:        "https://board.example.com/jobs/" + id,
	}
}

func testClassifier() *matcher.Classifier {
	return matcher.New(config.MatcherConfig{
		MatchThreshold:  65,
		TitleScore:      35,
		BucketScore:     7.5,
		BucketScoreCap:  45,
		MinBuckets:      2,
		PreferenceScore: 5,
		PreferenceCap:   20,
	})
}

func newTestPipeline(t *testing.T, sources []Source, repo *memoryRepo, scorer RelevanceScorer, queue *memoryQueue, minScore float64) *Pipeline {
	t.Helper()
	return NewPipeline(sources, repo, testClassifier(), scorer, queue,
		config.AIConfig{MinScore: minScore}, logger.NewTestLogger(t))
}

func TestRunEnqueuesMatches(t *testing.T) {
	repo := newMemoryRepo()
	queue := &memoryQueue{}
	source := &listSource{name: "board", postings: []models.JobPosting{
		matchingPosting("1"),
		rejectedPosting("2"),
	}}
	p := newTestPipeline(t, []Source{source}, repo, nil, queue, 0)

	enqueued, err := p.Run(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)
	require.Len(t, queue.jobs, 1)
	job := queue.jobs[0]
	assert.Equal(t, "user-1", job.UserID)
	assert.Equal(t, "https://board.example.com/jobs/1", job.JobURL)
	assert.NotEmpty(t, job.ApplicationID)

	// Both postings persisted with verdicts, match or not.
	assert.Len(t, repo.postings, 2)
	assert.Len(t, repo.results, 2)
	require.Len(t, repo.applications, 1)
	assert.Equal(t, job.ApplicationID, repo.applications[0].ApplicationID)
}

func TestRunSkipsSeenPostings(t *testing.T) {
	repo := newMemoryRepo()
	posting := matchingPosting("1")
	repo.seen[posting.DedupKey()] = true
	queue := &memoryQueue{}
	p := newTestPipeline(t, []Source{&listSource{name: "board", postings: []models.JobPosting{posting}}}, repo, nil, queue, 0)

	enqueued, err := p.Run(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Zero(t, enqueued)
	assert.Empty(t, repo.postings, "seen postings are not re-persisted")
}

func TestRunSourceFailureIsolated(t *testing.T) {
	repo := newMemoryRepo()
	queue := &memoryQueue{}
	broken := &listSource{name: "broken", err: errors.New("board down")}
	healthy := &listSource{name: "board", postings: []models.JobPosting{matchingPosting("1")}}
	p := newTestPipeline(t, []Source{broken, healthy}, repo, nil, queue, 0)

	enqueued, err := p.Run(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, 1, enqueued)
}

func TestRunAIAugmentsMatches(t *testing.T) {
	repo := newMemoryRepo()
	queue := &memoryQueue{}
	scorer := &fixedScorer{score: 0.9}
	source := &listSource{name: "board", postings: []models.JobPosting{matchingPosting("1")}}
	p := newTestPipeline(t, []Source{source}, repo, scorer, queue, 0)

	_, err := p.Run(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, 1, scorer.calls)
	for _, result := range repo.results {
		require.NotNil(t, result.AIScore)
		assert.InDelta(t, 0.9, *result.AIScore, 0.001)
	}
}

func TestRunAISkippedWithoutDescription(t *testing.T) {
	repo := newMemoryRepo()
	queue := &memoryQueue{}
	scorer := &fixedScorer{score: 0.9}
	posting := matchingPosting("1")
	posting.Description = ""
	p := newTestPipeline(t, []Source{&listSource{name: "board", postings: []models.JobPosting{posting}}}, repo, scorer, queue, 0)

	_, err := p.Run(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Zero(t, scorer.calls, "no description means nothing for the model to judge")
}

func TestRunAIRelevanceFloorBlocksEnqueue(t *testing.T) {
	repo := newMemoryRepo()
	queue := &memoryQueue{}
	scorer := &fixedScorer{score: 0.2}
	source := &listSource{name: "board", postings: []models.JobPosting{matchingPosting("1")}}
	p := newTestPipeline(t, []Source{source}, repo, scorer, queue, 0.5)

	enqueued, err := p.Run(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Zero(t, enqueued)
	assert.Empty(t, queue.jobs)
	// The verdict is still persisted with the low score attached.
	assert.Len(t, repo.results, 1)
}

func TestHTTPBoardSourceFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"externalId":"1","title":"Full Stack Developer","url":"https://b.example.com/1"},
			{"externalId":"2","title":"Backend Developer","url":"https://b.example.com/2","platform":"other"}
		]`))
	}))
	defer server.Close()

	source := NewHTTPBoardSource("board", server.URL, httpclient.NewClient(5*time.Second), 0, logger.NewTestLogger(t))
	postings, err := source.Fetch(context.Background())

	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.Equal(t, "board", postings[0].Platform, "missing platform defaults to the source name")
	assert.Equal(t, "other", postings[1].Platform)
}

func TestHTTPBoardSourceCapsResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[{"externalId":"1","title":"A"},{"externalId":"2","title":"B"},{"externalId":"3","title":"C"}]`))
	}))
	defer server.Close()

	source := NewHTTPBoardSource("board", server.URL, httpclient.NewClient(5*time.Second), 2, logger.NewTestLogger(t))
	postings, err := source.Fetch(context.Background())

	require.NoError(t, err)
	assert.Len(t, postings, 2)
}

func TestHTTPBoardSourceNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewHTTPBoardSource("board", server.URL, httpclient.NewClient(5*time.Second), 0, logger.NewTestLogger(t))
	_, err := source.Fetch(context.Background())

	require.Error(t, err)
}
