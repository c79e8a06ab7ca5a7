// internal/worker/processor_test.go
package worker

import (
	"context"
	"testing"
	"time"

	"apply-engine/internal/automation"
	"apply-engine/internal/common/config"
	stderrors "apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/models"
	"apply-engine/internal/queue"
	"apply-engine/internal/session"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	states     map[string]models.ApplicationState
	details    map[string]string
	attempts   map[string]int
	profile    *models.CandidateProfile
	profileErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		states:   map[string]models.ApplicationState{},
		details:  map[string]string{},
		attempts: map[string]int{},
		profile:  &models.CandidateProfile{UserID: "user-1", Skills: []string{"React"}},
	}
}

func (r *stubRepo) SeenPosting(context.Context, string) (bool, error) { return false, nil }

func (r *stubRepo) SavePosting(context.Context, models.JobPosting) (string, error) {
	return "", nil
}

func (r *stubRepo) BackfillDescription(context.Context, string, string) error { return nil }

func (r *stubRepo) SaveMatchResult(context.Context, string, models.MatchResult) error { return nil }

func (r *stubRepo) CreateApplication(context.Context, *models.ApplicationJob) error { return nil }

func (r *stubRepo) UpdateApplicationState(_ context.Context, id string, state models.ApplicationState, detail string) (bool, error) {
	if r.states[id].Terminal() {
		return false, nil
	}
	r.states[id] = state
	r.details[id] = detail
	return true, nil
}

func (r *stubRepo) RecordAttempt(_ context.Context, id string, attempts int) error {
	r.attempts[id] = attempts
	return nil
}

func (r *stubRepo) Profile(context.Context, string) (*models.CandidateProfile, error) {
	return r.profile, r.profileErr
}

type stubQueue struct {
	maxAttempts  int
	acked        []string
	requeuedJobs []models.ApplicationJob
}

func (q *stubQueue) Consume(context.Context) (*queue.Delivery, error) { return nil, nil }

func (q *stubQueue) Acknowledge(_ context.Context, messageID string) error {
	q.acked = append(q.acked, messageID)
	return nil
}

func (q *stubQueue) HandleFailure(ctx context.Context, delivery *queue.Delivery) (int, bool, error) {
	job := delivery.Job
	job.Attempts++
	requeued := job.Attempts < q.maxAttempts
	if requeued {
		q.requeuedJobs = append(q.requeuedJobs, job)
	}
	q.Acknowledge(ctx, delivery.MessageID)
	return job.Attempts, requeued, nil
}

type stubBrowser struct{}

func (stubBrowser) Probe(context.Context) error    { return nil }
func (stubBrowser) Page() (playwright.Page, error) { return nil, nil }
func (stubBrowser) Close() error                   { return nil }

type stubSessions struct {
	closed []string
}

func (s *stubSessions) Context(context.Context, string) (session.Browser, error) {
	return stubBrowser{}, nil
}

func (s *stubSessions) Close(userID string) {
	s.closed = append(s.closed, userID)
}

type stubMachine struct {
	result automation.Result
	err    error
	panics bool
	calls  int
}

func (m *stubMachine) Run(context.Context, *models.ApplicationJob, automation.Page, automation.FieldResolver) (automation.Result, error) {
	m.calls++
	if m.panics {
		panic("selector engine crashed")
	}
	return m.result, m.err
}

type stubNotifier struct {
	outcomes []models.Outcome
	reasons  []string
}

func (n *stubNotifier) Notify(_ context.Context, _ *models.ApplicationJob, outcome models.Outcome, reason string) {
	n.outcomes = append(n.outcomes, outcome)
	n.reasons = append(n.reasons, reason)
}

type fixture struct {
	processor *Processor
	repo      *stubRepo
	queue     *stubQueue
	sessions  *stubSessions
	machine   *stubMachine
	notifier  *stubNotifier
}

func newFixture(t *testing.T, machine *stubMachine) *fixture {
	t.Helper()
	repo := newStubRepo()
	q := &stubQueue{maxAttempts: 3}
	sessions := &stubSessions{}
	notifier := &stubNotifier{}

	p := NewProcessor(q, repo, sessions, machine, notifier, nil,
		config.AIConfig{AnswerBudget: 15},
		config.AutomationConfig{MaxSteps: 7, StepTimeout: 15 * time.Second, ManualHold: 10 * time.Minute},
		logger.NewTestLogger(t),
	).WithPageFactory(func(session.Browser) (automation.Page, error) { return nil, nil })
	// Run hold callbacks inline so tests observe the deferred close.
	p.holdTimer = func(_ time.Duration, f func()) { f() }

	return &fixture{processor: p, repo: repo, queue: q, sessions: sessions, machine: machine, notifier: notifier}
}

func delivery(attempts int) *queue.Delivery {
	return &queue.Delivery{
		MessageID: "1-0",
		Job: models.ApplicationJob{
			ApplicationID: "app-1",
			JobID:         "job-1",
			UserID:        "user-1",
			JobURL:        "https://jobs.example.com/1",
			Platform:      "linkedin",
			Attempts:      attempts,
		},
	}
}

func TestProcessAppliedOutcome(t *testing.T) {
	f := newFixture(t, &stubMachine{result: automation.Result{Outcome: models.OutcomeApplied, Reason: "submitted", Steps: 2}})

	f.processor.Process(context.Background(), delivery(0))

	assert.Equal(t, models.StateApplied, f.repo.states["app-1"])
	assert.Equal(t, []models.Outcome{models.OutcomeApplied}, f.notifier.outcomes)
	assert.Equal(t, []string{"1-0"}, f.queue.acked)
	assert.Equal(t, []string{"user-1"}, f.sessions.closed, "browser closes after an automated submit")
}

func TestProcessManualInterventionHoldsBrowser(t *testing.T) {
	f := newFixture(t, &stubMachine{result: automation.Result{Outcome: models.OutcomeManualIntervention, Reason: "stall"}})

	var heldFor time.Duration
	f.processor.holdTimer = func(d time.Duration, fn func()) {
		heldFor = d
		fn()
	}

	f.processor.Process(context.Background(), delivery(0))

	assert.Equal(t, models.StateManualIntervention, f.repo.states["app-1"])
	assert.Equal(t, 10*time.Minute, heldFor)
	assert.Equal(t, []string{"user-1"}, f.sessions.closed, "browser closes after the hold elapses")
	assert.Equal(t, []string{"1-0"}, f.queue.acked)
}

func TestProcessDuplicateOfTerminalApplication(t *testing.T) {
	machine := &stubMachine{result: automation.Result{Outcome: models.OutcomeApplied}}
	f := newFixture(t, machine)
	f.repo.states["app-1"] = models.StateApplied

	f.processor.Process(context.Background(), delivery(1))

	assert.Zero(t, machine.calls, "terminal applications are never re-run")
	assert.Empty(t, f.notifier.outcomes)
	assert.Equal(t, []string{"1-0"}, f.queue.acked)
	assert.Equal(t, models.StateApplied, f.repo.states["app-1"], "terminal state untouched")
}

func TestProcessRetryableFailureRequeues(t *testing.T) {
	f := newFixture(t, &stubMachine{err: stderrors.NewTransientAutomationError(1, assert.AnError)})

	f.processor.Process(context.Background(), delivery(0))

	require.Len(t, f.queue.requeuedJobs, 1)
	assert.Equal(t, 1, f.queue.requeuedJobs[0].Attempts)
	assert.Equal(t, 1, f.repo.attempts["app-1"])
	assert.NotEqual(t, models.StateFailed, f.repo.states["app-1"], "not terminal while budget remains")
	assert.Empty(t, f.notifier.outcomes)
	assert.Equal(t, []string{"1-0"}, f.queue.acked)
}

func TestProcessRetryBudgetExhaustion(t *testing.T) {
	f := newFixture(t, &stubMachine{err: stderrors.NewTransientAutomationError(1, assert.AnError)})

	// Third consecutive failure: attempts reaches the cap of 3.
	f.processor.Process(context.Background(), delivery(2))

	assert.Empty(t, f.queue.requeuedJobs, "no fourth delivery past the budget")
	assert.Equal(t, 3, f.repo.attempts["app-1"])
	assert.Equal(t, models.StateFailed, f.repo.states["app-1"])
	assert.Equal(t, []models.Outcome{models.OutcomeFailed}, f.notifier.outcomes)
	assert.Equal(t, []string{"user-1"}, f.sessions.closed)
}

func TestProcessNonRetryableFailure(t *testing.T) {
	f := newFixture(t, &stubMachine{err: stderrors.NewLoginTimeoutError("linkedin", assert.AnError)})

	f.processor.Process(context.Background(), delivery(0))

	assert.Empty(t, f.queue.requeuedJobs, "non-retryable failures never requeue")
	assert.Equal(t, models.StateFailed, f.repo.states["app-1"])
	assert.Equal(t, []models.Outcome{models.OutcomeFailed}, f.notifier.outcomes)
	assert.Equal(t, []string{"1-0"}, f.queue.acked)
}

func TestProcessPanicRecoveredAsFatal(t *testing.T) {
	f := newFixture(t, &stubMachine{panics: true})

	f.processor.Process(context.Background(), delivery(2))

	// The panic becomes a fatal job error; with the budget spent the
	// application fails terminally instead of crashing the worker.
	assert.Equal(t, models.StateFailed, f.repo.states["app-1"])
	assert.Contains(t, f.repo.details["app-1"], "panic")
	assert.Equal(t, []string{"1-0"}, f.queue.acked)
}

type failingConsumeQueue struct {
	stubQueue
	err error
}

func (q *failingConsumeQueue) Consume(context.Context) (*queue.Delivery, error) {
	return nil, q.err
}

func TestRunTerminatesOnQueueConnectionFailure(t *testing.T) {
	f := newFixture(t, &stubMachine{})
	q := &failingConsumeQueue{err: stderrors.NewQueueConnectionFailedError(assert.AnError)}
	f.processor.queue = q

	err := f.processor.Run(context.Background())

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeQueueConnectionFailed, stderrors.Code(err))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, &stubMachine{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.processor.Run(ctx)
	assert.NoError(t, err)
}
