// internal/worker/processor.go
package worker

import (
	"context"
	"fmt"
	"time"

	"apply-engine/internal/ai"
	"apply-engine/internal/automation"
	"apply-engine/internal/common/config"
	"apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/common/metrics"
	"apply-engine/internal/models"
	"apply-engine/internal/queue"
	"apply-engine/internal/repository"
	"apply-engine/internal/resolver"
	"apply-engine/internal/session"
)

// Queue is the dispatcher surface the processor drives.
type Queue interface {
	Consume(ctx context.Context) (*queue.Delivery, error)
	Acknowledge(ctx context.Context, messageID string) error
	HandleFailure(ctx context.Context, delivery *queue.Delivery) (int, bool, error)
}

// Sessions is the browser-context cache surface.
type Sessions interface {
	Context(ctx context.Context, userID string) (session.Browser, error)
	Close(userID string)
}

// Automation runs one application flow to a terminal result.
type Automation interface {
	Run(ctx context.Context, job *models.ApplicationJob, page automation.Page, fields automation.FieldResolver) (automation.Result, error)
}

// OutcomeNotifier fans a terminal outcome out to the configured channels.
type OutcomeNotifier interface {
	Notify(ctx context.Context, job *models.ApplicationJob, outcome models.Outcome, reason string)
}

// PageFactory turns a live browser context into the page abstraction the
// state machine drives. Tests inject scripted pages.
type PageFactory func(browser session.Browser) (automation.Page, error)

// Processor is the single-consumer job loop: consume, mark PROCESSING, run the
// automation, write the terminal state, notify, acknowledge or requeue.
type Processor struct {
	queue        Queue
	repo         repository.Repository
	sessions     Sessions
	machine      Automation
	notifier     OutcomeNotifier
	pages        PageFactory
	generator    ai.ContentGenerator
	answerBudget int
	manualHold   time.Duration
	logger       logger.Logger

	// holdTimer schedules the post-manual-intervention browser close; tests
	// replace it to run synchronously.
	holdTimer func(d time.Duration, f func())
}

func NewProcessor(q Queue, repo repository.Repository, sessions Sessions, machine Automation, notifier OutcomeNotifier, generator ai.ContentGenerator, aiCfg config.AIConfig, autoCfg config.AutomationConfig, log logger.Logger) *Processor {
	return &Processor{
		queue:        q,
		repo:         repo,
		sessions:     sessions,
		machine:      machine,
		notifier:     notifier,
		pages:        playwrightPages(log),
		generator:    generator,
		answerBudget: aiCfg.AnswerBudget,
		manualHold:   autoCfg.ManualHold,
		logger:       log.WithFields(map[string]interface{}{"component": "worker"}),
		holdTimer:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// WithPageFactory overrides how pages are built from browser contexts.
func (p *Processor) WithPageFactory(pages PageFactory) *Processor {
	p.pages = pages
	return p
}

func playwrightPages(log logger.Logger) PageFactory {
	return func(browser session.Browser) (automation.Page, error) {
		page, err := browser.Page()
		if err != nil {
			return nil, err
		}
		return automation.NewPlaywrightPage(page, log), nil
	}
}

// Run consumes until the context is cancelled. Per-job failures are absorbed;
// only a queue-connection failure propagates and terminates the loop.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		delivery, err := p.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Code(err) == errors.ErrCodeQueueConnectionFailed {
				return err
			}
			p.logger.WithError(err).Warn("consume failed", nil)
			continue
		}
		if delivery == nil {
			continue
		}

		p.Process(ctx, delivery)
	}
}

// Process runs one delivery to completion. Panics escaping the automation are
// recovered into a fatal job error at this boundary.
func (p *Processor) Process(ctx context.Context, delivery *queue.Delivery) {
	job := delivery.Job
	log := p.logger.WithFields(map[string]interface{}{
		"application_id": job.ApplicationID,
		"attempts":       job.Attempts,
	})
	start := time.Now()

	changed, err := p.repo.UpdateApplicationState(ctx, job.ApplicationID, models.StateProcessing, "")
	if err != nil {
		p.handleFailure(ctx, delivery, err, log)
		return
	}
	if !changed {
		// A requeued duplicate of an application that already reached a
		// terminal state. Acknowledge and move on.
		log.Info("application already terminal, dropping duplicate delivery", nil)
		if aerr := p.queue.Acknowledge(ctx, delivery.MessageID); aerr != nil {
			log.WithError(aerr).Error("acknowledge failed", nil)
		}
		return
	}

	result, err := p.runGuarded(ctx, &job)
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		p.handleFailure(ctx, delivery, err, log)
		return
	}

	state := result.Outcome.State()
	if _, uerr := p.repo.UpdateApplicationState(ctx, job.ApplicationID, state, result.Reason); uerr != nil {
		log.WithError(uerr).Error("terminal state write failed", nil)
	}
	p.notifier.Notify(ctx, &job, result.Outcome, result.Reason)
	p.applyBrowserPolicy(job.UserID, result.Outcome, log)

	if aerr := p.queue.Acknowledge(ctx, delivery.MessageID); aerr != nil {
		log.WithError(aerr).Error("acknowledge failed", nil)
	}
	log.Info("job finished", map[string]interface{}{
		"outcome": string(result.Outcome),
		"steps":   result.Steps,
	})
}

// runGuarded executes the automation with panic recovery.
func (p *Processor) runGuarded(ctx context.Context, job *models.ApplicationJob) (result automation.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewFatalJobError(fmt.Errorf("panic: %v", r))
		}
	}()

	profile, err := p.repo.Profile(ctx, job.UserID)
	if err != nil {
		return automation.Result{}, err
	}

	browser, err := p.sessions.Context(ctx, job.UserID)
	if err != nil {
		return automation.Result{}, err
	}
	page, err := p.pages(browser)
	if err != nil {
		return automation.Result{}, errors.NewSessionLaunchFailedError(job.UserID, err)
	}

	fields := resolver.New(profile, p.answerProvider(profile), p.logger)
	return p.machine.Run(ctx, job, page, fields)
}

// answerProvider builds the per-run AI answerer; its label cache and budget
// are scoped to one application.
func (p *Processor) answerProvider(profile *models.CandidateProfile) resolver.AnswerProvider {
	if p.generator == nil {
		return nil
	}
	return ai.NewAnswerer(p.generator, profile, p.answerBudget, p.logger)
}

func (p *Processor) handleFailure(ctx context.Context, delivery *queue.Delivery, jobErr error, log logger.Logger) {
	job := delivery.Job
	stdErr := errors.Normalize(jobErr)
	detail := stdErr.Message
	if stdErr.Details != "" {
		detail = stdErr.Message + ": " + stdErr.Details
	}
	log.WithError(jobErr).Warn("job failed", map[string]interface{}{
		"code":      string(stdErr.Code),
		"retryable": stdErr.Retryable,
	})

	if !stdErr.Retryable {
		if _, err := p.repo.UpdateApplicationState(ctx, job.ApplicationID, models.StateFailed, detail); err != nil {
			log.WithError(err).Error("failed state write failed", nil)
		}
		p.notifier.Notify(ctx, &job, models.OutcomeFailed, detail)
		p.sessions.Close(job.UserID)
		if err := p.queue.Acknowledge(ctx, delivery.MessageID); err != nil {
			log.WithError(err).Error("acknowledge failed", nil)
		}
		return
	}

	attempts, requeued, err := p.queue.HandleFailure(ctx, delivery)
	if err != nil {
		log.WithError(err).Error("retry handling failed", nil)
		return
	}
	if rerr := p.repo.RecordAttempt(ctx, job.ApplicationID, attempts); rerr != nil {
		log.WithError(rerr).Error("attempt write failed", nil)
	}

	if !requeued {
		// Retry budget exhausted: the failure becomes terminal.
		if _, err := p.repo.UpdateApplicationState(ctx, job.ApplicationID, models.StateFailed, detail); err != nil {
			log.WithError(err).Error("failed state write failed", nil)
		}
		job.Attempts = attempts
		p.notifier.Notify(ctx, &job, models.OutcomeFailed, detail)
		p.sessions.Close(job.UserID)
	}
}

// applyBrowserPolicy closes the browser after automated terminal outcomes and
// holds it open for the configured duration after a manual intervention, so a
// human can finish the application in place.
func (p *Processor) applyBrowserPolicy(userID string, outcome models.Outcome, log logger.Logger) {
	if outcome == models.OutcomeManualIntervention && p.manualHold > 0 {
		log.Info("holding browser open for manual completion", map[string]interface{}{
			"hold": p.manualHold.String(),
		})
		p.holdTimer(p.manualHold, func() { p.sessions.Close(userID) })
		return
	}
	p.sessions.Close(userID)
}
