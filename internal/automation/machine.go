// internal/automation/machine.go
package automation

import (
	"context"
	"fmt"
	"time"

	"apply-engine/internal/common/config"
	"apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/common/metrics"
	"apply-engine/internal/events"
	"apply-engine/internal/models"
	"apply-engine/internal/resolver"
)

// FieldResolver produces a resolution for one normalized control descriptor.
// *resolver.Resolver is the production implementation.
type FieldResolver interface {
	Resolve(ctx context.Context, d resolver.Descriptor) resolver.Resolution
}

// Result is the terminal verdict of one automation run.
type Result struct {
	Outcome models.Outcome
	Reason  string
	Steps   int
}

// Machine drives a job application across form steps. Each step fills every
// resolvable field, then advances by affordance priority Submit > Review >
// Next; no progress affordance at all is a stall. Step count and step duration
// are both bounded, so a stuck flow always resolves to ManualIntervention
// instead of hanging.
type Machine struct {
	maxSteps    int
	stepTimeout time.Duration
	autoSubmit  bool
	publisher   events.Publisher
	logger      logger.Logger
}

func NewMachine(cfg config.AutomationConfig, autoSubmit bool, publisher events.Publisher, log logger.Logger) *Machine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Machine{
		maxSteps:    cfg.MaxSteps,
		stepTimeout: cfg.StepTimeout,
		autoSubmit:  autoSubmit,
		publisher:   publisher,
		logger:      log.WithFields(map[string]interface{}{"component": "automation"}),
	}
}

// Run executes the full flow for one job on an already-launched page. The
// returned error is non-nil only when the run could not meaningfully start
// (navigation failure); every in-flow condition maps to a terminal Result.
func (m *Machine) Run(ctx context.Context, job *models.ApplicationJob, page Page, fields FieldResolver) (Result, error) {
	log := m.logger.WithFields(map[string]interface{}{
		"application_id": job.ApplicationID,
		"job_url":        job.JobURL,
	})

	if err := m.navigate(ctx, page, job.JobURL); err != nil {
		return Result{}, errors.NewTransientAutomationError(0, err)
	}
	m.publish(ctx, job.JobID, models.EventJobStarted, "automation started")

	// A closed posting on the very first scan never enters the loop.
	if closed, err := page.ClosedMarker(ctx); err == nil && closed {
		log.Info("posting closed or expired", nil)
		return m.finish(ctx, job, Result{Outcome: models.OutcomeFailed, Reason: "posting closed or expired"}), nil
	}

	entered, err := page.ClickEntry(ctx)
	if err != nil {
		log.WithError(err).Warn("entry affordance lookup failed", nil)
	}
	if !entered {
		if submitted, serr := page.SubmittedMarker(ctx); serr == nil && submitted {
			// Idempotent re-check: an earlier run already applied.
			return m.finish(ctx, job, Result{Outcome: models.OutcomeApplied, Reason: "previously submitted"}), nil
		}
		return m.finish(ctx, job, Result{Outcome: models.OutcomeManualIntervention, Reason: "no entry affordance found"}), nil
	}

	for step := 1; step <= m.maxSteps; step++ {
		result, done := m.runStep(ctx, job, page, fields, step, log)
		if done {
			result.Steps = step
			return m.finish(ctx, job, result), nil
		}
		m.publish(ctx, job.JobID, models.EventStepCompleted, fmt.Sprintf("step %d completed", step))
	}

	log.Warn("step budget exhausted before submit", map[string]interface{}{"max_steps": m.maxSteps})
	return m.finish(ctx, job, Result{
		Outcome: models.OutcomeManualIntervention,
		Reason:  "step budget exhausted",
		Steps:   m.maxSteps,
	}), nil
}

// runStep fills the visible fields and advances once. done is true when the
// flow reached a terminal decision on this step.
func (m *Machine) runStep(ctx context.Context, job *models.ApplicationJob, page Page, fields FieldResolver, step int, log logger.Logger) (Result, bool) {
	stepCtx, cancel := context.WithTimeout(ctx, m.stepTimeout)
	defer cancel()

	m.fillFields(stepCtx, page, fields, log)
	if refill, err := page.NeedsRefill(stepCtx); err == nil && refill {
		log.Info("validation errors visible, refilling once", map[string]interface{}{"step": step})
		m.fillFields(stepCtx, page, fields, log)
	}

	action, found := m.nextAction(stepCtx, page, log)
	if !found {
		metrics.AutomationSteps.WithLabelValues("stall").Inc()
		return Result{Outcome: models.OutcomeManualIntervention, Reason: "no progress affordance visible"}, true
	}
	metrics.AutomationSteps.WithLabelValues(string(action)).Inc()

	if action == AffordanceSubmit && !m.autoSubmit {
		// Final-review boundary with automatic submission disabled: a human
		// confirms the filled application.
		return Result{Outcome: models.OutcomeManualIntervention, Reason: "auto-submit disabled at review boundary"}, true
	}

	if err := m.click(stepCtx, page, action); err != nil {
		// Transient click failures stay inside the loop; the next step either
		// recovers or exhausts the budget.
		log.WithError(err).Warn("affordance click failed", map[string]interface{}{"step": step, "action": string(action)})
		return Result{}, false
	}

	if action == AffordanceSubmit {
		return Result{Outcome: models.OutcomeApplied, Reason: "submitted"}, true
	}
	return Result{}, false
}

func (m *Machine) fillFields(ctx context.Context, page Page, fields FieldResolver, log logger.Logger) {
	controls, err := page.Controls(ctx)
	if err != nil {
		log.WithError(err).Warn("control scan failed", nil)
		return
	}
	for _, control := range controls {
		d := control.Describe()
		res := fields.Resolve(ctx, d)
		if res.Skip {
			log.Debug("field skipped", map[string]interface{}{"label": d.Label(), "reason": res.Reason})
			continue
		}

		var actErr error
		switch {
		case res.Upload != "":
			actErr = control.Upload(ctx, res.Upload)
		case d.Choice():
			actErr = control.Select(ctx, res.Value)
		default:
			actErr = control.Fill(ctx, res.Value)
		}
		if actErr != nil {
			log.WithError(actErr).Warn("field action failed", map[string]interface{}{"label": d.Label()})
		}
	}
}

// nextAction checks affordances in priority order and returns the first one
// visible.
func (m *Machine) nextAction(ctx context.Context, page Page, log logger.Logger) (Affordance, bool) {
	for _, a := range []Affordance{AffordanceSubmit, AffordanceReview, AffordanceNext} {
		visible, err := page.Visible(ctx, a)
		if err != nil {
			log.WithError(err).Debug("affordance probe failed", map[string]interface{}{"action": string(a)})
			continue
		}
		if visible {
			return a, true
		}
	}
	return "", false
}

func (m *Machine) navigate(ctx context.Context, page Page, url string) error {
	// One immediate retry covers the common transient navigation failures.
	if err := page.Navigate(ctx, url); err != nil {
		m.logger.WithError(err).Warn("navigation failed, retrying", map[string]interface{}{"url": url})
		return page.Navigate(ctx, url)
	}
	return nil
}

func (m *Machine) click(ctx context.Context, page Page, a Affordance) error {
	return page.Click(ctx, a)
}

func (m *Machine) finish(ctx context.Context, job *models.ApplicationJob, result Result) Result {
	metrics.JobOutcomes.WithLabelValues(string(result.Outcome)).Inc()
	m.publish(ctx, job.JobID, models.EventJobFinished, fmt.Sprintf("%s: %s", result.Outcome, result.Reason))
	return result
}

func (m *Machine) publish(ctx context.Context, jobID string, eventType models.EventType, message string) {
	m.publisher.Publish(ctx, models.NewLifecycleEvent(jobID, eventType, message))
}
