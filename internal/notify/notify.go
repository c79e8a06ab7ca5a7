// internal/notify/notify.go
package notify

import (
	"context"
	"fmt"

	"apply-engine/internal/common/logger"
	"apply-engine/internal/models"
)

// Notifier delivers a terminal-outcome message over one channel.
type Notifier interface {
	Notify(ctx context.Context, job *models.ApplicationJob, outcome models.Outcome, reason string) error
	Name() string
}

// Fanout sends the outcome to every configured channel. Delivery is best
// effort: a channel failure is logged and never masks the application outcome.
type Fanout struct {
	notifiers []Notifier
	logger    logger.Logger
}

func NewFanout(log logger.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{
		notifiers: notifiers,
		logger:    log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

func (f *Fanout) Notify(ctx context.Context, job *models.ApplicationJob, outcome models.Outcome, reason string) {
	for _, n := range f.notifiers {
		if err := n.Notify(ctx, job, outcome, reason); err != nil {
			f.logger.WithError(err).Warn("notification delivery failed", map[string]interface{}{
				"channel":        n.Name(),
				"application_id": job.ApplicationID,
				"outcome":        string(outcome),
			})
		}
	}
}

func subject(job *models.ApplicationJob, outcome models.Outcome) string {
	return fmt.Sprintf("Application %s: %s", job.ApplicationID, outcome)
}

func body(job *models.ApplicationJob, outcome models.Outcome, reason string) string {
	return fmt.Sprintf("Job: %s\nPlatform: %s\nOutcome: %s\nDetail: %s\nAttempts: %d",
		job.JobURL, job.Platform, outcome, reason, job.Attempts)
}
