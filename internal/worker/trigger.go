// internal/worker/trigger.go
package worker

import (
	"context"

	"apply-engine/internal/events"
)

// FullRunner executes a complete discovery-and-enqueue pass for one user.
// The discovery pipeline implements it.
type FullRunner interface {
	Run(ctx context.Context, userID string) (int, error)
}

// HandleTriggers drains the out-of-band "run full automation for user X"
// channel. It runs concurrently with the consume loop and shares the session
// cache through the pipeline's sources.
func (p *Processor) HandleTriggers(ctx context.Context, triggers <-chan events.Trigger, runner FullRunner) {
	for {
		select {
		case <-ctx.Done():
			return
		case trigger, ok := <-triggers:
			if !ok {
				return
			}
			enqueued, err := runner.Run(ctx, trigger.UserID)
			if err != nil {
				p.logger.WithError(err).Warn("triggered run failed", map[string]interface{}{
					"user_id": trigger.UserID,
				})
				continue
			}
			p.logger.Info("triggered run finished", map[string]interface{}{
				"user_id":  trigger.UserID,
				"enqueued": enqueued,
			})
		}
	}
}
