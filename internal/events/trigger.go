// internal/events/trigger.go
package events

import (
	"context"
	"encoding/json"

	"apply-engine/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

// Trigger is an external request to run full discovery+apply for one user.
type Trigger struct {
	UserID string `json:"userId"`
}

// TriggerSubscriber listens on the control channel for automation triggers.
type TriggerSubscriber struct {
	rdb     *redis.Client
	channel string
	logger  logger.Logger
}

func NewTriggerSubscriber(rdb *redis.Client, channel string, log logger.Logger) *TriggerSubscriber {
	return &TriggerSubscriber{
		rdb:     rdb,
		channel: channel,
		logger:  log.WithFields(map[string]interface{}{"channel": channel}),
	}
}

// Listen subscribes to the control channel and forwards decoded triggers until
// the context is cancelled. Malformed or empty messages are logged and skipped.
func (s *TriggerSubscriber) Listen(ctx context.Context) <-chan Trigger {
	out := make(chan Trigger)
	sub := s.rdb.Subscribe(ctx, s.channel)

	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var trigger Trigger
				if err := json.Unmarshal([]byte(msg.Payload), &trigger); err != nil || trigger.UserID == "" {
					s.logger.Warn("ignoring malformed trigger", map[string]interface{}{
						"payload": msg.Payload,
					})
					continue
				}
				select {
				case out <- trigger:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}
