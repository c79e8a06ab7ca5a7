// internal/events/publisher.go
package events

import (
	"context"
	"encoding/json"

	"apply-engine/internal/common/logger"
	"apply-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

// Publisher broadcasts lifecycle events to observers. Delivery is best effort;
// implementations must never let a publish failure affect the job outcome.
type Publisher interface {
	Publish(ctx context.Context, event models.LifecycleEvent)
}

// RedisPublisher broadcasts events as JSON on a Redis pub/sub channel.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	logger  logger.Logger
}

func NewRedisPublisher(rdb *redis.Client, channel string, log logger.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		logger:  log.WithFields(map[string]interface{}{"channel": channel}),
	}
}

func (p *RedisPublisher) Publish(ctx context.Context, event models.LifecycleEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("event marshal failed", map[string]interface{}{
			"jobId": event.JobID,
			"type":  event.Type,
			"error": err.Error(),
		})
		return
	}

	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("event publish failed", map[string]interface{}{
			"jobId": event.JobID,
			"type":  event.Type,
			"error": err.Error(),
		})
	}
}

// NopPublisher discards all events. Used where no broadcast channel is wired.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.LifecycleEvent) {}
