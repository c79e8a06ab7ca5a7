// internal/queue/dispatcher.go
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"apply-engine/internal/common/config"
	stderr "apply-engine/internal/common/errors"
	"apply-engine/internal/common/logger"
	"apply-engine/internal/common/metrics"
	"apply-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

const payloadField = "payload"

// Delivery is one claimed message from the stream. The MessageID must be
// acknowledged exactly once, whether the job succeeds, fails terminally, or is
// re-enqueued as a fresh message.
type Delivery struct {
	MessageID string
	Job       models.ApplicationJob
}

// Dispatcher provides at-least-once delivery of ApplicationJobs over a Redis
// stream with consumer-group semantics. A crashed consumer's unacknowledged
// messages are re-read from its own pending list on restart and claimed from
// other consumers once they sit idle past the claim threshold, so consumers
// must treat processing as idempotent at the status-transition level.
type Dispatcher struct {
	rdb          *redis.Client
	stream       string
	group        string
	consumer     string
	maxAttempts  int
	claimMinIdle time.Duration
	block        config.QueueConfig
	logger       logger.Logger

	// backlogDrained flips once this consumer's pre-crash pending entries have
	// all been re-delivered. Only the consume loop touches it.
	backlogDrained bool
}

func NewDispatcher(rdb *redis.Client, cfg config.QueueConfig, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		rdb:          rdb,
		stream:       cfg.Stream,
		group:        cfg.Group,
		consumer:     cfg.Consumer,
		maxAttempts:  cfg.MaxAttempts,
		claimMinIdle: cfg.ClaimMinIdle,
		block:        cfg,
		logger:       log.WithFields(map[string]interface{}{"stream": cfg.Stream, "group": cfg.Group}),
	}
}

// MaxAttempts returns the retry budget applied on failure.
func (d *Dispatcher) MaxAttempts() int {
	return d.maxAttempts
}

// EnsureGroup creates the consumer group, creating the stream alongside it.
// Creating an already-existing group is not an error.
func (d *Dispatcher) EnsureGroup(ctx context.Context) error {
	err := d.rdb.XGroupCreateMkStream(ctx, d.stream, d.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return stderr.NewQueueConnectionFailedError(err)
	}
	return nil
}

// Enqueue validates and appends a job to the stream, returning the message id.
func (d *Dispatcher) Enqueue(ctx context.Context, job models.ApplicationJob) (string, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}
	if err := validatePayload(string(payload)); err != nil {
		return "", stderr.NewQueuePayloadInvalidError(err.Error())
	}

	id, err := d.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: d.stream,
		Values: map[string]interface{}{payloadField: string(payload)},
	}).Result()
	if err != nil {
		return "", stderr.NewQueueConnectionFailedError(err)
	}

	d.logger.Info("job enqueued", map[string]interface{}{
		"applicationId": job.ApplicationID,
		"jobId":         job.JobID,
		"attempts":      job.Attempts,
		"messageId":     id,
	})
	return id, nil
}

// Consume blocks up to the configured timeout for the next message claimed by
// this consumer. It returns (nil, nil) when the timeout elapses with nothing to
// claim, and acks-and-drops messages that fail schema validation.
//
// Before reading new messages the consumer drains its own pending list, which
// re-delivers anything it claimed and then crashed on before acknowledging.
// When the stream is quiet it additionally claims messages another consumer
// left pending past the idle threshold.
func (d *Dispatcher) Consume(ctx context.Context) (*Delivery, error) {
	for !d.backlogDrained {
		delivery, more, err := d.readBacklog(ctx)
		if err != nil {
			return nil, err
		}
		if delivery != nil {
			return delivery, nil
		}
		if !more {
			d.backlogDrained = true
		}
	}

	streams, err := d.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    d.group,
		Consumer: d.consumer,
		Streams:  []string{d.stream, ">"},
		Count:    1,
		Block:    d.block.BlockTimeout,
	}).Result()
	if err == redis.Nil {
		return d.claimStale(ctx)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, stderr.NewQueueConnectionFailedError(err)
	}

	return d.deliveryFrom(ctx, streams), nil
}

// readBacklog re-reads this consumer's own pending entries. The 0 cursor
// returns messages already delivered to this consumer but never acknowledged,
// which is exactly the set stranded by a crash mid-processing. more is false
// once the pending list is exhausted.
func (d *Dispatcher) readBacklog(ctx context.Context) (*Delivery, bool, error) {
	streams, err := d.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    d.group,
		Consumer: d.consumer,
		Streams:  []string{d.stream, "0"},
		Count:    1,
		Block:    -1,
	}).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, false, stderr.NewQueueConnectionFailedError(err)
	}

	more := false
	for _, stream := range streams {
		if len(stream.Messages) > 0 {
			more = true
		}
	}
	delivery := d.deliveryFrom(ctx, streams)
	if delivery != nil {
		d.logger.Info("recovered pending message from interrupted run", map[string]interface{}{
			"messageId":     delivery.MessageID,
			"applicationId": delivery.Job.ApplicationID,
		})
	}
	return delivery, more, nil
}

// claimStale transfers a message left pending by another consumer that stopped
// acknowledging, so one dead worker cannot strand a job forever.
func (d *Dispatcher) claimStale(ctx context.Context) (*Delivery, error) {
	messages, _, err := d.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   d.stream,
		Group:    d.group,
		Consumer: d.consumer,
		MinIdle:  d.claimMinIdle,
		Start:    "0-0",
		Count:    1,
	}).Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, stderr.NewQueueConnectionFailedError(err)
	}
	if len(messages) == 0 {
		return nil, nil
	}

	delivery := d.deliveryFrom(ctx, []redis.XStream{{Stream: d.stream, Messages: messages}})
	if delivery != nil {
		d.logger.Info("claimed stale pending message", map[string]interface{}{
			"messageId":     delivery.MessageID,
			"applicationId": delivery.Job.ApplicationID,
			"minIdle":       d.claimMinIdle.String(),
		})
	}
	return delivery, nil
}

// deliveryFrom decodes the first valid message, acking and dropping any that
// fail schema validation on the way.
func (d *Dispatcher) deliveryFrom(ctx context.Context, streams []redis.XStream) *Delivery {
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, _ := msg.Values[payloadField].(string)
			if err := validatePayload(raw); err != nil {
				d.logger.Warn("dropping invalid queue message", map[string]interface{}{
					"messageId": msg.ID,
					"reason":    err.Error(),
				})
				_ = d.Acknowledge(ctx, msg.ID)
				continue
			}

			var job models.ApplicationJob
			if err := json.Unmarshal([]byte(raw), &job); err != nil {
				d.logger.Warn("dropping undecodable queue message", map[string]interface{}{
					"messageId": msg.ID,
					"reason":    err.Error(),
				})
				_ = d.Acknowledge(ctx, msg.ID)
				continue
			}

			metrics.JobsConsumed.Inc()
			return &Delivery{MessageID: msg.ID, Job: job}
		}
	}
	return nil
}

// Acknowledge removes a delivered message from the group's pending set.
func (d *Dispatcher) Acknowledge(ctx context.Context, messageID string) error {
	if err := d.rdb.XAck(ctx, d.stream, d.group, messageID).Err(); err != nil {
		return stderr.NewQueueConnectionFailedError(err)
	}
	return nil
}

// HandleFailure implements the retry policy for a failed delivery: the
// attempts counter increments, and while it stays below the budget the job is
// re-enqueued as a new message. The original message is acknowledged either
// way, so attempts strictly increases and never exceeds MaxAttempts.
// It returns the updated attempts count and whether the job was requeued.
func (d *Dispatcher) HandleFailure(ctx context.Context, delivery *Delivery) (int, bool, error) {
	job := delivery.Job
	job.Attempts++

	requeued := false
	if job.Attempts < d.maxAttempts {
		if _, err := d.Enqueue(ctx, job); err != nil {
			return job.Attempts, false, err
		}
		metrics.JobsRequeued.Inc()
		requeued = true
	}

	if err := d.Acknowledge(ctx, delivery.MessageID); err != nil {
		return job.Attempts, requeued, err
	}

	d.logger.Info("job failure handled", map[string]interface{}{
		"applicationId": job.ApplicationID,
		"attempts":      job.Attempts,
		"maxAttempts":   d.maxAttempts,
		"requeued":      requeued,
	})
	return job.Attempts, requeued, nil
}
