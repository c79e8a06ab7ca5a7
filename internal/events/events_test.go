// internal/events/events_test.go
package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"apply-engine/internal/common/logger"
	"apply-engine/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisPublisherBroadcastsEvent(t *testing.T) {
	rdb := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, "applications:events")
	defer sub.Close()
	_, err := sub.Receive(ctx) // wait for subscription confirmation
	require.NoError(t, err)

	p := NewRedisPublisher(rdb, "applications:events", logger.NewTestLogger(t))
	p.Publish(ctx, models.NewLifecycleEvent("job-1", models.EventJobStarted, "processing started"))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var event models.LifecycleEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, "job-1", event.JobID)
	assert.Equal(t, models.EventJobStarted, event.Type)
	assert.False(t, event.Timestamp.IsZero())
}

func TestTriggerSubscriberDecodesTriggers(t *testing.T) {
	rdb := setupRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s := NewTriggerSubscriber(rdb, "applications:triggers", logger.NewTestLogger(t))
	triggers := s.Listen(ctx)

	// Give the subscription a moment to register before publishing.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, rdb.Publish(ctx, "applications:triggers", `not-json`).Err())
	require.NoError(t, rdb.Publish(ctx, "applications:triggers", `{"userId":"user-7"}`).Err())

	select {
	case trigger := <-triggers:
		assert.Equal(t, "user-7", trigger.UserID)
	case <-ctx.Done():
		t.Fatal("timed out waiting for trigger")
	}
}
