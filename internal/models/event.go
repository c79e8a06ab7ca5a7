// internal/models/event.go
package models

import "time"

// EventType enumerates lifecycle events broadcast to observers.
type EventType string

const (
	EventJobStarted    EventType = "JOB_STARTED"
	EventStepCompleted EventType = "STEP_COMPLETED"
	EventErrorOccurred EventType = "ERROR_OCCURRED"
	EventJobFinished   EventType = "JOB_FINISHED"
)

// LifecycleEvent is the JSON payload published on the broadcast channel.
type LifecycleEvent struct {
	JobID     string    `json:"jobId"`
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLifecycleEvent stamps the event with the current UTC time.
func NewLifecycleEvent(jobID string, t EventType, message string) LifecycleEvent {
	return LifecycleEvent{
		JobID:     jobID,
		Type:      t,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}
