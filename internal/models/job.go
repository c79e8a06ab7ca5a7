// internal/models/job.go
package models

// ApplicationState tracks an application through the automation engine.
// QUEUED and PROCESSING are transient; APPLIED, FAILED and MANUAL_INTERVENTION
// are terminal and must never be overwritten once set.
type ApplicationState string

const (
	StateQueued             ApplicationState = "QUEUED"
	StateProcessing         ApplicationState = "PROCESSING"
	StateApplied            ApplicationState = "APPLIED"
	StateFailed             ApplicationState = "FAILED"
	StateManualIntervention ApplicationState = "MANUAL_INTERVENTION"
)

// Terminal reports whether the state may not be re-entered or replaced.
func (s ApplicationState) Terminal() bool {
	switch s {
	case StateApplied, StateFailed, StateManualIntervention:
		return true
	}
	return false
}

// ApplicationJob is the unit of work carried on the durable stream.
// All fields except Attempts are immutable once enqueued; Attempts increments
// on every requeue and never exceeds the dispatcher's MaxAttempts.
type ApplicationJob struct {
	ApplicationID string `json:"applicationId"`
	JobID         string `json:"jobId"`
	UserID        string `json:"userId"`
	JobURL        string `json:"jobUrl"`
	Platform      string `json:"platform"`
	Attempts      int    `json:"attempts"`
}

// Outcome is the terminal result of one automation run for a job.
type Outcome string

const (
	OutcomeApplied            Outcome = "APPLIED"
	OutcomeFailed             Outcome = "FAILED"
	OutcomeManualIntervention Outcome = "MANUAL_INTERVENTION"
)

// State maps an automation outcome onto the persisted application state.
func (o Outcome) State() ApplicationState {
	switch o {
	case OutcomeApplied:
		return StateApplied
	case OutcomeManualIntervention:
		return StateManualIntervention
	default:
		return StateFailed
	}
}
