package domain

import "strings"

type JobID string

// JobState is the lifecycle state reported by the compute engine.
type JobState string

const (
	JobStateSubmitted JobState = "submitted"
	JobStatePending   JobState = "pending"
	JobStateRunning   JobState = "running"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"

	// JobStateTimeout is never reported by the engine. The poller returns it when
	// the attempt budget runs out while the job is still non-terminal.
	JobStateTimeout JobState = "timeout"

	// JobStateCancelRequested is what cancel reports. It does not mean the
	// remote job stopped.
	JobStateCancelRequested JobState = "cancelled"
)

// ConditionCodeLocalFailure marks failures detected by the orchestrator itself,
// as opposed to condition codes reported by the engine.
const ConditionCodeLocalFailure = -1

// ParseJobState normalizes a raw engine state. An empty value maps to submitted.
func ParseJobState(raw string) JobState {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return JobStateSubmitted
	}
	return JobState(s)
}

// IsTerminal reports whether polling should stop. Anything the engine reports
// that is not a known in-flight marker counts as terminal.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSubmitted, JobStatePending, JobStateRunning:
		return false
	default:
		return true
	}
}

// Job is one unit of submitted code inside a session.
type Job struct {
	ID            JobID     `json:"id"`
	SessionID     SessionID `json:"session_id"`
	State         JobState  `json:"state"`
	ConditionCode int       `json:"condition_code"`
}
