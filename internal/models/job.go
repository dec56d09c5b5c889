package models

import (
	"encoding/json"
	"time"
)

// JobState enumerates lifecycle states a queued job moves through.
type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateDelayed   JobState = "delayed"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// AllStates lists every state in the order listings report them.
var AllStates = []JobState{StateWaiting, StateDelayed, StateActive, StateCompleted, StateFailed}

// Job is a unit of work held in the durable queue.
type Job struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Data         json.RawMessage `json:"data"`
	State        JobState        `json:"state"`
	DelayMs      int64           `json:"delay_ms"`
	AttemptsMade int             `json:"attempts_made"`
	MaxAttempts  int             `json:"max_attempts"`
	FailedReason string          `json:"failed_reason,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// ScheduledFor is when the job first became eligible to run.
func (j Job) ScheduledFor() time.Time {
	return j.CreatedAt.Add(time.Duration(j.DelayMs) * time.Millisecond)
}
