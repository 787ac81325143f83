package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Enum to represent the stage of an execution
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// Trigger records what started an execution
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Execution is one attempt at running a scheduled job. It lives in the
// active set while running and is archived to history once terminal.
type Execution struct {
	ID          string          `json:"id"`
	JobID       string          `json:"jobId"`
	JobName     string          `json:"jobName"`
	JobType     JobType         `json:"jobType"`
	Trigger     Trigger         `json:"trigger"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func NewExecution(job *ScheduledJob, trigger Trigger, now time.Time) *Execution {
	return &Execution{
		ID:        generateExecutionID(),
		JobID:     job.ID,
		JobName:   job.Name,
		JobType:   job.Type,
		Trigger:   trigger,
		Status:    StatusRunning,
		StartedAt: now.UTC(),
	}
}

// Complete moves the execution to its terminal state. A non-nil err wins over result.
func (e *Execution) Complete(result json.RawMessage, err error, now time.Time) {
	completed := now.UTC()
	e.CompletedAt = &completed
	if err != nil {
		e.Status = StatusFailed
		e.Error = err.Error()
		e.Result = nil
		return
	}
	e.Status = StatusCompleted
	e.Result = result
}

// Terminal reports whether the execution has finished
func (e *Execution) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// Duration returns how long the execution ran, or zero while running
func (e *Execution) Duration() time.Duration {
	if e.CompletedAt == nil {
		return 0
	}
	return e.CompletedAt.Sub(e.StartedAt)
}

// Execution ids are UUIDv7 so that history keys sort by start time.
func generateExecutionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "exec_" + uuid.NewString()
	}
	return "exec_" + id.String()
}
