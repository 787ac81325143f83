package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobType selects the dispatch backend for a scheduled job
type JobType string

const (
	JobTypeContainer JobType = "container"
	JobTypeWebhook   JobType = "webhook"
	JobTypeQueue     JobType = "queue"
)

// Scheduled Job Struct
type ScheduledJob struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Type            JobType         `json:"type"`
	SchedulePattern string          `json:"schedulePattern"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Recurring       bool            `json:"recurring"`
	Enabled         bool            `json:"enabled"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastRun         *time.Time      `json:"lastRun,omitempty"`
	NextRun         *time.Time      `json:"nextRun,omitempty"`
}

// Job Schedule Request
type JobRequest struct {
	Name            string          `json:"name" binding:"required"`
	Type            JobType         `json:"type" binding:"required"`
	SchedulePattern string          `json:"schedulePattern" binding:"required"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Recurring       *bool           `json:"recurring,omitempty"`
	Enabled         *bool           `json:"enabled,omitempty"`
}

// NewScheduledJob builds a job from a request. Recurring and Enabled default to true.
func NewScheduledJob(req JobRequest, now time.Time) *ScheduledJob {
	recurring := true
	if req.Recurring != nil {
		recurring = *req.Recurring
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	return &ScheduledJob{
		ID:              generateJobID(),
		Name:            strings.TrimSpace(req.Name),
		Type:            req.Type,
		SchedulePattern: strings.TrimSpace(req.SchedulePattern),
		Payload:         req.Payload,
		Recurring:       recurring,
		Enabled:         enabled,
		CreatedAt:       now.UTC(),
	}
}

// Validate checks the fields that must be present before a job is persisted.
// Unknown job types are accepted here and fail at dispatch time.
func (j *ScheduledJob) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID cannot be empty")
	}
	if j.Name == "" {
		return fmt.Errorf("job name cannot be empty")
	}
	if j.Type == "" {
		return fmt.Errorf("job type cannot be empty")
	}
	if j.SchedulePattern == "" {
		return fmt.Errorf("schedule pattern cannot be empty")
	}

	switch j.Type {
	case JobTypeWebhook:
		p, err := j.WebhookPayload()
		if err != nil {
			return err
		}
		if p.URL == "" {
			return fmt.Errorf("webhook payload requires url")
		}
	case JobTypeQueue:
		p, err := j.QueuePayload()
		if err != nil {
			return err
		}
		if p.Queue == "" {
			return fmt.Errorf("queue payload requires queue")
		}
	}
	return nil
}

// IsDue reports whether the job should be picked up by a sweep at now
func (j *ScheduledJob) IsDue(now time.Time) bool {
	return j.Enabled && j.NextRun != nil && !j.NextRun.After(now)
}

// Clone returns a copy that does not share timestamp pointers with j
func (j *ScheduledJob) Clone() *ScheduledJob {
	c := *j
	if j.LastRun != nil {
		t := *j.LastRun
		c.LastRun = &t
	}
	if j.NextRun != nil {
		t := *j.NextRun
		c.NextRun = &t
	}
	return &c
}

func generateJobID() string {
	id := uuid.NewString()
	return "job_" + id
}
