package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

func scheduledKey(jobID string) string {
	return ScheduledPrefix + jobID
}

func historyKey(jobID, executionID string) string {
	return HistoryPrefix + jobID + ":" + executionID
}

// HistoryJobPrefix is the prefix under which the executions of jobID are archived
func HistoryJobPrefix(jobID string) string {
	return HistoryPrefix + jobID + ":"
}

// PutJob persists a scheduled job definition
func PutJob(ctx context.Context, s Store, job *types.ScheduledJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := s.Put(ctx, scheduledKey(job.ID), data); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob loads a scheduled job definition
func GetJob(ctx context.Context, s Store, jobID string) (*types.ScheduledJob, error) {
	data, err := s.Get(ctx, scheduledKey(jobID))
	if err != nil {
		return nil, err
	}
	var job types.ScheduledJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// DeleteJob removes a scheduled job definition
func DeleteJob(ctx context.Context, s Store, jobID string) error {
	if err := s.Delete(ctx, scheduledKey(jobID)); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

// ListJobs loads every scheduled job. Entries that fail to decode are
// returned as a joined error next to the jobs that did decode.
func ListJobs(ctx context.Context, s Store) ([]*types.ScheduledJob, error) {
	entries, err := s.ListByPrefix(ctx, ScheduledPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*types.ScheduledJob, 0, len(entries))
	var decodeErrs []error
	for key, data := range entries {
		var job types.ScheduledJob
		if err := json.Unmarshal(data, &job); err != nil {
			decodeErrs = append(decodeErrs, fmt.Errorf("%s: %w", key, err))
			continue
		}
		jobs = append(jobs, &job)
	}

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})

	return jobs, errors.Join(decodeErrs...)
}

// PutExecution archives a terminal execution under the history namespace
func PutExecution(ctx context.Context, s Store, exec *types.Execution) error {
	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	if err := s.Put(ctx, historyKey(exec.JobID, exec.ID), data); err != nil {
		return fmt.Errorf("failed to persist execution %s: %w", exec.ID, err)
	}
	return nil
}

// ListExecutions returns archived executions, newest first. An empty jobID
// lists the history of every job. A limit <= 0 returns everything.
func ListExecutions(ctx context.Context, s Store, jobID string, limit int) ([]*types.Execution, error) {
	prefix := HistoryPrefix
	if jobID = strings.TrimSpace(jobID); jobID != "" {
		prefix = HistoryJobPrefix(jobID)
	}

	entries, err := s.ListByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	execs := make([]*types.Execution, 0, len(entries))
	for _, data := range entries {
		var exec types.Execution
		if err := json.Unmarshal(data, &exec); err != nil {
			continue
		}
		execs = append(execs, &exec)
	}

	sort.Slice(execs, func(i, k int) bool {
		if execs[i].StartedAt.Equal(execs[k].StartedAt) {
			return execs[i].ID > execs[k].ID
		}
		return execs[i].StartedAt.After(execs[k].StartedAt)
	})

	if limit > 0 && len(execs) > limit {
		execs = execs[:limit]
	}
	return execs, nil
}
