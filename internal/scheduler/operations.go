package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/store"
	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

type ScheduleResult struct {
	JobID     string     `json:"jobId"`
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
}

type CancelResult struct {
	JobID     string `json:"jobId"`
	Cancelled bool   `json:"cancelled"`
}

type TriggerResult struct {
	JobID       string `json:"jobId"`
	ExecutionID string `json:"executionId"`
	Triggered   bool   `json:"triggered"`
}

// JobStatus merges a job definition with its in-flight execution
type JobStatus struct {
	Scheduled *types.ScheduledJob `json:"scheduled"`
	Active    *types.Execution    `json:"active"`
	IsRunning bool                `json:"isRunning"`

	// ScheduleError explains an absent nextRun when the calculator can tell why
	ScheduleError string `json:"scheduleError,omitempty"`
}

// JobView is a listed job annotated with whether it is running
type JobView struct {
	*types.ScheduledJob
	Active bool `json:"active"`
}

type Stats struct {
	Name     string     `json:"name"`
	Jobs     int        `json:"jobs"`
	Enabled  int        `json:"enabled"`
	Running  int        `json:"running"`
	NextWake *time.Time `json:"nextWake,omitempty"`
}

// Schedule validates and persists a new job, re-arming the timer if it is
// now the earliest due job.
func (s *Scheduler) Schedule(ctx context.Context, req types.JobRequest) (*ScheduleResult, error) {
	job := types.NewScheduledJob(req, s.clock.Now())
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	job.NextRun = s.nextRun(job.SchedulePattern, job.CreatedAt)

	err := s.call(ctx, func() error {
		if err := store.PutJob(ctx, s.store, job); err != nil {
			return err
		}
		s.jobs[job.ID] = job
		s.rearm(ctx, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.JobsScheduled.WithLabelValues(s.cfg.Name, string(job.Type)).Inc()
	}

	s.logger.Info("Job scheduled",
		zap.String("job_id", job.ID),
		zap.String("name", job.Name),
		zap.String("job_type", string(job.Type)),
		zap.String("pattern", job.SchedulePattern),
		zap.Bool("recurring", job.Recurring),
	)

	result := &ScheduleResult{JobID: job.ID, Scheduled: true}
	if job.NextRun != nil {
		next := *job.NextRun
		result.NextRun = &next
	}
	return result, nil
}

// Cancel removes a job. A running execution of it is left to finish and is
// archived, but the job is not brought back.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) (*CancelResult, error) {
	err := s.call(ctx, func() error {
		if _, ok := s.jobs[jobID]; !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		if err := store.DeleteJob(ctx, s.store, jobID); err != nil {
			return err
		}
		delete(s.jobs, jobID)
		s.rearm(ctx, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.JobsCancelled.WithLabelValues(s.cfg.Name).Inc()
	}
	s.logger.Info("Job cancelled", zap.String("job_id", jobID))

	return &CancelResult{JobID: jobID, Cancelled: true}, nil
}

// List returns every job ordered by creation time
func (s *Scheduler) List(ctx context.Context) ([]JobView, error) {
	var views []JobView
	err := s.call(ctx, func() error {
		views = make([]JobView, 0, len(s.jobs))
		for id, job := range s.jobs {
			_, running := s.active[id]
			views = append(views, JobView{ScheduledJob: job.Clone(), Active: running})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(views, func(i, k int) bool {
		if views[i].CreatedAt.Equal(views[k].CreatedAt) {
			return views[i].ID < views[k].ID
		}
		return views[i].CreatedAt.Before(views[k].CreatedAt)
	})
	return views, nil
}

// Trigger runs a job now regardless of its enabled flag and due time
func (s *Scheduler) Trigger(ctx context.Context, jobID string) (*TriggerResult, error) {
	var exec *types.Execution
	err := s.call(ctx, func() error {
		job, ok := s.jobs[jobID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		if _, running := s.active[jobID]; running {
			return fmt.Errorf("%w: %s", ErrAlreadyRunning, jobID)
		}

		var err error
		exec, err = s.execute(ctx, job, types.TriggerManual)
		if err != nil {
			return err
		}
		s.rearm(ctx, false)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &TriggerResult{JobID: jobID, ExecutionID: exec.ID, Triggered: true}, nil
}

// Status reports a job's definition and in-flight execution
func (s *Scheduler) Status(ctx context.Context, jobID string) (*JobStatus, error) {
	var status JobStatus
	err := s.call(ctx, func() error {
		job, scheduled := s.jobs[jobID]
		exec, running := s.active[jobID]
		if !scheduled && !running {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}
		if scheduled {
			status.Scheduled = job.Clone()
			if job.NextRun == nil {
				if v, ok := s.calc.(patternValidator); ok {
					if err := v.Validate(job.SchedulePattern); err != nil {
						status.ScheduleError = err.Error()
					}
				}
			}
		}
		if running {
			e := *exec
			status.Active = &e
			status.IsRunning = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

// History returns archived executions, newest first. An empty jobID covers
// every job; a limit <= 0 uses the configured default.
func (s *Scheduler) History(ctx context.Context, jobID string, limit int) ([]*types.Execution, error) {
	if limit <= 0 {
		limit = s.cfg.HistoryLimit
	}

	var execs []*types.Execution
	err := s.call(ctx, func() error {
		var err error
		execs, err = store.ListExecutions(ctx, s.store, jobID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return execs, nil
}

// SetEnabled enables or disables a job. Enabling an idle job recomputes its
// next run from now so that runs missed while disabled are not replayed.
func (s *Scheduler) SetEnabled(ctx context.Context, jobID string, enabled bool) (*types.ScheduledJob, error) {
	var updated *types.ScheduledJob
	err := s.call(ctx, func() error {
		job, ok := s.jobs[jobID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, jobID)
		}

		next := job.Clone()
		next.Enabled = enabled
		if _, running := s.active[jobID]; enabled && !job.Enabled && !running {
			next.NextRun = s.nextRun(next.SchedulePattern, s.clock.Now())
		}

		if err := store.PutJob(ctx, s.store, next); err != nil {
			return err
		}
		s.jobs[jobID] = next
		s.rearm(ctx, false)

		updated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Job enabled state changed", zap.String("job_id", jobID), zap.Bool("enabled", enabled))
	return updated, nil
}

// Stats summarizes the instance
func (s *Scheduler) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Name: s.cfg.Name}
	err := s.call(ctx, func() error {
		stats.Jobs = len(s.jobs)
		stats.Running = len(s.active)
		for _, job := range s.jobs {
			if job.Enabled {
				stats.Enabled++
			}
		}
		if s.armed != nil {
			at := *s.armed
			stats.NextWake = &at
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Wake runs a sweep immediately, exactly as a timer fire would, and returns
// the number of executions it started.
func (s *Scheduler) Wake(ctx context.Context) (int, error) {
	var started int
	err := s.call(ctx, func() error {
		started = s.sweep(ctx)
		return nil
	})
	return started, err
}
