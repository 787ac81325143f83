package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/store"
	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

var errInterrupted = errors.New("execution interrupted before completion")

// retireInterrupted handles one-shot jobs that were dispatched but never
// finished, which only happens when the process died mid-execution. The lost
// execution is archived as failed and the job is retired.
func (s *Scheduler) retireInterrupted(ctx context.Context) {
	now := s.clock.Now()
	for id, job := range s.jobs {
		if job.Recurring || job.LastRun == nil || job.NextRun != nil {
			continue
		}

		exec := types.NewExecution(job, types.TriggerSchedule, *job.LastRun)
		exec.Complete(nil, errInterrupted, now)
		if err := store.PutExecution(ctx, s.store, exec); err != nil {
			s.logger.Error("Failed to archive interrupted execution", zap.String("job_id", id), zap.Error(err))
			s.persistFailed("history")
			continue
		}
		if err := store.DeleteJob(ctx, s.store, id); err != nil {
			s.logger.Error("Failed to retire one-shot job", zap.String("job_id", id), zap.Error(err))
			s.persistFailed("retire")
			continue
		}
		delete(s.jobs, id)

		s.logger.Warn("Retired interrupted one-shot job",
			zap.String("job_id", id),
			zap.String("execution_id", exec.ID),
			zap.Time("started_at", exec.StartedAt),
		)
	}
}

// execute starts one execution of job. The job's next due time is advanced
// and persisted before dispatch, so a failed write leaves nothing running.
func (s *Scheduler) execute(ctx context.Context, job *types.ScheduledJob, trigger types.Trigger) (*types.Execution, error) {
	now := s.clock.Now().UTC()

	updated := job.Clone()
	updated.LastRun = &now
	updated.NextRun = nil
	if updated.Recurring {
		updated.NextRun = s.nextRun(updated.SchedulePattern, now)
	}

	if err := store.PutJob(ctx, s.store, updated); err != nil {
		return nil, err
	}
	s.jobs[updated.ID] = updated

	exec := types.NewExecution(updated, trigger, now)
	s.active[updated.ID] = exec
	s.updateGauges()

	s.logger.Info("Executing job",
		zap.String("job_id", updated.ID),
		zap.String("execution_id", exec.ID),
		zap.String("job_type", string(updated.Type)),
		zap.String("trigger", string(trigger)),
	)

	go s.dispatch(exec, updated.Clone())
	return exec, nil
}

// dispatch runs off the scheduler goroutine and reports back through
// completions. It must not touch exec.
func (s *Scheduler) dispatch(exec *types.Execution, job *types.ScheduledJob) {
	c := completion{exec: exec}

	defer func() {
		if r := recover(); r != nil {
			c.result = nil
			c.err = fmt.Errorf("dispatch panicked: %v", r)
		}
		s.completions <- c
	}()

	ctx := s.dispatchCtx
	if s.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.DispatchTimeout)
		defer cancel()
	}

	c.result, c.err = s.dispatcher.Execute(ctx, job)
}

// finish archives a terminal execution and retires one-shot jobs
func (s *Scheduler) finish(c completion) {
	ctx, cancel := context.WithTimeout(context.Background(), internalOpTimeout)
	defer cancel()

	exec := c.exec
	exec.Complete(c.result, c.err, s.clock.Now())

	if err := store.PutExecution(ctx, s.store, exec); err != nil {
		s.logger.Error("Failed to archive execution",
			zap.String("job_id", exec.JobID),
			zap.String("execution_id", exec.ID),
			zap.Error(err),
		)
		s.persistFailed("history")
	}

	if cur, ok := s.active[exec.JobID]; ok && cur.ID == exec.ID {
		delete(s.active, exec.JobID)
	}

	if job, ok := s.jobs[exec.JobID]; ok && !job.Recurring {
		if err := store.DeleteJob(ctx, s.store, job.ID); err != nil {
			s.logger.Error("Failed to retire one-shot job", zap.String("job_id", job.ID), zap.Error(err))
			s.persistFailed("retire")
		} else {
			delete(s.jobs, job.ID)
		}
	}

	if s.metrics != nil {
		s.metrics.Executions.WithLabelValues(s.cfg.Name, string(exec.JobType), string(exec.Status), string(exec.Trigger)).Inc()
	}

	if exec.Status == types.StatusFailed {
		s.logger.Warn("Execution failed",
			zap.String("job_id", exec.JobID),
			zap.String("execution_id", exec.ID),
			zap.Duration("duration", exec.Duration()),
			zap.String("error", exec.Error),
		)
	} else {
		s.logger.Info("Execution completed",
			zap.String("job_id", exec.JobID),
			zap.String("execution_id", exec.ID),
			zap.Duration("duration", exec.Duration()),
		)
	}

	s.updateGauges()
	s.rearm(ctx, false)
}

// sweep starts every due job that is not already running and re-arms the
// timer. It returns the number of executions started.
func (s *Scheduler) sweep(ctx context.Context) int {
	now := s.clock.Now()

	var due []*types.ScheduledJob
	for id, job := range s.jobs {
		if _, running := s.active[id]; running {
			continue
		}
		if job.IsDue(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, k int) bool {
		if due[i].NextRun.Equal(*due[k].NextRun) {
			return due[i].ID < due[k].ID
		}
		return due[i].NextRun.Before(*due[k].NextRun)
	})

	if s.metrics != nil {
		s.metrics.Wakes.WithLabelValues(s.cfg.Name).Inc()
	}

	started, failed := 0, 0
	for _, job := range due {
		if _, err := s.execute(ctx, job, types.TriggerSchedule); err != nil {
			s.logger.Error("Skipping due job, state could not be persisted",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
			s.persistFailed("job")
			failed++
			continue
		}
		started++
	}

	s.logger.Debug("Sweep finished",
		zap.Int("due", len(due)),
		zap.Int("started", started),
		zap.Int("failed", failed),
	)

	s.rearm(ctx, failed > 0)
	return started
}

// rearm arms the wake timer at the earliest next run of the enabled jobs
// that are not running, or disarms it when there is none. Running jobs are
// accounted for when their execution finishes.
func (s *Scheduler) rearm(ctx context.Context, backoff bool) {
	var next *time.Time
	for id, job := range s.jobs {
		if !job.Enabled || job.NextRun == nil {
			continue
		}
		if _, running := s.active[id]; running {
			continue
		}
		if next == nil || job.NextRun.Before(*next) {
			next = job.NextRun
		}
	}

	s.updateGauges()

	if next == nil {
		s.timer.Stop()
		s.armed = nil
		if s.persistedWake != nil {
			if err := s.store.ClearWake(ctx); err != nil {
				s.logger.Warn("Failed to clear persisted wake time", zap.Error(err))
			} else {
				s.persistedWake = nil
			}
		}
		return
	}

	now := s.clock.Now()
	at := next.UTC()
	if !at.After(now) {
		at = now.UTC()
		if backoff {
			at = at.Add(s.cfg.RetryDelay)
		}
	}

	if s.persistedWake == nil || !s.persistedWake.Equal(at) {
		if err := s.store.SetWake(ctx, at); err != nil {
			s.logger.Warn("Failed to persist wake time", zap.Time("wake_at", at), zap.Error(err))
		} else {
			persisted := at
			s.persistedWake = &persisted
		}
	}
	s.armed = &at
	s.timer.Reset(at.Sub(now))
}

func (s *Scheduler) nextRun(pattern string, after time.Time) *time.Time {
	t, ok := s.calc.NextRun(pattern, after)
	if !ok {
		s.logger.Warn("Schedule pattern has no next run", zap.String("pattern", pattern))
		return nil
	}
	t = t.UTC()
	return &t
}
