package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/metrics"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/store"
	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

var (
	ErrNotFound       = errors.New("job not found")
	ErrAlreadyRunning = errors.New("job is already running")
	ErrInvalidJob     = errors.New("invalid job")
	ErrStopped        = errors.New("scheduler is stopped")
)

const (
	defaultHistoryLimit = 100
	defaultRetryDelay   = time.Second
	internalOpTimeout   = 10 * time.Second
)

// Calculator computes the next due time of a schedule pattern
type Calculator interface {
	NextRun(pattern string, after time.Time) (time.Time, bool)
}

type patternValidator interface {
	Validate(pattern string) error
}

// Dispatcher executes a job against its backend
type Dispatcher interface {
	Execute(ctx context.Context, job *types.ScheduledJob) (json.RawMessage, error)
}

// Config holds the tunables of one scheduler instance
type Config struct {
	Name            string
	HistoryLimit    int
	RetryDelay      time.Duration // wake delay after a sweep could not persist a due job
	DispatchTimeout time.Duration // zero leaves timeouts to the backend transport
}

// Options carries the optional collaborators of a scheduler
type Options struct {
	Clock   Clock
	Timer   WakeTimer
	Metrics *metrics.Metrics
}

type lifecycle int

const (
	stateNew lifecycle = iota
	stateRunning
	stateStopped
)

type completion struct {
	exec   *types.Execution
	result json.RawMessage
	err    error
}

// Scheduler owns one disjoint set of jobs. A single goroutine holds the job
// and execution maps; control operations, timer fires and dispatch
// completions all reach it as messages.
type Scheduler struct {
	cfg        Config
	store      store.Store
	calc       Calculator
	dispatcher Dispatcher
	clock      Clock
	timer      WakeTimer
	metrics    *metrics.Metrics
	logger     *zap.Logger

	inbox       chan func()
	completions chan completion
	quit        chan struct{}
	done        chan struct{}

	dispatchCtx    context.Context
	dispatchCancel context.CancelFunc

	mu    sync.Mutex
	state lifecycle

	// owned by the run loop
	jobs          map[string]*types.ScheduledJob
	active        map[string]*types.Execution
	armed         *time.Time
	persistedWake *time.Time
}

// New creates a scheduler over s. It does nothing until Start.
func New(cfg Config, s store.Store, calc Calculator, dispatcher Dispatcher, opts Options, logger *zap.Logger) *Scheduler {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Timer == nil {
		opts.Timer = newRuntimeTimer()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cfg:            cfg,
		store:          s,
		calc:           calc,
		dispatcher:     dispatcher,
		clock:          opts.Clock,
		timer:          opts.Timer,
		metrics:        opts.Metrics,
		logger:         logger.With(zap.String("scheduler", cfg.Name)),
		inbox:          make(chan func()),
		completions:    make(chan completion),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		dispatchCtx:    ctx,
		dispatchCancel: cancel,
		jobs:           make(map[string]*types.ScheduledJob),
		active:         make(map[string]*types.Execution),
	}
}

// Name returns the instance name
func (s *Scheduler) Name() string {
	return s.cfg.Name
}

// Start rebuilds the job map from the store, re-arms the wake timer and
// begins processing messages. Operations issued before Start returns wait
// for it.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateNew {
		s.mu.Unlock()
		return fmt.Errorf("scheduler %s already started", s.cfg.Name)
	}
	s.state = stateRunning
	s.mu.Unlock()

	jobs, err := store.ListJobs(ctx, s.store)
	if err != nil {
		if jobs == nil {
			s.abortStart()
			return fmt.Errorf("failed to load jobs: %w", err)
		}
		s.logger.Warn("Skipping undecodable jobs", zap.Error(err))
	}
	for _, job := range jobs {
		s.jobs[job.ID] = job
	}
	s.retireInterrupted(ctx)

	if at, ok, err := s.store.GetWake(ctx); err != nil {
		s.logger.Warn("Failed to read persisted wake time", zap.Error(err))
	} else if ok {
		s.logger.Info("Found persisted wake time", zap.Time("wake_at", at))
		s.persistedWake = &at
	}

	s.rearm(ctx, false)

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))

	go s.run()
	return nil
}

func (s *Scheduler) abortStart() {
	s.mu.Lock()
	if s.state != stateStopped {
		s.state = stateStopped
		close(s.quit)
	}
	s.mu.Unlock()
	close(s.done)
	s.dispatchCancel()
}

// Stop stops accepting operations, disarms the timer and waits for in-flight
// executions to be archived. When ctx expires first, running dispatches are
// cancelled and ctx's error is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case stateNew:
		s.state = stateStopped
		s.mu.Unlock()
		close(s.quit)
		close(s.done)
		s.dispatchCancel()
		return nil
	case stateRunning:
		s.state = stateStopped
		close(s.quit)
	}
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")

	select {
	case <-s.done:
		s.dispatchCancel()
		s.logger.Info("Scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.dispatchCancel()
		s.logger.Warn("Scheduler stop timed out, cancelling running dispatches")
		return fmt.Errorf("scheduler %s: %w", s.cfg.Name, ctx.Err())
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	for {
		select {
		case fn := <-s.inbox:
			fn()
		case c := <-s.completions:
			s.finish(c)
		case <-s.timer.C():
			s.armed = nil
			ctx, cancel := context.WithTimeout(context.Background(), internalOpTimeout)
			s.sweep(ctx)
			cancel()
		case <-s.quit:
			s.drain()
			return
		}
	}
}

// drain archives executions that are still running at shutdown
func (s *Scheduler) drain() {
	s.timer.Stop()
	if len(s.active) > 0 {
		s.logger.Info("Waiting for running executions", zap.Int("running", len(s.active)))
	}
	for len(s.active) > 0 {
		s.finish(<-s.completions)
	}
}

// call runs fn on the scheduler goroutine and returns its error
func (s *Scheduler) call(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	msg := func() { reply <- fn() }

	select {
	case s.inbox <- msg:
	case <-s.quit:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	return <-reply
}

func (s *Scheduler) persistFailed(op string) {
	if s.metrics != nil {
		s.metrics.PersistFails.WithLabelValues(s.cfg.Name, op).Inc()
	}
}

func (s *Scheduler) updateGauges() {
	if s.metrics == nil {
		return
	}
	s.metrics.ScheduledJobs.WithLabelValues(s.cfg.Name).Set(float64(len(s.jobs)))
	s.metrics.RunningExecutions.WithLabelValues(s.cfg.Name).Set(float64(len(s.active)))
}
