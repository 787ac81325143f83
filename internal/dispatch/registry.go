package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/metrics"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/tracing"
	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

// ErrUnknownType is returned when no backend is registered for a job type
var ErrUnknownType = errors.New("unknown job type")

// Backend executes one kind of scheduled job against an external collaborator
type Backend interface {

	// Execute runs the job and returns its result
	Execute(ctx context.Context, job *types.ScheduledJob) (json.RawMessage, error)

	// Type returns the job type this backend executes
	Type() types.JobType

	// Description returns a human-readable description of what this backend does
	Description() string
}

// Registry routes jobs to backends by type. It never swallows backend
// errors; callers decide how a failure is recorded.
type Registry struct {
	mu       sync.RWMutex
	backends map[types.JobType]Backend
	logger   *zap.Logger
	tracer   *tracing.Tracer
	metrics  *metrics.Metrics
}

// NewRegistry creates a new backend registry. tracer and m may be nil.
func NewRegistry(logger *zap.Logger, tracer *tracing.Tracer, m *metrics.Metrics) *Registry {
	if tracer == nil {
		tracer = tracing.NewNoopTracer(logger)
	}
	return &Registry{
		backends: make(map[types.JobType]Backend),
		logger:   logger,
		tracer:   tracer,
		metrics:  m,
	}
}

// Register adds a backend to the registry
func (r *Registry) Register(backend Backend) error {
	if backend == nil {
		return fmt.Errorf("backend cannot be nil")
	}

	jobType := backend.Type()
	if jobType == "" {
		return fmt.Errorf("backend type cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[jobType]; exists {
		return fmt.Errorf("backend for type '%s' already exists", jobType)
	}

	r.backends[jobType] = backend
	r.logger.Info("Registered dispatch backend",
		zap.String("type", string(jobType)),
		zap.String("description", backend.Description()),
	)

	return nil
}

// Get retrieves the backend for the given job type
func (r *Registry) Get(jobType types.JobType) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backend, exists := r.backends[jobType]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, jobType)
	}

	return backend, nil
}

// Types returns all registered job types, sorted
func (r *Registry) Types() []types.JobType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.JobType, 0, len(r.backends))
	for t := range r.backends {
		out = append(out, t)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })

	return out
}

// ListBackends maps each job type to its description
func (r *Registry) ListBackends() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backends := make(map[string]string)
	for t, b := range r.backends {
		backends[string(t)] = b.Description()
	}
	return backends
}

// Execute dispatches job to the backend registered for its type
func (r *Registry) Execute(ctx context.Context, job *types.ScheduledJob) (result json.RawMessage, err error) {
	ctx, span := r.tracer.StartSpan(ctx, "dispatch "+string(job.Type),
		attribute.String("job.id", job.ID),
		attribute.String("job.type", string(job.Type)),
	)
	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ExecutionDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())
		}
		tracing.EndSpan(span, err)
	}()

	backend, err := r.Get(job.Type)
	if err != nil {
		r.logger.Error("No backend found for job",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.Type)),
			zap.Error(err),
		)
		return nil, err
	}

	r.logger.Debug("Dispatching job",
		zap.String("job_id", job.ID),
		zap.String("job_type", string(job.Type)),
	)

	result, err = backend.Execute(ctx, job)
	if err != nil {
		r.logger.Warn("Dispatch failed",
			zap.String("job_id", job.ID),
			zap.String("job_type", string(job.Type)),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	return result, nil
}
