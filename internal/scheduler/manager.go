package scheduler

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/store"
)

var instanceName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ErrInvalidName is returned for instance names that cannot be used as a
// store namespace
var ErrInvalidName = errors.New("invalid scheduler name")

// Factory builds an unstarted scheduler for a named namespace
type Factory func(cfg Config, s store.Store) *Scheduler

// Manager hands out one scheduler per name. Instances never share a store
// namespace, so they never see each other's jobs.
type Manager struct {
	mu        sync.Mutex
	backend   store.Backend
	base      Config
	factory   Factory
	instances map[string]*Scheduler
	closed    bool
	logger    *zap.Logger
}

func NewManager(backend store.Backend, base Config, factory Factory, logger *zap.Logger) *Manager {
	return &Manager{
		backend:   backend,
		base:      base,
		factory:   factory,
		instances: make(map[string]*Scheduler),
		logger:    logger,
	}
}

// ValidName reports whether name can identify a scheduler instance
func ValidName(name string) bool {
	return instanceName.MatchString(name)
}

// Get returns the started scheduler for name, creating it on first use
func (m *Manager) Get(ctx context.Context, name string) (*Scheduler, error) {
	if !ValidName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrStopped
	}
	if s, ok := m.instances[name]; ok {
		return s, nil
	}

	cfg := m.base
	cfg.Name = name
	s := m.factory(cfg, m.backend.Namespace(name))
	if err := s.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start scheduler %s: %w", name, err)
	}

	m.instances[name] = s
	m.logger.Info("Scheduler instance created", zap.String("scheduler", name))
	return s, nil
}

// Names returns the names of the running instances
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.instances))
	for name := range m.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health checks the shared store backend
func (m *Manager) Health(ctx context.Context) error {
	return m.backend.Health(ctx)
}

// Close stops every instance, waiting on ctx for in-flight executions
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	instances := make([]*Scheduler, 0, len(m.instances))
	for _, s := range m.instances {
		instances = append(instances, s)
	}
	m.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range instances {
		wg.Add(1)
		go func(s *Scheduler) {
			defer wg.Done()
			if err := s.Stop(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()

	return errors.Join(errs...)
}
