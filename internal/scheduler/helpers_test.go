package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/dispatch"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/metrics"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/schedule"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/store"
	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTimer struct {
	mu    sync.Mutex
	ch    chan time.Time
	armed bool
	delay time.Duration
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{ch: make(chan time.Time)}
}

func (f *fakeTimer) Reset(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = true
	f.delay = d
}

func (f *fakeTimer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
}

func (f *fakeTimer) C() <-chan time.Time {
	return f.ch
}

func (f *fakeTimer) state() (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delay, f.armed
}

func (f *fakeTimer) fire(at time.Time) {
	f.mu.Lock()
	f.armed = false
	f.mu.Unlock()
	f.ch <- at
}

// recordingBackend stands in for the webhook backend
type recordingBackend struct {
	mu      sync.Mutex
	runs    []string
	release chan struct{}
	err     error
}

func (b *recordingBackend) Type() types.JobType { return types.JobTypeWebhook }

func (b *recordingBackend) Description() string { return "records executions" }

func (b *recordingBackend) Execute(ctx context.Context, job *types.ScheduledJob) (json.RawMessage, error) {
	b.mu.Lock()
	b.runs = append(b.runs, job.ID)
	release := b.release
	b.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return json.RawMessage(`{"status":200,"statusText":"OK"}`), nil
}

func (b *recordingBackend) count(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, id := range b.runs {
		if id == jobID {
			n++
		}
	}
	return n
}

// flakyStore fails writes to chosen keys
type flakyStore struct {
	store.Store
	mu       sync.Mutex
	failKeys map[string]bool
}

func newFlakyStore(s store.Store) *flakyStore {
	return &flakyStore{Store: s, failKeys: make(map[string]bool)}
}

func (f *flakyStore) failOn(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failKeys[key] = true
}

func (f *flakyStore) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.failKeys[key]
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, key, value)
}

// stallingStore blocks listing until released, then fails it
type stallingStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) ListByPrefix(ctx context.Context, prefix string) (map[string][]byte, error) {
	close(s.entered)
	<-s.release
	return nil, errors.New("connection reset")
}

type harness struct {
	s       *Scheduler
	store   store.Store
	clock   *fakeClock
	timer   *fakeTimer
	backend *recordingBackend
	metrics *metrics.Metrics
}

type harnessOption func(*Config, *schedule.Calculator)

func newHarness(t *testing.T, st store.Store, opts ...harnessOption) *harness {
	t.Helper()

	if st == nil {
		st = store.NewMemoryStore()
	}
	cfg := Config{Name: "test"}
	calc := schedule.NewCalculator(schedule.CronStandard, time.UTC)
	for _, opt := range opts {
		opt(&cfg, calc)
	}

	logger := zaptest.NewLogger(t)
	backend := &recordingBackend{}
	registry := dispatch.NewRegistry(logger, nil, nil)
	require.NoError(t, registry.Register(backend))

	h := &harness{
		store:   st,
		clock:   &fakeClock{now: t0},
		timer:   newFakeTimer(),
		backend: backend,
		metrics: metrics.NewMetrics(prometheus.NewRegistry(), logger),
	}
	h.s = New(cfg, st, calc, registry, Options{Clock: h.clock, Timer: h.timer, Metrics: h.metrics}, logger)

	require.NoError(t, h.s.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.s.Stop(ctx)
	})
	return h
}

func withCalculator(mode schedule.CronMode) harnessOption {
	return func(cfg *Config, calc *schedule.Calculator) {
		*calc = *schedule.NewCalculator(mode, time.UTC)
	}
}

func withDispatchTimeout(d time.Duration) harnessOption {
	return func(cfg *Config, _ *schedule.Calculator) {
		cfg.DispatchTimeout = d
	}
}

func (h *harness) schedule(t *testing.T, req types.JobRequest) string {
	t.Helper()
	res, err := h.s.Schedule(context.Background(), req)
	require.NoError(t, err)
	require.True(t, res.Scheduled)
	return res.JobID
}

func (h *harness) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		stats, err := h.s.Stats(context.Background())
		return err == nil && stats.Running == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func (h *harness) persistedWake(t *testing.T) (time.Time, bool) {
	t.Helper()
	at, ok, err := h.store.GetWake(context.Background())
	require.NoError(t, err)
	return at, ok
}

func webhookJob(name, pattern string) types.JobRequest {
	return types.JobRequest{
		Name:            name,
		Type:            types.JobTypeWebhook,
		SchedulePattern: pattern,
		Payload:         json.RawMessage(`{"url":"http://hooks.internal/ping"}`),
	}
}

func boolPtr(b bool) *bool { return &b }
