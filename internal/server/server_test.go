package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/api"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/config"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/dispatch"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/queue"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/schedule"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/scheduler"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/store"
	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

type testEnv struct {
	handler http.Handler
	hook    *httptest.Server
	hits    chan struct{}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	cfg := &config.Config{}
	cfg.Server.Port = 8080
	cfg.Scheduler.Instance = "default"
	cfg.Log.Level = "info"
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{hits: make(chan struct{}, 16)}
	env.hook = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.hits <- struct{}{}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(env.hook.Close)

	resolver := queue.NewResolver(nil, time.Second, logger)
	registry, err := dispatch.NewDefaultRegistry(dispatch.Options{Queues: resolver}, logger, nil, nil)
	require.NoError(t, err)

	calc := schedule.NewCalculator(schedule.CronStandard, time.UTC)
	manager := scheduler.NewManager(store.NewMemoryBackend(), scheduler.Config{}, func(c scheduler.Config, s store.Store) *scheduler.Scheduler {
		return scheduler.New(c, s, calc, registry, scheduler.Options{}, logger)
	}, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = manager.Close(ctx)
	})

	env.handler = NewServer(cfg, manager, registry, resolver, nil, nil, logger).Handler()
	return env
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, header ...string) (int, api.Envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)

	var env api.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func (e *testEnv) webhookJob(name string, recurring bool) map[string]interface{} {
	return map[string]interface{}{
		"name":            name,
		"type":            "webhook",
		"schedulePattern": "1h",
		"recurring":       recurring,
		"payload":         map[string]string{"url": e.hook.URL},
	}
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func TestScheduleListAndStatus(t *testing.T) {
	env := newTestEnv(t, nil)

	code, resp := env.request(t, http.MethodPost, "/api/v1/jobs", env.webhookJob("ping", true))
	require.Equal(t, http.StatusCreated, code)
	assert.True(t, resp.Success)

	var scheduled scheduler.ScheduleResult
	decode(t, resp.Data, &scheduled)
	assert.True(t, scheduled.Scheduled)
	assert.NotEmpty(t, scheduled.JobID)
	assert.NotNil(t, scheduled.NextRun)

	code, resp = env.request(t, http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, code)
	var jobs []map[string]interface{}
	decode(t, resp.Data, &jobs)
	require.Len(t, jobs, 1)
	assert.Equal(t, scheduled.JobID, jobs[0]["id"])
	assert.Equal(t, false, jobs[0]["active"])

	code, resp = env.request(t, http.MethodGet, "/api/v1/jobs/"+scheduled.JobID, nil)
	require.Equal(t, http.StatusOK, code)
	var status scheduler.JobStatus
	decode(t, resp.Data, &status)
	assert.False(t, status.IsRunning)
	require.NotNil(t, status.Scheduled)
	assert.Equal(t, "ping", status.Scheduled.Name)
}

func TestUnknownJobIs404(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/jobs/job_missing"},
		{http.MethodDelete, "/api/v1/jobs/job_missing"},
		{http.MethodPost, "/api/v1/jobs/job_missing/trigger"},
		{http.MethodPost, "/api/v1/jobs/job_missing/enable"},
	} {
		code, resp := env.request(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, code, tc.path)
		assert.False(t, resp.Success)
		assert.Equal(t, "Job not found", resp.Error)
	}
}

func TestScheduleValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	code, resp := env.request(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid request format", resp.Error)

	code, resp = env.request(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{
		"name": "hook", "type": "webhook", "schedulePattern": "5m",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Invalid job definition", resp.Error)
	assert.Contains(t, string(resp.Details), "url")
}

func TestTriggerOneShotAndHistory(t *testing.T) {
	env := newTestEnv(t, nil)

	_, resp := env.request(t, http.MethodPost, "/api/v1/jobs", env.webhookJob("once", false))
	var scheduled scheduler.ScheduleResult
	decode(t, resp.Data, &scheduled)

	code, resp := env.request(t, http.MethodPost, "/api/v1/jobs/"+scheduled.JobID+"/trigger", nil)
	require.Equal(t, http.StatusAccepted, code)
	var triggered scheduler.TriggerResult
	decode(t, resp.Data, &triggered)
	assert.True(t, triggered.Triggered)
	assert.NotEmpty(t, triggered.ExecutionID)

	select {
	case <-env.hits:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was not called")
	}

	require.Eventually(t, func() bool {
		_, resp := env.request(t, http.MethodGet, "/api/v1/jobs", nil)
		var jobs []map[string]interface{}
		decode(t, resp.Data, &jobs)
		return len(jobs) == 0
	}, 2*time.Second, 10*time.Millisecond)

	code, resp = env.request(t, http.MethodGet, "/api/v1/jobs/"+scheduled.JobID+"/history", nil)
	require.Equal(t, http.StatusOK, code)
	var history []types.Execution
	decode(t, resp.Data, &history)
	require.Len(t, history, 1)
	assert.Equal(t, types.StatusCompleted, history[0].Status)
	assert.JSONEq(t, `{"status":204,"statusText":"No Content"}`, string(history[0].Result))

	code, resp = env.request(t, http.MethodGet, "/api/v1/history?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, resp.Data, &history)
	assert.Len(t, history, 1)
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.request(t, http.MethodGet, "/api/v1/history?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.request(t, http.MethodGet, "/api/v1/history?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCancelAndDisable(t *testing.T) {
	env := newTestEnv(t, nil)

	_, resp := env.request(t, http.MethodPost, "/api/v1/jobs", env.webhookJob("ping", true))
	var scheduled scheduler.ScheduleResult
	decode(t, resp.Data, &scheduled)

	code, resp := env.request(t, http.MethodPost, "/api/v1/jobs/"+scheduled.JobID+"/disable", nil)
	require.Equal(t, http.StatusOK, code)
	var job types.ScheduledJob
	decode(t, resp.Data, &job)
	assert.False(t, job.Enabled)

	code, resp = env.request(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, code)
	var stats scheduler.Stats
	decode(t, resp.Data, &stats)
	assert.Equal(t, 1, stats.Jobs)
	assert.Zero(t, stats.Enabled)
	assert.Nil(t, stats.NextWake)

	code, resp = env.request(t, http.MethodDelete, "/api/v1/jobs/"+scheduled.JobID, nil)
	require.Equal(t, http.StatusOK, code)
	var cancelled scheduler.CancelResult
	decode(t, resp.Data, &cancelled)
	assert.True(t, cancelled.Cancelled)

	code, _ = env.request(t, http.MethodGet, "/api/v1/jobs/"+scheduled.JobID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestNamedSchedulersAreIsolated(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.request(t, http.MethodPost, "/api/v1/schedulers/tenant-a/jobs", env.webhookJob("a", true))
	require.Equal(t, http.StatusCreated, code)

	_, resp := env.request(t, http.MethodGet, "/api/v1/schedulers/tenant-b/jobs", nil)
	var jobs []map[string]interface{}
	decode(t, resp.Data, &jobs)
	assert.Empty(t, jobs)

	_, resp = env.request(t, http.MethodGet, "/api/v1/jobs", nil)
	decode(t, resp.Data, &jobs)
	assert.Empty(t, jobs)

	_, resp = env.request(t, http.MethodGet, "/api/v1/schedulers", nil)
	var list api.SchedulersResponse
	decode(t, resp.Data, &list)
	assert.Equal(t, "default", list.Default)
	assert.Equal(t, []string{"default", "tenant-a", "tenant-b"}, list.Schedulers)

	code, _ = env.request(t, http.MethodGet, "/api/v1/schedulers/bad:name/jobs", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealthAndBackends(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.API.Keys = []string{"secret"}
	})

	code, resp := env.request(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, code)
	var health api.HealthResponse
	decode(t, resp.Data, &health)
	assert.Equal(t, "healthy", health.Status)

	code, _ = env.request(t, http.MethodGet, "/api/v1/backends", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, resp = env.request(t, http.MethodGet, "/api/v1/backends", nil, "X-API-Key", "secret")
	require.Equal(t, http.StatusOK, code)
	var info api.DispatchInfo
	decode(t, resp.Data, &info)
	assert.Len(t, info.Backends, 3)
	assert.Contains(t, info.Backends, "webhook")
	assert.Empty(t, info.Queues)
}
