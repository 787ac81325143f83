package dispatch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/metrics"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/queue"
	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

func newTestRegistry(t *testing.T, containerURL string, resolver QueueResolver) *Registry {
	t.Helper()
	if resolver == nil {
		resolver = queue.NewResolver(nil, time.Second, zaptest.NewLogger(t))
	}
	m := metrics.NewMetrics(prometheus.NewRegistry(), zaptest.NewLogger(t))
	r, err := NewDefaultRegistry(Options{
		ContainerURL: containerURL,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		Queues:       resolver,
	}, zaptest.NewLogger(t), nil, m)
	require.NoError(t, err)
	return r
}

func job(jobType types.JobType, payload string) *types.ScheduledJob {
	return &types.ScheduledJob{
		ID:      "job_test",
		Name:    "test",
		Type:    jobType,
		Payload: json.RawMessage(payload),
	}
}

func TestRegistryTypes(t *testing.T) {
	r := newTestRegistry(t, "", nil)

	assert.Equal(t, []types.JobType{types.JobTypeContainer, types.JobTypeQueue, types.JobTypeWebhook}, r.Types())
	assert.Len(t, r.ListBackends(), 3)

	err := r.Register(NewWebhookBackend(nil, zaptest.NewLogger(t)))
	assert.Error(t, err, "duplicate registration is rejected")
	assert.Error(t, r.Register(nil))
}

func TestRegistryUnknownType(t *testing.T) {
	r := newTestRegistry(t, "", nil)

	_, err := r.Execute(context.Background(), job("ftp", `{}`))
	require.ErrorIs(t, err, ErrUnknownType)
	assert.Contains(t, err.Error(), `"ftp"`)
	assert.Equal(t, 1, testutil.CollectAndCount(r.metrics.ExecutionDuration))
}

func TestWebhookSuccessIncludesHTTPErrors(t *testing.T) {
	var gotMethod, gotHeader, gotBody, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotMethod = req.Method
		gotHeader = req.Header.Get("X-Token")
		gotContentType = req.Header.Get("Content-Type")
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := newTestRegistry(t, "", nil)
	result, err := r.Execute(context.Background(), job(types.JobTypeWebhook,
		`{"url":"`+srv.URL+`","method":"put","headers":{"X-Token":"abc"},"body":{"ping":true}}`))

	require.NoError(t, err)
	assert.JSONEq(t, `{"status":503,"statusText":"Service Unavailable"}`, string(result))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "abc", gotHeader)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"ping":true}`, gotBody)
}

func TestWebhookDefaultsToPost(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotMethod = req.Method
	}))
	defer srv.Close()

	r := newTestRegistry(t, "", nil)
	result, err := r.Execute(context.Background(), job(types.JobTypeWebhook, `{"url":"`+srv.URL+`"}`))

	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.JSONEq(t, `{"status":200,"statusText":"OK"}`, string(result))
}

func TestWebhookTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {}))
	url := srv.URL
	srv.Close()

	r := newTestRegistry(t, "", nil)
	_, err := r.Execute(context.Background(), job(types.JobTypeWebhook, `{"url":"`+url+`"}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook request failed")
}

func TestWebhookMissingURL(t *testing.T) {
	r := newTestRegistry(t, "", nil)
	_, err := r.Execute(context.Background(), job(types.JobTypeWebhook, `{"method":"GET"}`))
	assert.Error(t, err)
}

func TestContainerSubmission(t *testing.T) {
	var gotBody, gotJobID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		gotJobID = req.Header.Get("X-Scheduled-Job-Id")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jobId":"remote-1","status":"queued"}`))
	}))
	defer srv.Close()

	r := newTestRegistry(t, srv.URL+"/jobs", nil)
	result, err := r.Execute(context.Background(), job(types.JobTypeContainer, `{"image":"transcoder","args":["--hls"]}`))

	require.NoError(t, err)
	assert.JSONEq(t, `{"jobId":"remote-1","status":"queued"}`, string(result))
	assert.JSONEq(t, `{"image":"transcoder","args":["--hls"]}`, gotBody)
	assert.Equal(t, "job_test", gotJobID)
}

func TestContainerNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = w.Write([]byte("accepted"))
	}))
	defer srv.Close()

	r := newTestRegistry(t, srv.URL, nil)
	result, err := r.Execute(context.Background(), job(types.JobTypeContainer, ``))

	require.NoError(t, err)
	assert.JSONEq(t, `"accepted"`, string(result))
}

func TestContainerFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "no capacity", http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := newTestRegistry(t, srv.URL, nil)
	_, err := r.Execute(context.Background(), job(types.JobTypeContainer, `{}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "no capacity")
}

func TestContainerNotConfigured(t *testing.T) {
	r := newTestRegistry(t, "", nil)
	_, err := r.Execute(context.Background(), job(types.JobTypeContainer, `{}`))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestQueueBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	resolver := queue.NewResolver(map[string]string{"notifications": "redis://" + mr.Addr()}, time.Second, zaptest.NewLogger(t))
	defer resolver.Close()

	r := newTestRegistry(t, "", resolver)
	result, err := r.Execute(context.Background(), job(types.JobTypeQueue, `{"queue":"notifications","message":{"kind":"digest"}}`))

	require.NoError(t, err)
	assert.JSONEq(t, `{"queue":"notifications","enqueued":true}`, string(result))

	items, err := mr.List("queue:notifications")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"kind":"digest"}`, items[0])
}

func TestQueueBackendUnknownQueue(t *testing.T) {
	r := newTestRegistry(t, "", nil)
	_, err := r.Execute(context.Background(), job(types.JobTypeQueue, `{"queue":"nowhere","message":"x"}`))

	assert.ErrorIs(t, err, queue.ErrUnknownQueue)
}
