package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics for the scheduler
type Metrics struct {
	// Job metrics
	JobsScheduled     *prometheus.CounterVec
	JobsCancelled     *prometheus.CounterVec
	ScheduledJobs     *prometheus.GaugeVec
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	RunningExecutions *prometheus.GaugeVec

	// Wake metrics
	Wakes        *prometheus.CounterVec
	PersistFails *prometheus.CounterVec

	// API metrics
	APIRequestCount    *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
	logger   *zap.Logger
	server   *http.Server
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses
// the default Prometheus registry.
func NewMetrics(reg prometheus.Registerer, logger *zap.Logger) *Metrics {
	gatherer := prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	m := &Metrics{
		gatherer: gatherer,
		logger:   logger,

		JobsScheduled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gopher_scheduler_jobs_scheduled_total",
			Help: "Total number of jobs accepted by the scheduler",
		}, []string{"scheduler", "job_type"}),

		JobsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gopher_scheduler_jobs_cancelled_total",
			Help: "Total number of jobs cancelled",
		}, []string{"scheduler"}),

		ScheduledJobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gopher_scheduler_jobs",
			Help: "Current number of scheduled job definitions",
		}, []string{"scheduler"}),

		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gopher_scheduler_executions_total",
			Help: "Total number of finished executions",
		}, []string{"scheduler", "job_type", "status", "trigger"}),

		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gopher_scheduler_execution_duration_seconds",
			Help:    "Time taken by dispatch backends",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_type"}),

		RunningExecutions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gopher_scheduler_running_executions",
			Help: "Number of executions currently in flight",
		}, []string{"scheduler"}),

		Wakes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gopher_scheduler_wakes_total",
			Help: "Total number of wake sweeps",
		}, []string{"scheduler"}),

		PersistFails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gopher_scheduler_persist_failures_total",
			Help: "Store writes that failed during sweeps or completions",
		}, []string{"scheduler", "op"}),

		APIRequestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gopher_api_requests_total",
			Help: "Total number of API requests",
		}, []string{"method", "path", "status"}),

		APIRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gopher_api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}

	logger.Info("Prometheus metrics initialized")
	return m
}

// ObserveRequest records one API request
func (m *Metrics) ObserveRequest(method, path string, status int, duration time.Duration) {
	m.APIRequestCount.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// StartServer starts the Prometheus metrics HTTP server
func (m *Metrics) StartServer(address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	m.server = &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	m.logger.Info("Starting Prometheus metrics server", zap.String("address", address))
	if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// StopServer stops the Prometheus metrics HTTP server
func (m *Metrics) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	m.logger.Info("Stopping Prometheus metrics server")
	return m.server.Shutdown(ctx)
}
