package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aneeshsunganahalli/gopher-scheduler/internal/api"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/config"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/dispatch"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/metrics"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/middleware"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/scheduler"
	"github.com/aneeshsunganahalli/gopher-scheduler/internal/tracing"
	"github.com/aneeshsunganahalli/gopher-scheduler/pkg/types"
)

const version = "1.0.0"

// QueueNames lists the queues jobs may target
type QueueNames interface {
	Names() []string
}

// Represents HTTP Server
type Server struct {
	config   *config.Config
	manager  *scheduler.Manager
	registry *dispatch.Registry
	queues   QueueNames
	metrics  *metrics.Metrics
	tracer   *tracing.Tracer
	logger   *zap.Logger
	router   *gin.Engine
	server   *http.Server
}

// NewServer wires the control surface. m and tracer may be nil.
func NewServer(cfg *config.Config, manager *scheduler.Manager, registry *dispatch.Registry, queues QueueNames, m *metrics.Metrics, tracer *tracing.Tracer, logger *zap.Logger) *Server {
	s := &Server{
		config:   cfg,
		manager:  manager,
		registry: registry,
		queues:   queues,
		metrics:  m,
		tracer:   tracer,
		logger:   logger,
	}

	s.setupRouter()
	s.setupServer()

	return s
}

func (s *Server) setupRouter() {
	if s.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()

	// Middleware
	s.router.Use(middleware.RecoveryMiddleware(s.logger))
	s.router.Use(middleware.LoggingMiddleware(s.logger))
	s.router.Use(middleware.CORSMiddleware())
	if s.tracer != nil {
		s.router.Use(middleware.TracingMiddleware(s.tracer))
	}
	if s.metrics != nil {
		s.router.Use(middleware.MetricsMiddleware(s.metrics))
	}
	if s.config.API.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(s.config.API.RateLimit, s.config.API.RateBurst, 10*time.Minute)
		s.router.Use(middleware.RateLimitMiddleware(limiter))
	}
	if len(s.config.API.Keys) > 0 {
		s.router.Use(middleware.APIKeyMiddleware(s.config.API.Keys))
	}

	s.router.GET("/health", s.healthHandler)

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/schedulers", s.listSchedulersHandler)
		v1.GET("/backends", s.backendsHandler)
		s.jobRoutes(v1)
		s.jobRoutes(v1.Group("/schedulers/:scheduler"))
	}
}

func (s *Server) jobRoutes(g *gin.RouterGroup) {
	g.POST("/jobs", s.scheduleJobHandler)
	g.GET("/jobs", s.listJobsHandler)
	g.GET("/jobs/:id", s.jobStatusHandler)
	g.DELETE("/jobs/:id", s.cancelJobHandler)
	g.POST("/jobs/:id/trigger", s.triggerJobHandler)
	g.POST("/jobs/:id/enable", s.enableJobHandler)
	g.POST("/jobs/:id/disable", s.disableJobHandler)
	g.GET("/jobs/:id/history", s.jobHistoryHandler)
	g.GET("/history", s.historyHandler)
	g.GET("/stats", s.statsHandler)
}

func (s *Server) setupServer() {
	s.server = &http.Server{
		Addr:         s.config.Server.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.String("address", s.server.Addr),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP Server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server gracefully: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// instance resolves the scheduler addressed by the request, writing the
// error reply itself when it cannot
func (s *Server) instance(c *gin.Context) (*scheduler.Scheduler, bool) {
	name := c.Param("scheduler")
	if name == "" {
		name = s.config.Scheduler.Instance
	}

	sched, err := s.manager.Get(c.Request.Context(), name)
	if err != nil {
		s.fail(c, err)
		return nil, false
	}
	return sched, true
}

// fail maps scheduler errors onto HTTP statuses
func (s *Server) fail(c *gin.Context, err error) {
	status, message := http.StatusInternalServerError, "Internal server error"

	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		status, message = http.StatusNotFound, "Job not found"
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		status, message = http.StatusConflict, "Job is already running"
	case errors.Is(err, scheduler.ErrInvalidJob):
		status, message = http.StatusBadRequest, "Invalid job definition"
	case errors.Is(err, scheduler.ErrInvalidName):
		status, message = http.StatusBadRequest, "Invalid scheduler name"
	case errors.Is(err, scheduler.ErrStopped):
		status, message = http.StatusServiceUnavailable, "Scheduler is shutting down"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, message = http.StatusServiceUnavailable, "Request cancelled"
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}

	_ = c.Error(err)
	c.JSON(status, api.Fail(message, err.Error()))
}

func (s *Server) healthHandler(c *gin.Context) {
	if err := s.manager.Health(c.Request.Context()); err != nil {
		s.logger.Error("Health Check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, api.Fail("unhealthy", err.Error()))
		return
	}

	c.JSON(http.StatusOK, api.OK(api.HealthResponse{
		Status:    "healthy",
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Store:     "ok",
	}))
}

func (s *Server) listSchedulersHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.OK(api.SchedulersResponse{
		Default:    s.config.Scheduler.Instance,
		Schedulers: s.manager.Names(),
	}))
}

func (s *Server) backendsHandler(c *gin.Context) {
	info := api.DispatchInfo{
		Backends: s.registry.ListBackends(),
		Queues:   []string{},
	}
	if s.queues != nil {
		info.Queues = s.queues.Names()
	}
	c.JSON(http.StatusOK, api.OK(info))
}

func (s *Server) scheduleJobHandler(c *gin.Context) {
	var request types.JobRequest

	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, api.Fail("Invalid request format", err.Error()))
		return
	}

	sched, ok := s.instance(c)
	if !ok {
		return
	}

	result, err := sched.Schedule(c.Request.Context(), request)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, api.OK(result))
}

func (s *Server) listJobsHandler(c *gin.Context) {
	sched, ok := s.instance(c)
	if !ok {
		return
	}

	jobs, err := sched.List(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.OK(jobs))
}

func (s *Server) jobStatusHandler(c *gin.Context) {
	sched, ok := s.instance(c)
	if !ok {
		return
	}

	status, err := sched.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.OK(status))
}

func (s *Server) cancelJobHandler(c *gin.Context) {
	sched, ok := s.instance(c)
	if !ok {
		return
	}

	result, err := sched.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.OK(result))
}

func (s *Server) triggerJobHandler(c *gin.Context) {
	sched, ok := s.instance(c)
	if !ok {
		return
	}

	result, err := sched.Trigger(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, api.OK(result))
}

func (s *Server) enableJobHandler(c *gin.Context) {
	s.setEnabled(c, true)
}

func (s *Server) disableJobHandler(c *gin.Context) {
	s.setEnabled(c, false)
}

func (s *Server) setEnabled(c *gin.Context, enabled bool) {
	sched, ok := s.instance(c)
	if !ok {
		return
	}

	job, err := sched.SetEnabled(c.Request.Context(), c.Param("id"), enabled)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.OK(job))
}

func (s *Server) jobHistoryHandler(c *gin.Context) {
	var query api.HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, api.Fail("Invalid history query", err.Error()))
		return
	}
	query.JobID = c.Param("id")
	s.history(c, query)
}

func (s *Server) historyHandler(c *gin.Context) {
	var query api.HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, api.Fail("Invalid history query", err.Error()))
		return
	}
	s.history(c, query)
}

func (s *Server) history(c *gin.Context, query api.HistoryQuery) {
	sched, ok := s.instance(c)
	if !ok {
		return
	}

	execs, err := sched.History(c.Request.Context(), query.JobID, query.Limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.OK(execs))
}

func (s *Server) statsHandler(c *gin.Context) {
	sched, ok := s.instance(c)
	if !ok {
		return
	}

	stats, err := sched.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, api.OK(stats))
}
